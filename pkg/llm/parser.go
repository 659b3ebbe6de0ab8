package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parlancehq/parlance/pkg/command"
	"github.com/parlancehq/parlance/pkg/logging"
)

const defaultMaxContextTokens = 2048

const parserSystemPrompt = `You map a user's free-text command onto exactly one of the available actions.

Reply with a single JSON object and nothing else:
  {"action": "<action name>", "payload": {<fields matching the action's schema>}}

Rules:
- Pick an action only when the command clearly asks for it.
- Fill payload fields from the command text; omit fields the command does not supply.
- If no action fits, reply {"action": "none"}.`

// Parser resolves free-text commands through a chat model. It implements
// command.Parser; an explicit "none" from the model becomes
// command.ErrNoMatch.
type Parser struct {
	client           *Client
	maxContextTokens int
	logger           *logging.Logger
}

// NewParser wraps client as a structured command parser. maxContextTokens
// bounds how much ambient context is sent with each call; <= 0 uses the
// default.
func NewParser(client *Client, maxContextTokens int, logger *logging.Logger) *Parser {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Parser{
		client:           client,
		maxContextTokens: maxContextTokens,
		logger:           logger,
	}
}

// parseReply is the shape the model is instructed to return.
type parseReply struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

// Parse sends the command and candidate actions to the model and decodes
// its structured answer.
func (p *Parser) Parse(ctx context.Context, req command.ParseRequest) (*command.ParseResult, error) {
	if len(req.Actions) == 0 {
		return nil, command.ErrNoMatch
	}

	resp, err := p.client.ChatCompletion(ctx, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: parserSystemPrompt},
			{Role: "user", Content: p.buildPrompt(req)},
		},
		Temperature:    0,
		MaxTokens:      512,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	raw := strings.TrimSpace(stripFences(resp.Text()))
	if raw == "" {
		return nil, command.ErrNoMatch
	}

	var reply parseReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		p.logf("parse_reply_invalid", "model reply was not valid JSON", map[string]any{
			"reply": clip(raw, 200),
		})
		return nil, fmt.Errorf("decoding model reply: %w", err)
	}

	action := strings.TrimSpace(reply.Action)
	if action == "" || strings.EqualFold(action, "none") {
		return nil, command.ErrNoMatch
	}

	return &command.ParseResult{Action: action, Payload: reply.Payload}, nil
}

// buildPrompt renders the command, candidate actions, and trimmed context
// snapshots into the user message.
func (p *Parser) buildPrompt(req command.ParseRequest) string {
	var b strings.Builder

	b.WriteString("Command:\n")
	b.WriteString(req.Command)
	b.WriteString("\n\nAvailable actions:\n")
	for _, a := range req.Actions {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
		if len(a.Schema) > 0 {
			if schema, err := json.Marshal(a.Schema); err == nil {
				fmt.Fprintf(&b, "  schema: %s\n", schema)
			}
		}
	}

	if len(req.Context) > 0 {
		if snapshot, err := json.MarshalIndent(req.Context, "", "  "); err == nil {
			b.WriteString("\nContext:\n")
			b.WriteString(TruncateToTokens(string(snapshot), p.maxContextTokens))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (p *Parser) logf(eventType, message string, details map[string]any) {
	if p.logger == nil {
		return
	}
	p.logger.Warn(logging.CategoryLLM, eventType, message, details)
}

// stripFences removes a markdown code fence wrapper if the model added one
// despite the JSON response format.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
