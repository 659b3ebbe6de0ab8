package llm

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces reference text (post bodies, SEO copy) from a chat
// model.
type Generator struct {
	client *Client
}

// NewGenerator wraps client for plain text generation.
func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// Generate returns the model's reply to prompt under the given system
// instructions. An empty reply is an error so callers never persist blank
// content.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	resp, err := g.client.ChatCompletion(ctx, ChatRequest{
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("model returned empty content")
	}
	return text, nil
}
