package command

import (
	"context"
	"errors"
)

// ErrNoMatch is the explicit "no action matched" signal a Parser returns
// when the command maps to none of the candidate actions. Any other parser
// error is treated the same way by the processor, but ErrNoMatch marks the
// distinction between "the model said no" and "the call failed".
var ErrNoMatch = errors.New("no action matched")

// CandidateAction describes one resolvable action to the parsing service.
type CandidateAction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// ParseRequest carries everything the parsing service needs to map a raw
// command onto a candidate action.
type ParseRequest struct {
	Command string
	Actions []CandidateAction
	Context map[string]map[string]any
}

// ParseResult is the parser's structured answer.
type ParseResult struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Parser is the external structured-parsing service. Implementations must
// honor ctx deadlines; the processor wraps every call in a hard timeout.
type Parser interface {
	Parse(ctx context.Context, req ParseRequest) (*ParseResult, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, req ParseRequest) (*ParseResult, error)

func (f ParserFunc) Parse(ctx context.Context, req ParseRequest) (*ParseResult, error) {
	return f(ctx, req)
}
