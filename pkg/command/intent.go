// Package command implements the resolution and dispatch engine: free-text
// commands are matched against pattern rules, fall back to AI structured
// parsing, then validated, authorized, and executed with live progress.
package command

import (
	"github.com/parlancehq/parlance/pkg/action"
)

// IntentSource tags how an intent was resolved.
type IntentSource string

const (
	// SourcePattern means a deterministic rule matched the command text.
	SourcePattern IntentSource = "pattern"
	// SourceAI means the structured-parsing service resolved the command.
	SourceAI IntentSource = "ai"
)

// Intent is the per-command resolution outcome: which action the raw text
// mapped to and the extracted payload. Ephemeral, produced once per command.
type Intent struct {
	Raw     string         `json:"raw"`
	Action  string         `json:"action"`
	Payload action.Payload `json:"payload,omitempty"`
	Source  IntentSource   `json:"source"`
}
