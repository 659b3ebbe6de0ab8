package command

import (
	"context"
	"time"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/auth"
)

// Execution is the full transcript of one processed command, assembled by
// the processor and handed to the audit recorder after the terminal Result
// is determined. Never mutated afterward.
type Execution struct {
	ID        string
	Command   string
	User      auth.User
	Intent    *Intent
	Steps     []action.Step
	Result    *action.Result
	StartedAt time.Time
	Duration  time.Duration
}

// AuditRecorder persists execution transcripts. Recording is best-effort:
// the processor logs and swallows any error, so implementations must never
// be load-bearing for the command outcome.
type AuditRecorder interface {
	Record(ctx context.Context, exec *Execution) error
}

// NopRecorder discards transcripts. Used when storage is not configured.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, exec *Execution) error { return nil }
