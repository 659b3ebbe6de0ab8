package storage

import (
	"context"
	"encoding/json"

	"github.com/parlancehq/parlance/pkg/command"
)

// CommandLog adapts the store to the engine's audit recorder contract.
// Recording is best-effort by contract: the processor logs and drops any
// error returned here.
type CommandLog struct {
	store *Store
}

// NewCommandLog wraps the store as an audit recorder.
func NewCommandLog(store *Store) *CommandLog {
	return &CommandLog{store: store}
}

// Record flattens the execution transcript into one command_log row.
func (l *CommandLog) Record(ctx context.Context, exec *command.Execution) error {
	entry := &CommandLogEntry{
		ID:         exec.ID,
		UserID:     exec.User.ID,
		UserName:   exec.User.Name,
		Command:    exec.Command,
		Status:     "failed",
		DurationMS: exec.Duration.Milliseconds(),
		CreatedAt:  exec.StartedAt.UTC(),
	}
	if exec.Intent != nil {
		entry.Action = exec.Intent.Action
		entry.Source = string(exec.Intent.Source)
		entry.Payload = marshalOr(exec.Intent.Payload, "{}")
	}
	if len(exec.Steps) > 0 {
		entry.Steps = marshalOr(exec.Steps, "[]")
	}
	if exec.Result != nil {
		entry.Status = string(exec.Result.Status)
		entry.Result = marshalOr(exec.Result, "{}")
	}
	return l.store.SaveCommandLog(entry)
}

func marshalOr(v any, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(data)
}
