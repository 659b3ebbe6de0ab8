// Package contextinfo gathers ambient facts that enrich AI command
// parsing. Providers are read-only snapshots keyed by name; a failing
// provider is skipped, never fatal, because context is a parsing aid
// rather than a correctness requirement.
package contextinfo

import (
	"context"
	"runtime"
	"time"
)

// Provider produces a snapshot of read-only facts under a stable key.
// Implementations must be idempotent and side-effect-free.
type Provider interface {
	Key() string
	Context(ctx context.Context) (map[string]any, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc struct {
	ProviderKey string
	Fn          func(ctx context.Context) (map[string]any, error)
}

func (p ProviderFunc) Key() string { return p.ProviderKey }

func (p ProviderFunc) Context(ctx context.Context) (map[string]any, error) {
	return p.Fn(ctx)
}

// TimeProvider reports the current wall-clock time, so the parser can
// resolve phrases like "tomorrow" without guessing the server date.
type TimeProvider struct {
	Now func() time.Time
}

func (TimeProvider) Key() string { return "time" }

func (p TimeProvider) Context(ctx context.Context) (map[string]any, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	t := now().UTC()
	return map[string]any{
		"utc":     t.Format(time.RFC3339),
		"weekday": t.Weekday().String(),
	}, nil
}

// RuntimeProvider reports coarse process facts useful for operational
// commands ("how many workers are busy").
type RuntimeProvider struct{}

func (RuntimeProvider) Key() string { return "runtime" }

func (RuntimeProvider) Context(ctx context.Context) (map[string]any, error) {
	return map[string]any{
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}, nil
}
