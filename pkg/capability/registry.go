package capability

import (
	"fmt"
	"sync"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/errors"
	"github.com/parlancehq/parlance/pkg/logging"
)

// Registry owns the registered capabilities and, transitively, their
// actions. Registration happens at boot; ActiveActions may be called
// concurrently afterward.
type Registry struct {
	mu      sync.RWMutex
	caps    map[string]Capability
	order   []string
	actions *action.Registry
	logger  *logging.Logger
}

// NewRegistry creates a capability registry that registers actions into
// the given action registry. logger may be nil.
func NewRegistry(actions *action.Registry, logger *logging.Logger) *Registry {
	return &Registry{
		caps:    make(map[string]Capability),
		actions: actions,
		logger:  logger,
	}
}

// Register records the capability and registers each of its actions.
// The whole registration fails up front if the capability name collides or
// any action name would collide; nothing is partially registered.
func (r *Registry) Register(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if name == "" {
		return errors.New(errors.ErrCodeInvalidInput, "capability name cannot be empty")
	}
	if _, exists := r.caps[name]; exists {
		return errors.Newf(errors.ErrCodeActionDuplicate, "capability %q already registered", name)
	}

	bundle := c.Actions()
	seen := make(map[string]bool, len(bundle))
	for _, a := range bundle {
		if seen[a.Name()] {
			return errors.Newf(errors.ErrCodeActionDuplicate,
				"capability %q declares action %q twice", name, a.Name())
		}
		seen[a.Name()] = true
		if _, err := r.actions.Resolve(a.Name()); err == nil {
			return errors.Newf(errors.ErrCodeActionDuplicate,
				"capability %q: action %q already registered", name, a.Name())
		}
	}

	for _, a := range bundle {
		if err := r.actions.Register(a); err != nil {
			return fmt.Errorf("registering actions for capability %q: %w", name, err)
		}
	}

	r.caps[name] = c
	r.order = append(r.order, name)
	return nil
}

// ActiveActions returns the actions of every currently-enabled capability,
// re-evaluating each Enabled predicate fresh. A predicate error or panic
// disables that capability (fail-closed) and is surfaced only to the log.
func (r *Registry) ActiveActions() []action.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []action.Action
	for _, name := range r.order {
		c := r.caps[name]
		if !r.isEnabled(c) {
			continue
		}
		out = append(out, c.Actions()...)
	}
	return out
}

// Active reports whether the named capability exists and is currently
// enabled.
func (r *Registry) Active(name string) bool {
	r.mu.RLock()
	c, ok := r.caps[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.isEnabled(c)
}

// Capabilities returns the registered capabilities in registration order.
func (r *Registry) Capabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.caps[name])
	}
	return out
}

// isEnabled evaluates the predicate with fail-closed panic and error
// handling.
func (r *Registry) isEnabled(c Capability) (enabled bool) {
	defer func() {
		if rec := recover(); rec != nil {
			enabled = false
			r.logf("enabled_panic", c.Name(), fmt.Sprintf("panic: %v", rec))
		}
	}()

	enabled, err := c.Enabled()
	if err != nil {
		r.logf("enabled_error", c.Name(), err.Error())
		return false
	}
	return enabled
}

func (r *Registry) logf(event, capName, msg string) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(logging.CategoryCapability, event, msg, map[string]any{
		"capability": capName,
	})
}
