package action

import (
	"sync"

	"github.com/parlancehq/parlance/pkg/auth"
	"github.com/parlancehq/parlance/pkg/errors"
)

// Registry owns the set of invocable actions. It is populated during boot
// and read-only afterward; registries are constructed explicitly and passed
// by reference, never held as package globals.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
	order   []string
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
	}
}

// Register adds an action. Name collisions are rejected with
// ACTION_DUPLICATE, never silently overwritten.
func (r *Registry) Register(a Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if name == "" {
		return errors.New(errors.ErrCodeInvalidInput, "action name cannot be empty")
	}

	if _, exists := r.actions[name]; exists {
		return errors.Newf(errors.ErrCodeActionDuplicate, "action %q already registered", name)
	}

	r.actions[name] = a
	r.order = append(r.order, name)
	return nil
}

// Resolve returns the action registered under name, or an ACTION_NOT_FOUND
// error. It never panics.
func (r *Registry) Resolve(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actions[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeActionNotFound, "action %q not found", name)
	}
	return a, nil
}

// List returns all actions in registration order.
func (r *Registry) List() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Action, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.actions[name])
	}
	return out
}

// Visible returns the actions the user is allowed to see, applying each
// action's Restricted predicate when it declares one. This is listing
// visibility only; the permission check at dispatch time is separate.
func (r *Registry) Visible(user auth.User) []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Action, 0, len(r.order))
	for _, name := range r.order {
		a := r.actions[name]
		if restricted, ok := a.(Restricted); ok && !restricted.VisibleTo(user) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Names returns registered action names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// Clear removes all registrations. Test support; production code registers
// once at boot and never clears.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = make(map[string]Action)
	r.order = nil
}
