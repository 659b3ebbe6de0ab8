// Package capability groups actions into bundles that can be enabled and
// disabled at runtime. The Enabled predicate is re-evaluated on every
// resolution, never cached, so feature-flag changes take effect immediately.
package capability

import (
	"github.com/parlancehq/parlance/pkg/action"
)

// Capability is a named bundle of actions with a runtime enable predicate.
type Capability interface {
	Name() string
	Actions() []action.Action
	// Enabled is consulted on every resolution. An error means the bundle
	// could not be evaluated; the registry treats that as disabled.
	Enabled() (bool, error)
}

type bundle struct {
	name    string
	actions []action.Action
	enabled func() (bool, error)
}

// New builds a capability whose availability is decided by the enabled
// predicate. Pass the predicate explicitly at boot; nil means always on.
func New(name string, enabled func() (bool, error), actions ...action.Action) Capability {
	return &bundle{name: name, actions: actions, enabled: enabled}
}

// Static builds an always-enabled capability.
func Static(name string, actions ...action.Action) Capability {
	return New(name, nil, actions...)
}

func (b *bundle) Name() string { return b.name }

func (b *bundle) Actions() []action.Action {
	return append([]action.Action(nil), b.actions...)
}

func (b *bundle) Enabled() (bool, error) {
	if b.enabled == nil {
		return true, nil
	}
	return b.enabled()
}
