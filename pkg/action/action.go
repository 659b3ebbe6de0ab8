// Package action defines the contract between the command engine and the
// business modules that plug into it: named, schema-described,
// permission-guarded operations, the progress sink they report through, and
// the registry that owns them for the life of the process.
package action

import (
	"context"
	"fmt"

	"github.com/parlancehq/parlance/pkg/auth"
)

// Payload is a validated, schema-normalized argument map.
type Payload map[string]any

// Action is a single invocable operation. Implementations are registered at
// boot and invoked at most once per validated command.
type Action interface {
	// Name is the unique identifier, namespaced domain.verb (e.g. "shop.create_product").
	Name() string
	// Description is consumed by the AI fallback to pick candidates.
	Description() string
	// Schema declares the payload fields the handler accepts.
	Schema() Schema
	// Permission names the permission required to execute, "" for public.
	Permission() string
	// Handle executes without progress reporting.
	Handle(ctx context.Context, payload Payload) (*Result, error)
	// HandleWithProgress executes, emitting Steps through sink as it goes.
	HandleWithProgress(ctx context.Context, payload Payload, sink Sink) (*Result, error)
}

// Restricted is an optional narrowing interface. Actions that implement it
// are hidden from candidate lists and the status endpoint for users the
// predicate rejects; the hard permission check still runs at dispatch time.
type Restricted interface {
	VisibleTo(user auth.User) bool
}

// HandlerFunc is the function form of an action body. The sink is never nil;
// callers that don't stream pass a NopSink.
type HandlerFunc func(ctx context.Context, payload Payload, sink Sink) (*Result, error)

// Definition describes an action declaratively for New.
type Definition struct {
	Name        string
	Description string
	Schema      Schema
	Permission  string
	Handler     HandlerFunc
	// VisibleTo optionally hides the action from listings; nil means visible
	// to everyone.
	VisibleTo func(user auth.User) bool
}

// New builds an Action from a Definition.
func New(def Definition) (Action, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("action name cannot be empty")
	}
	if def.Handler == nil {
		return nil, fmt.Errorf("action %q has no handler", def.Name)
	}
	return &funcAction{def: def}, nil
}

// MustNew builds an Action from a Definition and panics on error. Use for
// static definitions wired at boot.
func MustNew(def Definition) Action {
	a, err := New(def)
	if err != nil {
		panic(err)
	}
	return a
}

type funcAction struct {
	def Definition
}

func (a *funcAction) Name() string        { return a.def.Name }
func (a *funcAction) Description() string { return a.def.Description }
func (a *funcAction) Schema() Schema      { return a.def.Schema }
func (a *funcAction) Permission() string  { return a.def.Permission }

func (a *funcAction) Handle(ctx context.Context, payload Payload) (*Result, error) {
	return a.def.Handler(ctx, payload, NopSink{})
}

func (a *funcAction) HandleWithProgress(ctx context.Context, payload Payload, sink Sink) (*Result, error) {
	if sink == nil {
		sink = NopSink{}
	}
	return a.def.Handler(ctx, payload, sink)
}

func (a *funcAction) VisibleTo(user auth.User) bool {
	if a.def.VisibleTo == nil {
		return true
	}
	return a.def.VisibleTo(user)
}
