// Package handler re-enacts canonical events against a replay runtime.
//
// Handlers are registered by event type tag. Dispatch looks up the handler
// for an event's tag and applies it to the session's runtime; no handler is
// a failure, never a silent skip.
package handler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/session"
)

// Handler applies one event's payload to a session.
// Handlers receive a copy of the payload and may keep or modify it.
type Handler interface {
	Apply(ctx context.Context, payload ir.IRObject, sc *session.Context) error
}

// Func adapts a function to Handler.
type Func func(ctx context.Context, payload ir.IRObject, sc *session.Context) error

// Apply calls f.
func (f Func) Apply(ctx context.Context, payload ir.IRObject, sc *session.Context) error {
	return f(ctx, payload, sc)
}

// Registry maps event type tags to handlers.
//
// A registry is filled before it is handed to a debugger, which takes a
// Clone; later registrations do not affect running debuggers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds tag to h. Empty tags, nil handlers and duplicate tags are
// rejected.
func (r *Registry) Register(tag string, h Handler) error {
	if tag == "" {
		return errors.New("register handler: empty event type")
	}
	if h == nil {
		return fmt.Errorf("register handler %q: nil handler", tag)
	}
	if _, exists := r.handlers[tag]; exists {
		return fmt.Errorf("register handler %q: already registered", tag)
	}
	r.handlers[tag] = h
	return nil
}

// Lookup returns the handler for tag.
func (r *Registry) Lookup(tag string) (Handler, bool) {
	h, ok := r.handlers[tag]
	return h, ok
}

// Types returns the registered tags, sorted.
func (r *Registry) Types() []string {
	return slices.Sorted(maps.Keys(r.handlers))
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	return len(r.handlers)
}

// Clone returns an independent registry with the same bindings.
func (r *Registry) Clone() *Registry {
	return &Registry{handlers: maps.Clone(r.handlers)}
}

// Dispatch applies the handler registered for ev.Type.
//
// Errors are *ir.SimError: UNHANDLED_EVENT_TYPE when no handler matches,
// HANDLER_FAILURE wrapping the handler's error otherwise.
func (r *Registry) Dispatch(ctx context.Context, ev ir.SimEvent, sc *session.Context) error {
	h, ok := r.handlers[ev.Type]
	if !ok {
		return ir.NewEventError(ir.ErrCodeUnhandledEventType, ev,
			fmt.Sprintf("no handler registered for event type %q", ev.Type), nil)
	}
	if err := h.Apply(session.WithSession(ctx, sc), ev.Payload.Clone(), sc); err != nil {
		return ir.NewEventError(ir.ErrCodeHandlerFailure, ev, "handler failed", err)
	}
	return nil
}
