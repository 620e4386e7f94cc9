// Package session holds the per-replay context a debugger binds between
// Init and Close: the replay runtime, the session's own virtual clock, the
// session's calendar fork and the initial variables.
//
// Handlers receive the Context explicitly. Code that cannot take it as a
// parameter can recover it from a context.Context with FromContext.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/rewind/internal/calendar"
	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/runtime"
)

// ErrClosed is returned by accessors after Close.
var ErrClosed = errors.New("session is closed")

// Context is the state of one replay session.
//
// Thread-safety: Context is safe for concurrent use via internal mutex.
type Context struct {
	id       string
	calendar *calendar.Calendar

	mu      sync.RWMutex
	closed  bool
	runtime *runtime.Engine
	clock   *clock.Virtual
	vars    ir.IRObject
}

// New binds a session. vars is deep-copied.
func New(rt *runtime.Engine, clk *clock.Virtual, cal *calendar.Calendar, vars ir.IRObject) (*Context, error) {
	if rt == nil {
		return nil, errors.New("session: nil runtime")
	}
	if clk == nil {
		return nil, errors.New("session: nil clock")
	}
	if cal == nil {
		return nil, errors.New("session: nil calendar")
	}
	return &Context{
		id:       uuid.Must(uuid.NewV7()).String(),
		calendar: cal,
		runtime:  rt,
		clock:    clk,
		vars:     vars.Clone(),
	}, nil
}

// ID returns the session's UUIDv7.
func (c *Context) ID() string {
	return c.id
}

// Runtime returns the replay runtime (runtime B).
func (c *Context) Runtime() (*runtime.Engine, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.runtime, nil
}

// Clock returns the session's virtual clock.
func (c *Context) Clock() (*clock.Virtual, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.clock, nil
}

// Now reads the session's virtual clock.
func (c *Context) Now() (time.Time, error) {
	clk, err := c.Clock()
	if err != nil {
		return time.Time{}, err
	}
	return clk.Now(), nil
}

// Variables returns a copy of the initial variables.
func (c *Context) Variables() (ir.IRObject, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.vars.Clone(), nil
}

// Calendar returns the session's calendar fork.
func (c *Context) Calendar() *calendar.Calendar {
	return c.calendar
}

// Close releases the replay runtime. It is idempotent; only the first call
// can return an error.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	rt := c.runtime
	c.runtime = nil
	c.clock = nil
	c.vars = nil
	c.mu.Unlock()

	return rt.Close()
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying sc.
func WithSession(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext returns the session bound to ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	sc, ok := ctx.Value(ctxKey{}).(*Context)
	return sc, ok && sc != nil
}
