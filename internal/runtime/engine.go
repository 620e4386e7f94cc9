package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/store"
)

// ErrClosed is returned by every operation on a closed engine.
var ErrClosed = errors.New("runtime is closed")

// Engine is a process runtime bound to one store and one clock.
//
// Thread-safety model:
//   - Subscribe() and unsubscribe: safe from any goroutine
//   - Mutating operations (Deploy, Start*, CompleteTask) are serialised by
//     an internal mutex; listeners run inside that critical section and must
//     not call back into mutating operations
//   - Queries: safe from any goroutine
type Engine struct {
	store     *store.Store
	ownsStore bool
	clock     clock.Clock
	seq       *clock.Sequence
	ids       IDGenerator
	logger    *slog.Logger

	writeMu sync.Mutex // serialises mutations and event delivery

	mu        sync.Mutex
	closed    bool
	listeners []*subscription
}

type subscription struct {
	l Listener
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the generator for deployment, instance and task IDs.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine over an existing store. The store stays owned by the
// caller; Close does not close it.
//
// The logical sequence resumes after the highest seq already in the store.
func New(ctx context.Context, s *store.Store, clk clock.Clock, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, errors.New("runtime: nil store")
	}
	if clk == nil {
		return nil, errors.New("runtime: nil clock")
	}
	maxSeq, err := s.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}

	e := &Engine{
		store:  s,
		clock:  clk,
		seq:    clock.NewSequenceAt(maxSeq),
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Open opens the store at path and creates an engine that owns it.
// Use store.MemoryPath for a throwaway runtime.
func Open(ctx context.Context, path string, clk clock.Clock, opts ...Option) (*Engine, error) {
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	e, err := New(ctx, s, clk, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	e.ownsStore = true
	return e, nil
}

// Close releases the engine. It is idempotent.
// Listeners are dropped; the store is closed only if Open created it.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.listeners = nil
	e.mu.Unlock()

	if e.ownsStore {
		return e.store.Close()
	}
	return nil
}

// Clock returns the engine's time source.
func (e *Engine) Clock() clock.Clock {
	return e.clock
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Subscribe registers l for all future events. Listeners are called in
// registration order. The returned function removes the subscription and is
// safe to call more than once.
func (e *Engine) Subscribe(l Listener) (unsubscribe func()) {
	sub := &subscription{l: l}
	e.mu.Lock()
	e.listeners = append(e.listeners, sub)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.listeners {
				if s == sub {
					e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// emit delivers ev to a snapshot of the current listeners.
// Each listener receives its own copy of the fields.
func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	subs := make([]*subscription, len(e.listeners))
	copy(subs, e.listeners)
	e.mu.Unlock()

	e.logger.Debug("runtime event", "kind", ev.Kind, "seq", e.seq.Current())
	for _, sub := range subs {
		sub.l.OnEvent(Event{Kind: ev.Kind, Fields: ev.Fields.Clone()})
	}
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}
