// Package recorder captures canonical events from a live runtime.
//
// A Recorder subscribes to a runtime's event hook, runs every raw event
// through a transform.Pipeline, and stamps each produced event with the
// runtime clock's current time, the next recording seq and its
// content-addressed ID. Events are kept in arrival order; ordering for replay
// is the calendar's job.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/rewind/internal/calendar"
	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/runtime"
	"github.com/roach88/rewind/internal/transform"
)

var (
	// ErrAlreadyAttached is returned by Attach while a source is attached.
	ErrAlreadyAttached = errors.New("recorder already attached")

	// ErrStillAttached is returned by Calendar before Detach: a calendar is
	// only built from a finished recording.
	ErrStillAttached = errors.New("recorder still attached")
)

// Source is a runtime the recorder can listen to.
// *runtime.Engine satisfies it.
type Source interface {
	Subscribe(runtime.Listener) (unsubscribe func())
	Clock() clock.Clock
}

// Recorder accumulates canonical events.
//
// Thread-safety: Recorder is safe for concurrent use via internal mutex.
type Recorder struct {
	pipeline transform.Transformer
	logger   *slog.Logger

	mu          sync.Mutex
	seq         *clock.Sequence
	clock       clock.Clock
	unsubscribe func()
	events      []ir.SimEvent
	errs        []error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the recorder logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// New creates a recorder. A nil pipeline uses transform.Default().
func New(pipeline transform.Transformer, opts ...Option) *Recorder {
	if pipeline == nil {
		pipeline = transform.Default()
	}
	r := &Recorder{
		pipeline: pipeline,
		logger:   slog.Default(),
		seq:      clock.NewSequence(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach subscribes the recorder to src.
// Events recorded from earlier attachments are kept; seq keeps counting.
func (r *Recorder) Attach(src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		return ErrAlreadyAttached
	}
	r.clock = src.Clock()
	r.unsubscribe = src.Subscribe(r)
	return nil
}

// Detach unsubscribes from the current source. It is a no-op when not
// attached.
func (r *Recorder) Detach() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Attached reports whether the recorder is subscribed to a source.
func (r *Recorder) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribe != nil
}

// OnEvent implements runtime.Listener.
//
// Events the pipeline declines are dropped. An event whose payload cannot be
// hashed is dropped and reported by Err.
func (r *Recorder) OnEvent(ev runtime.Event) {
	sim, ok := r.pipeline.Transform(ev)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clock != nil {
		sim.Timestamp = r.clock.Now()
	}
	sim.Seq = r.seq.Next()
	if sim.Payload == nil {
		sim.Payload = ir.IRObject{}
	}
	id, err := ir.EventID(sim.Type, sim.Timestamp, sim.Seq, sim.Payload)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("record %s: %w", sim.Type, err))
		r.logger.Error("dropping unhashable event", "event_type", sim.Type, "seq", sim.Seq, "error", err)
		return
	}
	sim.ID = id
	r.events = append(r.events, sim)

	r.logger.Debug("event recorded",
		"event_type", sim.Type,
		"seq", sim.Seq,
		"at_ms", clock.ToMillis(sim.Timestamp),
	)
}

// Events returns a deep copy of the recorded events in arrival order.
func (r *Recorder) Events() []ir.SimEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.SimEvent, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Clone()
	}
	return out
}

// Err returns the joined errors of dropped events, or nil.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

// Calendar builds a calendar from the recorded events.
// Fails with ErrStillAttached until Detach is called.
func (r *Recorder) Calendar() (*calendar.Calendar, error) {
	if r.Attached() {
		return nil, ErrStillAttached
	}
	return calendar.New(r.Events()), nil
}
