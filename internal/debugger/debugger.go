package debugger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/rewind/internal/calendar"
	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/handler"
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/runtime"
	"github.com/roach88/rewind/internal/session"
	"github.com/roach88/rewind/internal/store"
)

// RuntimeFactory builds the replay runtime for one session. clk is the
// session's virtual clock; the runtime must read time only from it.
type RuntimeFactory func(ctx context.Context, clk clock.Clock) (*runtime.Engine, error)

// MemoryRuntime returns a factory opening a private in-memory runtime per
// session.
func MemoryRuntime(opts ...runtime.Option) RuntimeFactory {
	return func(ctx context.Context, clk clock.Clock) (*runtime.Engine, error) {
		return runtime.Open(ctx, store.MemoryPath, clk, opts...)
	}
}

// Config wires a Debugger.
type Config struct {
	// Calendar is the recorded event sequence. Required. The debugger
	// replays a fork; the calendar's own cursor is never moved.
	Calendar *calendar.Calendar

	// Handlers maps event types to handlers. Nil means handler.Defaults().
	// The registry is cloned at construction.
	Handlers *handler.Registry

	// NewRuntime builds the replay runtime at Init. Required.
	NewRuntime RuntimeFactory

	// Origin is the virtual time at Init. Zero means the first event's
	// timestamp, or clock.Epoch for an empty calendar. Must not be after
	// the first event.
	Origin time.Time
}

// Option configures a Debugger.
type Option func(*Debugger)

// WithLogger sets the debugger logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Debugger) {
		d.logger = l
	}
}

// WithObserver registers fn to be called after every successful dispatch,
// in dispatch order.
func WithObserver(fn func(ir.SimEvent)) Option {
	return func(d *Debugger) {
		d.observers = append(d.observers, fn)
	}
}

// Debugger drives one replay session over a recorded calendar.
//
// Thread-safety model:
//   - State(), Now(), Trace(), Remaining(), Session(): safe from any goroutine
//   - Step/Run*: one at a time; a call made while another is dispatching
//     (including from inside a handler) fails with INVALID_SESSION_STATE
type Debugger struct {
	calendar   *calendar.Calendar
	handlers   *handler.Registry
	newRuntime RuntimeFactory
	origin     time.Time
	logger     *slog.Logger
	observers  []func(ir.SimEvent)

	mu      sync.Mutex
	state   State
	session *session.Context
	clock   *clock.Virtual
	cursor  *calendar.Calendar
	trace   []ir.SimEvent
}

// New validates cfg and returns an uninitialized debugger.
func New(cfg Config, opts ...Option) (*Debugger, error) {
	if cfg.Calendar == nil {
		return nil, errors.New("debugger: nil calendar")
	}
	if cfg.NewRuntime == nil {
		return nil, errors.New("debugger: nil runtime factory")
	}

	handlers := cfg.Handlers
	if handlers == nil {
		handlers = handler.Defaults()
	}

	origin := clock.Epoch
	first, hasEvents := cfg.Calendar.First()
	if hasEvents {
		origin = first.Timestamp
	}
	if !cfg.Origin.IsZero() {
		if hasEvents && cfg.Origin.After(first.Timestamp) {
			return nil, fmt.Errorf("debugger: origin %dms is after the first event at %dms",
				clock.ToMillis(cfg.Origin), clock.ToMillis(first.Timestamp))
		}
		origin = cfg.Origin
	}

	d := &Debugger{
		calendar:   cfg.Calendar,
		handlers:   handlers.Clone(),
		newRuntime: cfg.NewRuntime,
		origin:     origin,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Init binds a fresh session: a virtual clock at the origin, a fork of the
// calendar and a runtime from the factory. vars are the session's initial
// variables. Valid only once, from Uninitialized.
func (d *Debugger) Init(ctx context.Context, vars ir.IRObject) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateUninitialized {
		return invalidState("init", d.state)
	}

	clk := clock.NewVirtual(d.origin)
	rt, err := d.newRuntime(ctx, clk)
	if err != nil {
		return fmt.Errorf("init: create runtime: %w", err)
	}
	fork := d.calendar.Fork()
	sc, err := session.New(rt, clk, fork, vars)
	if err != nil {
		rt.Close()
		return fmt.Errorf("init: %w", err)
	}

	d.session = sc
	d.clock = clk
	d.cursor = fork
	d.trace = nil
	d.state = StatePaused

	d.logger.Info("debug session started",
		"session_id", sc.ID(),
		"origin_ms", clock.ToMillis(d.origin),
		"events", fork.Len(),
	)
	return nil
}

// Step dispatches the next event. It returns false, with no error, when
// the calendar is exhausted.
func (d *Debugger) Step(ctx context.Context) (bool, error) {
	if err := d.begin("step"); err != nil {
		return false, err
	}
	defer d.end()

	ev, ok := d.cursor.Peek()
	if !ok {
		return false, nil
	}
	if err := d.dispatch(ctx, ev); err != nil {
		return true, err
	}
	return true, nil
}

// RunToTime dispatches every remaining event with a timestamp at or before
// t, then sets the clock to t. It returns the number of events dispatched.
//
// A target before the current virtual time fails with BACKWARD_TIME_TRAVEL
// and dispatches nothing. On a dispatch failure the clock stays at the
// failing event's time.
func (d *Debugger) RunToTime(ctx context.Context, t time.Time) (int, error) {
	if err := d.begin("run to time"); err != nil {
		return 0, err
	}
	defer d.end()

	if now := d.clock.Now(); t.Before(now) {
		return 0, backwardTimeTravel(t, now)
	}

	n := 0
	for {
		ev, ok := d.cursor.Peek()
		if !ok || ev.Timestamp.After(t) {
			break
		}
		if err := d.dispatch(ctx, ev); err != nil {
			return n, err
		}
		n++
	}
	d.clock.Set(t)
	return n, nil
}

// RunToEvent dispatches events until one of type tag has been dispatched.
// The matching event is dispatched. If the calendar runs out first, every
// remaining event has been dispatched and the error is
// BREAKPOINT_NEVER_MATCHED.
func (d *Debugger) RunToEvent(ctx context.Context, tag string) (int, error) {
	if err := d.begin("run to event"); err != nil {
		return 0, err
	}
	defer d.end()

	n := 0
	for {
		ev, ok := d.cursor.Peek()
		if !ok {
			return n, breakpointNeverMatched(tag, n)
		}
		if err := d.dispatch(ctx, ev); err != nil {
			return n, err
		}
		n++
		if ev.Type == tag {
			return n, nil
		}
	}
}

// RunContinue dispatches every remaining event.
func (d *Debugger) RunContinue(ctx context.Context) (int, error) {
	if err := d.begin("run continue"); err != nil {
		return 0, err
	}
	defer d.end()

	n := 0
	for {
		ev, ok := d.cursor.Peek()
		if !ok {
			return n, nil
		}
		if err := d.dispatch(ctx, ev); err != nil {
			return n, err
		}
		n++
	}
}

// Close releases the session and its runtime. Closing a closed debugger
// is a no-op. Closing before Init, or from inside a dispatch, fails with
// INVALID_SESSION_STATE.
func (d *Debugger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateClosed:
		return nil
	case StatePaused:
	default:
		return invalidState("close", d.state)
	}

	d.state = StateClosed
	sc := d.session
	d.session = nil
	d.cursor = nil

	d.logger.Info("debug session closed",
		"session_id", sc.ID(),
		"dispatched", len(d.trace),
	)
	return sc.Close()
}

// State returns the lifecycle state.
func (d *Debugger) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Now returns the session's virtual time.
func (d *Debugger) Now() (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateUninitialized || d.state == StateClosed {
		return time.Time{}, invalidState("now", d.state)
	}
	return d.clock.Now(), nil
}

// Session returns the bound session, for assertions against the replay
// runtime between calls.
func (d *Debugger) Session() (*session.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateUninitialized || d.state == StateClosed {
		return nil, invalidState("session", d.state)
	}
	return d.session, nil
}

// Trace returns the successfully dispatched events, in order. The trace
// survives Close.
func (d *Debugger) Trace() []ir.SimEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ir.SimEvent, len(d.trace))
	for i, ev := range d.trace {
		out[i] = ev.Clone()
	}
	return out
}

// Remaining returns the number of undispatched events, or 0 outside a
// session.
func (d *Debugger) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursor == nil {
		return 0
	}
	return d.cursor.Remaining()
}

func (d *Debugger) begin(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StatePaused {
		return invalidState(op, d.state)
	}
	d.state = StateRunning
	return nil
}

func (d *Debugger) end() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StatePaused
}

// dispatch applies one event. Called only while Running, so the session,
// clock and cursor are stable without holding mu.
func (d *Debugger) dispatch(ctx context.Context, ev ir.SimEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.clock.Set(ev.Timestamp)
	err := d.handlers.Dispatch(ctx, ev, d.session)
	if advErr := d.cursor.AdvancePast(ev); advErr != nil {
		return errors.Join(err, advErr)
	}

	if err != nil {
		d.logger.Error("dispatch failed",
			"session_id", d.session.ID(),
			"event_type", ev.Type,
			"seq", ev.Seq,
			"at_ms", clock.ToMillis(ev.Timestamp),
			"error", err,
		)
		return err
	}

	d.mu.Lock()
	d.trace = append(d.trace, ev)
	d.mu.Unlock()

	d.logger.Debug("event dispatched",
		"session_id", d.session.ID(),
		"event_type", ev.Type,
		"seq", ev.Seq,
		"at_ms", clock.ToMillis(ev.Timestamp),
	)
	for _, fn := range d.observers {
		fn(ev.Clone())
	}
	return nil
}
