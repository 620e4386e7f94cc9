package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/rewind/internal/calendar"
	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/debugger"
	"github.com/roach88/rewind/internal/handler"
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/recorder"
	"github.com/roach88/rewind/internal/runtime"
	"github.com/roach88/rewind/internal/store"
	"github.com/roach88/rewind/internal/testutil"
)

// Harness runs scenarios on in-memory runtimes with sequential IDs.
type Harness struct {
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger routes runtime, recorder and debugger logs to l.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

func newHarness(opts []Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Record executes the scenario's recording pass and returns the calendar.
func Record(ctx context.Context, s *Scenario, opts ...Option) (*calendar.Calendar, error) {
	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return newHarness(opts).record(ctx, s)
}

// Run records the scenario, replays it through a debugger and evaluates
// the assertions.
//
// Failed expectations are reported in the result; the error return is for
// scenarios that cannot be executed at all.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	h := newHarness(opts)

	cal, err := h.record(ctx, s)
	if err != nil {
		return nil, err
	}
	return h.replay(ctx, s, cal)
}

// record runs the record steps against runtime A with a recorder attached.
func (h *Harness) record(ctx context.Context, s *Scenario) (*calendar.Calendar, error) {
	clk := clock.NewVirtual(clock.Epoch)
	rt, err := runtime.Open(ctx, store.MemoryPath, clk,
		runtime.WithIDGenerator(testutil.NewSequentialGenerator("rec")),
		runtime.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording runtime: %w", err)
	}
	defer rt.Close()

	rec := recorder.New(nil, recorder.WithLogger(h.logger))
	if err := rec.Attach(rt); err != nil {
		return nil, err
	}

	resources := make(map[string]store.Resource, len(s.Resources))
	for _, r := range s.Resources {
		resources[r.Name] = store.Resource{Name: r.Name, Content: []byte(r.Content)}
	}

	for i, step := range s.Record {
		if step.AtMs != nil {
			clk.Set(clock.Millis(*step.AtMs))
		}
		if err := recordStep(ctx, rt, step, resources); err != nil {
			rec.Detach()
			return nil, fmt.Errorf("record step %d: %w", i, err)
		}
	}
	rec.Detach()

	if err := rec.Err(); err != nil {
		return nil, fmt.Errorf("recording dropped events: %w", err)
	}
	cal, err := rec.Calendar()
	if err != nil {
		return nil, err
	}

	h.logger.Info("scenario recorded",
		"scenario", s.Name,
		"events", cal.Len(),
	)
	return cal, nil
}

func recordStep(ctx context.Context, rt *runtime.Engine, step RecordStep, resources map[string]store.Resource) error {
	switch {
	case step.Deploy != nil:
		list := make([]store.Resource, len(step.Deploy.Resources))
		for i, name := range step.Deploy.Resources {
			list[i] = resources[name]
		}
		_, err := rt.Deploy(ctx, step.Deploy.Name, list...)
		return err

	case step.Start != nil:
		vars, err := ir.ObjectFromGo(step.Start.Variables)
		if err != nil {
			return fmt.Errorf("variables: %w", err)
		}
		_, err = rt.StartProcessInstanceByKey(ctx, step.Start.Process, step.Start.BusinessKey, vars)
		return err

	case step.Complete != nil:
		vars, err := ir.ObjectFromGo(step.Complete.Variables)
		if err != nil {
			return fmt.Errorf("variables: %w", err)
		}
		tasks, err := rt.Tasks(ctx, store.TaskFilter{
			DefinitionKey: step.Complete.Task,
			BusinessKey:   step.Complete.BusinessKey,
		})
		if err != nil {
			return err
		}
		if len(tasks) != 1 {
			return fmt.Errorf("complete %q: %d active tasks for business key %q, want exactly one",
				step.Complete.Task, len(tasks), step.Complete.BusinessKey)
		}
		return rt.CompleteTask(ctx, tasks[0].ID, vars)
	}
	return fmt.Errorf("empty record step")
}

// replay drives a debugger over cal and evaluates the assertions before
// closing the session.
func (h *Harness) replay(ctx context.Context, s *Scenario, cal *calendar.Calendar) (*Result, error) {
	cfg := debugger.Config{
		Calendar: cal,
		Handlers: handler.Defaults(),
		NewRuntime: debugger.MemoryRuntime(
			runtime.WithIDGenerator(testutil.NewSequentialGenerator("replay")),
			runtime.WithLogger(h.logger),
		),
	}
	if s.OriginMs != nil {
		cfg.Origin = clock.Millis(*s.OriginMs)
	}
	d, err := debugger.New(cfg, debugger.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}

	vars, err := ir.ObjectFromGo(s.Variables)
	if err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	if err := d.Init(ctx, vars); err != nil {
		return nil, err
	}
	defer d.Close()

	result := NewResult()
	result.Recorded = cal.Len()
	h.runDebug(ctx, d, s.Debug, result)

	for _, ev := range d.Trace() {
		result.Trace = append(result.Trace, newTraceEvent(ev))
	}
	now, err := d.Now()
	if err != nil {
		return nil, err
	}
	result.FinalMs = clock.ToMillis(now)
	result.Remaining = d.Remaining()

	sc, err := d.Session()
	if err != nil {
		return nil, err
	}
	rt, err := sc.Runtime()
	if err != nil {
		return nil, err
	}
	actx := &AssertionContext{Ctx: ctx, Runtime: rt}
	for _, msg := range EvaluateAssertions(result, s.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario replayed",
		"scenario", s.Name,
		"dispatched", len(result.Trace),
		"final_ms", result.FinalMs,
		"pass", result.Pass,
	)
	return result, nil
}

// runDebug executes the debug steps. An unexpected error stops the run;
// an expected one is checked and the run continues.
func (h *Harness) runDebug(ctx context.Context, d *debugger.Debugger, steps []DebugStep, result *Result) {
	if len(steps) == 0 {
		steps = []DebugStep{{Continue: true}}
	}
	for i, step := range steps {
		err := debugStep(ctx, d, step)
		want := ir.ErrorCode(step.ExpectError)
		switch {
		case want != "" && err == nil:
			result.AddError(fmt.Sprintf("debug[%d]: expected %s, call succeeded", i, want))
		case want != "" && !ir.HasCode(err, want):
			result.AddError(fmt.Sprintf("debug[%d]: expected %s, got: %v", i, want, err))
		case want == "" && err != nil:
			result.AddError(fmt.Sprintf("debug[%d]: %v", i, err))
			return
		}
		h.logger.Debug("debug step done", "step", i, "remaining", d.Remaining())
	}
}

func debugStep(ctx context.Context, d *debugger.Debugger, step DebugStep) error {
	switch {
	case step.Step > 0:
		for range step.Step {
			ok, err := d.Step(ctx)
			if err != nil || !ok {
				return err
			}
		}
		return nil
	case step.RunToMs != nil:
		_, err := d.RunToTime(ctx, clock.Millis(*step.RunToMs))
		return err
	case step.RunToEvent != "":
		_, err := d.RunToEvent(ctx, step.RunToEvent)
		return err
	default:
		_, err := d.RunContinue(ctx)
		return err
	}
}
