package debugger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewind/internal/calendar"
	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/handler"
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/recorder"
	"github.com/roach88/rewind/internal/runtime"
	"github.com/roach88/rewind/internal/session"
	"github.com/roach88/rewind/internal/store"
	"github.com/roach88/rewind/internal/testutil"
)

// recordOneTask records deploy at 0, start at 1000 and complete at 1500
// against a throwaway runtime and returns the resulting calendar.
func recordOneTask(t *testing.T) *calendar.Calendar {
	t.Helper()
	ctx := context.Background()

	clk := clock.NewVirtual(clock.Epoch)
	rt, err := runtime.Open(ctx, store.MemoryPath, clk,
		runtime.WithIDGenerator(testutil.NewSequentialGenerator("a")))
	require.NoError(t, err)
	defer rt.Close()

	rec := recorder.New(nil)
	require.NoError(t, rec.Attach(rt))

	_, err = rt.Deploy(ctx, "one-task", testutil.OneTaskResource())
	require.NoError(t, err)

	clk.Set(clock.Millis(1000))
	vars := ir.IRObject{testutil.TestVariable: ir.IRString(testutil.TestValue)}
	_, err = rt.StartProcessInstanceByKey(ctx, testutil.OneTaskProcessKey, testutil.BusinessKey, vars)
	require.NoError(t, err)

	clk.Set(clock.Millis(1500))
	tasks, err := rt.Tasks(ctx, store.TaskFilter{DefinitionKey: testutil.UserTaskKey})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NoError(t, rt.CompleteTask(ctx, tasks[0].ID, nil))

	rec.Detach()
	cal, err := rec.Calendar()
	require.NoError(t, err)
	require.Equal(t, 3, cal.Len())
	return cal
}

func newDebugger(t *testing.T, cfg Config, opts ...Option) *Debugger {
	t.Helper()
	if cfg.NewRuntime == nil {
		cfg.NewRuntime = MemoryRuntime(runtime.WithIDGenerator(testutil.NewSequentialGenerator("b")))
	}
	d, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if d.State() == StatePaused {
			d.Close()
		}
	})
	return d
}

func initDebugger(t *testing.T, cfg Config, opts ...Option) *Debugger {
	t.Helper()
	d := newDebugger(t, cfg, opts...)
	require.NoError(t, d.Init(context.Background(), nil))
	return d
}

func types(events []ir.SimEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func nowMs(t *testing.T, d *Debugger) int64 {
	t.Helper()
	now, err := d.Now()
	require.NoError(t, err)
	return clock.ToMillis(now)
}

func replayRuntime(t *testing.T, d *Debugger) *runtime.Engine {
	t.Helper()
	sc, err := d.Session()
	require.NoError(t, err)
	rt, err := sc.Runtime()
	require.NoError(t, err)
	return rt
}

var allTypes = []string{ir.TypeDeployment, ir.TypeProcessStart, ir.TypeTaskComplete}

func TestStep_ReplaysOneTaskScenario(t *testing.T) {
	ctx := context.Background()
	d := initDebugger(t, Config{Calendar: recordOneTask(t)})

	assert.Equal(t, int64(0), nowMs(t, d))
	wantMs := []int64{0, 1000, 1500}
	for i := range 3 {
		ok, err := d.Step(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, wantMs[i], nowMs(t, d))
	}
	assert.Equal(t, allTypes, types(d.Trace()))

	ok, err := d.Step(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "exhausted calendar")

	rt := replayRuntime(t, d)
	finished, err := rt.HistoricProcessInstances(ctx, store.InstanceFilter{State: store.StateFinished})
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, testutil.BusinessKey, finished[0].BusinessKey)
	assert.Equal(t, ir.IRString(testutil.TestValue), finished[0].Variables[testutil.TestVariable])
	require.NotNil(t, finished[0].EndTime)
	assert.Equal(t, int64(1500), clock.ToMillis(*finished[0].EndTime))

	history, err := rt.HistoricTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, testutil.UserTaskAssignee, history[0].Assignee)

	active, err := rt.Tasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRunToTime_ThenBackward(t *testing.T) {
	ctx := context.Background()
	d := initDebugger(t, Config{Calendar: recordOneTask(t)})

	n, err := d.RunToTime(ctx, clock.Millis(1000))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(1000), nowMs(t, d))
	assert.Equal(t, allTypes[:2], types(d.Trace()))

	rt := replayRuntime(t, d)
	active, err := rt.Tasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1, "task created, not yet completed")

	n, err = d.RunToTime(ctx, clock.Millis(999))
	require.Error(t, err)
	assert.True(t, IsBackwardTimeTravel(err))
	assert.Zero(t, n)
	assert.Equal(t, int64(1000), nowMs(t, d))
	assert.Equal(t, 1, d.Remaining())
	assert.Equal(t, StatePaused, d.State(), "session stays usable")

	n, err = d.RunToTime(ctx, clock.Millis(1000))
	require.NoError(t, err, "same time is not backward")
	assert.Zero(t, n)
}

func TestRunToTime_AdvancesClockWithoutEvents(t *testing.T) {
	ctx := context.Background()
	d := initDebugger(t, Config{Calendar: recordOneTask(t)})

	n, err := d.RunToTime(ctx, clock.Millis(1200))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = d.RunToTime(ctx, clock.Millis(1400))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(1400), nowMs(t, d))

	n, err = d.RunToTime(ctx, clock.Millis(5000))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(5000), nowMs(t, d))
}

func TestRunToEvent_LastEventDispatchesAll(t *testing.T) {
	d := initDebugger(t, Config{Calendar: recordOneTask(t)})

	n, err := d.RunToEvent(context.Background(), ir.TypeTaskComplete)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, allTypes, types(d.Trace()))
	assert.Equal(t, int64(1500), nowMs(t, d))
}

func TestRunToEvent_InclusiveBreakpoint(t *testing.T) {
	ctx := context.Background()
	d := initDebugger(t, Config{Calendar: recordOneTask(t)})

	n, err := d.RunToEvent(ctx, ir.TypeProcessStart)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	trace := d.Trace()
	assert.Equal(t, ir.TypeProcessStart, trace[len(trace)-1].Type)

	ok, err := d.Step(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, allTypes, types(d.Trace()))
}

func TestRunToEvent_NeverMatched(t *testing.T) {
	d := initDebugger(t, Config{Calendar: recordOneTask(t)})

	n, err := d.RunToEvent(context.Background(), "nonexistent-type")
	require.Error(t, err)
	assert.True(t, IsBreakpointNeverMatched(err))
	assert.Equal(t, 3, n)
	assert.Equal(t, allTypes, types(d.Trace()), "no rollback")
	assert.Zero(t, d.Remaining())
}

func TestRunContinue(t *testing.T) {
	ctx := context.Background()
	d := initDebugger(t, Config{Calendar: recordOneTask(t)})

	_, err := d.Step(ctx)
	require.NoError(t, err)

	n, err := d.RunContinue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = d.RunContinue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStepDeterminism(t *testing.T) {
	ctx := context.Background()
	cal := recordOneTask(t)

	full := initDebugger(t, Config{Calendar: cal})
	_, err := full.RunContinue(ctx)
	require.NoError(t, err)
	want := full.Trace()

	for n := 0; n <= cal.Len(); n++ {
		d := initDebugger(t, Config{Calendar: cal})
		for range n {
			_, err := d.Step(ctx)
			require.NoError(t, err)
		}
		got := d.Trace()
		require.Len(t, got, n)
		for i := range got {
			assert.Equal(t, want[i].ID, got[i].ID, "step %d of %d", i, n)
		}
	}
}

func TestMonotonicClock(t *testing.T) {
	ctx := context.Background()
	var seen []int64
	var d *Debugger
	d = initDebugger(t, Config{Calendar: recordOneTask(t)}, WithObserver(func(ir.SimEvent) {
		seen = append(seen, nowMs(t, d))
	}))

	record := func() { seen = append(seen, nowMs(t, d)) }
	record()
	_, err := d.RunToTime(ctx, clock.Millis(500))
	require.NoError(t, err)
	record()
	_, err = d.RunToTime(ctx, clock.Millis(100))
	require.Error(t, err)
	record()
	_, err = d.Step(ctx)
	require.NoError(t, err)
	record()
	_, err = d.RunContinue(ctx)
	require.NoError(t, err)
	record()

	assert.IsNonDecreasing(t, seen)
	assert.Equal(t, int64(1500), seen[len(seen)-1])
}

func TestObserver_SeesDispatchOrder(t *testing.T) {
	var observed []string
	d := initDebugger(t, Config{Calendar: recordOneTask(t)}, WithObserver(func(ev ir.SimEvent) {
		observed = append(observed, ev.Type)
	}))

	_, err := d.RunContinue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, allTypes, observed)
}

func TestClose_IdempotentAndIsolated(t *testing.T) {
	ctx := context.Background()
	cal := recordOneTask(t)

	d1 := initDebugger(t, Config{Calendar: cal})
	_, err := d1.RunContinue(ctx)
	require.NoError(t, err)
	sc, err := d1.Session()
	require.NoError(t, err)

	require.NoError(t, d1.Close())
	require.NoError(t, d1.Close())
	assert.Equal(t, StateClosed, d1.State())
	assert.True(t, sc.Closed())
	assert.Len(t, d1.Trace(), 3, "trace survives close")

	_, err = d1.Step(ctx)
	assert.True(t, IsInvalidState(err))
	_, err = d1.Now()
	assert.True(t, IsInvalidState(err))
	_, err = d1.Session()
	assert.True(t, IsInvalidState(err))
	assert.True(t, IsInvalidState(d1.Init(ctx, nil)))

	assert.Zero(t, cal.Position(), "source calendar is never consumed")

	d2 := initDebugger(t, Config{Calendar: cal})
	assert.Equal(t, int64(0), nowMs(t, d2))
	assert.Equal(t, 3, d2.Remaining())
	assert.Empty(t, d2.Trace())
	deployments, err := replayRuntime(t, d2).Deployments(ctx)
	require.NoError(t, err)
	assert.Empty(t, deployments)
}

func TestConcurrentSessionsDoNotShareClock(t *testing.T) {
	ctx := context.Background()
	cal := recordOneTask(t)

	a := initDebugger(t, Config{Calendar: cal})
	b := initDebugger(t, Config{Calendar: cal})

	_, err := a.RunToTime(ctx, clock.Millis(1200))
	require.NoError(t, err)
	assert.Equal(t, int64(1200), nowMs(t, a))
	assert.Equal(t, int64(0), nowMs(t, b))
	assert.Equal(t, 3, b.Remaining())
}

func TestLifecycleErrors(t *testing.T) {
	ctx := context.Background()
	d := newDebugger(t, Config{Calendar: recordOneTask(t)})

	assert.Equal(t, StateUninitialized, d.State())
	_, err := d.Step(ctx)
	assert.True(t, IsInvalidState(err))
	_, err = d.RunContinue(ctx)
	assert.True(t, IsInvalidState(err))
	assert.True(t, IsInvalidState(d.Close()))
	_, err = d.Now()
	assert.True(t, IsInvalidState(err))

	require.NoError(t, d.Init(ctx, nil))
	assert.Equal(t, StatePaused, d.State())
	assert.True(t, IsInvalidState(d.Init(ctx, nil)), "double init")
}

func TestInit_BindsVariables(t *testing.T) {
	d := newDebugger(t, Config{Calendar: recordOneTask(t)})
	vars := ir.IRObject{"mode": ir.IRString("replay")}
	require.NoError(t, d.Init(context.Background(), vars))
	vars["mode"] = ir.IRString("changed")

	sc, err := d.Session()
	require.NoError(t, err)
	got, err := sc.Variables()
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("replay"), got["mode"])
}

func TestInit_FactoryFailureKeepsUninitialized(t *testing.T) {
	boom := errors.New("no runtime")
	d := newDebugger(t, Config{
		Calendar: recordOneTask(t),
		NewRuntime: func(context.Context, clock.Clock) (*runtime.Engine, error) {
			return nil, boom
		},
	})

	err := d.Init(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateUninitialized, d.State())
}

func TestOrigin(t *testing.T) {
	cal := recordOneTask(t)

	d := initDebugger(t, Config{Calendar: cal, Origin: clock.Millis(-250)})
	assert.Equal(t, int64(-250), nowMs(t, d))

	empty := initDebugger(t, Config{Calendar: calendar.New(nil)})
	assert.Equal(t, clock.Epoch, mustNow(t, empty))
	ok, err := empty.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = New(Config{Calendar: cal, NewRuntime: MemoryRuntime(), Origin: clock.Millis(1)})
	assert.ErrorContains(t, err, "after the first event")
}

func mustNow(t *testing.T, d *Debugger) time.Time {
	t.Helper()
	now, err := d.Now()
	require.NoError(t, err)
	return now
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{NewRuntime: MemoryRuntime()})
	assert.ErrorContains(t, err, "nil calendar")
	_, err = New(Config{Calendar: calendar.New(nil)})
	assert.ErrorContains(t, err, "nil runtime factory")
}

func TestUnhandledEventType_AbortsAndConsumes(t *testing.T) {
	ctx := context.Background()
	handlers := handler.NewRegistry()
	require.NoError(t, handlers.Register(ir.TypeDeployment, handler.DeployResources(ir.KeyDeploymentResources)))
	d := initDebugger(t, Config{Calendar: recordOneTask(t), Handlers: handlers})

	n, err := d.RunContinue(ctx)
	require.Error(t, err)
	assert.True(t, IsUnhandledEventType(err))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{ir.TypeDeployment}, types(d.Trace()))
	assert.Equal(t, 1, d.Remaining(), "failing event counts as consumed")
	assert.Equal(t, int64(1000), nowMs(t, d))
	assert.Equal(t, StatePaused, d.State())

	var se *ir.SimError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ir.TypeProcessStart, se.EventType)

	_, err = d.Step(ctx)
	assert.True(t, IsUnhandledEventType(err))
	assert.Zero(t, d.Remaining())
}

func TestHandlerFailure_AbortsRun(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("runtime B refused")
	handlers := handler.Defaults()
	failing := handler.NewRegistry()
	for _, tag := range handlers.Types() {
		h, _ := handlers.Lookup(tag)
		if tag == ir.TypeProcessStart {
			h = handler.Func(func(context.Context, ir.IRObject, *session.Context) error { return boom })
		}
		require.NoError(t, failing.Register(tag, h))
	}
	d := initDebugger(t, Config{Calendar: recordOneTask(t), Handlers: failing})

	n, err := d.RunToEvent(ctx, ir.TypeTaskComplete)
	require.Error(t, err)
	assert.True(t, IsHandlerFailure(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, d.Remaining())
}

func TestHandlersClonedAtConstruction(t *testing.T) {
	handlers := handler.NewRegistry()
	d := initDebugger(t, Config{Calendar: recordOneTask(t), Handlers: handlers})
	require.NoError(t, handlers.Register(ir.TypeDeployment, handler.DeployResources(ir.KeyDeploymentResources)))

	_, err := d.Step(context.Background())
	assert.True(t, IsUnhandledEventType(err))
}

func TestReentrantCallRejected(t *testing.T) {
	var d *Debugger
	var inner error
	handlers := handler.NewRegistry()
	require.NoError(t, handlers.Register(ir.TypeDeployment, handler.Func(
		func(ctx context.Context, _ ir.IRObject, _ *session.Context) error {
			_, inner = d.Step(ctx)
			return nil
		})))
	d = initDebugger(t, Config{Calendar: recordOneTask(t), Handlers: handlers})

	ok, err := d.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, IsInvalidState(inner))
	assert.Equal(t, StatePaused, d.State())
}

func TestCancelledContextStopsBeforeDispatch(t *testing.T) {
	d := initDebugger(t, Config{Calendar: recordOneTask(t)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := d.RunContinue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.Equal(t, 3, d.Remaining())
	assert.Equal(t, StatePaused, d.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}
