package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rewind/internal/calendar"
	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/debugger"
	"github.com/roach88/rewind/internal/handler"
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/runtime"
	"github.com/roach88/rewind/internal/store"
)

// DebugOptions holds flags for the debug command.
type DebugOptions struct {
	*RootOptions
	OriginMs int64    // replay clock origin; only used when set
	Vars     []string // initial session variables as key=value
	Payload  bool     // include event payloads
}

// DebugCommandResult is the outcome of one debugger command.
type DebugCommandResult struct {
	Command    string `json:"command"`
	Dispatched int    `json:"dispatched"`
	Error      string `json:"error,omitempty"`
}

// DebugResult is the debug command output.
type DebugResult struct {
	Recording string               `json:"recording"`
	Commands  []DebugCommandResult `json:"commands"`
	Trace     []EventView          `json:"trace"`
	NowMs     int64                `json:"now_ms"`
	Remaining int                  `json:"remaining"`
	State     StateView            `json:"state"`
}

// NewDebugCommand creates the debug command.
func NewDebugCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DebugOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "debug <recording> [command...]",
		Short: "Replay a recording step by step",
		Long: `Replay a recording against a fresh in-memory runtime, driving the
debugger with the given commands in order:

  step            dispatch the next event
  step:N          dispatch up to N events
  until-ms:MS     dispatch every event at or before MS, then set the clock to MS
  until-event:T   dispatch events up to and including the next one of type T
  continue        dispatch every remaining event

With no commands the whole recording is replayed. The first failing command
stops the run; the events dispatched so far and the runtime state are still
reported.

Exit codes:
  0 - All commands succeeded
  1 - A command failed (unhandled event, handler failure, breakpoint never matched, ...)
  2 - Command error (unknown recording, bad command syntax, etc.)

Examples:
  rewind debug one-task
  rewind debug one-task step step:2
  rewind debug one-task until-ms:1000 until-event:task-complete
  rewind debug one-task --var approved=true --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebug(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.OriginMs, "origin-ms", 0, "replay clock origin in ms (default: first event)")
	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "initial session variable as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Payload, "payload", false, "show event payloads")

	return cmd
}

func runDebug(opts *DebugOptions, name string, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := opts.Logger()

	if len(args) == 0 {
		args = []string{"continue"}
	}
	commands := make([]debugCommand, len(args))
	for i, arg := range args {
		c, err := parseDebugCommand(arg)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid debug command", err)
		}
		commands[i] = c
	}

	vars, err := parseVars(opts.Vars)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid variables", err)
	}

	rec, err := loadRecording(ctx, opts.Database, name)
	if err != nil {
		return err
	}

	var origin time.Time
	if cmd.Flags().Changed("origin-ms") {
		origin = clock.Millis(opts.OriginMs)
	}
	d, err := newReplayDebugger(rec, origin, logger, runtime.UUIDv7Generator{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create debugger", err)
	}
	if err := d.Init(ctx, vars); err != nil {
		return WrapExitError(ExitCommandError, "failed to start session", err)
	}
	defer d.Close()

	result := DebugResult{Recording: rec.Name, Commands: []DebugCommandResult{}}
	var runErr error
	for _, c := range commands {
		n, err := c.run(ctx, d)
		cr := DebugCommandResult{Command: c.String(), Dispatched: n}
		if err != nil {
			cr.Error = err.Error()
			runErr = err
		}
		result.Commands = append(result.Commands, cr)
		if err != nil {
			break
		}
	}

	if err := fillDebugResult(ctx, d, &result, opts.Payload); err != nil {
		return WrapExitError(ExitCommandError, "failed to read replay state", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		if runErr != nil {
			if err := writeFailed(w, result, runErr); err != nil {
				return err
			}
		} else if err := writeOK(w, result); err != nil {
			return err
		}
	} else {
		printDebugResult(w, result)
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "debug command failed", runErr)
	}
	return nil
}

func fillDebugResult(ctx context.Context, d *debugger.Debugger, result *DebugResult, withPayload bool) error {
	result.Trace = eventViews(d.Trace(), withPayload)
	result.Remaining = d.Remaining()

	now, err := d.Now()
	if err != nil {
		return err
	}
	result.NowMs = clock.ToMillis(now)

	sc, err := d.Session()
	if err != nil {
		return err
	}
	rt, err := sc.Runtime()
	if err != nil {
		return err
	}
	result.State, err = captureState(ctx, rt)
	return err
}

func printDebugResult(w io.Writer, result DebugResult) {
	fmt.Fprintf(w, "Recording %s\n", result.Recording)

	offset := 0
	for _, c := range result.Commands {
		fmt.Fprintf(w, "> %s (%d dispatched)\n", c.Command, c.Dispatched)
		for _, ev := range result.Trace[offset : offset+c.Dispatched] {
			printEvent(w, ev)
		}
		offset += c.Dispatched
		if c.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", c.Error)
		}
	}

	fmt.Fprintf(w, "Clock: %dms, remaining: %d\n", result.NowMs, result.Remaining)
	fmt.Fprintf(w, "Instances: %d\n", len(result.State.Instances))
	for _, pi := range result.State.Instances {
		fmt.Fprintf(w, "  %s bk=%q ended=%t vars=%s\n",
			pi.DefinitionID, pi.BusinessKey, pi.Ended, formatVars(pi.Variables))
	}
	fmt.Fprintf(w, "Tasks: %d\n", len(result.State.Tasks))
	for _, t := range result.State.Tasks {
		fmt.Fprintf(w, "  %s bk=%q assignee=%q ended=%t\n",
			t.DefinitionKey, t.BusinessKey, t.Assignee, t.Ended)
	}
}

func formatVars(vars ir.IRObject) string {
	if vars == nil {
		return "{}"
	}
	data, err := ir.MarshalCanonical(vars)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// newReplayDebugger builds a debugger over rec with the built-in handlers
// and an in-memory runtime using gen for its IDs.
func newReplayDebugger(rec store.Recording, origin time.Time, logger *slog.Logger, gen runtime.IDGenerator) (*debugger.Debugger, error) {
	logger = logger.With("recording", rec.Name)
	return debugger.New(debugger.Config{
		Calendar: calendar.New(rec.Events),
		Handlers: handler.Defaults(),
		NewRuntime: debugger.MemoryRuntime(
			runtime.WithIDGenerator(gen),
			runtime.WithLogger(logger),
		),
		Origin: origin,
	}, debugger.WithLogger(logger))
}

// debugCommand is one parsed debugger command.
type debugCommand struct {
	name  string
	count int
	ms    int64
	event string
}

const (
	cmdStep       = "step"
	cmdUntilMs    = "until-ms"
	cmdUntilEvent = "until-event"
	cmdContinue   = "continue"
)

func parseDebugCommand(arg string) (debugCommand, error) {
	name, value, hasValue := strings.Cut(arg, ":")
	c := debugCommand{name: name}

	switch name {
	case cmdStep:
		c.count = 1
		if hasValue {
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return debugCommand{}, fmt.Errorf("%q: step count must be a positive integer", arg)
			}
			c.count = n
		}
	case cmdUntilMs:
		ms, err := strconv.ParseInt(value, 10, 64)
		if !hasValue || err != nil {
			return debugCommand{}, fmt.Errorf("%q: until-ms needs an integer time in ms", arg)
		}
		c.ms = ms
	case cmdUntilEvent:
		if value == "" {
			return debugCommand{}, fmt.Errorf("%q: until-event needs an event type", arg)
		}
		c.event = value
	case cmdContinue:
		if hasValue {
			return debugCommand{}, fmt.Errorf("%q: continue takes no argument", arg)
		}
	default:
		return debugCommand{}, fmt.Errorf("unknown debug command %q", arg)
	}
	return c, nil
}

func (c debugCommand) String() string {
	switch c.name {
	case cmdStep:
		if c.count == 1 {
			return cmdStep
		}
		return fmt.Sprintf("%s:%d", cmdStep, c.count)
	case cmdUntilMs:
		return fmt.Sprintf("%s:%d", cmdUntilMs, c.ms)
	case cmdUntilEvent:
		return cmdUntilEvent + ":" + c.event
	default:
		return c.name
	}
}

// run executes the command and returns the number of events it dispatched.
func (c debugCommand) run(ctx context.Context, d *debugger.Debugger) (int, error) {
	switch c.name {
	case cmdStep:
		n := 0
		for range c.count {
			ok, err := d.Step(ctx)
			if err != nil {
				return n, err
			}
			if !ok {
				break
			}
			n++
		}
		return n, nil
	case cmdUntilMs:
		return d.RunToTime(ctx, clock.Millis(c.ms))
	case cmdUntilEvent:
		return d.RunToEvent(ctx, c.event)
	default:
		return d.RunContinue(ctx)
	}
}

// parseVars decodes key=value pairs. Values are YAML scalars, so 3 is an
// integer, true a boolean and anything unparseable a string.
func parseVars(pairs []string) (ir.IRObject, error) {
	raw := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%q: want key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		raw[key] = v
	}
	return ir.ObjectFromGo(raw)
}
