package cli

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/store"
	"github.com/roach88/rewind/internal/testutil"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Runs int // number of replays to compare
}

// ReplayResult holds the determinism check for one recording.
type ReplayResult struct {
	Recording     string    `json:"recording"`
	Events        int       `json:"events"`
	Runs          int       `json:"runs"`
	Dispatched    int       `json:"dispatched"`
	FinalMs       int64     `json:"final_ms"`
	Deterministic bool      `json:"deterministic"`
	Differences   []string  `json:"differences,omitempty"`
	State         StateView `json:"state"`
}

// replayRun is what one full replay produced.
type replayRun struct {
	ids     []string
	finalMs int64
	state   StateView
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <recording>",
		Short: "Replay a recording and verify determinism",
		Long: `Replay a recording to the end several times, each in a fresh session,
and verify that every run dispatches the same events and leaves the runtime
in the same state.

Exit codes:
  0 - All runs agree
  1 - A replay failed or the runs differ
  2 - Command error (unknown recording, etc.)

Examples:
  rewind replay one-task
  rewind replay one-task --runs 5 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Runs, "runs", 2, "number of replays to compare (at least 2)")

	return cmd
}

func runReplay(opts *ReplayOptions, name string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := opts.Logger()

	if opts.Runs < 2 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--runs must be at least 2, got %d", opts.Runs))
	}

	rec, err := loadRecording(ctx, opts.Database, name)
	if err != nil {
		return err
	}

	result := ReplayResult{
		Recording:     rec.Name,
		Events:        len(rec.Events),
		Runs:          opts.Runs,
		Deterministic: true,
	}

	var first replayRun
	for i := range opts.Runs {
		run, err := replayOnce(ctx, rec, logger.With("run", i))
		if err != nil {
			if opts.Format == "json" {
				_ = writeFailed(cmd.OutOrStdout(), result, err)
			}
			return WrapExitError(ExitFailure, fmt.Sprintf("replay run %d failed", i), err)
		}
		if i == 0 {
			first = run
			continue
		}
		for _, diff := range diffRuns(first, run) {
			result.Deterministic = false
			result.Differences = append(result.Differences, fmt.Sprintf("run %d: %s", i, diff))
		}
	}
	result.Dispatched = len(first.ids)
	result.FinalMs = first.finalMs
	result.State = first.state

	logger.Info("replay verified",
		"recording", rec.Name,
		"runs", opts.Runs,
		"deterministic", result.Deterministic,
	)

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		if !result.Deterministic {
			err := writeJSON(w, CLIResponse{
				Status: "error",
				Data:   result,
				Error: &CLIError{
					Code:    CodeNondeterminism,
					Message: fmt.Sprintf("%d difference(s) between runs", len(result.Differences)),
				},
			})
			if err != nil {
				return err
			}
			return NewExitError(ExitFailure, "replay is not deterministic")
		}
		return writeOK(w, result)
	}

	fmt.Fprintf(w, "Recording %s: %d events, %d runs\n", result.Recording, result.Events, result.Runs)
	fmt.Fprintf(w, "Dispatched %d events, final clock %dms\n", result.Dispatched, result.FinalMs)
	if !result.Deterministic {
		for _, d := range result.Differences {
			fmt.Fprintf(w, "  ✗ %s\n", d)
		}
		return NewExitError(ExitFailure, "replay is not deterministic")
	}
	fmt.Fprintln(w, "✓ Deterministic")
	return nil
}

// replayOnce replays rec to the end in a fresh session. Runtime IDs are
// sequential so runs can be compared.
func replayOnce(ctx context.Context, rec store.Recording, logger *slog.Logger) (replayRun, error) {
	d, err := newReplayDebugger(rec, time.Time{}, logger, testutil.NewSequentialGenerator("replay"))
	if err != nil {
		return replayRun{}, err
	}
	if err := d.Init(ctx, nil); err != nil {
		return replayRun{}, err
	}
	defer d.Close()

	if _, err := d.RunContinue(ctx); err != nil {
		return replayRun{}, err
	}

	var run replayRun
	for _, ev := range d.Trace() {
		run.ids = append(run.ids, ev.ID)
	}
	now, err := d.Now()
	if err != nil {
		return replayRun{}, err
	}
	run.finalMs = clock.ToMillis(now)

	sc, err := d.Session()
	if err != nil {
		return replayRun{}, err
	}
	rt, err := sc.Runtime()
	if err != nil {
		return replayRun{}, err
	}
	run.state, err = captureState(ctx, rt)
	return run, err
}

// diffRuns describes how got differs from want.
func diffRuns(want, got replayRun) []string {
	var diffs []string
	if len(want.ids) != len(got.ids) {
		diffs = append(diffs, fmt.Sprintf("dispatched %d events, want %d", len(got.ids), len(want.ids)))
	} else {
		for i := range want.ids {
			if want.ids[i] != got.ids[i] {
				diffs = append(diffs, fmt.Sprintf("event %d: id %s, want %s", i, shortID(got.ids[i]), shortID(want.ids[i])))
			}
		}
	}
	if want.finalMs != got.finalMs {
		diffs = append(diffs, fmt.Sprintf("final clock %dms, want %dms", got.finalMs, want.finalMs))
	}
	if !reflect.DeepEqual(want.state, got.state) {
		diffs = append(diffs, "runtime state differs")
	}
	return diffs
}
