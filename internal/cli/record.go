package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/harness"
	"github.com/roach88/rewind/internal/runtime"
	"github.com/roach88/rewind/internal/store"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Name string // recording name; defaults to the scenario name
}

// RecordResult describes a saved recording.
type RecordResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Events  int    `json:"events"`
	FirstMs int64  `json:"first_ms"`
	LastMs  int64  `json:"last_ms"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record <scenario.yaml>",
		Short: "Record a scenario's events into the database",
		Long: `Run the record steps of a scenario against a fresh runtime and save the
captured events as a named recording.

Exit codes:
  0 - Recording saved
  1 - A record step failed
  2 - Command error (invalid scenario, name already taken, etc.)

Examples:
  rewind record ./scenarios/one_task.yaml
  rewind record ./scenarios/one_task.yaml --name nightly --db ./rewind.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "recording name (default: scenario name)")

	return cmd
}

func runRecord(opts *RecordOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := opts.Logger()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	cal, err := harness.Record(ctx, scenario, harness.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitFailure, "recording failed", err)
	}

	name := opts.Name
	if name == "" {
		name = scenario.Name
	}
	rec := store.Recording{
		ID:        runtime.UUIDv7Generator{}.Generate(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Events:    cal.Events(),
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveRecording(ctx, rec); err != nil {
		if errors.Is(err, store.ErrRecordingExists) {
			return WrapExitError(ExitCommandError, "recording name already taken", err)
		}
		return WrapExitError(ExitCommandError, "failed to save recording", err)
	}
	logger.Info("recording saved", "name", rec.Name, "id", rec.ID, "events", len(rec.Events))

	result := RecordResult{ID: rec.ID, Name: rec.Name, Events: len(rec.Events)}
	if n := len(rec.Events); n > 0 {
		result.FirstMs = clock.ToMillis(rec.Events[0].Timestamp)
		result.LastMs = clock.ToMillis(rec.Events[n-1].Timestamp)
	}

	if opts.Format == "json" {
		return writeOK(cmd.OutOrStdout(), result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d events as %q (%dms..%dms)\n",
		result.Events, result.Name, result.FirstMs, result.LastMs)
	return nil
}
