package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rewind/internal/ir"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Payload bool   // include event payloads
	Type    string // optional - filter to one event type
}

// RecordingEvents is the events command output for one recording.
type RecordingEvents struct {
	Recording RecordingView `json:"recording"`
	Events    []EventView   `json:"events"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events [recording]",
		Short: "List recordings or the events of one recording",
		Long: `Without arguments, list the saved recordings. With a recording name,
list its events in calendar order.

Examples:
  rewind events
  rewind events one-task --payload
  rewind events one-task --type task-complete
  rewind events one-task --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListRecordings(opts, cmd)
			}
			return runListEvents(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Payload, "payload", false, "show event payloads")
	cmd.Flags().StringVar(&opts.Type, "type", "", "show only events of this type")

	return cmd
}

func runListRecordings(opts *EventsOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListRecordings(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list recordings", err)
	}

	views := make([]RecordingView, len(recs))
	for i, rec := range recs {
		views[i] = newRecordingView(rec)
	}

	if opts.Format == "json" {
		return writeOK(cmd.OutOrStdout(), map[string]any{"recordings": views})
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "No recordings found.")
		return nil
	}
	for _, v := range views {
		fmt.Fprintf(w, "%-24s %4d events  %s\n", v.Name, v.EventCount, v.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runListEvents(opts *EventsOptions, name string, cmd *cobra.Command) error {
	rec, err := loadRecording(cmd.Context(), opts.Database, name)
	if err != nil {
		return err
	}

	events := rec.Events
	if opts.Type != "" {
		events = events[:0:0]
		for _, ev := range rec.Events {
			if ev.Type == opts.Type {
				events = append(events, ev)
			}
		}
	}

	result := RecordingEvents{
		Recording: newRecordingView(rec),
		Events:    eventViews(events, opts.Payload),
	}
	if opts.Format == "json" {
		return writeOK(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Recording %s: %d events\n", rec.Name, len(result.Events))
	for _, ev := range result.Events {
		printEvent(w, ev)
	}
	return nil
}

func printEvent(w io.Writer, ev EventView) {
	fmt.Fprintf(w, "  #%-3d %8dms  %-16s %s\n", ev.Seq, ev.AtMs, ev.Type, shortID(ev.ID))
	if ev.Payload != nil {
		data, err := ir.MarshalCanonical(ev.Payload)
		if err != nil {
			fmt.Fprintf(w, "        <payload: %v>\n", err)
			return
		}
		fmt.Fprintf(w, "        %s\n", data)
	}
}

// shortID abbreviates an event ID for text output.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
