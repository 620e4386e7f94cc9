package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rewind/internal/store"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <recording>",
		Short: "Delete a recording and its events",
		Example: `  rewind delete one-task
  rewind delete one-task --db ./rewind.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], cmd)
		},
	}
}

func runDelete(opts *RootOptions, name string, cmd *cobra.Command) error {
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	err = st.DeleteRecording(cmd.Context(), name)
	if errors.Is(err, store.ErrRecordingNotFound) {
		return WrapExitError(ExitCommandError, "unknown recording", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to delete recording", err)
	}
	opts.Logger().Info("recording deleted", "name", name)

	if opts.Format == "json" {
		return writeOK(cmd.OutOrStdout(), map[string]string{"deleted": name})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted recording %q\n", name)
	return nil
}
