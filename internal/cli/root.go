package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string
	LogLevel string

	logger *slog.Logger
}

// Logger returns the configured logger. Commands built without the root
// command discard logs.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rewind CLI.
// Flag defaults come from the REWIND_* environment variables.
func NewRootCommand() *cobra.Command {
	cfg, cfgErr := LoadConfig()
	if cfgErr != nil {
		cfg = Config{Database: "rewind.db", Format: "text", LogLevel: "warn"}
	}
	return newRootCommand(cfg, cfgErr)
}

func newRootCommand(cfg Config, cfgErr error) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rewind",
		Short: "rewind - record and replay process runtime events",
		Long: `Record the events a process runtime emits and replay them, one at a
time, against a fresh runtime under a virtual clock.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment", cfgErr)
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level, err := parseLogLevel(opts.LogLevel)
			if err != nil {
				return err
			}
			opts.logger = newLogger(cmd.ErrOrStderr(), level, opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", cfg.Format, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", cfg.Database, "path to SQLite recordings database")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")

	// Add subcommands
	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewDebugCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
