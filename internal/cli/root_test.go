package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() Config {
	return Config{Database: "rewind.db", Format: "text", LogLevel: "warn"}
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand(defaultConfig(), nil)
	require.NotNil(t, cmd)
	assert.Equal(t, "rewind", cmd.Use)
	assert.Contains(t, cmd.Long, "virtual clock")
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand(defaultConfig(), nil)
	commands := []string{"record", "events", "debug", "replay", "delete", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newRootCommand(defaultConfig(), nil)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "rewind.db", dbFlag.DefValue)

	levelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, levelFlag)
	assert.Equal(t, "warn", levelFlag.DefValue)
}

func TestGlobalFlagDefaultsFromConfig(t *testing.T) {
	cmd := newRootCommand(Config{Database: "/var/lib/rewind.db", Format: "json", LogLevel: "debug"}, nil)

	assert.Equal(t, "/var/lib/rewind.db", cmd.PersistentFlags().Lookup("db").DefValue)
	assert.Equal(t, "json", cmd.PersistentFlags().Lookup("format").DefValue)
	assert.Equal(t, "debug", cmd.PersistentFlags().Lookup("log-level").DefValue)
}

func TestRootCommandRunsSubcommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rewind.db")
	cmd := newRootCommand(defaultConfig(), nil)

	out, err := execute(t, cmd, "events", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No recordings found.")
}

func TestRootCommandInvalidFormat(t *testing.T) {
	cmd := newRootCommand(defaultConfig(), nil)

	_, err := execute(t, cmd, "events", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootCommandInvalidLogLevel(t *testing.T) {
	cmd := newRootCommand(defaultConfig(), nil)

	_, err := execute(t, cmd, "events", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)
}

func TestRootCommandEnvironmentError(t *testing.T) {
	cmd := newRootCommand(defaultConfig(), errors.New("parse env: boom"))

	_, err := execute(t, cmd, "events")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid environment")
}

func TestRootOptionsLoggerWithoutRoot(t *testing.T) {
	opts := &RootOptions{}
	require.NotNil(t, opts.Logger())
	opts.Logger().Info("dropped")
}
