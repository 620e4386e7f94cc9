package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.False(t, os.IsNotExist(err), "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d failed", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	tables := []string{
		"deployments", "deployment_resources", "process_definitions",
		"process_instances", "tasks", "recordings", "recorded_events",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.pragma(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestOpen_SetsSchemaVersion(t *testing.T) {
	s := createTestStore(t)
	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_recorded_events_type'",
	).Scan(&name)
	assert.NoError(t, err, "v1 migration index missing")
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	defer s.Close()

	mode, err := s.pragma("journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "memory", mode)

	seedDefinition(t, s)
	defs, err := s.ReadProcessDefinitions(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, defs, 1, "single pooled connection keeps the in-memory database alive")
}

func TestOpen_MigratesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("DROP INDEX idx_recorded_events_type")
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_recorded_events_type'",
	).Scan(&name)
	assert.NoError(t, err, "reopening runs the v1 migration")
}

func TestClose_Twice(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestMaxSeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq, "empty store")

	pd := seedDefinition(t, s)
	seedInstance(t, s, pd, "pi-1", "bk", 7)

	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), seq, "task row carries the highest seq")
}
