package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rewind/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { s.Close() })
	return s
}

func ms(n int64) time.Time {
	return time.UnixMilli(n).UTC()
}

// seedDefinition deploys a one-task process "oneTaskProcess:1".
func seedDefinition(t *testing.T, s *Store) ProcessDefinition {
	t.Helper()
	d := Deployment{
		ID:         "dep-1",
		Name:       "test-deployment",
		DeployTime: ms(0),
		Seq:        1,
		Resources:  []Resource{{Name: "one-task.yaml", Content: []byte("process: {}")}},
	}
	pd := ProcessDefinition{
		ID:           "oneTaskProcess:1",
		Key:          "oneTaskProcess",
		Version:      1,
		Name:         "One Task",
		DeploymentID: "dep-1",
		ResourceName: "one-task.yaml",
		Tasks:        []TaskDefinition{{Key: "userTask", Name: "User Task", Assignee: "user1"}},
		Seq:          2,
	}
	require.NoError(t, s.WriteDeployment(context.Background(), d, []ProcessDefinition{pd}))
	return pd
}

// seedInstance starts an instance of pd with its first task active.
func seedInstance(t *testing.T, s *Store, pd ProcessDefinition, id, businessKey string, seq int64) (ProcessInstance, Task) {
	t.Helper()
	pi := ProcessInstance{
		ID:            id,
		DefinitionID:  pd.ID,
		DefinitionKey: pd.Key,
		BusinessKey:   businessKey,
		Variables:     ir.IRObject{"testVariable": ir.IRString("TestValue")},
		StartTime:     ms(1000),
		Seq:           seq,
	}
	task := Task{
		ID:                id + "-task",
		ProcessInstanceID: id,
		DefinitionKey:     pd.Tasks[0].Key,
		Name:              pd.Tasks[0].Name,
		Assignee:          pd.Tasks[0].Assignee,
		CreateTime:        ms(1000),
		Seq:               seq + 1,
	}
	require.NoError(t, s.StartInstance(context.Background(), pi, &task))
	return pi, task
}
