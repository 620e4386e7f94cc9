package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDeployments_WithResources(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seedDefinition(t, s)

	deployments, err := s.ReadDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, deployments, 1)

	d := deployments[0]
	assert.Equal(t, "test-deployment", d.Name)
	assert.Equal(t, int64(0), d.DeployTime.UnixMilli())
	require.Len(t, d.Resources, 1)
	assert.Equal(t, "one-task.yaml", d.Resources[0].Name)
	assert.Equal(t, []byte("process: {}"), d.Resources[0].Content)
}

func TestReadDeployments_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	deployments, err := s.ReadDeployments(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, deployments)
	assert.Empty(t, deployments)
}

func TestReadProcessDefinition_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	want := seedDefinition(t, s)

	got, err := s.ReadProcessDefinition(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = s.ReadProcessDefinition(ctx, "missing:1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReadLatestProcessDefinition(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	v1 := seedDefinition(t, s)

	v2 := v1
	v2.ID = "oneTaskProcess:2"
	v2.Version = 2
	v2.DeploymentID = "dep-2"
	v2.Seq = 4
	require.NoError(t, s.WriteDeployment(ctx, Deployment{ID: "dep-2", Name: "redeploy", Seq: 3}, []ProcessDefinition{v2}))

	latest, err := s.ReadLatestProcessDefinition(ctx, "oneTaskProcess")
	require.NoError(t, err)
	assert.Equal(t, "oneTaskProcess:2", latest.ID)

	version, err := s.LatestVersion(ctx, "oneTaskProcess")
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	version, err = s.LatestVersion(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	all, err := s.ReadProcessDefinitions(ctx, "oneTaskProcess")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"oneTaskProcess:1", "oneTaskProcess:2"}, []string{all[0].ID, all[1].ID})

	_, err = s.ReadLatestProcessDefinition(ctx, "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReadProcessInstances_Filters(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	pd := seedDefinition(t, s)
	piA, taskA := seedInstance(t, s, pd, "pi-a", "alpha", 10)
	seedInstance(t, s, pd, "pi-b", "beta", 20)

	end := ms(1500)
	piA.EndTime = &end
	require.NoError(t, s.CompleteTask(ctx, TaskCompletion{TaskID: taskA.ID, EndTime: end, Instance: piA}))

	tests := []struct {
		name   string
		filter InstanceFilter
		want   []string
	}{
		{"all", InstanceFilter{}, []string{"pi-a", "pi-b"}},
		{"active", InstanceFilter{State: StateActive}, []string{"pi-b"}},
		{"finished", InstanceFilter{State: StateFinished}, []string{"pi-a"}},
		{"business key", InstanceFilter{BusinessKey: "beta"}, []string{"pi-b"}},
		{"active business key finished", InstanceFilter{BusinessKey: "alpha", State: StateActive}, nil},
		{"definition key", InstanceFilter{DefinitionKey: "oneTaskProcess"}, []string{"pi-a", "pi-b"}},
		{"definition id", InstanceFilter{DefinitionID: "other:1"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ReadProcessInstances(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, pi := range got {
				ids = append(ids, pi.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestReadTasks_Filters(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	pd := seedDefinition(t, s)
	piA, taskA := seedInstance(t, s, pd, "pi-a", "alpha", 10)
	seedInstance(t, s, pd, "pi-b", "beta", 20)

	require.NoError(t, s.CompleteTask(ctx, TaskCompletion{TaskID: taskA.ID, EndTime: ms(1500), Instance: piA}))

	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{"all", TaskFilter{}, []string{"pi-a-task", "pi-b-task"}},
		{"active", TaskFilter{State: StateActive}, []string{"pi-b-task"}},
		{"finished", TaskFilter{State: StateFinished}, []string{"pi-a-task"}},
		{"definition key", TaskFilter{DefinitionKey: "userTask"}, []string{"pi-a-task", "pi-b-task"}},
		{"business key", TaskFilter{BusinessKey: "alpha"}, []string{"pi-a-task"}},
		{"instance", TaskFilter{ProcessInstanceID: "pi-b"}, []string{"pi-b-task"}},
		{"no match", TaskFilter{DefinitionKey: "other"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ReadTasks(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, task := range got {
				ids = append(ids, task.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestReadTask_JoinsInstanceFields(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	pd := seedDefinition(t, s)
	_, task := seedInstance(t, s, pd, "pi-1", "oneTaskProcessBusinessKey", 3)

	got, err := s.ReadTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "oneTaskProcessBusinessKey", got.BusinessKey)
	assert.Equal(t, pd.ID, got.ProcessDefinitionID)
	assert.Equal(t, "user1", got.Assignee)
	assert.False(t, got.Ended())

	_, err = s.ReadTask(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReadProcessInstances_OrderedBySeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	pd := seedDefinition(t, s)

	// Inserted out of seq order; reads must follow seq.
	seedInstance(t, s, pd, "pi-late", "x", 50)
	seedInstance(t, s, pd, "pi-early", "x", 10)

	got, err := s.ReadProcessInstances(ctx, InstanceFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pi-early", got[0].ID)
	assert.Equal(t, "pi-late", got[1].ID)
}
