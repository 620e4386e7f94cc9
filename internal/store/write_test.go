package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewind/internal/ir"
)

func TestWriteDeployment_Atomic(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	pd := seedDefinition(t, s)

	// Same definition ID again: the whole deployment must roll back.
	d := Deployment{ID: "dep-2", Name: "again", DeployTime: ms(5), Seq: 10}
	err := s.WriteDeployment(ctx, d, []ProcessDefinition{pd})
	require.Error(t, err)

	deployments, err := s.ReadDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	assert.Equal(t, "dep-1", deployments[0].ID)
}

func TestWriteDeployment_EmptyResourceContent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	d := Deployment{
		ID:        "dep-1",
		Name:      "empty",
		Resources: []Resource{{Name: "empty.yaml"}},
		Seq:       1,
	}
	require.NoError(t, s.WriteDeployment(ctx, d, nil))

	deployments, err := s.ReadDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, deployments[0].Resources, 1)
	assert.Empty(t, deployments[0].Resources[0].Content)
}

func TestStartInstance_WithoutTask(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	pd := seedDefinition(t, s)

	end := ms(1000)
	pi := ProcessInstance{
		ID:            "pi-1",
		DefinitionID:  pd.ID,
		DefinitionKey: pd.Key,
		StartTime:     ms(1000),
		EndTime:       &end,
		Seq:           3,
	}
	require.NoError(t, s.StartInstance(ctx, pi, nil))

	got, err := s.ReadProcessInstance(ctx, "pi-1")
	require.NoError(t, err)
	assert.True(t, got.Ended())
	assert.Equal(t, ir.IRObject{}, got.Variables, "nil variables stored as {}")

	tasks, err := s.ReadTasks(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestStartInstance_UnknownDefinition(t *testing.T) {
	s := createTestStore(t)

	pi := ProcessInstance{ID: "pi-1", DefinitionID: "missing:1", DefinitionKey: "missing", Seq: 1}
	err := s.StartInstance(context.Background(), pi, nil)
	assert.Error(t, err, "foreign key enforced")
}

func TestCompleteTask_EndsTaskAndInstance(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	pd := seedDefinition(t, s)
	pi, task := seedInstance(t, s, pd, "pi-1", "bk", 3)

	end := ms(1500)
	pi.Variables = pi.Variables.Merge(ir.IRObject{"approved": ir.IRBool(true)})
	pi.CurrentStep = 1
	pi.EndTime = &end

	err := s.CompleteTask(ctx, TaskCompletion{
		TaskID:    task.ID,
		EndTime:   end,
		Variables: ir.IRObject{"approved": ir.IRBool(true)},
		Instance:  pi,
	})
	require.NoError(t, err)

	gotTask, err := s.ReadTask(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, gotTask.Ended())
	assert.Equal(t, int64(1500), gotTask.EndTime.UnixMilli())
	assert.Equal(t, ir.IRBool(true), gotTask.Variables["approved"])

	gotInst, err := s.ReadProcessInstance(ctx, pi.ID)
	require.NoError(t, err)
	assert.True(t, gotInst.Ended())
	assert.Equal(t, 1, gotInst.CurrentStep)
	assert.Equal(t, ir.IRString("TestValue"), gotInst.Variables["testVariable"])
	assert.Equal(t, ir.IRBool(true), gotInst.Variables["approved"])
}

func TestCompleteTask_CreatesNextTask(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	pd := seedDefinition(t, s)
	pi, task := seedInstance(t, s, pd, "pi-1", "bk", 3)

	pi.CurrentStep = 1
	next := Task{
		ID:                "pi-1-task-2",
		ProcessInstanceID: pi.ID,
		DefinitionKey:     "review",
		Name:              "Review",
		CreateTime:        ms(2000),
		Seq:               5,
	}
	require.NoError(t, s.CompleteTask(ctx, TaskCompletion{
		TaskID:   task.ID,
		EndTime:  ms(2000),
		Instance: pi,
		Next:     &next,
	}))

	active, err := s.ReadTasks(ctx, TaskFilter{State: StateActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "review", active[0].DefinitionKey)
	assert.Equal(t, "bk", active[0].BusinessKey)
}

func TestCompleteTask_NotActive(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	pd := seedDefinition(t, s)
	pi, task := seedInstance(t, s, pd, "pi-1", "bk", 3)

	c := TaskCompletion{TaskID: task.ID, EndTime: ms(1500), Instance: pi}
	require.NoError(t, s.CompleteTask(ctx, c))

	err := s.CompleteTask(ctx, c)
	assert.ErrorIs(t, err, ErrTaskNotActive, "second completion rejected")

	err = s.CompleteTask(ctx, TaskCompletion{TaskID: "nope", Instance: pi})
	assert.ErrorIs(t, err, ErrTaskNotActive)
}
