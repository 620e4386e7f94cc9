package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/store"
)

// ErrTaskNotFound is returned when completing a task that does not exist or
// is no longer active.
var ErrTaskNotFound = errors.New("active task not found")

// StartProcessInstanceByKey starts the latest version of the process key.
func (e *Engine) StartProcessInstanceByKey(ctx context.Context, key, businessKey string, vars ir.IRObject) (store.ProcessInstance, error) {
	pd, err := e.LatestProcessDefinition(ctx, key)
	if err != nil {
		return store.ProcessInstance{}, fmt.Errorf("start process: %w", err)
	}
	return e.start(ctx, pd, businessKey, vars)
}

// StartProcessInstanceByID starts the definition with the given "key:version"
// ID.
func (e *Engine) StartProcessInstanceByID(ctx context.Context, definitionID, businessKey string, vars ir.IRObject) (store.ProcessInstance, error) {
	if err := e.checkOpen(); err != nil {
		return store.ProcessInstance{}, err
	}
	pd, err := e.store.ReadProcessDefinition(ctx, definitionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ProcessInstance{}, fmt.Errorf("start process %s: %w", definitionID, ErrDefinitionNotFound)
	}
	if err != nil {
		return store.ProcessInstance{}, fmt.Errorf("start process %s: %w", definitionID, err)
	}
	return e.start(ctx, pd, businessKey, vars)
}

// start creates the instance and its first task.
// Emits PROCESS_STARTED, then TASK_CREATED, or PROCESS_COMPLETED for a
// definition without tasks.
func (e *Engine) start(ctx context.Context, pd store.ProcessDefinition, businessKey string, vars ir.IRObject) (store.ProcessInstance, error) {
	if err := e.checkOpen(); err != nil {
		return store.ProcessInstance{}, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	now := e.clock.Now()
	pi := store.ProcessInstance{
		ID:            e.ids.Generate(),
		DefinitionID:  pd.ID,
		DefinitionKey: pd.Key,
		BusinessKey:   businessKey,
		Variables:     vars.Clone(),
		StartTime:     now,
		Seq:           e.seq.Next(),
	}

	var first *store.Task
	if len(pd.Tasks) > 0 {
		t := e.newTask(pi, pd.Tasks[0], now)
		first = &t
	} else {
		pi.EndTime = &now
	}

	if err := e.store.StartInstance(ctx, pi, first); err != nil {
		return store.ProcessInstance{}, fmt.Errorf("start process %s: %w", pd.ID, err)
	}

	e.logger.Info("process started",
		"process_instance_id", pi.ID,
		"process_definition_id", pd.ID,
		"business_key", businessKey,
	)

	e.emit(Event{Kind: KindProcessStarted, Fields: ir.IRObject{
		FieldProcessInstanceID:    ir.IRString(pi.ID),
		FieldProcessDefinitionID:  ir.IRString(pi.DefinitionID),
		FieldProcessDefinitionKey: ir.IRString(pi.DefinitionKey),
		FieldBusinessKey:          ir.IRString(pi.BusinessKey),
		FieldVariables:            pi.Variables.Clone(),
	}})
	if first != nil {
		e.emit(Event{Kind: KindTaskCreated, Fields: taskFields(*first)})
	} else {
		e.emit(Event{Kind: KindProcessCompleted, Fields: instanceFields(pi)})
	}
	return pi, nil
}

func (e *Engine) newTask(pi store.ProcessInstance, td store.TaskDefinition, now time.Time) store.Task {
	return store.Task{
		ID:                  e.ids.Generate(),
		ProcessInstanceID:   pi.ID,
		ProcessDefinitionID: pi.DefinitionID,
		BusinessKey:         pi.BusinessKey,
		DefinitionKey:       td.Key,
		Name:                td.Name,
		Assignee:            td.Assignee,
		CreateTime:          now,
		Variables:           ir.IRObject{},
		Seq:                 e.seq.Next(),
	}
}

// CompleteTask completes an active task. vars are merged into the process
// instance's variables. The instance moves to its next task, or ends if the
// completed task was its last.
//
// Emits TASK_COMPLETED, then TASK_CREATED or PROCESS_COMPLETED.
func (e *Engine) CompleteTask(ctx context.Context, taskID string, vars ir.IRObject) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	task, err := e.store.ReadTask(ctx, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("complete task %s: %w", taskID, ErrTaskNotFound)
	}
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	if task.Ended() {
		return fmt.Errorf("complete task %s: %w", taskID, ErrTaskNotFound)
	}

	pi, err := e.store.ReadProcessInstance(ctx, task.ProcessInstanceID)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	pd, err := e.store.ReadProcessDefinition(ctx, pi.DefinitionID)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}

	now := e.clock.Now()
	pi.Variables = pi.Variables.Merge(vars)
	pi.CurrentStep++

	var next *store.Task
	if pi.CurrentStep < len(pd.Tasks) {
		t := e.newTask(pi, pd.Tasks[pi.CurrentStep], now)
		next = &t
	} else {
		pi.EndTime = &now
	}

	task.EndTime = &now
	task.Variables = vars.Clone()
	err = e.store.CompleteTask(ctx, store.TaskCompletion{
		TaskID:    task.ID,
		EndTime:   now,
		Variables: task.Variables,
		Instance:  pi,
		Next:      next,
	})
	if errors.Is(err, store.ErrTaskNotActive) {
		return fmt.Errorf("complete task %s: %w", taskID, ErrTaskNotFound)
	}
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}

	e.logger.Info("task completed",
		"task_id", task.ID,
		"task_definition_key", task.DefinitionKey,
		"process_instance_id", pi.ID,
		"process_ended", pi.Ended(),
	)

	completed := taskFields(task)
	completed[FieldVariables] = task.Variables.Clone()
	e.emit(Event{Kind: KindTaskCompleted, Fields: completed})
	if next != nil {
		e.emit(Event{Kind: KindTaskCreated, Fields: taskFields(*next)})
	} else {
		e.emit(Event{Kind: KindProcessCompleted, Fields: instanceFields(pi)})
	}
	return nil
}

func taskFields(t store.Task) ir.IRObject {
	return ir.IRObject{
		FieldTaskID:              ir.IRString(t.ID),
		FieldTaskDefinitionKey:   ir.IRString(t.DefinitionKey),
		FieldTaskName:            ir.IRString(t.Name),
		FieldAssignee:            ir.IRString(t.Assignee),
		FieldProcessInstanceID:   ir.IRString(t.ProcessInstanceID),
		FieldProcessDefinitionID: ir.IRString(t.ProcessDefinitionID),
		FieldBusinessKey:         ir.IRString(t.BusinessKey),
	}
}

func instanceFields(pi store.ProcessInstance) ir.IRObject {
	return ir.IRObject{
		FieldProcessInstanceID:   ir.IRString(pi.ID),
		FieldProcessDefinitionID: ir.IRString(pi.DefinitionID),
		FieldBusinessKey:         ir.IRString(pi.BusinessKey),
		FieldVariables:           pi.Variables.Clone(),
	}
}

// ProcessInstances returns active instances matching f. f.State is ignored;
// use HistoricProcessInstances to see finished instances.
func (e *Engine) ProcessInstances(ctx context.Context, f store.InstanceFilter) ([]store.ProcessInstance, error) {
	f.State = store.StateActive
	return e.HistoricProcessInstances(ctx, f)
}

// Tasks returns active tasks matching f. f.State is ignored; use
// HistoricTasks to see completed tasks.
func (e *Engine) Tasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error) {
	f.State = store.StateActive
	return e.HistoricTasks(ctx, f)
}

// HistoricProcessInstances returns instances matching f, active or finished.
func (e *Engine) HistoricProcessInstances(ctx context.Context, f store.InstanceFilter) ([]store.ProcessInstance, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.ReadProcessInstances(ctx, f)
}

// HistoricTasks returns tasks matching f, active or completed.
func (e *Engine) HistoricTasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.ReadTasks(ctx, f)
}
