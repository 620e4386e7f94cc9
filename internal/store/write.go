package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrTaskNotActive is returned by CompleteTask when the task does not exist
// or has already been completed.
var ErrTaskNotActive = errors.New("task is not active")

// WriteDeployment atomically inserts a deployment, its resources and the
// process definitions parsed from them.
//
// Note: definition (key, version) pairs are UNIQUE; callers allocate the next
// version before writing.
func (s *Store) WriteDeployment(ctx context.Context, d Deployment, defs []ProcessDefinition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write deployment: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deployments (id, name, deploy_time, seq)
		VALUES (?, ?, ?, ?)
	`, d.ID, d.Name, toNanos(d.DeployTime), d.Seq)
	if err != nil {
		return fmt.Errorf("write deployment: %w", err)
	}

	for _, r := range d.Resources {
		content := r.Content
		if content == nil {
			content = []byte{} // nil binds as NULL
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO deployment_resources (deployment_id, name, content)
			VALUES (?, ?, ?)
		`, d.ID, r.Name, content)
		if err != nil {
			return fmt.Errorf("write deployment: resource %q: %w", r.Name, err)
		}
	}

	for _, pd := range defs {
		if err := writeProcessDefinition(ctx, tx, pd); err != nil {
			return fmt.Errorf("write deployment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write deployment: commit: %w", err)
	}
	return nil
}

func writeProcessDefinition(ctx context.Context, tx *sql.Tx, pd ProcessDefinition) error {
	tasksJSON, err := marshalTasks(pd.Tasks)
	if err != nil {
		return fmt.Errorf("definition %s: %w", pd.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO process_definitions
		(id, key, version, name, deployment_id, resource_name, tasks, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		pd.ID,
		pd.Key,
		pd.Version,
		pd.Name,
		pd.DeploymentID,
		pd.ResourceName,
		tasksJSON,
		pd.Seq,
	)
	if err != nil {
		return fmt.Errorf("definition %s: %w", pd.ID, err)
	}
	return nil
}

// StartInstance atomically inserts a new process instance and, when the
// definition has at least one task, its first task.
func (s *Store) StartInstance(ctx context.Context, pi ProcessInstance, first *Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start instance: begin tx: %w", err)
	}
	defer tx.Rollback()

	varsJSON, err := marshalObject(pi.Variables)
	if err != nil {
		return fmt.Errorf("start instance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO process_instances
		(id, definition_id, definition_key, business_key, variables, current_step, start_time, end_time, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		pi.ID,
		pi.DefinitionID,
		pi.DefinitionKey,
		pi.BusinessKey,
		varsJSON,
		pi.CurrentStep,
		toNanos(pi.StartTime),
		nullableNanos(pi.EndTime),
		pi.Seq,
	)
	if err != nil {
		return fmt.Errorf("start instance: %w", err)
	}

	if first != nil {
		if err := writeTask(ctx, tx, *first); err != nil {
			return fmt.Errorf("start instance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("start instance: commit: %w", err)
	}
	return nil
}

func writeTask(ctx context.Context, tx *sql.Tx, t Task) error {
	varsJSON, err := marshalObject(t.Variables)
	if err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks
		(id, process_instance_id, definition_key, name, assignee, create_time, end_time, variables, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.ProcessInstanceID,
		t.DefinitionKey,
		t.Name,
		t.Assignee,
		toNanos(t.CreateTime),
		nullableNanos(t.EndTime),
		varsJSON,
		t.Seq,
	)
	if err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	return nil
}

// CompleteTask atomically ends a task, updates its instance and creates the
// next task.
//
// Returns ErrTaskNotActive if the task is missing or already ended; nothing
// is written in that case.
func (s *Store) CompleteTask(ctx context.Context, c TaskCompletion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("complete task: begin tx: %w", err)
	}
	defer tx.Rollback()

	taskVars, err := marshalObject(c.Variables)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE tasks SET end_time = ?, variables = ?
		WHERE id = ? AND end_time IS NULL
	`, toNanos(c.EndTime), taskVars, c.TaskID)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete task: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("complete task %s: %w", c.TaskID, ErrTaskNotActive)
	}

	instVars, err := marshalObject(c.Instance.Variables)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE process_instances SET variables = ?, current_step = ?, end_time = ?
		WHERE id = ?
	`, instVars, c.Instance.CurrentStep, nullableNanos(c.Instance.EndTime), c.Instance.ID)
	if err != nil {
		return fmt.Errorf("complete task: update instance: %w", err)
	}

	if c.Next != nil {
		if err := writeTask(ctx, tx, *c.Next); err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("complete task: commit: %w", err)
	}
	return nil
}
