package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadDeployments returns all deployments with their resources.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing has been deployed.
func (s *Store) ReadDeployments(ctx context.Context) ([]Deployment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, deploy_time, seq
		FROM deployments
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	defer rows.Close()

	deployments := []Deployment{}
	for rows.Next() {
		var d Deployment
		var deployTime int64
		if err := rows.Scan(&d.ID, &d.Name, &deployTime, &d.Seq); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		d.DeployTime = fromNanos(deployTime)
		deployments = append(deployments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployments: %w", err)
	}
	// Close before issuing the per-deployment queries: the pool has a single
	// connection.
	rows.Close()

	for i := range deployments {
		resources, err := s.readResources(ctx, deployments[i].ID)
		if err != nil {
			return nil, err
		}
		deployments[i].Resources = resources
	}
	return deployments, nil
}

func (s *Store) readResources(ctx context.Context, deploymentID string) ([]Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, content
		FROM deployment_resources
		WHERE deployment_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	resources := []Resource{}
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.Name, &r.Content); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}

const definitionColumns = `id, key, version, name, deployment_id, resource_name, tasks, seq`

// ReadProcessDefinitions returns definitions for key, or all definitions if
// key is empty, in deployment order.
func (s *Store) ReadProcessDefinitions(ctx context.Context, key string) ([]ProcessDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM process_definitions`
	var args []any
	if key != "" {
		query += ` WHERE key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query process definitions: %w", err)
	}
	defer rows.Close()

	defs := []ProcessDefinition{}
	for rows.Next() {
		pd, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, pd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate process definitions: %w", err)
	}
	return defs, nil
}

// ReadProcessDefinition retrieves a definition by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadProcessDefinition(ctx context.Context, id string) (ProcessDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+definitionColumns+`
		FROM process_definitions
		WHERE id = ?
	`, id)
	return scanDefinition(row)
}

// ReadLatestProcessDefinition retrieves the highest version deployed for key.
// Returns an error wrapping sql.ErrNoRows if the key was never deployed.
func (s *Store) ReadLatestProcessDefinition(ctx context.Context, key string) (ProcessDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+definitionColumns+`
		FROM process_definitions
		WHERE key = ?
		ORDER BY version DESC
		LIMIT 1
	`, key)
	return scanDefinition(row)
}

// LatestVersion returns the highest deployed version of key, or 0.
func (s *Store) LatestVersion(ctx context.Context, key string) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM process_definitions WHERE key = ?
	`, key).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("latest version of %q: %w", key, err)
	}
	return version, nil
}

func scanDefinition(row rowScanner) (ProcessDefinition, error) {
	var pd ProcessDefinition
	var tasksJSON string
	if err := row.Scan(
		&pd.ID, &pd.Key, &pd.Version, &pd.Name,
		&pd.DeploymentID, &pd.ResourceName, &tasksJSON, &pd.Seq,
	); err != nil {
		return ProcessDefinition{}, fmt.Errorf("scan process definition: %w", err)
	}
	tasks, err := unmarshalTasks(tasksJSON)
	if err != nil {
		return ProcessDefinition{}, err
	}
	pd.Tasks = tasks
	return pd, nil
}

// whereClause accumulates AND-ed conditions for filtered reads.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) eq(column, value string) {
	if value == "" {
		return
	}
	w.conds = append(w.conds, column+" = ?")
	w.args = append(w.args, value)
}

func (w *whereClause) state(column string, state State) {
	switch state {
	case StateActive:
		w.conds = append(w.conds, column+" IS NULL")
	case StateFinished:
		w.conds = append(w.conds, column+" IS NOT NULL")
	}
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// ReadProcessInstances returns the instances matching f in start order.
func (s *Store) ReadProcessInstances(ctx context.Context, f InstanceFilter) ([]ProcessInstance, error) {
	var w whereClause
	w.eq("id", f.ID)
	w.eq("definition_id", f.DefinitionID)
	w.eq("definition_key", f.DefinitionKey)
	w.eq("business_key", f.BusinessKey)
	w.state("end_time", f.State)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, definition_id, definition_key, business_key, variables,
		       current_step, start_time, end_time, seq
		FROM process_instances`+w.String()+`
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query process instances: %w", err)
	}
	defer rows.Close()

	instances := []ProcessInstance{}
	for rows.Next() {
		var pi ProcessInstance
		var varsJSON string
		var startTime int64
		var endTime *int64
		if err := rows.Scan(
			&pi.ID, &pi.DefinitionID, &pi.DefinitionKey, &pi.BusinessKey, &varsJSON,
			&pi.CurrentStep, &startTime, &endTime, &pi.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan process instance: %w", err)
		}
		vars, err := unmarshalObject(varsJSON)
		if err != nil {
			return nil, err
		}
		pi.Variables = vars
		pi.StartTime = fromNanos(startTime)
		pi.EndTime = timePtr(endTime)
		instances = append(instances, pi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate process instances: %w", err)
	}
	return instances, nil
}

// ReadProcessInstance retrieves one instance by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadProcessInstance(ctx context.Context, id string) (ProcessInstance, error) {
	instances, err := s.ReadProcessInstances(ctx, InstanceFilter{ID: id})
	if err != nil {
		return ProcessInstance{}, err
	}
	if len(instances) == 0 {
		return ProcessInstance{}, fmt.Errorf("process instance %s: %w", id, sql.ErrNoRows)
	}
	return instances[0], nil
}

// ReadTasks returns the tasks matching f in creation order.
func (s *Store) ReadTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	var w whereClause
	w.eq("t.id", f.ID)
	w.eq("t.process_instance_id", f.ProcessInstanceID)
	w.eq("t.definition_key", f.DefinitionKey)
	w.eq("p.business_key", f.BusinessKey)
	w.state("t.end_time", f.State)

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.process_instance_id, p.definition_id, p.business_key,
		       t.definition_key, t.name, t.assignee, t.create_time, t.end_time,
		       t.variables, t.seq
		FROM tasks t
		JOIN process_instances p ON t.process_instance_id = p.id`+w.String()+`
		ORDER BY t.seq ASC, t.id COLLATE BINARY ASC
	`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var t Task
		var varsJSON string
		var createTime int64
		var endTime *int64
		if err := rows.Scan(
			&t.ID, &t.ProcessInstanceID, &t.ProcessDefinitionID, &t.BusinessKey,
			&t.DefinitionKey, &t.Name, &t.Assignee, &createTime, &endTime,
			&varsJSON, &t.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		vars, err := unmarshalObject(varsJSON)
		if err != nil {
			return nil, err
		}
		t.Variables = vars
		t.CreateTime = fromNanos(createTime)
		t.EndTime = timePtr(endTime)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// ReadTask retrieves one task by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadTask(ctx context.Context, id string) (Task, error) {
	tasks, err := s.ReadTasks(ctx, TaskFilter{ID: id})
	if err != nil {
		return Task{}, err
	}
	if len(tasks) == 0 {
		return Task{}, fmt.Errorf("task %s: %w", id, sql.ErrNoRows)
	}
	return tasks[0], nil
}
