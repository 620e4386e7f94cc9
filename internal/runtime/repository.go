package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/store"
)

// ErrDefinitionNotFound is returned when starting an unknown process.
var ErrDefinitionNotFound = errors.New("process definition not found")

// Deploy stores a deployment and every process definition its resources
// declare. Each definition gets the next version for its key, so
// redeploying a key never replaces the running version.
//
// Emits DEPLOYMENT_CREATED, then PROCESS_DEFINITION_CREATED per definition
// in key order. Nothing is written or emitted if any resource is invalid.
func (e *Engine) Deploy(ctx context.Context, name string, resources ...store.Resource) (store.Deployment, error) {
	if err := e.checkOpen(); err != nil {
		return store.Deployment{}, err
	}
	if len(resources) == 0 {
		return store.Deployment{}, fmt.Errorf("deploy %q: no resources", name)
	}

	type parsed struct {
		resource string
		def      Definition
	}
	var all []parsed
	names := make(map[string]bool, len(resources))
	keys := make(map[string]bool)
	for _, r := range resources {
		if names[r.Name] {
			return store.Deployment{}, fmt.Errorf("deploy %q: duplicate resource %q", name, r.Name)
		}
		names[r.Name] = true

		defs, err := ParseResource(r)
		if err != nil {
			return store.Deployment{}, fmt.Errorf("deploy %q: %w", name, err)
		}
		for _, def := range defs {
			if keys[def.Key] {
				return store.Deployment{}, fmt.Errorf("deploy %q: process %q declared twice", name, def.Key)
			}
			keys[def.Key] = true
			all = append(all, parsed{resource: r.Name, def: def})
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	d := store.Deployment{
		ID:         e.ids.Generate(),
		Name:       name,
		DeployTime: e.clock.Now(),
		Seq:        e.seq.Next(),
		Resources:  make([]store.Resource, len(resources)),
	}
	for i, r := range resources {
		d.Resources[i] = store.Resource{Name: r.Name, Content: append([]byte(nil), r.Content...)}
	}

	pds := make([]store.ProcessDefinition, 0, len(all))
	for _, p := range all {
		latest, err := e.store.LatestVersion(ctx, p.def.Key)
		if err != nil {
			return store.Deployment{}, fmt.Errorf("deploy %q: %w", name, err)
		}
		pds = append(pds, store.ProcessDefinition{
			ID:           definitionID(p.def.Key, latest+1),
			Key:          p.def.Key,
			Version:      latest + 1,
			Name:         p.def.Name,
			DeploymentID: d.ID,
			ResourceName: p.resource,
			Tasks:        p.def.Tasks,
			Seq:          e.seq.Next(),
		})
	}

	if err := e.store.WriteDeployment(ctx, d, pds); err != nil {
		return store.Deployment{}, fmt.Errorf("deploy %q: %w", name, err)
	}

	e.logger.Info("deployment created",
		"deployment_id", d.ID,
		"deployment_name", d.Name,
		"definitions", len(pds),
	)

	e.emit(Event{Kind: KindDeploymentCreated, Fields: deploymentFields(d)})
	for _, pd := range pds {
		e.emit(Event{Kind: KindProcessDefinitionCreated, Fields: ir.IRObject{
			FieldProcessDefinitionID:  ir.IRString(pd.ID),
			FieldProcessDefinitionKey: ir.IRString(pd.Key),
			FieldVersion:              ir.IRInt(pd.Version),
			FieldDeploymentID:         ir.IRString(pd.DeploymentID),
		}})
	}
	return d, nil
}

func deploymentFields(d store.Deployment) ir.IRObject {
	resources := make(ir.IRArray, len(d.Resources))
	for i, r := range d.Resources {
		resources[i] = ir.IRObject{
			FieldResourceName:    ir.IRString(r.Name),
			FieldResourceContent: ir.IRString(r.Content),
		}
	}
	return ir.IRObject{
		FieldDeploymentID:   ir.IRString(d.ID),
		FieldDeploymentName: ir.IRString(d.Name),
		FieldResources:      resources,
	}
}

// Deployments returns all deployments in deployment order.
func (e *Engine) Deployments(ctx context.Context) ([]store.Deployment, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.ReadDeployments(ctx)
}

// ProcessDefinitions returns every version of key, or all definitions if key
// is empty.
func (e *Engine) ProcessDefinitions(ctx context.Context, key string) ([]store.ProcessDefinition, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.ReadProcessDefinitions(ctx, key)
}

// LatestProcessDefinition returns the newest version of key.
func (e *Engine) LatestProcessDefinition(ctx context.Context, key string) (store.ProcessDefinition, error) {
	if err := e.checkOpen(); err != nil {
		return store.ProcessDefinition{}, err
	}
	pd, err := e.store.ReadLatestProcessDefinition(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ProcessDefinition{}, fmt.Errorf("process %q: %w", key, ErrDefinitionNotFound)
	}
	return pd, err
}
