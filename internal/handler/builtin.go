package handler

import (
	"context"
	"fmt"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/runtime"
	"github.com/roach88/rewind/internal/session"
	"github.com/roach88/rewind/internal/store"
)

// Defaults returns a registry with the built-in handlers bound to the
// default type tags and payload keys.
func Defaults() *Registry {
	r := NewRegistry()
	// Tags are distinct and handlers non-nil, so Register cannot fail.
	_ = r.Register(ir.TypeDeployment, DeployResources(ir.KeyDeploymentResources))
	_ = r.Register(ir.TypeProcessStart, StartProcessByID(ir.KeyProcessDefinitionID, ir.KeyBusinessKey, ir.KeyVariables))
	_ = r.Register(ir.TypeTaskComplete, CompleteUserTask())
	return r
}

// DeployResources redeploys the resources captured under resourcesKey.
// The deployment keeps its recorded name.
func DeployResources(resourcesKey string) Handler {
	return Func(func(ctx context.Context, payload ir.IRObject, sc *session.Context) error {
		rt, err := sc.Runtime()
		if err != nil {
			return err
		}
		list, ok := payload.Array(resourcesKey)
		if !ok {
			return fmt.Errorf("payload has no %q list", resourcesKey)
		}

		resources := make([]store.Resource, 0, len(list))
		for i, v := range list {
			obj, ok := v.(ir.IRObject)
			if !ok {
				return fmt.Errorf("%s[%d]: not an object", resourcesKey, i)
			}
			name, _ := obj.String(ir.KeyResourceName)
			content, _ := obj.String(ir.KeyResourceContent)
			resources = append(resources, store.Resource{Name: name, Content: []byte(content)})
		}

		name, _ := payload.String(ir.KeyDeploymentName)
		_, err = rt.Deploy(ctx, name, resources...)
		return err
	})
}

// StartProcessByID starts the definition whose ID is under definitionIDKey.
// Definition IDs are "key:version" and so match between the recorded and
// the replay runtime.
func StartProcessByID(definitionIDKey, businessKeyKey, variablesKey string) Handler {
	return Func(func(ctx context.Context, payload ir.IRObject, sc *session.Context) error {
		rt, err := sc.Runtime()
		if err != nil {
			return err
		}
		defID, ok := payload.String(definitionIDKey)
		if !ok || defID == "" {
			return fmt.Errorf("payload has no %q", definitionIDKey)
		}
		businessKey, _ := payload.String(businessKeyKey)
		vars, _ := payload.Object(variablesKey)

		_, err = rt.StartProcessInstanceByID(ctx, defID, businessKey, vars)
		return err
	})
}

// CompleteUserTask completes the active task matching the recorded task
// definition key, business key and process definition. Exactly one task
// must match.
func CompleteUserTask() Handler {
	return Func(func(ctx context.Context, payload ir.IRObject, sc *session.Context) error {
		rt, err := sc.Runtime()
		if err != nil {
			return err
		}
		taskKey, ok := payload.String(ir.KeyTaskDefinitionKey)
		if !ok || taskKey == "" {
			return fmt.Errorf("payload has no %q", ir.KeyTaskDefinitionKey)
		}
		businessKey, _ := payload.String(ir.KeyBusinessKey)
		defID, _ := payload.String(ir.KeyProcessDefinitionID)

		tasks, err := rt.Tasks(ctx, store.TaskFilter{DefinitionKey: taskKey, BusinessKey: businessKey})
		if err != nil {
			return err
		}
		var matches []store.Task
		for _, t := range tasks {
			if defID == "" || t.ProcessDefinitionID == defID {
				matches = append(matches, t)
			}
		}
		switch len(matches) {
		case 0:
			return fmt.Errorf("no active task %q for business key %q: %w", taskKey, businessKey, runtime.ErrTaskNotFound)
		case 1:
		default:
			return fmt.Errorf("%d active tasks %q for business key %q, want exactly one", len(matches), taskKey, businessKey)
		}

		vars, _ := payload.Object(ir.KeyVariables)
		return rt.CompleteTask(ctx, matches[0].ID, vars)
	})
}
