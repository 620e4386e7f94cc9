package runtime

import (
	"fmt"

	"github.com/roach88/rewind/internal/ir"
)

// Kind identifies the runtime occurrence an Event reports.
type Kind string

const (
	KindDeploymentCreated        Kind = "DEPLOYMENT_CREATED"
	KindProcessDefinitionCreated Kind = "PROCESS_DEFINITION_CREATED"
	KindProcessStarted           Kind = "PROCESS_STARTED"
	KindTaskCreated              Kind = "TASK_CREATED"
	KindTaskCompleted            Kind = "TASK_COMPLETED"
	KindProcessCompleted         Kind = "PROCESS_COMPLETED"
)

// Field names carried in Event.Fields.
const (
	FieldDeploymentID         = "deployment_id"
	FieldDeploymentName       = "deployment_name"
	FieldResources            = "resources"
	FieldResourceName         = "name"
	FieldResourceContent      = "content"
	FieldProcessDefinitionID  = "process_definition_id"
	FieldProcessDefinitionKey = "process_definition_key"
	FieldVersion              = "version"
	FieldProcessInstanceID    = "process_instance_id"
	FieldBusinessKey          = "business_key"
	FieldVariables            = "variables"
	FieldTaskID               = "task_id"
	FieldTaskDefinitionKey    = "task_definition_key"
	FieldTaskName             = "task_name"
	FieldAssignee             = "assignee"
)

// Event is a raw runtime event delivered to listeners.
// Fields is a fresh object per listener call; listeners may keep it.
type Event struct {
	Kind   Kind
	Fields ir.IRObject
}

func (e Event) String() string {
	return fmt.Sprintf("%s %v", e.Kind, e.Fields.SortedKeys())
}

// Listener receives runtime events synchronously, in the order they occur.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// OnEvent calls f(ev).
func (f ListenerFunc) OnEvent(ev Event) {
	f(ev)
}
