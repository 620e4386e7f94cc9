package ir

import (
	"fmt"
	"time"
)

// Default event type tags produced by the built-in transformers.
const (
	TypeDeployment   = "deployment"
	TypeProcessStart = "process-start"
	TypeTaskComplete = "task-complete"
)

// Payload keys used by the built-in transformers and handlers.
const (
	KeyDeploymentName      = "deployment_name"
	KeyDeploymentResources = "deployment_resources"
	KeyProcessDefinitionID = "process_definition_id"
	KeyBusinessKey         = "business_key"
	KeyVariables           = "variables"
	KeyTaskDefinitionKey   = "task_definition_key"
	KeyAssignee            = "assignee"
	KeyResourceName        = "name"
	KeyResourceContent     = "content"
)

// SimEvent is a canonical simulation event: the unit the debugger dispatches.
//
// SimEvents are immutable once recorded. Holders that need to change a
// payload must Clone it first.
type SimEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
	Payload   IRObject  `json:"payload"`
}

// Clone returns a copy with a deep-copied payload.
func (e SimEvent) Clone() SimEvent {
	e.Payload = e.Payload.Clone()
	return e
}

// String renders a short description for logs and CLI output.
func (e SimEvent) String() string {
	return fmt.Sprintf("#%d %s @%dms", e.Seq, e.Type, e.Timestamp.UnixMilli())
}
