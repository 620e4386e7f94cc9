package store

import (
	"time"

	"github.com/roach88/rewind/internal/ir"
)

// Deployment is a named bundle of resources deployed into a runtime.
type Deployment struct {
	ID         string
	Name       string
	DeployTime time.Time
	Seq        int64
	Resources  []Resource
}

// Resource is one named file of a deployment.
type Resource struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// TaskDefinition is one user task of a process definition.
type TaskDefinition struct {
	Key      string `json:"key" yaml:"key"`
	Name     string `json:"name" yaml:"name"`
	Assignee string `json:"assignee,omitempty" yaml:"assignee"`
}

// ProcessDefinition is a deployed, versioned process.
// ID is "key:version"; deploying the same key again bumps the version.
type ProcessDefinition struct {
	ID           string
	Key          string
	Version      int
	Name         string
	DeploymentID string
	ResourceName string
	Tasks        []TaskDefinition
	Seq          int64
}

// ProcessInstance is one execution of a process definition.
// CurrentStep indexes the definition's task list; EndTime is nil while the
// instance is active.
type ProcessInstance struct {
	ID            string
	DefinitionID  string
	DefinitionKey string
	BusinessKey   string
	Variables     ir.IRObject
	CurrentStep   int
	StartTime     time.Time
	EndTime       *time.Time
	Seq           int64
}

// Ended reports whether the instance has finished.
func (p ProcessInstance) Ended() bool {
	return p.EndTime != nil
}

// Task is a user task created for a process instance.
// BusinessKey and ProcessDefinitionID are read from the owning instance.
type Task struct {
	ID                  string
	ProcessInstanceID   string
	ProcessDefinitionID string
	BusinessKey         string
	DefinitionKey       string
	Name                string
	Assignee            string
	CreateTime          time.Time
	EndTime             *time.Time
	Variables           ir.IRObject
	Seq                 int64
}

// Ended reports whether the task has been completed.
func (t Task) Ended() bool {
	return t.EndTime != nil
}

// State filters instances and tasks by completion.
type State int

const (
	StateAny State = iota
	StateActive
	StateFinished
)

// InstanceFilter selects process instances. Zero fields match everything.
type InstanceFilter struct {
	ID            string
	DefinitionID  string
	DefinitionKey string
	BusinessKey   string
	State         State
}

// TaskFilter selects tasks. Zero fields match everything.
type TaskFilter struct {
	ID                string
	ProcessInstanceID string
	DefinitionKey     string
	BusinessKey       string
	State             State
}

// TaskCompletion describes the effects of completing one task, applied
// atomically by CompleteTask.
//
// Instance carries the owning instance after the completion (merged
// variables, advanced step, EndTime set if it was the last task). Next is the
// task created for the following step, or nil.
type TaskCompletion struct {
	TaskID    string
	EndTime   time.Time
	Variables ir.IRObject
	Instance  ProcessInstance
	Next      *Task
}

// Recording is a saved sequence of canonical events.
// Events is nil in ListRecordings results.
type Recording struct {
	ID         string
	Name       string
	CreatedAt  time.Time
	EventCount int
	Events     []ir.SimEvent
}
