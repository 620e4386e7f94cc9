package testutil

import "github.com/roach88/rewind/internal/store"

// Process keys, task keys and values used by the one-task fixture.
const (
	OneTaskProcessKey = "oneTaskProcess"
	UserTaskKey       = "userTask"
	UserTaskAssignee  = "user1"
	BusinessKey       = "oneTaskProcessBusinessKey"
	TestVariable      = "testVariable"
	TestValue         = "TestValue"
)

// OneTaskProcessYAML declares a process with a single user task.
const OneTaskProcessYAML = `process:
  oneTaskProcess:
    name: One Task Process
    tasks:
      - key: userTask
        name: User Task
        assignee: user1
`

// OneTaskProcessCUE is OneTaskProcessYAML written in CUE.
const OneTaskProcessCUE = `process: oneTaskProcess: {
	name: "One Task Process"
	tasks: [{
		key:      "userTask"
		name:     "User Task"
		assignee: "user1"
	}]
}
`

// TwoTaskProcessYAML declares a process with two sequential user tasks.
const TwoTaskProcessYAML = `process:
  reviewProcess:
    name: Review Process
    tasks:
      - key: draft
        name: Draft
        assignee: author
      - key: review
        name: Review
        assignee: reviewer
`

// OneTaskResource returns the one-task process as a YAML resource.
func OneTaskResource() store.Resource {
	return store.Resource{Name: "one-task.yaml", Content: []byte(OneTaskProcessYAML)}
}

// OneTaskCUEResource returns the one-task process as a CUE resource.
func OneTaskCUEResource() store.Resource {
	return store.Resource{Name: "one-task.cue", Content: []byte(OneTaskProcessCUE)}
}

// TwoTaskResource returns the two-task process as a YAML resource.
func TwoTaskResource() store.Resource {
	return store.Resource{Name: "review.yaml", Content: []byte(TwoTaskProcessYAML)}
}
