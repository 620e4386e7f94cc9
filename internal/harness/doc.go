// Package harness runs record-and-replay scenarios.
//
// A scenario scripts a recording pass against a reference runtime, then
// drives a debugger over the recorded calendar and asserts on the dispatch
// trace and on the replay runtime's state.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: one_task
//	description: "Replay the one-task process step by step"
//	resources:
//	  - path: ../processes/one-task.yaml
//	record:
//	  - at_ms: 0
//	    deploy: { name: one-task, resources: [one-task.yaml] }
//	  - at_ms: 1000
//	    start: { process: oneTaskProcess, business_key: bk }
//	  - at_ms: 1500
//	    complete: { task: userTask, business_key: bk }
//	debug:
//	  - run_to_ms: 1000
//	  - run_to_ms: 999
//	    expect_error: BACKWARD_TIME_TRAVEL
//	  - continue: true
//	assertions:
//	  - type: trace_order
//	    types: [deployment, process-start, task-complete]
//	  - type: tasks
//	    where: { definition_key: userTask }
//	    expect: { assignee: user1, ended: true }
//
// Resource paths are relative to the scenario file. Without debug steps the
// whole calendar is replayed.
//
// # Assertion Types
//
//   - trace_contains: an event of event_type whose payload contains payload
//   - trace_order: types appear in the dispatch trace in this order
//   - trace_count: event_type was dispatched exactly count times
//   - clock: the virtual clock reads at_ms
//   - remaining: count events are left undispatched
//   - instances, tasks: rows of the replay runtime matching where (all
//     states) each contain expect; count, if set, is the number of matches
//
// # Deterministic Testing
//
// Recording and replay run on in-memory stores with virtual clocks and
// sequential IDs, so traces are identical across runs and can be compared
// against golden files.
package harness
