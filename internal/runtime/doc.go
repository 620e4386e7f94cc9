// Package runtime is a small process runtime used as both the recorded
// system (runtime A) and the replay target (runtime B).
//
// A process definition is an ordered list of user tasks, deployed from CUE
// or YAML resources. Starting an instance creates its first task; completing
// a task creates the next one, and completing the last task ends the
// instance. Every state change is persisted to a store.Store and reported
// synchronously to subscribed listeners as an Event.
//
// The runtime never reads the host clock. All times come from the
// clock.Clock passed at construction, so a debugger session can own time
// for the runtime it drives.
package runtime
