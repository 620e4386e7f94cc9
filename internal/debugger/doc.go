// Package debugger replays a recorded calendar against a fresh runtime
// under a virtual clock.
//
// A Debugger moves through Uninitialized, Paused, Running and Closed.
// Init binds a session (its own clock, calendar fork and replay runtime).
// Step, RunToTime, RunToEvent and RunContinue dispatch events in calendar
// order; each dispatch sets the clock to the event's timestamp, applies the
// registered handler and moves the cursor past the event. Close releases
// the session.
//
// Dispatch is forward-only. A failing event aborts the call that dispatched
// it, counts as consumed, and is not rolled back; the next call resumes with
// the following event.
package debugger
