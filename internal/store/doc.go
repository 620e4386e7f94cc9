// Package store provides SQLite-backed storage for rewind.
//
// A store holds two kinds of data:
//   - Runtime state: deployments, process definitions, process instances
//     and tasks of one reference runtime (internal/runtime)
//   - Saved recordings: canonical events captured by the recorder, so a
//     scenario can be recorded once and debugged many times
//
// # Deterministic Query Results
//
// Every list query orders by seq ASC, id COLLATE BINARY ASC. seq comes from
// the owning runtime's logical sequence, never from timestamps, so two
// replays of one calendar read back identical rows.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Payload columns (variables, task lists, event payloads) hold RFC 8785
// canonical JSON produced by internal/ir.
package store
