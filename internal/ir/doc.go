// Package ir provides the canonical types shared by every rewind package.
//
// This package contains value types, the canonical simulation event, and the
// error type surfaced by the debugger. All other internal packages import ir;
// ir imports nothing internal.
//
// Key design constraints:
//   - NO float types in payloads - use int64 for numbers
//   - Payload objects serialise with RFC 8785 key ordering
//   - All JSON tags use snake_case
//   - Events are ordered by virtual timestamp, then by recording seq
package ir
