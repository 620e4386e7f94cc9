// Package calendar holds the ordered, replayable sequence of canonical
// events plus a consumption cursor.
//
// A calendar is built once from recorded events and never changes except for
// its cursor. Events are ordered by timestamp, then by recording seq, then by
// insertion order. Fork gives each replay session its own cursor over the
// same events.
package calendar

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/rewind/internal/ir"
)

var (
	// ErrExhausted is returned when advancing past the last event.
	ErrExhausted = errors.New("calendar exhausted")

	// ErrCursorMismatch is returned when advancing past an event that is not
	// the one at the cursor.
	ErrCursorMismatch = errors.New("event is not at the calendar cursor")
)

// Calendar is an ordered event sequence with a cursor.
//
// Thread-safety: a Calendar is not safe for concurrent use. Concurrent
// sessions each take a Fork.
type Calendar struct {
	events []ir.SimEvent // immutable after New; shared between forks
	cursor int
}

// New builds a calendar from events. Events are deep-copied and stably
// sorted with Compare, so equal keys keep their given order.
func New(events []ir.SimEvent) *Calendar {
	sorted := make([]ir.SimEvent, len(events))
	for i, ev := range events {
		sorted[i] = ev.Clone()
	}
	slices.SortStableFunc(sorted, Compare)
	return &Calendar{events: sorted}
}

// Compare orders events by timestamp, then seq.
func Compare(a, b ir.SimEvent) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// Peek returns the next undispatched event without consuming it.
func (c *Calendar) Peek() (ir.SimEvent, bool) {
	if c.IsExhausted() {
		return ir.SimEvent{}, false
	}
	return c.events[c.cursor].Clone(), true
}

// AdvancePast consumes ev, which must be the event at the cursor.
func (c *Calendar) AdvancePast(ev ir.SimEvent) error {
	if c.IsExhausted() {
		return ErrExhausted
	}
	cur := c.events[c.cursor]
	if cur.ID != ev.ID || cur.Seq != ev.Seq {
		return fmt.Errorf("%w: at cursor #%d, got #%d", ErrCursorMismatch, cur.Seq, ev.Seq)
	}
	c.cursor++
	return nil
}

// IsExhausted reports whether every event has been consumed.
func (c *Calendar) IsExhausted() bool {
	return c.cursor >= len(c.events)
}

// Len returns the total number of events.
func (c *Calendar) Len() int {
	return len(c.events)
}

// Remaining returns the number of unconsumed events.
func (c *Calendar) Remaining() int {
	return len(c.events) - c.cursor
}

// Position returns the number of consumed events.
func (c *Calendar) Position() int {
	return c.cursor
}

// Events returns a deep copy of all events in calendar order.
func (c *Calendar) Events() []ir.SimEvent {
	out := make([]ir.SimEvent, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Clone()
	}
	return out
}

// First returns the earliest event, regardless of the cursor.
func (c *Calendar) First() (ir.SimEvent, bool) {
	if len(c.events) == 0 {
		return ir.SimEvent{}, false
	}
	return c.events[0].Clone(), true
}

// Fork returns a calendar over the same events with its cursor at the start.
func (c *Calendar) Fork() *Calendar {
	return &Calendar{events: c.events}
}
