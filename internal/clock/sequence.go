package clock

import "sync/atomic"

// Sequence is a monotonic logical counter.
//
// Recording order is stamped from a Sequence: when two events share a
// virtual timestamp, the lower seq was observed first. Runtimes also use one
// to order store rows deterministically.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0. The first Next returns 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence resuming after start.
// Used when a runtime reopens an existing store.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next increments and returns the next value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last value handed out without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
