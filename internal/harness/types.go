package harness

import (
	"github.com/roach88/rewind/internal/clock"
	"github.com/roach88/rewind/internal/ir"
)

// TraceEvent is one dispatched event in a result trace.
type TraceEvent struct {
	Type    string      `json:"type"`
	ID      string      `json:"id"`
	Seq     int64       `json:"seq"`
	AtMs    int64       `json:"at_ms"`
	Payload ir.IRObject `json:"payload,omitempty"`
}

func newTraceEvent(ev ir.SimEvent) TraceEvent {
	return TraceEvent{
		Type:    ev.Type,
		ID:      ev.ID,
		Seq:     ev.Seq,
		AtMs:    clock.ToMillis(ev.Timestamp),
		Payload: ev.Payload.Clone(),
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every debug step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	// Recorded is the number of events the recording pass produced.
	Recorded int `json:"recorded"`

	// Trace contains the successfully dispatched events, in order.
	Trace []TraceEvent `json:"trace"`

	// FinalMs is the virtual clock after the last debug step.
	FinalMs int64 `json:"final_ms"`

	// Remaining is the number of undispatched events.
	Remaining int `json:"remaining"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Types returns the dispatched event types in order.
func (r *Result) Types() []string {
	out := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		out[i] = ev.Type
	}
	return out
}
