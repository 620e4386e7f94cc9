// Package transform maps raw runtime events to canonical simulation events.
//
// Transformers are pure: they read a runtime.Event and either produce an
// ir.SimEvent (type and payload only) or decline it. ID, timestamp and seq
// are stamped later by the recorder.
package transform

import (
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/runtime"
)

// Transformer converts a runtime event into a canonical event.
// The second result is false when the transformer does not apply.
type Transformer interface {
	Transform(runtime.Event) (ir.SimEvent, bool)
}

// Func adapts a function to Transformer.
type Func func(runtime.Event) (ir.SimEvent, bool)

// Transform calls f(ev).
func (f Func) Transform(ev runtime.Event) (ir.SimEvent, bool) {
	return f(ev)
}

// Pipeline applies transformers in order; the first match wins.
// Events no transformer accepts are dropped.
type Pipeline struct {
	transformers []Transformer
}

// NewPipeline creates a pipeline. The slice is copied.
func NewPipeline(transformers ...Transformer) *Pipeline {
	ts := make([]Transformer, len(transformers))
	copy(ts, transformers)
	return &Pipeline{transformers: ts}
}

// Transform runs ev through the pipeline.
func (p *Pipeline) Transform(ev runtime.Event) (ir.SimEvent, bool) {
	for _, t := range p.transformers {
		if sim, ok := t.Transform(ev); ok {
			return sim, true
		}
	}
	return ir.SimEvent{}, false
}

// Len returns the number of transformers.
func (p *Pipeline) Len() int {
	return len(p.transformers)
}

// Default returns the pipeline for the three replayable occurrences:
// deployments, process starts and task completions, under the default
// type tags and payload keys.
func Default() *Pipeline {
	return NewPipeline(
		DeploymentCreated(ir.TypeDeployment, ir.KeyDeploymentResources),
		ProcessStarted(ir.TypeProcessStart, ir.KeyProcessDefinitionID, ir.KeyBusinessKey, ir.KeyVariables),
		TaskCompleted(ir.TypeTaskComplete),
	)
}
