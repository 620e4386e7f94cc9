package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rewind/internal/ir"
)

// TraceSnapshot is the golden view of a scenario run: the dispatched events
// by identity, the final clock and the undispatched count. Payloads are
// covered by the event IDs.
type TraceSnapshot struct {
	ScenarioName string
	FinalMs      int64
	Remaining    int
	Trace        []TraceEvent
}

// toCanonical converts the snapshot into an IRObject for canonical JSON.
func (s *TraceSnapshot) toCanonical() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, ev := range s.Trace {
		trace[i] = ir.IRObject{
			"type":  ir.IRString(ev.Type),
			"id":    ir.IRString(ev.ID),
			"seq":   ir.IRInt(ev.Seq),
			"at_ms": ir.IRInt(ev.AtMs),
		}
	}
	return ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"final_ms":      ir.IRInt(s.FinalMs),
		"remaining":     ir.IRInt(s.Remaining),
		"trace":         trace,
	}
}

// MarshalSnapshot renders a result as the canonical JSON stored in golden
// files.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		FinalMs:      result.FinalMs,
		Remaining:    result.Remaining,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonical())
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot run or does not pass.
// Test failure (via goldie) occurs if the trace doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		return fmt.Errorf("scenario %s failed:\n%s", scenario.Name, strings.Join(result.Errors, "\n"))
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares a result's trace against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
