package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/runtime"
	"github.com/roach88/rewind/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s @%dms seq=%d\n", i+1, ev.Type, ev.AtMs, ev.Seq)
		}
	}
	return buf.String()
}

// AssertionContext provides the replay runtime for state assertions.
type AssertionContext struct {
	Ctx     context.Context
	Runtime *runtime.Engine
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertClock:
			err = assertClock(result, a)
		case AssertRemaining:
			err = assertRemaining(result, a)
		case AssertInstances, AssertTasks:
			if actx == nil || actx.Runtime == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a replay runtime", i, a.Type)
			} else {
				err = assertRows(actx, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// assertTraceContains checks for a dispatched event of the given type whose
// payload contains the expected fields.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	expected, err := ir.ObjectFromGo(a.Payload)
	if err != nil {
		return fmt.Errorf("trace_contains payload: %w", err)
	}
	for _, ev := range trace {
		if ev.Type == a.EventType && containsSubset(ev.Payload, expected) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s with payload %v", a.EventType, a.Payload),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that types appear in the specified order.
// Types don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		for _, want := range a.Types {
			if ev.Type == want && positions[want] == 0 {
				positions[want] = i + 1
			}
		}
	}

	for _, want := range a.Types {
		if positions[want] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all types present: %v", a.Types),
				Actual:   fmt.Sprintf("missing type: %s", want),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Types); i++ {
		prev, curr := a.Types[i-1], a.Types[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("types in order: %v", a.Types),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the type was dispatched exactly count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == a.EventType {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", *a.Count, a.EventType),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertClock(result *Result, a Assertion) error {
	if result.FinalMs != *a.AtMs {
		return &AssertionError{
			Type:     AssertClock,
			Expected: fmt.Sprintf("virtual time %dms", *a.AtMs),
			Actual:   fmt.Sprintf("virtual time %dms", result.FinalMs),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertRemaining(result *Result, a Assertion) error {
	if result.Remaining != *a.Count {
		return &AssertionError{
			Type:     AssertRemaining,
			Expected: fmt.Sprintf("%d undispatched events", *a.Count),
			Actual:   fmt.Sprintf("%d undispatched events", result.Remaining),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertRows selects instances or tasks of the replay runtime, in every
// state, by subset match on where and checks each against expect.
func assertRows(actx *AssertionContext, a Assertion) error {
	where, err := ir.ObjectFromGo(a.Where)
	if err != nil {
		return fmt.Errorf("%s where: %w", a.Type, err)
	}
	expect, err := ir.ObjectFromGo(a.Expect)
	if err != nil {
		return fmt.Errorf("%s expect: %w", a.Type, err)
	}

	rows, err := stateRows(actx, a.Type)
	if err != nil {
		return err
	}

	var matched []ir.IRObject
	for _, row := range rows {
		if containsSubset(row, where) {
			matched = append(matched, row)
		}
	}

	if a.Count != nil && len(matched) != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d rows where %s", *a.Count, formatObject(where)),
			Actual:   fmt.Sprintf("%d rows", len(matched)),
		}
	}
	if a.Count == nil && len(matched) == 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("rows where %s", formatObject(where)),
			Actual:   "no rows found",
		}
	}

	for _, row := range matched {
		if !containsSubset(row, expect) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("row containing %s", formatObject(expect)),
				Actual:   formatObject(row),
			}
		}
	}
	return nil
}

func stateRows(actx *AssertionContext, kind string) ([]ir.IRObject, error) {
	if kind == AssertInstances {
		instances, err := actx.Runtime.HistoricProcessInstances(actx.Ctx, store.InstanceFilter{})
		if err != nil {
			return nil, fmt.Errorf("query instances: %w", err)
		}
		rows := make([]ir.IRObject, len(instances))
		for i, pi := range instances {
			rows[i] = instanceRow(pi)
		}
		return rows, nil
	}

	tasks, err := actx.Runtime.HistoricTasks(actx.Ctx, store.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	rows := make([]ir.IRObject, len(tasks))
	for i, t := range tasks {
		rows[i] = taskRow(t)
	}
	return rows, nil
}

func instanceRow(pi store.ProcessInstance) ir.IRObject {
	return ir.IRObject{
		"id":             ir.IRString(pi.ID),
		"definition_id":  ir.IRString(pi.DefinitionID),
		"definition_key": ir.IRString(pi.DefinitionKey),
		"business_key":   ir.IRString(pi.BusinessKey),
		"variables":      pi.Variables.Clone(),
		"ended":          ir.IRBool(pi.Ended()),
	}
}

func taskRow(t store.Task) ir.IRObject {
	return ir.IRObject{
		"id":                    ir.IRString(t.ID),
		"process_instance_id":   ir.IRString(t.ProcessInstanceID),
		"process_definition_id": ir.IRString(t.ProcessDefinitionID),
		"business_key":          ir.IRString(t.BusinessKey),
		"definition_key":        ir.IRString(t.DefinitionKey),
		"name":                  ir.IRString(t.Name),
		"assignee":              ir.IRString(t.Assignee),
		"variables":             t.Variables.Clone(),
		"ended":                 ir.IRBool(t.Ended()),
	}
}

// containsSubset reports whether actual contains every field of expected.
// Nested objects match by subset too; everything else must be equal.
func containsSubset(actual, expected ir.IRObject) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok {
			return false
		}
		if wantObj, ok := want.(ir.IRObject); ok {
			gotObj, ok := got.(ir.IRObject)
			if !ok || !containsSubset(gotObj, wantObj) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// formatObject renders an object as canonical JSON for messages.
func formatObject(obj ir.IRObject) string {
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return fmt.Sprintf("%v", map[string]ir.IRValue(obj))
	}
	return string(data)
}
