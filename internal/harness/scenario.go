package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rewind/internal/ir"
)

// Scenario is one record-and-replay test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// OriginMs overrides the replay clock origin.
	// If nil, replay starts at the first recorded event.
	OriginMs *int64 `yaml:"origin_ms,omitempty"`

	// Variables are the replay session's initial variables.
	Variables map[string]any `yaml:"variables,omitempty"`

	// Resources are the process resources available to deploy steps.
	Resources []ResourceSpec `yaml:"resources"`

	// Record scripts the recording pass against runtime A.
	Record []RecordStep `yaml:"record"`

	// Debug drives the debugger. Empty means run to the end.
	Debug []DebugStep `yaml:"debug,omitempty"`

	// Assertions validate the trace and the replay runtime's final state.
	Assertions []Assertion `yaml:"assertions"`
}

// ResourceSpec is a process resource, inline or read from Path.
type ResourceSpec struct {
	// Name is the resource name; its extension selects the format.
	// Defaults to the base name of Path.
	Name string `yaml:"name,omitempty"`

	// Path is relative to the scenario file.
	Path string `yaml:"path,omitempty"`

	// Content is the resource text. Filled from Path at load time.
	Content string `yaml:"content,omitempty"`
}

// RecordStep is one action of the recording pass. Exactly one of Deploy,
// Start and Complete is set.
type RecordStep struct {
	// AtMs sets runtime A's clock before the action. Must not go backward.
	AtMs *int64 `yaml:"at_ms,omitempty"`

	Deploy   *DeployStep   `yaml:"deploy,omitempty"`
	Start    *StartStep    `yaml:"start,omitempty"`
	Complete *CompleteStep `yaml:"complete,omitempty"`
}

// DeployStep deploys named resources.
type DeployStep struct {
	Name      string   `yaml:"name"`
	Resources []string `yaml:"resources"`
}

// StartStep starts the latest version of a process.
type StartStep struct {
	Process     string         `yaml:"process"`
	BusinessKey string         `yaml:"business_key,omitempty"`
	Variables   map[string]any `yaml:"variables,omitempty"`
}

// CompleteStep completes the single active task with this definition key
// and business key.
type CompleteStep struct {
	Task        string         `yaml:"task"`
	BusinessKey string         `yaml:"business_key,omitempty"`
	Variables   map[string]any `yaml:"variables,omitempty"`
}

// DebugStep is one debugger call. Exactly one of Step, RunToMs, RunToEvent
// and Continue is set.
type DebugStep struct {
	// Step calls Step this many times, stopping early at exhaustion.
	Step int `yaml:"step,omitempty"`

	RunToMs    *int64 `yaml:"run_to_ms,omitempty"`
	RunToEvent string `yaml:"run_to_event,omitempty"`
	Continue   bool   `yaml:"continue,omitempty"`

	// ExpectError is the error code the call must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the trace or the replay runtime's state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// EventType is used by trace_contains and trace_count.
	EventType string `yaml:"event_type,omitempty"`

	// Payload is a subset of the event payload (trace_contains).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Types is the expected dispatch order (trace_order).
	// Intervening events are allowed.
	Types []string `yaml:"types,omitempty"`

	// Count is used by trace_count, remaining, instances and tasks.
	Count *int `yaml:"count,omitempty"`

	// AtMs is the expected virtual time (clock).
	AtMs *int64 `yaml:"at_ms,omitempty"`

	// Where selects rows by subset match (instances, tasks).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect must be contained in every selected row (instances, tasks).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertClock         = "clock"
	AssertRemaining     = "remaining"
	AssertInstances     = "instances"
	AssertTasks         = "tasks"
)

var errorCodes = map[string]bool{
	string(ir.ErrCodeBackwardTimeTravel):     true,
	string(ir.ErrCodeBreakpointNeverMatched): true,
	string(ir.ErrCodeUnhandledEventType):     true,
	string(ir.ErrCodeHandlerFailure):         true,
	string(ir.ErrCodeInvalidSessionState):    true,
}

// LoadScenario reads and validates a scenario file. Resource paths are
// resolved relative to the file and their content is read in.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(path)
	for i := range s.Resources {
		r := &s.Resources[i]
		if r.Path == "" {
			continue
		}
		resolved := r.Path
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}
		content, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: resources[%d]: %w", i, err)
		}
		r.Content = string(content)
		if r.Name == "" {
			r.Name = filepath.Base(r.Path)
		}
	}

	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// ParseScenario decodes a scenario without resolving resource paths or
// validating it.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &s, nil
}

// validateScenario checks required fields and cross references.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Record) == 0 {
		return fmt.Errorf("record list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	resources := make(map[string]bool, len(s.Resources))
	for i, r := range s.Resources {
		if r.Name == "" {
			return fmt.Errorf("resources[%d]: name or path is required", i)
		}
		if r.Content == "" {
			return fmt.Errorf("resources[%d]: content or path is required", i)
		}
		if resources[r.Name] {
			return fmt.Errorf("resources[%d]: duplicate name %q", i, r.Name)
		}
		resources[r.Name] = true
	}

	var lastMs *int64
	for i, step := range s.Record {
		if err := validateRecordStep(i, step, resources); err != nil {
			return err
		}
		if step.AtMs != nil {
			if lastMs != nil && *step.AtMs < *lastMs {
				return fmt.Errorf("record[%d]: at_ms %d is before %d", i, *step.AtMs, *lastMs)
			}
			lastMs = step.AtMs
		}
	}

	for i, step := range s.Debug {
		if err := validateDebugStep(i, step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateRecordStep(index int, step RecordStep, resources map[string]bool) error {
	set := 0
	if step.Deploy != nil {
		set++
		if step.Deploy.Name == "" {
			return fmt.Errorf("record[%d].deploy: name is required", index)
		}
		if len(step.Deploy.Resources) == 0 {
			return fmt.Errorf("record[%d].deploy: resources list is required", index)
		}
		for _, name := range step.Deploy.Resources {
			if !resources[name] {
				return fmt.Errorf("record[%d].deploy: unknown resource %q", index, name)
			}
		}
	}
	if step.Start != nil {
		set++
		if step.Start.Process == "" {
			return fmt.Errorf("record[%d].start: process is required", index)
		}
	}
	if step.Complete != nil {
		set++
		if step.Complete.Task == "" {
			return fmt.Errorf("record[%d].complete: task is required", index)
		}
	}
	if set != 1 {
		return fmt.Errorf("record[%d]: exactly one of deploy, start, complete is required", index)
	}
	return nil
}

func validateDebugStep(index int, step DebugStep) error {
	set := 0
	if step.Step != 0 {
		set++
		if step.Step < 0 {
			return fmt.Errorf("debug[%d]: step must be positive", index)
		}
	}
	if step.RunToMs != nil {
		set++
	}
	if step.RunToEvent != "" {
		set++
	}
	if step.Continue {
		set++
	}
	if set != 1 {
		return fmt.Errorf("debug[%d]: exactly one of step, run_to_ms, run_to_event, continue is required", index)
	}
	if step.ExpectError != "" && !errorCodes[step.ExpectError] {
		return fmt.Errorf("debug[%d]: unknown error code %q", index, step.ExpectError)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.EventType == "" {
			return fmt.Errorf("assertions[%d]: event_type is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Types) == 0 {
			return fmt.Errorf("assertions[%d]: types list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.EventType == "" {
			return fmt.Errorf("assertions[%d]: event_type is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for trace_count", index)
		}
	case AssertClock:
		if a.AtMs == nil {
			return fmt.Errorf("assertions[%d]: at_ms is required for clock", index)
		}
	case AssertRemaining:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for remaining", index)
		}
	case AssertInstances, AssertTasks:
		if a.Count == nil && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: count or expect is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
