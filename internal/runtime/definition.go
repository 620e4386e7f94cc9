package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rewind/internal/store"
)

// Definition is a process parsed from a deployment resource, before it is
// assigned a version.
type Definition struct {
	Key   string
	Name  string
	Tasks []store.TaskDefinition
}

// processSpec is the shape of one entry under the top-level "process" field.
// json tags drive CUE decoding; yaml tags drive YAML decoding.
type processSpec struct {
	Name  string                 `json:"name" yaml:"name"`
	Tasks []store.TaskDefinition `json:"tasks" yaml:"tasks"`
}

type yamlResource struct {
	Process map[string]processSpec `yaml:"process"`
}

// DefinitionError reports an invalid process resource.
type DefinitionError struct {
	Resource string
	Message  string
	Pos      token.Pos
}

func (e *DefinitionError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Resource, e.Message)
}

// ParseResource parses the process definitions in r.
// The format is chosen by extension: .cue, .yaml or .yml.
//
// Both formats use the same layout:
//
//	process: oneTaskProcess: {
//		name: "One Task Process"
//		tasks: [{key: "userTask", name: "User Task", assignee: "user1"}]
//	}
//
// Definitions are returned sorted by key.
func ParseResource(r store.Resource) ([]Definition, error) {
	var specs map[string]processSpec
	var err error
	switch strings.ToLower(filepath.Ext(r.Name)) {
	case ".cue":
		specs, err = parseCUE(r)
	case ".yaml", ".yml":
		specs, err = parseYAML(r)
	default:
		return nil, &DefinitionError{Resource: r.Name, Message: "unsupported resource type (want .cue, .yaml or .yml)"}
	}
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, &DefinitionError{Resource: r.Name, Message: "no process definitions found"}
	}

	defs := make([]Definition, 0, len(specs))
	for _, key := range slices.Sorted(maps.Keys(specs)) {
		def, err := newDefinition(r.Name, key, specs[key])
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func parseCUE(r store.Resource) (map[string]processSpec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(r.Content, cue.Filename(r.Name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(r.Name, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(r.Name, err)
	}

	procs := v.LookupPath(cue.ParsePath("process"))
	if !procs.Exists() {
		return nil, nil
	}
	iter, err := procs.Fields()
	if err != nil {
		return nil, formatCUEError(r.Name, err)
	}

	specs := make(map[string]processSpec)
	for iter.Next() {
		var spec processSpec
		if err := iter.Value().Decode(&spec); err != nil {
			return nil, formatCUEError(r.Name, err)
		}
		specs[iter.Label()] = spec
	}
	return specs, nil
}

func parseYAML(r store.Resource) (map[string]processSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(r.Content))
	dec.KnownFields(true)

	var f yamlResource
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &DefinitionError{Resource: r.Name, Message: err.Error()}
	}
	return f.Process, nil
}

func newDefinition(resource, key string, spec processSpec) (Definition, error) {
	if key == "" || strings.Contains(key, ":") {
		return Definition{}, &DefinitionError{Resource: resource, Message: fmt.Sprintf("invalid process key %q", key)}
	}
	name := spec.Name
	if name == "" {
		name = key
	}

	seen := make(map[string]bool, len(spec.Tasks))
	tasks := make([]store.TaskDefinition, 0, len(spec.Tasks))
	for i, td := range spec.Tasks {
		if td.Key == "" {
			return Definition{}, &DefinitionError{Resource: resource, Message: fmt.Sprintf("process %s: task %d has no key", key, i)}
		}
		if seen[td.Key] {
			return Definition{}, &DefinitionError{Resource: resource, Message: fmt.Sprintf("process %s: duplicate task key %q", key, td.Key)}
		}
		seen[td.Key] = true
		if td.Name == "" {
			td.Name = td.Key
		}
		tasks = append(tasks, td)
	}
	return Definition{Key: key, Name: name, Tasks: tasks}, nil
}

// definitionID is the deterministic identity of a deployed definition.
// Runtime A and runtime B assign the same ID to the same deployment.
func definitionID(key string, version int) string {
	return fmt.Sprintf("%s:%d", key, version)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(resource string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &DefinitionError{Resource: resource, Message: err.Error()}
	}
	first := errs[0]
	de := &DefinitionError{Resource: resource, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		de.Pos = positions[0]
	}
	return de
}
