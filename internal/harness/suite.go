package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
)

// SuiteResult aggregates the scenarios of a directory.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure describes one failing or unloadable scenario.
type ScenarioFailure struct {
	Name         string   `json:"name,omitempty"`
	ScenarioPath string   `json:"scenario_path"`
	Errors       []string `json:"errors"`
}

// FindScenarios returns the .yaml and .yml files directly inside dir,
// sorted by path.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario in paths. A scenario that fails to
// load or execute is counted as failed; the suite keeps going.
func RunSuite(ctx context.Context, paths []string, opts ...Option) *SuiteResult {
	out := &SuiteResult{}
	for _, path := range paths {
		out.Total++

		s, err := LoadScenario(path)
		if err != nil {
			out.fail(ScenarioFailure{ScenarioPath: path, Errors: []string{err.Error()}})
			continue
		}
		result, err := Run(ctx, s, opts...)
		if err != nil {
			out.fail(ScenarioFailure{Name: s.Name, ScenarioPath: path, Errors: []string{err.Error()}})
			continue
		}
		if !result.Pass {
			out.fail(ScenarioFailure{Name: s.Name, ScenarioPath: path, Errors: result.Errors})
			continue
		}
		out.Passed++
	}
	return out
}

func (r *SuiteResult) fail(f ScenarioFailure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}

// Summary renders a one-line summary.
func (r *SuiteResult) Summary() string {
	return fmt.Sprintf("%d scenarios: %d passed, %d failed", r.Total, r.Passed, r.Failed)
}
