package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/triage/internal/canonical"
)

// TraceSnapshot is the golden-file form of a scenario trace.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// Snapshot returns the canonical JSON of the trace of result.
func Snapshot(name string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	data, err := canonical.Marshal(snap.toCanonicalMap())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trace snapshot: %w", err)
	}
	return data, nil
}

func (s TraceSnapshot) toCanonicalMap() map[string]any {
	events := make([]any, len(s.Trace))
	for i, e := range s.Trace {
		events[i] = e.toCanonicalMap()
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         events,
	}
}

func (e TraceEvent) toCanonicalMap() map[string]any {
	m := map[string]any{
		"type": e.Type,
		"step": e.Step,
	}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("status", e.Status)
	put("decision", e.Decision)
	put("flag", e.Flag)
	put("error_stage", e.ErrorStage)
	put("title", e.Title)
	put("kind", e.Kind)
	put("destination", e.Destination)
	put("start", e.Start)
	put("end", e.End)
	put("due", e.Due)
	if e.Counts != nil {
		m["counts"] = map[string]any{
			"created": e.Counts.Created,
			"skipped": e.Counts.Skipped,
			"failed":  e.Counts.Failed,
		}
	}
	if e.FirstStep != 0 {
		m["first_step"] = e.FirstStep
	}
	if e.Index != 0 {
		m["index"] = e.Index
	}
	return m
}

// RunWithGolden runs a scenario, fails t on any expectation or assertion
// error, and compares the trace against testdata/golden/<name>.golden.
// Update with: go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s failed to run: %v", scenario.Name, err)
	}
	if !result.Pass {
		for _, e := range result.Errors {
			t.Error(e)
		}
	}
	AssertGolden(t, scenario.Name, result)
	return result
}

// AssertGolden compares the trace of result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		t.Fatalf("%v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
