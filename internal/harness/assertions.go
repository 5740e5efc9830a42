package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/triage/internal/collab/memory"
)

// AssertionError is a failed assertion.
type AssertionError struct {
	Type     string
	Expected any
	Actual   any
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s failed: expected %v, got %v", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the final state and
// the created items. Log notes count as created notes.
func EvaluateAssertions(result *Result, assertions []Assertion, created []memory.Created) []*AssertionError {
	var failed []*AssertionError
	for _, a := range assertions {
		if err := evaluate(result, a, created); err != nil {
			failed = append(failed, err)
		}
	}
	return failed
}

func evaluate(result *Result, a Assertion, created []memory.Created) *AssertionError {
	switch a.Type {
	case AssertCreatedCount:
		n := 0
		for _, c := range created {
			if a.Kind == "" || string(c.Request.Kind) == a.Kind {
				n++
			}
		}
		return compareCount(a, n)
	case AssertLedgerCount:
		return compareCount(a, result.State.LedgerEntries)
	case AssertIndexCount:
		return compareCount(a, result.State.IndexRecords)
	case AssertArchiveCount:
		return compareCount(a, result.State.ArchivedRuns)
	case AssertReasoningCalls:
		return compareCount(a, result.State.ReasoningCalls)
	case AssertCreated:
		for _, c := range created {
			if matches(c, a.Match) {
				return nil
			}
		}
		return &AssertionError{Type: a.Type, Expected: formatMatch(a.Match), Actual: fmt.Sprintf("%d created items, none matching", len(created))}
	case AssertFlag:
		got := result.State.Flags[a.MessageID]
		if got != a.Flag {
			return &AssertionError{Type: a.Type, Expected: a.Flag, Actual: got}
		}
		return nil
	}
	return &AssertionError{Type: a.Type, Expected: "known assertion type", Actual: a.Type}
}

func compareCount(a Assertion, got int) *AssertionError {
	if got != *a.Count {
		return &AssertionError{Type: a.Type, Expected: *a.Count, Actual: got}
	}
	return nil
}

func matches(c memory.Created, want map[string]string) bool {
	r := c.Request
	fields := map[string]string{
		"kind":        string(r.Kind),
		"title":       r.Title,
		"start":       r.Start,
		"end":         r.End,
		"due":         r.Due,
		"destination": r.Destination,
		"notes":       r.Notes,
	}
	for k, v := range want {
		if fields[k] != v {
			return false
		}
	}
	return true
}

func formatMatch(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return "{" + strings.Join(parts, " ") + "}"
}
