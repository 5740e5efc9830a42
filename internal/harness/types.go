package harness

import "github.com/roach88/triage/internal/apply"

// Trace event types.
const (
	EventRun     = "run"
	EventItem    = "item"
	EventCreate  = "create"
	EventLogNote = "log_note"
)

// TraceEvent is one observable effect of a scenario step. Empty fields
// are left out of the canonical form.
type TraceEvent struct {
	Type string `json:"type"`
	Step int    `json:"step"`

	// Run events.
	Status     string        `json:"status,omitempty"`
	Decision   string        `json:"decision,omitempty"`
	Flag       string        `json:"flag,omitempty"`
	ErrorStage string        `json:"error_stage,omitempty"`
	Counts     *apply.Counts `json:"counts,omitempty"`

	// FirstStep is the step whose run a duplicate refers to.
	FirstStep int `json:"first_step,omitempty"`

	// Item and create events.
	Index       int    `json:"index,omitempty"`
	Title       string `json:"title,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Destination string `json:"destination,omitempty"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Due         string `json:"due,omitempty"`
}

// State is the persisted and collaborator state after the last step.
type State struct {
	LedgerEntries  int               `json:"ledger_entries"`
	IndexRecords   int               `json:"index_records"`
	ArchivedRuns   int               `json:"archived_runs"`
	ReasoningCalls int               `json:"reasoning_calls"`
	Flags          map[string]string `json:"flags"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// RunIDs holds the run id of each step, "" when none was assigned.
	RunIDs []string `json:"run_ids"`

	State State `json:"state"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		RunIDs: []string{},
		Errors: []string{},
		State:  State{Flags: map[string]string{}},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}

// stepOf maps a run id back to its 1-based step, 0 when unknown.
func (r *Result) stepOf(runID string) int {
	if runID == "" {
		return 0
	}
	for i, id := range r.RunIDs {
		if id == runID {
			return i + 1
		}
	}
	return 0
}
