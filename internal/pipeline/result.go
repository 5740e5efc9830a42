package pipeline

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/apply"
	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/store"
	"github.com/roach88/triage/internal/temporal"
)

// Status is the terminal status of a completed run.
type Status string

const (
	StatusApplied          Status = "applied"
	StatusSkippedDuplicate Status = "skipped_duplicate"
	StatusSkippedEarly     Status = "skipped_early"
)

// Skip is the apply result of a run that never reached apply.
type Skip struct {
	Status     Status `json:"status"`
	Target     string `json:"target"`
	Reason     string `json:"reason"`
	FirstRunID string `json:"first_run_id,omitempty"`
}

// PassRecord summarizes one reasoning pass.
type PassRecord struct {
	Pass        string            `json:"pass"`
	Actions     int               `json:"actions"`
	Downgraded  int               `json:"downgraded,omitempty"`
	Corrections []temporal.Change `json:"corrections,omitempty"`
}

// Result is the terminal record of a run, written to result.json and the
// archive.
type Result struct {
	RunID     string             `json:"run_id"`
	MessageID string             `json:"message_id"`
	Subject   string             `json:"subject,omitempty"`
	Sender    string             `json:"sender,omitempty"`
	Status    Status             `json:"status"`
	Decision  string             `json:"decision"`
	SaveMode  SaveMode           `json:"save_mode"`
	Passes    []PassRecord       `json:"passes,omitempty"`
	Items     []apply.ItemResult `json:"items"`
	Skip      *Skip              `json:"apply_result,omitempty"`
	Counts    apply.Counts       `json:"counts"`
	Flag      collab.Flag        `json:"flag,omitempty"`
	FlagError string             `json:"flag_error,omitempty"`
	LogNoteID string             `json:"log_note_id,omitempty"`
	LogError  string             `json:"log_note_error,omitempty"`
	Timestamp string             `json:"timestamp"`

	StartedAt  time.Time `json:"-"`
	FinishedAt time.Time `json:"-"`
}

// Skipped reports whether the run ended before apply.
func (r *Result) Skipped() bool {
	return r.Status != StatusApplied
}

// DecisionSummary joins the distinct decisions of actions in priority
// order (calendar, reminder, note, skip) with "+". An empty list
// summarizes as skip.
func DecisionSummary(actions []action.Action) string {
	present := make(map[action.Decision]bool, len(actions))
	for _, a := range actions {
		present[a.Decision] = true
	}
	var parts []string
	for _, d := range action.Decisions {
		if present[d] {
			parts = append(parts, string(d))
		}
	}
	if len(parts) == 0 {
		return string(action.DecisionSkip)
	}
	return strings.Join(parts, "+")
}

// archiveRun converts the result to its archive row.
func (r *Result) archiveRun() (store.Run, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return store.Run{}, err
	}
	run := store.Run{
		RunID:      r.RunID,
		MessageID:  r.MessageID,
		Subject:    r.Subject,
		Sender:     r.Sender,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		SaveMode:   string(r.SaveMode),
		Status:     string(r.Status),
		Decision:   r.Decision,
		Result:     payload,
	}
	for _, it := range r.Items {
		run.Items = append(run.Items, store.Item{
			Index:       it.Index,
			Decision:    string(it.Decision),
			Title:       it.Title,
			Fingerprint: it.Fingerprint,
			Status:      string(it.Status),
			ActionPath:  it.ActionPath,
			TargetID:    it.Result.TargetID,
			Error:       it.Result.Error,
			CreatedAt:   it.At,
		})
	}
	return run, nil
}
