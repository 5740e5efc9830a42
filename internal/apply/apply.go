// Package apply drives the per-action create-or-skip decision.
//
// For each action, in order:
//
//  1. compute its fingerprint
//  2. a fingerprint already seen earlier in this run is skipped_duplicate_in_output
//  3. a non-skip action whose fingerprint is in the index is skipped_duplicate_saved
//  4. a skip action is skipped
//  5. otherwise the collaborator creates it; success is created and the
//     index is updated before the next action, failure is failed
//
// Collaborator failures are recorded on the item and never abort the run.
// The index is only written after a confirmed create.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/fingerprint"
	"github.com/roach88/triage/internal/statefile"
)

// Status is the outcome of one action.
type Status string

const (
	StatusCreated           Status = "created"
	StatusSkipped           Status = "skipped"
	StatusDuplicateInOutput Status = "skipped_duplicate_in_output"
	StatusDuplicateSaved    Status = "skipped_duplicate_saved"
	StatusFailed            Status = "failed"
)

// Outcome is the apply-result payload of an item.
type Outcome struct {
	Target      string `json:"target,omitempty"`
	TargetID    string `json:"target_id,omitempty"`
	Destination string `json:"destination,omitempty"`
	FirstRunID  string `json:"first_run_id,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
}

// ItemResult is the record of one applied action.
type ItemResult struct {
	Index       int             `json:"index"`
	Decision    action.Decision `json:"decision"`
	Title       string          `json:"title"`
	Fingerprint string          `json:"fingerprint"`
	Status      Status          `json:"status"`
	ActionPath  string          `json:"action_path,omitempty"`
	Result      Outcome         `json:"apply_result"`
	At          time.Time       `json:"-"`
}

// Run identifies the pipeline run the actions belong to.
type Run struct {
	ID        string
	MessageID string

	// ActionDir receives NN.json per action. Empty disables the files.
	ActionDir string

	// BaseDir makes recorded action paths relative. Empty keeps them absolute.
	BaseDir string
}

// Engine applies normalized actions.
type Engine struct {
	Creator collab.Creator
	Index   *fingerprint.Index
	Keyer   fingerprint.Keyer
	Clock   func() time.Time
	Logger  *slog.Logger
}

// Apply runs every action through the state machine. The returned error is
// non-nil only for local failures (fingerprinting, action files, index
// persistence); items processed before it are still returned.
func (e *Engine) Apply(ctx context.Context, run Run, actions []action.Action) ([]ItemResult, error) {
	results := make([]ItemResult, 0, len(actions))
	seen := make(map[string]int, len(actions))

	for i, a := range actions {
		item := ItemResult{
			Index:    i + 1,
			Decision: a.Decision,
			Title:    a.Title,
			At:       e.now(),
		}

		key, err := e.Keyer.Key(a)
		if err != nil {
			return results, fmt.Errorf("item %d: %w", item.Index, err)
		}
		item.Fingerprint = key

		if run.ActionDir != "" {
			path := filepath.Join(run.ActionDir, fmt.Sprintf("%02d.json", item.Index))
			if err := statefile.Save(path, a); err != nil {
				return results, fmt.Errorf("item %d: %w", item.Index, err)
			}
			item.ActionPath = e.relative(run.BaseDir, path)
		}

		switch first, dup := seen[key]; {
		case dup:
			item.Status = StatusDuplicateInOutput
			item.Result = Outcome{Target: "none", Error: fmt.Sprintf("same fingerprint as item %d", first)}
		default:
			seen[key] = item.Index
			if err := e.applyOne(ctx, run, a, &item); err != nil {
				results = append(results, item)
				e.logItem(run, item)
				return results, err
			}
		}

		results = append(results, item)
		e.logItem(run, item)
	}
	return results, nil
}

func (e *Engine) applyOne(ctx context.Context, run Run, a action.Action, item *ItemResult) error {
	if a.Decision != action.DecisionSkip {
		if rec, ok := e.Index.Lookup(item.Fingerprint); ok {
			item.Status = StatusDuplicateSaved
			item.Result = Outcome{Target: "none", FirstRunID: rec.RunID}
			return nil
		}
	}
	if a.Decision == action.DecisionSkip {
		item.Status = StatusSkipped
		item.Result = Outcome{Target: "none"}
		return nil
	}

	req := e.request(a)
	item.Result = Outcome{Target: string(a.Decision), Destination: req.Destination}

	id, err := e.Creator.Create(ctx, req)
	if err != nil {
		item.Status = StatusFailed
		item.Result.Error = err.Error()
		item.Result.ErrorCode = string(collab.CodeOf(err))
		var ce *collab.Error
		if !errors.As(err, &ce) {
			item.Result.ErrorCode = string(collab.CodeUnavailable)
		}
		return nil
	}

	item.Status = StatusCreated
	item.Result.TargetID = id
	item.At = e.now()

	rec := e.Keyer.Record(a, run.ID, run.MessageID, item.At)
	if err := e.Index.Upsert(item.Fingerprint, rec); err != nil {
		return fmt.Errorf("item %d created as %s but %w", item.Index, id, err)
	}
	return nil
}

// request builds the create call with destinations resolved.
func (e *Engine) request(a action.Action) collab.CreateRequest {
	r := e.Keyer.Resolver
	req := collab.CreateRequest{
		Kind:  a.Decision,
		Title: a.Title,
		Notes: a.Notes,
	}
	switch a.Decision {
	case action.DecisionCalendar:
		req.Destination = r.Calendar(a.Calendar)
		req.Start = a.Start
		req.End = a.End
		req.ReminderMinutes = a.ReminderMinutes
	case action.DecisionReminder:
		req.Destination = r.List(a.List)
		req.Due = a.Due
		req.ReminderMinutes = a.ReminderMinutes
	case action.DecisionNote:
		req.Destination = r.Folder(a.Folder)
	}
	return req
}

func (e *Engine) relative(base, path string) string {
	if base == "" {
		return path
	}
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

func (e *Engine) logItem(run Run, item ItemResult) {
	if e.Logger == nil {
		return
	}
	attrs := []any{
		"run_id", run.ID,
		"index", item.Index,
		"decision", string(item.Decision),
		"status", string(item.Status),
		"fingerprint", item.Fingerprint,
	}
	if item.Result.FirstRunID != "" {
		attrs = append(attrs, "first_run_id", item.Result.FirstRunID)
	}
	if item.Status == StatusFailed {
		attrs = append(attrs, "error", item.Result.Error)
		e.Logger.Warn("apply_item", attrs...)
		return
	}
	e.Logger.Info("apply_item", attrs...)
}

// Counts tallies item statuses.
type Counts struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Tally counts results. Every skipped_* status counts as skipped.
func Tally(items []ItemResult) Counts {
	var c Counts
	for _, it := range items {
		switch it.Status {
		case StatusCreated:
			c.Created++
		case StatusFailed:
			c.Failed++
		default:
			c.Skipped++
		}
	}
	return c
}

// CreatedDecisions returns the decisions of created items, in order.
func CreatedDecisions(items []ItemResult) []action.Decision {
	var out []action.Decision
	for _, it := range items {
		if it.Status == StatusCreated {
			out = append(out, it.Decision)
		}
	}
	return out
}
