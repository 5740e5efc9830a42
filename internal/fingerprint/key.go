package fingerprint

import (
	"fmt"
	"time"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/canonical"
)

// Domain separates fingerprint hashes from any other hash in the system.
const Domain = "triage/fingerprint/v1"

// Keyer computes fingerprints.
type Keyer struct {
	Resolver Resolver
}

// Key returns the fingerprint of a.
func (k Keyer) Key(a action.Action) (string, error) {
	fields, err := k.identity(a)
	if err != nil {
		return "", err
	}
	h, err := canonical.Hash(Domain, fields)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return string(a.Decision) + ":" + h, nil
}

func (k Keyer) identity(a action.Action) (map[string]any, error) {
	fields := map[string]any{"title": Fold(a.Title)}
	switch a.Decision {
	case action.DecisionCalendar:
		fields["start"] = Fold(a.Start)
		fields["end"] = Fold(a.End)
		fields["calendar"] = Fold(k.Resolver.Calendar(a.Calendar))
	case action.DecisionReminder:
		fields["due"] = Fold(a.Due)
		fields["list"] = Fold(a.List)
	case action.DecisionNote:
		fields["folder"] = Fold(a.Folder)
		fields["notes"] = excerpt(a.Notes, excerptRunes)
	case action.DecisionSkip:
		fields["reason"] = excerpt(a.Reason, excerptRunes)
	default:
		return nil, fmt.Errorf("fingerprint: unknown decision %q", a.Decision)
	}
	return fields, nil
}

// Record builds the index record for a created action, with destinations
// resolved the same way the apply engine resolves them.
func (k Keyer) Record(a action.Action, runID, messageID string, at time.Time) Record {
	rec := Record{
		Timestamp: at.Format(time.RFC3339),
		RunID:     runID,
		MessageID: messageID,
		Decision:  string(a.Decision),
		Title:     a.Title,
	}
	switch a.Decision {
	case action.DecisionCalendar:
		rec.Calendar = k.Resolver.Calendar(a.Calendar)
		rec.Start = a.Start
		rec.End = a.End
	case action.DecisionReminder:
		rec.List = k.Resolver.List(a.List)
		rec.Due = a.Due
	case action.DecisionNote:
		rec.Folder = k.Resolver.Folder(a.Folder)
	}
	return rec
}
