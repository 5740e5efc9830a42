// Package collab defines the narrow interfaces the pipeline uses to reach
// mail, calendar, reminder and note systems it does not own.
//
// Implementations live in subpackages: bridge talks JSON to a helper
// process, gmail uses the Gmail API for mail, memory keeps everything in
// process for tests and scenarios.
package collab

import (
	"context"
	"time"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/message"
)

// Flag is the coarse label set on a processed message.
type Flag string

const (
	FlagFollowUp Flag = "follow-up"
	FlagSaved    Flag = "saved"
	FlagSkipped  Flag = "skipped"
)

// FlagFor picks the flag for the set of created decisions: calendar or
// reminder beats note, which beats nothing.
func FlagFor(created []action.Decision) Flag {
	flag := FlagSkipped
	for _, d := range created {
		switch d {
		case action.DecisionCalendar, action.DecisionReminder:
			return FlagFollowUp
		case action.DecisionNote:
			flag = FlagSaved
		}
	}
	return flag
}

// Mail reads messages and labels them.
type Mail interface {
	// Fetch returns the message at loc.
	Fetch(ctx context.Context, loc message.Locator) (message.Message, error)

	// Latest returns the most recent unseen candidate received after since.
	// A zero since means no lower bound.
	Latest(ctx context.Context, since time.Time) (message.Message, error)

	// SetFlag labels the message at loc.
	SetFlag(ctx context.Context, loc message.Locator, flag Flag) error
}

// CreateRequest describes one downstream item. Kind is calendar, reminder
// or note; Destination is the calendar, list or folder respectively.
type CreateRequest struct {
	Kind            action.Decision `json:"kind"`
	Title           string          `json:"title"`
	Start           string          `json:"start,omitempty"`
	End             string          `json:"end,omitempty"`
	Due             string          `json:"due,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Destination     string          `json:"destination"`
	ReminderMinutes int             `json:"reminder_minutes,omitempty"`
}

// Creator creates calendar events, reminders and notes. It returns an
// opaque id of the created item. Creators are not idempotent.
type Creator interface {
	Create(ctx context.Context, req CreateRequest) (string, error)
}
