// Package action defines the fixed-shape follow-up record proposed by the
// reasoning engine, together with its normalizer and policy rules.
//
// An Action always carries exactly the keys listed in Keys. Raw records
// coming from a reasoning pass are checked against that key set, coerced
// to typed fields, and then validated against the compiled JSON Schema
// returned by Document.
package action

// Decision is the kind of follow-up an action asks for.
type Decision string

const (
	DecisionCalendar Decision = "calendar"
	DecisionReminder Decision = "reminder"
	DecisionNote     Decision = "note"
	DecisionSkip     Decision = "skip"
)

// Decisions lists every valid decision in schema order.
var Decisions = []Decision{DecisionCalendar, DecisionReminder, DecisionNote, DecisionSkip}

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionCalendar, DecisionReminder, DecisionNote, DecisionSkip:
		return true
	}
	return false
}

// Creates reports whether applying d produces a downstream item.
func (d Decision) Creates() bool {
	return d == DecisionCalendar || d == DecisionReminder || d == DecisionNote
}

// Importance ranks how much attention the source message deserves.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// Importances lists every valid importance in schema order.
var Importances = []Importance{ImportanceHigh, ImportanceMedium, ImportanceLow}

// Valid reports whether i is a known importance.
func (i Importance) Valid() bool {
	switch i {
	case ImportanceHigh, ImportanceMedium, ImportanceLow:
		return true
	}
	return false
}

// Action is one normalized follow-up.
//
// Start, End and Due are ISO-8601 datetimes with offset, or empty.
// Folder is empty or lies under the configured notes root.
type Action struct {
	Decision        Decision   `json:"decision"`
	Importance      Importance `json:"importance"`
	Title           string     `json:"title"`
	Start           string     `json:"start"`
	End             string     `json:"end"`
	Due             string     `json:"due"`
	Notes           string     `json:"notes"`
	ReminderMinutes int        `json:"reminderMinutes"`
	Calendar        string     `json:"calendar"`
	List            string     `json:"list"`
	Folder          string     `json:"folder"`
	Reason          string     `json:"reason"`
}

// Keys is the exact key set of a serialized Action, in schema order.
var Keys = []string{
	"decision",
	"importance",
	"title",
	"start",
	"end",
	"due",
	"notes",
	"reminderMinutes",
	"calendar",
	"list",
	"folder",
	"reason",
}

// AppendReason joins extra onto the reason with "; ". Empty extra is a no-op.
func (a *Action) AppendReason(extra string) {
	if extra == "" {
		return
	}
	if a.Reason == "" {
		a.Reason = extra
		return
	}
	a.Reason = a.Reason + "; " + extra
}
