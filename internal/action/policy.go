package action

import "strings"

// DowngradeSuffix is appended to the reason of a downgraded action.
const DowngradeSuffix = "auto-downgraded to note because importance=low"

// Source is the message context the policy layer needs.
type Source struct {
	Sender  string
	Subject string
}

// Policy holds the settings of the post-normalization rules.
type Policy struct {
	// LowPriorityFolder receives downgraded notes that name no folder.
	LowPriorityFolder string
}

// Apply runs the policy rules over a normalized action and reports whether
// it changed. A low-importance calendar or reminder becomes a note. The
// rule is idempotent: a downgraded action is a note and is left alone.
func (p Policy) Apply(a Action, src Source) (Action, bool) {
	if a.Importance != ImportanceLow {
		return a, false
	}
	if a.Decision != DecisionCalendar && a.Decision != DecisionReminder {
		return a, false
	}

	a.Decision = DecisionNote
	if strings.TrimSpace(a.Folder) == "" {
		a.Folder = p.LowPriorityFolder
	}
	if strings.TrimSpace(a.Notes) == "" {
		a.Notes = "Low-importance email saved as note.\nFrom: " + src.Sender + "\nSubject: " + src.Subject
	}
	if !strings.Contains(a.Reason, DowngradeSuffix) {
		a.AppendReason(DowngradeSuffix)
	}
	return a, true
}
