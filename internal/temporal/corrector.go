package temporal

import (
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/message"
)

// Change records one rewritten field.
type Change struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Corrector moves action dates onto the weekday stated in the message.
type Corrector struct {
	// Location is the configured local timezone.
	Location *time.Location

	// Now is used when the message has no parsable receipt time.
	Now func() time.Time

	Logger *slog.Logger
}

// Correct returns a with start, end and due moved onto the target date.
// Fields that are empty, unparsable, or already on the target date are
// left alone. Without a weekday reference a is returned unchanged.
func (c Corrector) Correct(a action.Action, m message.Message) (action.Action, []Change) {
	intent, ok := DetectIntent(m.Subject + "\n" + m.Body)
	if !ok {
		return a, nil
	}

	loc := c.location()
	anchor, ok := ParseLocal(m.ReceivedAt, loc)
	if !ok {
		anchor = c.now().In(loc)
	}
	target := TargetDate(intent, anchor)

	var changes []Change
	for _, f := range []*struct {
		name string
		val  *string
	}{
		{"start", &a.Start},
		{"end", &a.End},
		{"due", &a.Due},
	} {
		stamp, ok := ParseStamp(*f.val, loc)
		if !ok || DateOf(stamp.Time) == target {
			continue
		}
		t := stamp.Time
		stamp.Time = time.Date(target.Year, target.Month, target.Day,
			t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
		changes = append(changes, Change{Field: f.name, From: *f.val, To: stamp.Format()})
		*f.val = stamp.Format()
	}

	if len(changes) == 0 {
		return a, nil
	}
	a.AppendReason("weekday corrected by rule token=" + intent.Token)

	if c.Logger != nil {
		fields := make([]string, len(changes))
		for i, ch := range changes {
			fields[i] = ch.Field
		}
		c.Logger.Info("weekday_corrected",
			"token", intent.Token,
			"mode", string(intent.Mode),
			"target_date", target.String(),
			"fields", strings.Join(fields, ","),
		)
	}
	return a, changes
}

func (c Corrector) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Corrector) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
