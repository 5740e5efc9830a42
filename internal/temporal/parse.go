package temporal

import (
	"strings"
	"time"
)

// layouts are tried in order. Values without an offset are read in the
// corrector's location and written back without one.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
}

// Stamp is a parsed datetime field together with the layout it came in.
type Stamp struct {
	Time   time.Time
	Layout string
}

// Format renders s in its original layout.
func (s Stamp) Format() string {
	return s.Time.Format(s.Layout)
}

// ParseStamp parses an ISO-8601 value. Empty or unparsable input reports false.
func ParseStamp(value string, loc *time.Location) (Stamp, bool) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return Stamp{}, false
	}
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			continue
		}
		if strings.Contains(layout, "Z07") {
			// Pin the written offset so a date move never crosses a DST rule.
			_, offset := t.Zone()
			t = t.In(time.FixedZone("", offset))
		}
		return Stamp{Time: t, Layout: layout}, true
	}
	return Stamp{}, false
}

// ParseLocal parses value and converts it to loc.
func ParseLocal(value string, loc *time.Location) (time.Time, bool) {
	s, ok := ParseStamp(value, loc)
	if !ok {
		return time.Time{}, false
	}
	return s.Time.In(loc), true
}
