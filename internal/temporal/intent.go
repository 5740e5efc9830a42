package temporal

import (
	"regexp"
	"strings"
	"time"
)

// Mode says how a weekday token is resolved to a date.
type Mode string

const (
	// ModeUpcoming targets the nearest future occurrence, never the same day.
	ModeUpcoming Mode = "upcoming"

	// ModeNextWeek targets the weekday in the Monday-anchored week after
	// the week of receipt.
	ModeNextWeek Mode = "next_week"
)

// Intent is a weekday reference found in message text.
type Intent struct {
	Weekday time.Weekday
	Mode    Mode
	Token   string
}

var (
	cjkNextWeek = regexp.MustCompile(`(下周|下星期|下禮拜|下礼拜)\s*([一二三四五六日天1-7])`)
	cjkUpcoming = regexp.MustCompile(`(周|星期|禮拜|礼拜)\s*([一二三四五六日天1-7])`)
	english     = regexp.MustCompile(`(next\s+week\s+|next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)`)
)

var cjkDays = map[string]time.Weekday{
	"一": time.Monday,
	"二": time.Tuesday,
	"三": time.Wednesday,
	"四": time.Thursday,
	"五": time.Friday,
	"六": time.Saturday,
	"日": time.Sunday,
	"天": time.Sunday,
	"1": time.Monday,
	"2": time.Tuesday,
	"3": time.Wednesday,
	"4": time.Thursday,
	"5": time.Friday,
	"6": time.Saturday,
	"7": time.Sunday,
}

var englishDays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// DetectIntent returns the first weekday reference in text. CJK forms are
// checked before English ones, and a CJK "next week" form wins over a bare
// CJK weekday.
func DetectIntent(text string) (Intent, bool) {
	if text == "" {
		return Intent{}, false
	}
	if m := cjkNextWeek.FindStringSubmatch(text); m != nil {
		return Intent{Weekday: cjkDays[m[2]], Mode: ModeNextWeek, Token: m[0]}, true
	}
	if m := cjkUpcoming.FindStringSubmatch(text); m != nil {
		return Intent{Weekday: cjkDays[m[2]], Mode: ModeUpcoming, Token: m[0]}, true
	}
	if m := english.FindStringSubmatch(strings.ToLower(text)); m != nil {
		mode := ModeUpcoming
		if strings.TrimSpace(m[1]) != "" {
			mode = ModeNextWeek
		}
		return Intent{Weekday: englishDays[m[2]], Mode: mode, Token: m[0]}, true
	}
	return Intent{}, false
}

// Date is a civil calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the wall-clock date of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
}

// TargetDate resolves intent against the local receipt time anchor.
func TargetDate(intent Intent, anchor time.Time) Date {
	day := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 12, 0, 0, 0, time.UTC)
	switch intent.Mode {
	case ModeNextWeek:
		weekStart := day.AddDate(0, 0, -mondayIndex(day.Weekday()))
		return DateOf(weekStart.AddDate(0, 0, 7+mondayIndex(intent.Weekday)))
	default:
		delta := (mondayIndex(intent.Weekday) - mondayIndex(day.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return DateOf(day.AddDate(0, 0, delta))
	}
}

// mondayIndex maps Monday..Sunday to 0..6.
func mondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}
