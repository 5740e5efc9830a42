package fingerprint

import "strings"

// DefaultPlaceholders are calendar names the reasoning engine emits when it
// means "no preference".
var DefaultPlaceholders = []string{"default", "calendar", "primary"}

// Resolver resolves destination hints to concrete destinations.
type Resolver struct {
	DefaultCalendar string
	DefaultList     string
	DefaultFolder   string

	// Placeholders are treated as unset calendar names, case-insensitively.
	Placeholders []string
}

// Calendar returns the calendar an event is created in. An explicit name
// wins unless it is a placeholder.
func (r Resolver) Calendar(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || r.isPlaceholder(name) {
		return r.DefaultCalendar
	}
	return name
}

// List returns the reminder list, defaulting when empty.
func (r Resolver) List(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return r.DefaultList
}

// Folder returns the note folder, defaulting when empty.
func (r Resolver) Folder(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return r.DefaultFolder
}

func (r Resolver) isPlaceholder(name string) bool {
	placeholders := r.Placeholders
	if placeholders == nil {
		placeholders = DefaultPlaceholders
	}
	for _, p := range placeholders {
		if strings.EqualFold(name, strings.TrimSpace(p)) {
			return true
		}
	}
	return false
}
