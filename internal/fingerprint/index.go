package fingerprint

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/roach88/triage/internal/statefile"
)

// Record is what the index remembers about a created action.
type Record struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id"`
	MessageID string `json:"message_id"`
	Decision  string `json:"decision"`
	Title     string `json:"title"`
	Calendar  string `json:"calendar,omitempty"`
	List      string `json:"list,omitempty"`
	Folder    string `json:"folder,omitempty"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	Due       string `json:"due,omitempty"`
}

// Index is the persisted fingerprint index.
type Index struct {
	path    string
	records map[string]Record
	exists  bool
}

// OpenIndex loads the index at path. A missing file is an empty index.
func OpenIndex(path string) (*Index, error) {
	records := map[string]Record{}
	exists, err := statefile.Load(path, &records)
	if err != nil {
		return nil, fmt.Errorf("open fingerprint index: %w", err)
	}
	if records == nil {
		records = map[string]Record{}
	}
	return &Index{path: path, records: records, exists: exists}, nil
}

// Exists reports whether the index file was present when opened.
func (x *Index) Exists() bool { return x.exists }

// Len returns the number of fingerprints.
func (x *Index) Len() int { return len(x.records) }

// Lookup returns the record for key, if any.
func (x *Index) Lookup(key string) (Record, bool) {
	r, ok := x.records[key]
	return r, ok
}

// Upsert stores rec under key and persists the whole index before
// returning. Last write wins.
func (x *Index) Upsert(key string, rec Record) error {
	x.records[key] = rec
	return x.Save()
}

// Set stores rec under key without persisting.
func (x *Index) Set(key string, rec Record) {
	x.records[key] = rec
}

// Save writes the index to disk.
func (x *Index) Save() error {
	if err := statefile.Save(x.path, x.records); err != nil {
		return fmt.Errorf("save fingerprint index: %w", err)
	}
	x.exists = true
	return nil
}

// Newest returns the latest record timestamp. The boolean is false when no
// record carries a parsable timestamp.
func (x *Index) Newest() (time.Time, bool) {
	var newest time.Time
	found := false
	for _, r := range x.records {
		t, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil {
			continue
		}
		if !found || t.After(newest) {
			newest, found = t, true
		}
	}
	return newest, found
}

// Digest renders up to limit records, newest first, one per line, for
// use as duplicate-avoidance context in prompts. When decisions are given,
// only records with one of those decisions are included.
func (x *Index) Digest(limit int, decisions ...string) string {
	type entry struct {
		key string
		rec Record
	}
	entries := make([]entry, 0, len(x.records))
	for k, r := range x.records {
		if len(decisions) > 0 && !slices.Contains(decisions, r.Decision) {
			continue
		}
		entries = append(entries, entry{k, r})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rec.Timestamp != entries[j].rec.Timestamp {
			return entries[i].rec.Timestamp > entries[j].rec.Timestamp
		}
		return entries[i].key < entries[j].key
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return "(none)"
	}

	var b strings.Builder
	for _, e := range entries {
		r := e.rec
		fmt.Fprintf(&b, "- [%s] %s", r.Decision, r.Title)
		switch r.Decision {
		case "calendar":
			fmt.Fprintf(&b, " | %s -> %s | calendar=%s", r.Start, r.End, r.Calendar)
		case "reminder":
			fmt.Fprintf(&b, " | due=%s | list=%s", r.Due, r.List)
		case "note":
			fmt.Fprintf(&b, " | folder=%s", r.Folder)
		}
		fmt.Fprintf(&b, " | saved=%s\n", r.Timestamp)
	}
	return b.String()
}
