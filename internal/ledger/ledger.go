// Package ledger records which source messages have already been processed.
//
// The ledger is one JSON object mapping message id to the run that handled
// it. It is read and written as a whole document; a message present in the
// ledger is never processed again.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/triage/internal/statefile"
)

// Entry is the ledger record for one processed message.
type Entry struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id"`
	Decision  string `json:"decision"`
}

// ErrEmptyMessageID is returned when committing a message without an id.
var ErrEmptyMessageID = errors.New("ledger: empty message id")

// Ledger is the in-memory view of the ledger file.
type Ledger struct {
	path    string
	entries map[string]Entry
}

// Open loads the ledger at path. A missing file is an empty ledger.
func Open(path string) (*Ledger, error) {
	entries := map[string]Entry{}
	if _, err := statefile.Load(path, &entries); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if entries == nil {
		entries = map[string]Entry{}
	}
	return &Ledger{path: path, entries: entries}, nil
}

// Path returns the backing file.
func (l *Ledger) Path() string { return l.path }

// Lookup returns the entry for messageID.
func (l *Ledger) Lookup(messageID string) (Entry, bool) {
	e, ok := l.entries[messageID]
	return e, ok
}

// Commit records messageID and persists the whole ledger. Recommitting a
// message overwrites its entry.
func (l *Ledger) Commit(messageID string, e Entry) error {
	if messageID == "" {
		return ErrEmptyMessageID
	}
	l.entries[messageID] = e
	if err := statefile.Save(l.path, l.entries); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	return nil
}

// Len returns the number of processed messages.
func (l *Ledger) Len() int { return len(l.entries) }

// MessageIDs returns every recorded message id, sorted.
func (l *Ledger) MessageIDs() []string {
	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
