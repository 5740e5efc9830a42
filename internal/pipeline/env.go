package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/roach88/triage/internal/fingerprint"
)

// SaveMode selects how many reasoning passes run before apply.
type SaveMode string

const (
	SaveSingle     SaveMode = "single"
	SaveReplan     SaveMode = "replan"
	SaveAutonomous SaveMode = "autonomous"
)

// Pass names.
const (
	PassParse   = "parse"
	PassReplan  = "replan"
	PassExecute = "execute"
)

// ParseSaveMode validates a save mode name. Empty means single.
func ParseSaveMode(s string) (SaveMode, error) {
	switch m := SaveMode(s); m {
	case "":
		return SaveSingle, nil
	case SaveSingle, SaveReplan, SaveAutonomous:
		return m, nil
	default:
		return "", fmt.Errorf("unknown save mode %q (want single, replan or autonomous)", s)
	}
}

// Passes returns the reasoning passes for the mode, in order.
func (m SaveMode) Passes() []string {
	switch m {
	case SaveReplan:
		return []string{PassParse, PassReplan}
	case SaveAutonomous:
		return []string{PassParse, PassReplan, PassExecute}
	default:
		return []string{PassParse}
	}
}

// Env is the resolved per-process configuration every run shares. It is
// built once by the caller and never mutated by the pipeline.
type Env struct {
	StateDir string
	Location *time.Location
	SaveMode SaveMode

	// NotesRoot is the required first segment of every note folder.
	NotesRoot string

	// Resolver supplies default calendar, list and note folder.
	Resolver fingerprint.Resolver

	LowPriorityFolder string

	// LogFolder receives the processing-log note of each run.
	LogFolder string

	// Blocked may be nil.
	Blocked *Blocklist

	// DigestLimit caps the saved-fingerprint digest shown in prompts.
	DigestLimit int

	// Lock enables the cross-process lock around check-apply-commit.
	Lock bool
}

// RunsDir holds one artifact directory per run.
func (e Env) RunsDir() string { return filepath.Join(e.StateDir, "runs") }

// IndexPath is the fingerprint index document.
func (e Env) IndexPath() string { return filepath.Join(e.StateDir, "fingerprints.json") }

// LedgerPath is the processed-message ledger document.
func (e Env) LedgerPath() string { return filepath.Join(e.StateDir, "processed_messages.json") }

// LockPath is the advisory lock file serializing check-apply-commit.
func (e Env) LockPath() string { return filepath.Join(e.StateDir, "triage.lock") }

// ArchivePath is the SQLite run archive.
func (e Env) ArchivePath() string { return filepath.Join(e.StateDir, "archive.db") }

// RunDir is the artifact directory of run id.
func (e Env) RunDir(id string) string { return filepath.Join(e.RunsDir(), id) }

func (e Env) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

func (e Env) digestLimit() int {
	if e.DigestLimit <= 0 {
		return 40
	}
	return e.DigestLimit
}
