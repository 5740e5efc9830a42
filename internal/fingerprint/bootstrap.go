package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/store"
)

// Archive is the replay source for Bootstrap.
type Archive interface {
	CreatedItems(ctx context.Context) ([]store.CreatedItem, error)
	LatestCreatedAt(ctx context.Context) (time.Time, bool, error)
}

// BootstrapResult counts what a replay did.
type BootstrapResult struct {
	Replayed   int
	Unreadable int
	Skips      int
}

// Stale reports whether the index should be rebuilt: it is missing, or
// the archive holds a created item newer than the newest index record.
func Stale(ctx context.Context, arch Archive, idx *Index) (bool, error) {
	if !idx.Exists() {
		return true, nil
	}
	latest, ok, err := arch.LatestCreatedAt(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	newest, ok := idx.Newest()
	if !ok {
		return true, nil
	}
	// Records carry second precision.
	return latest.Truncate(time.Second).After(newest), nil
}

// Bootstrap replays archived created items into idx and saves it once.
//
// Each item's stored action file is re-read and re-keyed. Items whose file
// is unreadable or whose decision is skip are left out. Relative action
// paths are resolved against baseDir. Replay runs in creation order, so a
// later create of the same fingerprint wins.
func Bootstrap(ctx context.Context, arch Archive, idx *Index, k Keyer, baseDir string, logger *slog.Logger) (BootstrapResult, error) {
	var res BootstrapResult

	items, err := arch.CreatedItems(ctx)
	if err != nil {
		return res, fmt.Errorf("bootstrap: %w", err)
	}

	for _, item := range items {
		path := item.ActionPath
		if path != "" && !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		a, err := readActionFile(path)
		if err != nil {
			res.Unreadable++
			if logger != nil {
				logger.Warn("bootstrap_unreadable", "run_id", item.RunID, "index", item.Index, "path", path, "error", err)
			}
			continue
		}
		if a.Decision == action.DecisionSkip {
			res.Skips++
			continue
		}
		key, err := k.Key(a)
		if err != nil {
			res.Unreadable++
			continue
		}
		idx.Set(key, k.Record(a, item.RunID, item.MessageID, item.CreatedAt))
		res.Replayed++
	}

	if err := idx.Save(); err != nil {
		return res, err
	}
	if logger != nil {
		logger.Info("fingerprint_bootstrap",
			"replayed", res.Replayed,
			"unreadable", res.Unreadable,
			"skips", res.Skips,
			"size", idx.Len(),
		)
	}
	return res, nil
}

func readActionFile(path string) (action.Action, error) {
	if path == "" {
		return action.Action{}, fmt.Errorf("no action file recorded")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return action.Action{}, err
	}
	var a action.Action
	if err := json.Unmarshal(data, &a); err != nil {
		return action.Action{}, err
	}
	if !a.Decision.Valid() {
		return action.Action{}, fmt.Errorf("invalid decision %q", a.Decision)
	}
	return a, nil
}
