package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed width so stored text sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a run id is not in the archive.
var ErrNotFound = errors.New("run not found")

// Run is one archived pipeline execution.
type Run struct {
	RunID      string
	MessageID  string
	Subject    string
	Sender     string
	StartedAt  time.Time
	FinishedAt time.Time
	SaveMode   string
	Status     string
	Decision   string

	// Result is the full run result document as JSON.
	Result []byte

	Items []Item
}

// Item is one archived per-action outcome.
type Item struct {
	Index       int
	Decision    string
	Title       string
	Fingerprint string
	Status      string
	ActionPath  string
	TargetID    string
	Error       string
	CreatedAt   time.Time
}

// CreatedItem is an item with status "created" and the run it belongs to.
type CreatedItem struct {
	Item
	RunID     string
	MessageID string
}

// StatusCreated is the item status replayed by CreatedItems.
const StatusCreated = "created"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// WriteRun archives run and its items in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting a run is a no-op.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, message_id, subject, sender, started_at, finished_at, save_mode, status, decision, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		run.RunID,
		run.MessageID,
		run.Subject,
		run.Sender,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.SaveMode,
		run.Status,
		run.Decision,
		string(run.Result),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	for _, item := range run.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO items
			(run_id, idx, decision, title, fingerprint, status, action_path, target_id, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, idx) DO NOTHING
		`,
			run.RunID,
			item.Index,
			item.Decision,
			item.Title,
			item.Fingerprint,
			item.Status,
			item.ActionPath,
			item.TargetID,
			item.Error,
			formatTime(item.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("write run item %d: %w", item.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}

// ReadRun returns one run with its items ordered by index.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, message_id, subject, sender, started_at, finished_at, save_mode, status, decision, result
		FROM runs
		WHERE run_id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", runID, err)
	}

	items, err := s.readItems(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	run.Items = items
	return run, nil
}

// ListRuns returns the most recent runs, newest first, without items.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, message_id, subject, sender, started_at, finished_at, save_mode, status, decision, result
		FROM runs
		ORDER BY started_at DESC, run_id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// RunsForMessage returns every run archived for messageID, oldest first.
func (s *Store) RunsForMessage(ctx context.Context, messageID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, message_id, subject, sender, started_at, finished_at, save_mode, status, decision, result
		FROM runs
		WHERE message_id = ?
		ORDER BY started_at ASC, run_id COLLATE BINARY ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query runs for message: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs for message: %w", err)
	}
	return runs, nil
}

// CreatedItems returns every created item in creation order.
func (s *Store) CreatedItems(ctx context.Context) ([]CreatedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.run_id, r.message_id, i.idx, i.decision, i.title, i.fingerprint,
		       i.status, i.action_path, i.target_id, i.error, i.created_at
		FROM items i
		JOIN runs r ON r.run_id = i.run_id
		WHERE i.status = ?
		ORDER BY i.created_at ASC, i.run_id COLLATE BINARY ASC, i.idx ASC
	`, StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("query created items: %w", err)
	}
	defer rows.Close()

	items := []CreatedItem{}
	for rows.Next() {
		var ci CreatedItem
		var createdAt string
		if err := rows.Scan(
			&ci.RunID, &ci.MessageID, &ci.Index, &ci.Decision, &ci.Title, &ci.Fingerprint,
			&ci.Status, &ci.ActionPath, &ci.TargetID, &ci.Error, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan created item: %w", err)
		}
		if ci.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		items = append(items, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate created items: %w", err)
	}
	return items, nil
}

// LatestCreatedAt returns the creation time of the newest created item.
// The boolean is false when the archive holds no created items.
func (s *Store) LatestCreatedAt(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM items WHERE status = ?
	`, StatusCreated).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query latest created: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	t, err := parseTime(latest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse latest created: %w", err)
	}
	return t, true, nil
}

func (s *Store) readItems(ctx context.Context, runID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, decision, title, fingerprint, status, action_path, target_id, error, created_at
		FROM items
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		var createdAt string
		if err := rows.Scan(
			&it.Index, &it.Decision, &it.Title, &it.Fingerprint, &it.Status,
			&it.ActionPath, &it.TargetID, &it.Error, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if it.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse item created_at: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var started, finished, result string
	if err := row.Scan(
		&run.RunID, &run.MessageID, &run.Subject, &run.Sender,
		&started, &finished, &run.SaveMode, &run.Status, &run.Decision, &result,
	); err != nil {
		return Run{}, err
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	run.Result = []byte(result)
	return run, nil
}
