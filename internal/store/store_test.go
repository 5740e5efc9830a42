package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore opens a fresh archive in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id, messageID string, at time.Time, items ...Item) Run {
	return Run{
		RunID:      id,
		MessageID:  messageID,
		Subject:    "Lunch",
		Sender:     "ann@example.com",
		StartedAt:  at,
		FinishedAt: at.Add(2 * time.Second),
		SaveMode:   "single",
		Status:     "applied",
		Decision:   "calendar",
		Result:     []byte(`{"run_id":"` + id + `"}`),
		Items:      items,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.FileExists(t, path)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open #%d", i+1)
		require.NoError(t, s.Close())
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "archive.db"))
	assert.Error(t, err)
}

func TestClose_MultipleCalls(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_ = s.Close()
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)
	tests := []struct{ name, want string }{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		assert.NoError(t, s.verifyPragma(tt.name, tt.want))
	}
}

func TestWriteRun_ReadBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 6, 1, 0, 0, 0, time.UTC)

	run := testRun("20240506-090000-msg1", "<msg1>", at,
		Item{Index: 1, Decision: "calendar", Title: "Lunch", Fingerprint: "calendar:abc", Status: "created", ActionPath: "actions/01.json", TargetID: "evt-1", CreatedAt: at},
		Item{Index: 2, Decision: "skip", Title: "Ad", Fingerprint: "skip:def", Status: "skipped", CreatedAt: at},
	)
	require.NoError(t, s.WriteRun(ctx, run))

	got, err := s.ReadRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "<msg1>", got.MessageID)
	assert.True(t, got.StartedAt.Equal(at))
	assert.JSONEq(t, string(run.Result), string(got.Result))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "evt-1", got.Items[0].TargetID)
	assert.Equal(t, "skipped", got.Items[1].Status)
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 6, 1, 0, 0, 0, time.UTC)

	run := testRun("r1", "<m>", at, Item{Index: 1, Decision: "note", Title: "x", Fingerprint: "note:1", Status: "created", CreatedAt: at})
	require.NoError(t, s.WriteRun(ctx, run))

	run.Status = "changed"
	require.NoError(t, s.WriteRun(ctx, run))

	got, err := s.ReadRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "applied", got.Status, "first write wins")
	assert.Len(t, got.Items, 1)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 6, 1, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.WriteRun(ctx, testRun(id, "<"+id+">", base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)

	forB, err := s.RunsForMessage(ctx, "<b>")
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, "b", forB[0].RunID)
}

func TestCreatedItems_ReplayOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	t1 := time.Date(2024, 5, 6, 1, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	require.NoError(t, s.WriteRun(ctx, testRun("late", "<late>", t2,
		Item{Index: 1, Decision: "reminder", Title: "Pay", Fingerprint: "reminder:1", Status: "created", CreatedAt: t2},
	)))
	require.NoError(t, s.WriteRun(ctx, testRun("early", "<early>", t1,
		Item{Index: 1, Decision: "note", Title: "Memo", Fingerprint: "note:1", Status: "created", CreatedAt: t1},
		Item{Index: 2, Decision: "calendar", Title: "Dup", Fingerprint: "calendar:1", Status: "skipped_duplicate_saved", CreatedAt: t1},
		Item{Index: 3, Decision: "calendar", Title: "Broken", Fingerprint: "calendar:2", Status: "failed", CreatedAt: t1},
	)))

	items, err := s.CreatedItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "early", items[0].RunID)
	assert.Equal(t, "<early>", items[0].MessageID)
	assert.Equal(t, "late", items[1].RunID)

	latest, ok, err := s.LatestCreatedAt(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, latest.Equal(t2))
}

func TestLatestCreatedAt_Empty(t *testing.T) {
	s := createTestStore(t)
	_, ok, err := s.LatestCreatedAt(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
