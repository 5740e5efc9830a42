package fingerprint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/store"
)

func testKeyer() Keyer {
	return Keyer{Resolver: Resolver{
		DefaultCalendar: "Personal",
		DefaultList:     "Reminders",
		DefaultFolder:   "Triage/Inbox",
	}}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "team sync", Fold("  Team\t\n  SYNC "))
	assert.Equal(t, Fold("Café"), Fold("CAFÉ"))
	assert.Equal(t, "strasse", Fold("STRASSE"))
}

func TestResolverCalendar(t *testing.T) {
	r := testKeyer().Resolver
	tests := []struct{ in, want string }{
		{"", "Personal"},
		{"Work", "Work"},
		{"default", "Personal"},
		{" Primary ", "Personal"},
		{"CALENDAR", "Personal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Calendar(tt.in), tt.in)
	}

	custom := Resolver{DefaultCalendar: "Home", Placeholders: []string{"inbox"}}
	assert.Equal(t, "Home", custom.Calendar("Inbox"))
	assert.Equal(t, "default", custom.Calendar("default"))
}

func TestKeyIgnoresSurfaceWording(t *testing.T) {
	k := testKeyer()
	a := action.Action{Decision: action.DecisionCalendar, Title: "Team Sync", Start: "2024-05-10T15:00:00+08:00", End: "2024-05-10T16:00:00+08:00"}
	b := a
	b.Title = "  team   SYNC"
	b.Calendar = "default"
	b.Notes = "different notes do not matter"
	b.Reason = "neither does the reason"

	ka, err := k.Key(a)
	require.NoError(t, err)
	kb, err := k.Key(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
	assert.True(t, strings.HasPrefix(ka, "calendar:"))
}

func TestKeyFieldsPerDecision(t *testing.T) {
	k := testKeyer()
	tests := []struct {
		name   string
		a, b   action.Action
		differ bool
	}{
		{
			"calendar start matters",
			action.Action{Decision: action.DecisionCalendar, Title: "x", Start: "2024-05-10T15:00:00+08:00"},
			action.Action{Decision: action.DecisionCalendar, Title: "x", Start: "2024-05-11T15:00:00+08:00"},
			true,
		},
		{
			"calendar explicit calendar matters",
			action.Action{Decision: action.DecisionCalendar, Title: "x", Calendar: "Work"},
			action.Action{Decision: action.DecisionCalendar, Title: "x", Calendar: "Home"},
			true,
		},
		{
			"reminder due matters",
			action.Action{Decision: action.DecisionReminder, Title: "x", Due: "2024-05-10"},
			action.Action{Decision: action.DecisionReminder, Title: "x", Due: "2024-05-11"},
			true,
		},
		{
			"reminder start ignored",
			action.Action{Decision: action.DecisionReminder, Title: "x", Start: "a"},
			action.Action{Decision: action.DecisionReminder, Title: "x", Start: "b"},
			false,
		},
		{
			"note notes beyond 120 chars ignored",
			action.Action{Decision: action.DecisionNote, Title: "x", Notes: strings.Repeat("a", 120) + "tail one"},
			action.Action{Decision: action.DecisionNote, Title: "x", Notes: strings.Repeat("a", 120) + "tail two"},
			false,
		},
		{
			"note folder matters",
			action.Action{Decision: action.DecisionNote, Title: "x", Folder: "Triage/A"},
			action.Action{Decision: action.DecisionNote, Title: "x", Folder: "Triage/B"},
			true,
		},
		{
			"skip reason matters",
			action.Action{Decision: action.DecisionSkip, Title: "x", Reason: "spam"},
			action.Action{Decision: action.DecisionSkip, Title: "x", Reason: "newsletter"},
			true,
		},
		{
			"decision matters",
			action.Action{Decision: action.DecisionNote, Title: "x"},
			action.Action{Decision: action.DecisionSkip, Title: "x"},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, err := k.Key(tt.a)
			require.NoError(t, err)
			kb, err := k.Key(tt.b)
			require.NoError(t, err)
			if tt.differ {
				assert.NotEqual(t, ka, kb)
			} else {
				assert.Equal(t, ka, kb)
			}
		})
	}
}

func TestKeyUnknownDecision(t *testing.T) {
	_, err := testKeyer().Key(action.Action{Decision: "fax"})
	assert.Error(t, err)
}

func TestIndexUpsertPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fingerprints.json")

	idx, err := OpenIndex(path)
	require.NoError(t, err)
	assert.False(t, idx.Exists())

	rec := Record{Timestamp: "2024-05-06T09:00:00+08:00", RunID: "r1", MessageID: "<m1>", Decision: "note", Title: "Memo", Folder: "Triage/Inbox"}
	require.NoError(t, idx.Upsert("note:abc", rec))

	again, err := OpenIndex(path)
	require.NoError(t, err)
	assert.True(t, again.Exists())
	got, ok := again.Lookup("note:abc")
	require.True(t, ok)
	assert.Equal(t, rec, got)

	rec.RunID = "r2"
	require.NoError(t, again.Upsert("note:abc", rec))
	got, _ = again.Lookup("note:abc")
	assert.Equal(t, "r2", got.RunID, "last write wins")
	assert.Equal(t, 1, again.Len())
}

func TestIndexDigest(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "fingerprints.json"))
	require.NoError(t, err)
	assert.Equal(t, "(none)", idx.Digest(10))

	idx.Set("a", Record{Timestamp: "2024-05-01T09:00:00Z", Decision: "reminder", Title: "Pay rent", Due: "2024-05-03", List: "Bills"})
	idx.Set("b", Record{Timestamp: "2024-05-02T09:00:00Z", Decision: "calendar", Title: "Dentist", Start: "s", End: "e", Calendar: "Personal"})
	idx.Set("c", Record{Timestamp: "2024-04-30T09:00:00Z", Decision: "note", Title: "Old", Folder: "Triage/Inbox"})

	want := "- [calendar] Dentist | s -> e | calendar=Personal | saved=2024-05-02T09:00:00Z\n" +
		"- [reminder] Pay rent | due=2024-05-03 | list=Bills | saved=2024-05-01T09:00:00Z\n"
	assert.Equal(t, want, idx.Digest(2))
}

type fakeArchive struct {
	items  []store.CreatedItem
	latest time.Time
}

func (f fakeArchive) CreatedItems(context.Context) ([]store.CreatedItem, error) {
	return f.items, nil
}

func (f fakeArchive) LatestCreatedAt(context.Context) (time.Time, bool, error) {
	return f.latest, !f.latest.IsZero(), nil
}

func writeActionFile(t *testing.T, dir, name string, a action.Action) string {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, filepath.Dir(name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	return name
}

func TestBootstrapReplaysCreatedItems(t *testing.T) {
	base := t.TempDir()
	k := testKeyer()
	at := time.Date(2024, 5, 6, 1, 0, 0, 0, time.UTC)

	cal := action.Action{Decision: action.DecisionCalendar, Importance: action.ImportanceHigh, Title: "Dentist", Start: "2024-05-10T15:00:00+08:00", Calendar: "primary"}
	skip := action.Action{Decision: action.DecisionSkip, Importance: action.ImportanceLow, Title: "Ad"}

	arch := fakeArchive{latest: at, items: []store.CreatedItem{
		{RunID: "r1", MessageID: "<m1>", Item: store.Item{Index: 1, ActionPath: writeActionFile(t, base, "runs/r1/actions/01.json", cal), CreatedAt: at}},
		{RunID: "r1", MessageID: "<m1>", Item: store.Item{Index: 2, ActionPath: writeActionFile(t, base, "runs/r1/actions/02.json", skip), CreatedAt: at}},
		{RunID: "r2", MessageID: "<m2>", Item: store.Item{Index: 1, ActionPath: "runs/r2/actions/01.json", CreatedAt: at}},
	}}

	idx, err := OpenIndex(filepath.Join(base, "fingerprints.json"))
	require.NoError(t, err)

	stale, err := Stale(context.Background(), arch, idx)
	require.NoError(t, err)
	assert.True(t, stale, "missing index is stale")

	res, err := Bootstrap(context.Background(), arch, idx, k, base, nil)
	require.NoError(t, err)
	assert.Equal(t, BootstrapResult{Replayed: 1, Unreadable: 1, Skips: 1}, res)

	key, err := k.Key(cal)
	require.NoError(t, err)
	rec, ok := idx.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, "r1", rec.RunID)
	assert.Equal(t, "Personal", rec.Calendar)
	assert.Equal(t, "2024-05-06T01:00:00Z", rec.Timestamp)

	stale, err = Stale(context.Background(), arch, idx)
	require.NoError(t, err)
	assert.False(t, stale)

	arch.latest = at.Add(time.Minute)
	stale, err = Stale(context.Background(), arch, idx)
	require.NoError(t, err)
	assert.True(t, stale, "archive newer than index")
}

func TestIndexDigestFiltersDecisions(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "fingerprints.json"))
	require.NoError(t, err)
	idx.Set("a", Record{Timestamp: "2024-05-01T09:00:00Z", Decision: "reminder", Title: "Pay rent"})
	idx.Set("b", Record{Timestamp: "2024-05-02T09:00:00Z", Decision: "note", Title: "Finance Ledger 2024-05-02", Folder: "Triage/Finance/2024-05-02"})

	assert.Equal(t, "- [note] Finance Ledger 2024-05-02 | folder=Triage/Finance/2024-05-02 | saved=2024-05-02T09:00:00Z\n", idx.Digest(10, "note"))
	assert.Equal(t, "(none)", idx.Digest(10, "calendar"))
}
