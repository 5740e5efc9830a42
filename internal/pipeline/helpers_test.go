package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/apply"
	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/message"
	"github.com/roach88/triage/internal/testutil"
)

func TestParseSaveMode(t *testing.T) {
	m, err := ParseSaveMode("")
	require.NoError(t, err)
	assert.Equal(t, SaveSingle, m)

	m, err = ParseSaveMode("autonomous")
	require.NoError(t, err)
	assert.Equal(t, []string{PassParse, PassReplan, PassExecute}, m.Passes())

	_, err = ParseSaveMode("fast")
	assert.Error(t, err)
}

func TestSafeToken(t *testing.T) {
	assert.Equal(t, "msg-1_example.com", SafeToken("<msg-1@example.com>"))
	assert.Equal(t, "a_b", SafeToken("  ..a / b__.. "))
	assert.Equal(t, "", SafeToken("<>"))
	assert.Len(t, SafeToken(strings.Repeat("x", 300)), maxTokenLen)
}

func TestNewRunID(t *testing.T) {
	at := time.Date(2024, 5, 6, 9, 30, 5, 0, time.UTC)

	assert.Equal(t, "20240506-093005-abc.def", NewRunID(at, "<abc.def>", nil))

	gen := testutil.NewFixedGenerator("0190f1e2-aaaa-7bbb-8ccc-ddddeeeeffff")
	assert.Equal(t, "20240506-093005-0190f1e2", NewRunID(at, "", gen))
}

func TestClaimRunID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")

	id, err := ClaimRunID(dir, "20240506-093005-abc")
	require.NoError(t, err)
	assert.Equal(t, "20240506-093005-abc", id)
	assert.DirExists(t, filepath.Join(dir, id))

	id, err = ClaimRunID(dir, "20240506-093005-abc")
	require.NoError(t, err)
	assert.Equal(t, "20240506-093005-abc-2", id)

	id, err = ClaimRunID(dir, "20240506-093005-abc")
	require.NoError(t, err)
	assert.Equal(t, "20240506-093005-abc-3", id)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	_, err = ClaimRunID(blocker, "x")
	assert.Error(t, err)
}

func TestUUIDv7GeneratorIsTimeOrdered(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14])
}

func TestBlocklist(t *testing.T) {
	b, err := NewBlocklist([]string{" Newsletters "}, []string{"*@promo.example.com", "noreply@*"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		msg     message.Message
		blocked bool
	}{
		{"account", message.Message{Account: "newsletters", Sender: "a@b.com"}, true},
		{"sender glob", message.Message{Sender: "Deals <Deals@Promo.Example.com>"}, true},
		{"bare address", message.Message{Sender: "noreply@bank.example"}, true},
		{"other sender", message.Message{Sender: "Alice <alice@example.com>"}, false},
		{"no sender", message.Message{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, blocked := b.Match(tt.msg)
			assert.Equal(t, tt.blocked, blocked)
		})
	}

	var none *Blocklist
	_, blocked := none.Match(message.Message{Sender: "x@promo.example.com"})
	assert.False(t, blocked)
}

func TestBlocklistRejectsBadPattern(t *testing.T) {
	_, err := NewBlocklist(nil, []string{"[unterminated"})
	assert.Error(t, err)
}

func TestDecisionSummary(t *testing.T) {
	actions := []action.Action{
		{Decision: action.DecisionNote},
		{Decision: action.DecisionCalendar},
		{Decision: action.DecisionNote},
	}
	assert.Equal(t, "calendar+note", DecisionSummary(actions))
	assert.Equal(t, "skip", DecisionSummary(nil))
}

func TestStageErrorMessage(t *testing.T) {
	err := &StageError{Stage: StageParse, RunID: "r1", Err: assert.AnError}
	assert.Contains(t, err.Error(), "pipeline parse failed (run=r1)")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, Stage(""), StageOf(assert.AnError))
}

func TestRenderLogNote(t *testing.T) {
	res := &Result{
		RunID:     "20240506-100000-msg-1_example.com",
		MessageID: "<msg-1@example.com>",
		Subject:   "Coffee chat",
		Sender:    "Alice <alice@example.com>",
		Status:    StatusApplied,
		Decision:  "calendar+reminder+note",
		SaveMode:  SaveReplan,
		Flag:      collab.FlagFollowUp,
		Items: []apply.ItemResult{
			{
				Index: 1, Decision: action.DecisionCalendar, Title: "Coffee with Alice",
				Status: apply.StatusCreated,
				Result: apply.Outcome{Target: "calendar", Destination: "Personal", TargetID: "item-1"},
			},
			{
				Index: 2, Decision: action.DecisionReminder, Title: "Pay rent",
				Status: apply.StatusFailed,
				Result: apply.Outcome{Target: "reminder", Error: "create_reminder: rejected: Pay rent"},
			},
			{
				Index: 3, Decision: action.DecisionNote, Title: "Menu",
				Status: apply.StatusDuplicateSaved,
				Result: apply.Outcome{Target: "none", FirstRunID: "20240501-080000-older"},
			},
			{
				Index: 4, Decision: action.DecisionCalendar, Title: "Coffee with Alice",
				Status: apply.StatusDuplicateInOutput,
				Result: apply.Outcome{Target: "none", Error: "same fingerprint as item 1"},
			},
		},
	}
	res.Counts = apply.Tally(res.Items)

	title, body := RenderLogNote(res)
	assert.Equal(t, "Triage log 20240506-100000-msg-1_example.com", title)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "log_note", []byte(body))
}
