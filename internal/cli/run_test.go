package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triage/internal/ledger"
	"github.com/roach88/triage/internal/message"
	"github.com/roach88/triage/internal/reasoning"
)

func TestRunMessageJSON(t *testing.T) {
	e := newTestEnv(t, reasoning.Response{Output: coffeeOutput})
	path := writeFile(t, t.TempDir(), "msg.json", fridayMessageJSON)

	out, err := e.execute(t, "run", "--message-json", path)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, fridayRunID+" applied (calendar)\n"), out)
	assert.Contains(t, out, "  Counts: created=1 skipped=0 failed=0\n")
	assert.Contains(t, out, "  1. [calendar] Coffee with Alice -> created in Personal\n")

	created := e.creator.Created()
	require.Len(t, created, 2)
	assert.Equal(t, "2024-05-10T15:00:00+08:00", created[0].Request.Start)
	assert.Equal(t, "Triage/Triage Log", created[1].Request.Destination)

	led, err := ledger.Open(filepath.Join(e.stateDir, "processed_messages.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, led.Len())
	assert.FileExists(t, filepath.Join(e.stateDir, "runs", fridayRunID, "result.json"))

	out, err = e.execute(t, "run", "--message-json", path)
	require.NoError(t, err)
	assert.Contains(t, out, " skipped_duplicate (skip)\n")
	assert.Contains(t, out, "  Skipped: message_id already processed (first run "+fridayRunID+")\n")
	assert.Len(t, e.creator.Created(), 2)
}

func TestRunMessageJSONArrayFromStdin(t *testing.T) {
	e := newTestEnv(t, reasoning.Response{Output: coffeeOutput})
	cmd := newRootCommand(e.opts)
	out := &strings.Builder{}
	cmd.SetOut(out)
	cmd.SetErr(&strings.Builder{})
	cmd.SetIn(strings.NewReader("[" + fridayMessageJSON + "]"))
	cmd.SetArgs([]string{"--timezone", "Asia/Hong_Kong", "--format", "json", "run", "--message-json", "-"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.String()), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, fridayRunID, resp.Data["run_id"])
	assert.Equal(t, "applied", resp.Data["status"])
	assert.Equal(t, "follow-up", resp.Data["flag"])
}

func TestRunLatest(t *testing.T) {
	e := newTestEnv(t, reasoning.Response{Output: coffeeOutput})
	m, err := message.Decode([]byte(fridayMessageJSON))
	require.NoError(t, err)
	e.mail.Add(m)

	out, err := e.execute(t, "run", "--latest")
	require.NoError(t, err)
	assert.Contains(t, out, fridayRunID+" applied")

	flag, ok := e.mail.Flag("<msg-1@example.com>")
	require.True(t, ok)
	assert.Equal(t, "follow-up", string(flag))

	out, err = e.execute(t, "run", "--latest")
	require.NoError(t, err)
	assert.Equal(t, "No new message.\n", out)
}

func TestRunMessageID(t *testing.T) {
	e := newTestEnv(t, reasoning.Response{Output: coffeeOutput})
	m, err := message.Decode([]byte(fridayMessageJSON))
	require.NoError(t, err)
	e.mail.Add(m)

	out, err := e.execute(t, "run", "--message-id", "<msg-1@example.com>", "--account", "work")
	require.NoError(t, err)
	assert.Contains(t, out, fridayRunID+" applied")
}

func TestRunPipelineFailure(t *testing.T) {
	e := newTestEnv(t, reasoning.Response{Err: "engine exploded"})
	path := writeFile(t, t.TempDir(), "msg.json", fridayMessageJSON)

	out, err := e.execute(t, "run", "--message-json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "parse stage failed")
	assert.Contains(t, out, "Error [E_PIPELINE]")

	_, statErr := os.Stat(filepath.Join(e.stateDir, "processed_messages.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunFlagValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no source", []string{"run"}, "exactly one of"},
		{"two sources", []string{"run", "--latest", "--message-id", "x"}, "exactly one of"},
		{"since without latest", []string{"run", "--message-id", "x", "--since", "2024-05-06T00:00:00Z"}, "--since requires --latest"},
		{"account without id", []string{"run", "--latest", "--account", "work"}, "require --message-id"},
		{"bad since", []string{"run", "--latest", "--since", "yesterday"}, "invalid --since"},
		{"missing file", []string{"run", "--message-json", "/nonexistent/msg.json"}, "failed to read message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			_, err := e.execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunRejectsEmptyMessageFile(t *testing.T) {
	e := newTestEnv(t)
	path := writeFile(t, t.TempDir(), "msg.json", "[]")

	_, err := e.execute(t, "run", "--message-json", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, message.ErrEmptyPayload)
}
