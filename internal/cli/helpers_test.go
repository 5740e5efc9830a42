package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/triage/internal/collab/memory"
	"github.com/roach88/triage/internal/config"
	"github.com/roach88/triage/internal/reasoning"
	"github.com/roach88/triage/internal/testutil"
)

// 2024-05-06T10:00:00+08:00, a Monday.
var testStart = time.Date(2024, 5, 6, 2, 0, 0, 0, time.UTC)

const fridayMessageJSON = `{
  "messageID": "<msg-1@example.com>",
  "subject": "Coffee chat",
  "sender": "Alice <alice@example.com>",
  "receivedAt": "2024-05-06T09:00:00+08:00",
  "mailbox": "INBOX",
  "account": "work",
  "body": "Hi! let's meet this Friday 3pm at the usual place."
}`

const coffeeOutput = `{"actions": [{
  "decision": "calendar", "importance": "high", "title": "Coffee with Alice",
  "start": "2024-05-09T15:00:00+08:00", "end": "2024-05-09T16:00:00+08:00",
  "due": "", "notes": "Usual place.", "reminderMinutes": 15,
  "calendar": "default", "list": "", "folder": "", "reason": "personal meeting"
}]}`

const fridayRunID = "20240506-100000-msg-1_example.com"

type testEnv struct {
	opts     *RootOptions
	stateDir string
	mail     *memory.Mail
	creator  *memory.Creator
}

func newTestEnv(t *testing.T, responses ...reasoning.Response) *testEnv {
	t.Helper()
	dir := t.TempDir()
	mail := memory.NewMail()
	creator := memory.NewCreator()
	creator.NewID = testutil.NewSequenceGenerator("item").Generate
	clock := testutil.NewClock(testStart, time.Second)

	return &testEnv{
		opts: &RootOptions{
			Getenv: func(k string) string {
				if k == config.EnvStateDir {
					return dir
				}
				return ""
			},
			Engine:  reasoning.NewScript(responses...),
			Mail:    mail,
			Creator: creator,
			Clock:   clock.Now,
		},
		stateDir: dir,
		mail:     mail,
		creator:  creator,
	}
}

// execute runs the root command with args in the Hong Kong timezone and
// returns stdout.
func (e *testEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(e.opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--timezone", "Asia/Hong_Kong"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
