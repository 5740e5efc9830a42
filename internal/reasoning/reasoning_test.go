package reasoning

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"strict", `{"a":1}`, `{"a":1}`},
		{"padded", "\n  {\"a\":1}\n", `{"a":1}`},
		{"fenced json", "Here you go:\n```json\n{\"a\": [1, 2]}\n```\nDone.", `{"a": [1, 2]}`},
		{"fenced bare", "```\n{\"a\":true}\n```", `{"a":true}`},
		{"outer braces", `Sure! {"actions": [{"x": "}"}]} hope that helps`, `{"actions": [{"x": "}"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractObject([]byte(tt.raw))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestExtractObjectFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind ErrorKind
	}{
		{"empty", "   ", KindEmpty},
		{"prose", "I could not decide.", KindInvalidJSON},
		{"broken", `{"a": `, KindInvalidJSON},
		{"array", `[1, 2]`, KindNotObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractObject([]byte(tt.raw))
			var re *Error
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.kind, re.Kind)
		})
	}
}

func TestScriptReplaysInOrder(t *testing.T) {
	s := NewScript(Response{Output: "one"}, Response{Err: "engine down"})
	ctx := context.Background()

	out, err := s.Complete(ctx, Request{Pass: "parse", Prompt: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "one", string(out))

	_, err = s.Complete(ctx, Request{Pass: "replan"})
	require.Error(t, err)
	assert.True(t, IsError(err))

	_, err = s.Complete(ctx, Request{Pass: "execute"})
	assert.ErrorContains(t, err, "script exhausted")

	reqs := s.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "p1", reqs[0].Prompt)
}

const fakeCodex = `#!/bin/sh
out=""
schema=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output-last-message) out="$2"; shift ;;
    --output-schema) schema="$2"; shift ;;
  esac
  shift
done
prompt=$(cat)
if [ "$prompt" = "fail" ]; then
  echo "boom" >&2
  exit 3
fi
test -s "$schema" || exit 4
printf '%s' "$prompt" > "$out"
`

func writeFakeCodex(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine needs a unix shell")
	}
	path := filepath.Join(t.TempDir(), "codex")
	require.NoError(t, os.WriteFile(path, []byte(fakeCodex), 0o755))
	return path
}

func TestCodexComplete(t *testing.T) {
	c := &Codex{Command: writeFakeCodex(t), Model: "m", Effort: "low"}
	dir := t.TempDir()

	out, err := c.Complete(context.Background(), Request{
		Pass:   "parse",
		Prompt: `{"actions":[]}`,
		Schema: map[string]any{"type": "object"},
		Dir:    dir,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"actions":[]}`, string(out))
	assert.FileExists(t, filepath.Join(dir, "parse.schema.json"))
	assert.FileExists(t, filepath.Join(dir, "parse.last.txt"))
}

func TestCodexExecFailure(t *testing.T) {
	c := &Codex{Command: writeFakeCodex(t)}

	_, err := c.Complete(context.Background(), Request{Pass: "parse", Prompt: "fail", Schema: map[string]any{}})
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindExec, re.Kind)
	assert.Equal(t, "boom", re.Detail)
}

func TestCodexEmptyOutput(t *testing.T) {
	c := &Codex{Command: writeFakeCodex(t)}

	_, err := c.Complete(context.Background(), Request{Pass: "parse", Prompt: "", Schema: map[string]any{}, Dir: t.TempDir()})
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindEmpty, re.Kind)
}

func TestCodexArgs(t *testing.T) {
	c := &Codex{Model: "gpt", Effort: "high", ExtraArgs: []string{"--skip-git-repo-check"}}
	assert.Equal(t, []string{
		"exec", "--model", "gpt", "-c", `model_reasoning_effort="high"`,
		"--output-schema", "s.json", "--output-last-message", "o.txt",
		"--skip-git-repo-check", "-",
	}, c.args("s.json", "o.txt"))
	assert.Equal(t, "codex", c.command())
}
