package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triage/internal/reasoning"
)

func TestWatchOnce(t *testing.T) {
	e := newTestEnv(t, reasoning.Response{Output: coffeeOutput})
	dir := t.TempDir()
	writeFile(t, dir, "a.json", fridayMessageJSON)
	writeFile(t, dir, "b.json", "not json")
	writeFile(t, dir, "notes.txt", "ignored")

	out, err := e.execute(t, "watch", dir, "--once")
	require.NoError(t, err)
	assert.Equal(t, "processed=1 failed=1\n", out)

	assert.FileExists(t, filepath.Join(dir, "done", "a.json"))
	assert.FileExists(t, filepath.Join(dir, "failed", "b.json"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "a.json"))
	assert.Len(t, e.creator.Created(), 2)
}

func TestWatchMissingDir(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.execute(t, "watch", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "watch directory not found")
}

func TestWatchBadSettle(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.execute(t, "watch", t.TempDir(), "--settle", "0s")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	e := newTestEnv(t, reasoning.Response{Output: coffeeOutput})
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		cmd := newRootCommand(e.opts)
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--timezone", "Asia/Hong_Kong", "watch", dir, "--settle", "50ms"})
		done <- cmd.ExecuteContext(ctx)
	}()

	// Write under a hidden name and rename so the watcher never sees a
	// partial file.
	tmp := writeFile(t, dir, ".incoming", fridayMessageJSON)
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "m.json")))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "done", "m.json"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	assert.Len(t, e.creator.Created(), 2)
}
