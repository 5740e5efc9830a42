package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingIsEmpty(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "processed.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	_, ok := l.Lookup("<a@example.com>")
	assert.False(t, ok)
}

func TestCommitPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")

	l, err := Open(path)
	require.NoError(t, err)
	entry := Entry{Timestamp: "2024-05-06T09:01:00+08:00", RunID: "20240506-090100-a_example.com", Decision: "calendar"}
	require.NoError(t, l.Commit("<a@example.com>", entry))

	reopened, err := Open(path)
	require.NoError(t, err)
	got, ok := reopened.Lookup("<a@example.com>")
	require.True(t, ok)
	assert.Equal(t, entry, got)
	assert.Equal(t, []string{"<a@example.com>"}, reopened.MessageIDs())
}

func TestCommitRejectsEmptyID(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "processed.json"))
	require.NoError(t, err)
	assert.ErrorIs(t, l.Commit("", Entry{}), ErrEmptyMessageID)
}
