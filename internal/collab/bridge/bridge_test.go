package bridge

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/message"
)

// fakeHelper echoes a canned response for each op, reusing the request id.
const fakeHelper = `#!/bin/sh
req=$(cat)
id=$(printf '%s' "$req" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
case "$req" in
  *'"op":"fetch"'*)
    printf '{"id":"%s","ok":true,"message":{"messageID":" <m1> ","subject":"Hi","body":"b"}}' "$id" ;;
  *'"op":"latest"'*)
    printf '{"id":"%s","ok":true}' "$id" ;;
  *'"op":"set_flag"'*)
    printf '{"id":"%s","ok":true}' "$id" ;;
  *'"title":"Boom"'*)
    printf '{"id":"%s","ok":false,"error":{"code":"transient","message":"calendar busy"}}' "$id" ;;
  *'"title":"Crash"'*)
    echo "helper crashed" >&2; exit 2 ;;
  *'"title":"Wrong"'*)
    printf '{"id":"other","ok":true,"target_id":"x"}' ;;
  *'"op":"create"'*)
    printf '{"id":"%s","ok":true,"target_id":"evt-42"}' "$id" ;;
esac
`

func newTestClient(t *testing.T) *Client {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script helper needs a unix shell")
	}
	path := filepath.Join(t.TempDir(), "helper")
	require.NoError(t, os.WriteFile(path, []byte(fakeHelper), 0o755))
	n := 0
	return &Client{
		Command: path,
		Timeout: 5 * time.Second,
		NewID: func() string {
			n++
			return "req-" + string(rune('0'+n))
		},
	}
}

func TestClientFetch(t *testing.T) {
	c := newTestClient(t)
	m, err := c.Fetch(context.Background(), message.Locator{MessageID: "<m1>"})
	require.NoError(t, err)
	assert.Equal(t, "<m1>", m.MessageID)
	assert.Equal(t, "Hi", m.Subject)
}

func TestClientLatestEmpty(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Latest(context.Background(), time.Now())
	assert.True(t, collab.IsNotFound(err))
}

func TestClientSetFlag(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.SetFlag(context.Background(), message.Locator{MessageID: "<m1>"}, collab.FlagSaved))
}

func TestClientCreate(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id, err := c.Create(ctx, collab.CreateRequest{Kind: action.DecisionCalendar, Title: "Lunch", Destination: "Work"})
	require.NoError(t, err)
	assert.Equal(t, "evt-42", id)

	_, err = c.Create(ctx, collab.CreateRequest{Kind: action.DecisionCalendar, Title: "Boom"})
	assert.Equal(t, collab.CodeTransient, collab.CodeOf(err))
	assert.ErrorContains(t, err, "calendar busy")

	_, err = c.Create(ctx, collab.CreateRequest{Kind: action.DecisionNote, Title: "Crash"})
	assert.Equal(t, collab.CodeUnavailable, collab.CodeOf(err))
	assert.ErrorContains(t, err, "helper crashed")

	_, err = c.Create(ctx, collab.CreateRequest{Kind: action.DecisionNote, Title: "Wrong"})
	assert.Equal(t, collab.CodeRejected, collab.CodeOf(err))
}
