package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/message"
)

type fakeGmail struct {
	mu        sync.Mutex
	queries   []string
	modified  map[string][]string
	created   []string
	failFetch int
}

func (f *fakeGmail) handler() http.Handler {
	mux := http.NewServeMux()
	body := base64.URLEncoding.EncodeToString([]byte("let's meet this Friday 3pm"))

	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.mu.Unlock()
		if strings.Contains(r.URL.Query().Get("q"), "after:") {
			writeJSON(w, map[string]any{"resultSizeEstimate": 0})
			return
		}
		writeJSON(w, map[string]any{"messages": []map[string]any{{"id": "m1", "threadId": "t1"}}})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":           "m1",
			"threadId":     "t1",
			"internalDate": "1714957200000",
			"payload": map[string]any{
				"mimeType": "multipart/alternative",
				"headers": []map[string]any{
					{"name": "Subject", "value": "Lunch"},
					{"name": "From", "value": "Ann <ann@example.com>"},
				},
				"parts": []map[string]any{
					{"mimeType": "text/html", "body": map[string]any{"data": base64.URLEncoding.EncodeToString([]byte("<p>x</p>"))}},
					{"mimeType": "text/plain", "body": map[string]any{"data": body}},
				},
			},
		})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404,"message":"Not Found"}}`, http.StatusNotFound)
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/busy", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"backend"}}`, http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1/modify", func(w http.ResponseWriter, r *http.Request) {
		var req gmail.ModifyMessageRequest
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &req)
		f.mu.Lock()
		f.modified["m1"] = append(f.modified["m1"], req.AddLabelIds...)
		f.mu.Unlock()
		writeJSON(w, map[string]any{"id": "m1"})
	})
	mux.HandleFunc("/gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var l gmail.Label
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, &l)
			f.mu.Lock()
			f.created = append(f.created, l.Name)
			f.mu.Unlock()
			writeJSON(w, map[string]any{"id": "Label_new", "name": l.Name})
			return
		}
		writeJSON(w, map[string]any{"labels": []map[string]any{{"id": "Label_1", "name": "Triage/saved"}}})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeGmail) {
	t.Helper()
	fake := &fakeGmail{modified: map[string][]string{}}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewWithService(svc, ""), fake
}

func TestFetch(t *testing.T) {
	c, _ := newTestClient(t)

	m, err := c.Fetch(context.Background(), message.Locator{MessageID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", m.MessageID)
	assert.Equal(t, "Lunch", m.Subject)
	assert.Equal(t, "Ann <ann@example.com>", m.Sender)
	assert.Equal(t, "let's meet this Friday 3pm", m.Body)
	assert.Equal(t, "2024-05-06T01:00:00Z", m.ReceivedAt)
}

func TestFetchErrorsAreClassified(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Fetch(context.Background(), message.Locator{MessageID: "gone"})
	assert.Equal(t, collab.CodeNotFound, collab.CodeOf(err))

	_, err = c.Fetch(context.Background(), message.Locator{MessageID: "busy"})
	assert.Equal(t, collab.CodeTransient, collab.CodeOf(err))
}

func TestLatest(t *testing.T) {
	c, fake := newTestClient(t)

	m, err := c.Latest(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "m1", m.MessageID)

	_, err = c.Latest(context.Background(), time.Unix(1714957200, 0))
	assert.True(t, collab.IsNotFound(err))

	require.Len(t, fake.queries, 2)
	assert.Contains(t, fake.queries[0], `-label:"Triage/follow-up"`)
	assert.Contains(t, fake.queries[1], "after:1714957200")
}

func TestSetFlagReusesAndCreatesLabels(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	loc := message.Locator{MessageID: "m1"}

	require.NoError(t, c.SetFlag(ctx, loc, collab.FlagSaved))
	require.NoError(t, c.SetFlag(ctx, loc, collab.FlagFollowUp))

	assert.Equal(t, []string{"Label_1", "Label_new"}, fake.modified["m1"])
	assert.Equal(t, []string{"Triage/follow-up"}, fake.created)
}
