// Package memory provides in-process collaborators for tests and scenarios.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/message"
)

// Mail is an in-memory mailbox. Flagged messages are no longer returned
// by Latest.
type Mail struct {
	mu       sync.Mutex
	messages []message.Message
	flags    map[string]collab.Flag
	calls    int

	// FlagErr, when set, fails every SetFlag call.
	FlagErr error
}

// NewMail returns a mailbox holding msgs.
func NewMail(msgs ...message.Message) *Mail {
	return &Mail{messages: msgs, flags: map[string]collab.Flag{}}
}

// Add delivers a message.
func (m *Mail) Add(msg message.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// Fetch implements collab.Mail.
func (m *Mail) Fetch(_ context.Context, loc message.Locator) (message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	for _, msg := range m.messages {
		if msg.MessageID != loc.MessageID {
			continue
		}
		if loc.Account != "" && msg.Account != loc.Account {
			continue
		}
		if loc.Mailbox != "" && msg.Mailbox != loc.Mailbox {
			continue
		}
		return msg, nil
	}
	return message.Message{}, &collab.Error{Op: "fetch", Code: collab.CodeNotFound, Err: errors.New(loc.MessageID)}
}

// Latest implements collab.Mail.
func (m *Mail) Latest(_ context.Context, since time.Time) (message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	type candidate struct {
		msg message.Message
		at  time.Time
	}
	var candidates []candidate
	for _, msg := range m.messages {
		if _, seen := m.flags[msg.MessageID]; seen {
			continue
		}
		at, err := time.Parse(time.RFC3339, msg.ReceivedAt)
		if err != nil {
			continue
		}
		if !since.IsZero() && !at.After(since) {
			continue
		}
		candidates = append(candidates, candidate{msg, at})
	}
	if len(candidates) == 0 {
		return message.Message{}, &collab.Error{Op: "latest", Code: collab.CodeNotFound, Err: errors.New("no unseen message")}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].at.After(candidates[j].at) })
	return candidates[0].msg, nil
}

// SetFlag implements collab.Mail.
func (m *Mail) SetFlag(_ context.Context, loc message.Locator, flag collab.Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.FlagErr != nil {
		return m.FlagErr
	}
	m.flags[loc.MessageID] = flag
	return nil
}

// Flag returns the flag set on messageID.
func (m *Mail) Flag(messageID string) (collab.Flag, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flags[messageID]
	return f, ok
}

// Calls returns how many Mail methods have been invoked.
func (m *Mail) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Created is one item accepted by Creator.
type Created struct {
	ID      string
	Request collab.CreateRequest
}

type failure struct {
	code      collab.Code
	remaining int // <0 means always
}

// Creator records created items. Titles registered with Fail are rejected.
type Creator struct {
	mu       sync.Mutex
	created  []Created
	failures map[string]*failure
	calls    int

	// NewID returns the id of the next created item. Defaults to a UUID.
	NewID func() string
}

// NewCreator returns an empty creator.
func NewCreator() *Creator {
	return &Creator{failures: map[string]*failure{}}
}

// Fail makes every create with the given title fail with code.
func (c *Creator) Fail(title string, code collab.Code) {
	c.FailTimes(title, code, -1)
}

// FailTimes makes the next n creates with the given title fail with code.
func (c *Creator) FailTimes(title string, code collab.Code, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[title] = &failure{code: code, remaining: n}
}

// Create implements collab.Creator.
func (c *Creator) Create(_ context.Context, req collab.CreateRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	if f, ok := c.failures[req.Title]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		return "", &collab.Error{Op: "create_" + string(req.Kind), Code: f.code, Err: errors.New(req.Title)}
	}

	id := ""
	if c.NewID != nil {
		id = c.NewID()
	} else {
		id = uuid.NewString()
	}
	c.created = append(c.created, Created{ID: id, Request: req})
	return id, nil
}

// Created returns every accepted item in order.
func (c *Creator) Created() []Created {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Created(nil), c.created...)
}

// Calls returns how many creates were attempted.
func (c *Creator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
