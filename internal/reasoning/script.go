package reasoning

import (
	"context"
	"fmt"
	"sync"
)

// Script is an Engine that replays canned outputs in order. It records
// every request it receives.
type Script struct {
	mu        sync.Mutex
	responses []Response
	requests  []Request
}

// Response is one scripted reply. A non-empty Err fails the invocation.
type Response struct {
	Output string
	Err    string
}

// NewScript returns an engine that answers with responses in order.
func NewScript(responses ...Response) *Script {
	return &Script{responses: responses}
}

// Complete implements Engine.
func (s *Script) Complete(_ context.Context, req Request) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, &Error{Kind: KindExec, Pass: req.Pass, Detail: "script exhausted"}
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	if r.Err != "" {
		return nil, &Error{Kind: KindExec, Pass: req.Pass, Err: fmt.Errorf("%s", r.Err)}
	}
	return []byte(r.Output), nil
}

// Requests returns the requests seen so far.
func (s *Script) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
