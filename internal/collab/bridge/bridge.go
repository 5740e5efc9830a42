// Package bridge reaches mail, calendar, reminder and note apps through a
// helper process speaking JSON.
//
// Each call starts the helper once, writes one Request to its stdin and
// reads one Response from its stdout. The helper owns every app-specific
// detail (scripting bridges, escaping, app quirks); this side only sees
// typed data.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/message"
)

// Op names a bridge operation.
type Op string

const (
	OpFetch   Op = "fetch"
	OpLatest  Op = "latest"
	OpSetFlag Op = "set_flag"
	OpCreate  Op = "create"
)

// Request is written to the helper's stdin.
type Request struct {
	ID      string                `json:"id"`
	Op      Op                    `json:"op"`
	Locator *message.Locator      `json:"locator,omitempty"`
	Since   string                `json:"since,omitempty"`
	Flag    collab.Flag           `json:"flag,omitempty"`
	Item    *collab.CreateRequest `json:"item,omitempty"`
}

// Response is read from the helper's stdout.
type Response struct {
	ID       string           `json:"id"`
	OK       bool             `json:"ok"`
	Error    *ResponseError   `json:"error,omitempty"`
	Message  *message.Message `json:"message,omitempty"`
	TargetID string           `json:"target_id,omitempty"`
}

// ResponseError is the helper's description of a failure.
type ResponseError struct {
	Code    collab.Code `json:"code"`
	Message string      `json:"message"`
}

// Client implements collab.Mail and collab.Creator over a helper command.
type Client struct {
	Command string
	Args    []string

	// Timeout bounds one helper invocation. Zero means no limit beyond ctx.
	Timeout time.Duration

	Logger *slog.Logger

	// NewID returns request ids. Defaults to UUIDv7.
	NewID func() string
}

var (
	_ collab.Mail    = (*Client)(nil)
	_ collab.Creator = (*Client)(nil)
)

// Fetch implements collab.Mail.
func (c *Client) Fetch(ctx context.Context, loc message.Locator) (message.Message, error) {
	resp, err := c.call(ctx, Request{Op: OpFetch, Locator: &loc})
	if err != nil {
		return message.Message{}, err
	}
	if resp.Message == nil {
		return message.Message{}, &collab.Error{Op: string(OpFetch), Code: collab.CodeRejected, Err: errors.New("response has no message")}
	}
	return message.Normalize(*resp.Message), nil
}

// Latest implements collab.Mail.
func (c *Client) Latest(ctx context.Context, since time.Time) (message.Message, error) {
	req := Request{Op: OpLatest}
	if !since.IsZero() {
		req.Since = since.Format(time.RFC3339)
	}
	resp, err := c.call(ctx, req)
	if err != nil {
		return message.Message{}, err
	}
	if resp.Message == nil {
		return message.Message{}, &collab.Error{Op: string(OpLatest), Code: collab.CodeNotFound, Err: errors.New("no unseen message")}
	}
	return message.Normalize(*resp.Message), nil
}

// SetFlag implements collab.Mail.
func (c *Client) SetFlag(ctx context.Context, loc message.Locator, flag collab.Flag) error {
	_, err := c.call(ctx, Request{Op: OpSetFlag, Locator: &loc, Flag: flag})
	return err
}

// Create implements collab.Creator.
func (c *Client) Create(ctx context.Context, item collab.CreateRequest) (string, error) {
	resp, err := c.call(ctx, Request{Op: OpCreate, Item: &item})
	if err != nil {
		return "", err
	}
	if resp.TargetID == "" {
		return "", &collab.Error{Op: string(OpCreate), Code: collab.CodeRejected, Err: errors.New("response has no target id")}
	}
	return resp.TargetID, nil
}

func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	req.ID = c.newID()
	op := string(req.Op)

	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, &collab.Error{Op: op, Code: collab.CodeRejected, Err: err}
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	if c.Logger != nil {
		c.Logger.Debug("bridge_call",
			"op", op,
			"request_id", req.ID,
			"duration_ms", time.Since(started).Milliseconds(),
			"ok", runErr == nil,
		)
	}
	if runErr != nil {
		code := collab.CodeUnavailable
		if ctx.Err() != nil {
			code = collab.CodeTransient
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			runErr = fmt.Errorf("%w: %s", runErr, detail)
		}
		return Response{}, &collab.Error{Op: op, Code: code, Err: runErr}
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return Response{}, &collab.Error{Op: op, Code: collab.CodeRejected, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.ID != req.ID {
		return Response{}, &collab.Error{Op: op, Code: collab.CodeRejected, Err: fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)}
	}
	if !resp.OK {
		code, msg := collab.CodeRejected, "helper reported failure"
		if resp.Error != nil {
			if resp.Error.Code != "" {
				code = resp.Error.Code
			}
			if resp.Error.Message != "" {
				msg = resp.Error.Message
			}
		}
		return Response{}, &collab.Error{Op: op, Code: code, Err: errors.New(msg)}
	}
	return resp, nil
}

func (c *Client) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.Must(uuid.NewV7()).String()
}
