package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// stderrTail bounds how much engine stderr is kept in an error.
const stderrTail = 2048

// Codex runs the codex CLI non-interactively:
//
//	codex exec [--model M] [-c model_reasoning_effort="E"] \
//	    --output-schema <schema> --output-last-message <out> [extra...] -
//
// The prompt is written to stdin and the last agent message is read back
// from <out>.
type Codex struct {
	Command   string
	Model     string
	Effort    string
	ExtraArgs []string

	// Timeout bounds one invocation. Zero means no limit beyond ctx.
	Timeout time.Duration

	Logger *slog.Logger
}

// Complete implements Engine.
func (c *Codex) Complete(ctx context.Context, req Request) ([]byte, error) {
	dir := req.Dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "triage-reasoning-*")
		if err != nil {
			return nil, &Error{Kind: KindExec, Pass: req.Pass, Err: err}
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Kind: KindExec, Pass: req.Pass, Err: err}
	}

	name := req.Pass
	if name == "" {
		name = "reasoning"
	}
	schemaPath := filepath.Join(dir, name+".schema.json")
	outPath := filepath.Join(dir, name+".last.txt")

	schema, err := json.MarshalIndent(req.Schema, "", "  ")
	if err != nil {
		return nil, &Error{Kind: KindExec, Pass: req.Pass, Detail: "encode schema", Err: err}
	}
	if err := os.WriteFile(schemaPath, schema, 0o644); err != nil {
		return nil, &Error{Kind: KindExec, Pass: req.Pass, Err: err}
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.command(), c.args(schemaPath, outPath)...)
	cmd.Stdin = strings.NewReader(req.Prompt)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	if c.Logger != nil {
		c.Logger.Debug("reasoning_exec",
			"pass", req.Pass,
			"command", c.command(),
			"duration_ms", time.Since(started).Milliseconds(),
			"ok", runErr == nil,
		)
	}
	if runErr != nil {
		return nil, &Error{Kind: KindExec, Pass: req.Pass, Detail: tail(stderr.String()), Err: runErr}
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, &Error{Kind: KindEmpty, Pass: req.Pass, Detail: "no last message written", Err: err}
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, &Error{Kind: KindEmpty, Pass: req.Pass, Detail: "last message is empty"}
	}
	return out, nil
}

func (c *Codex) command() string {
	if c.Command == "" {
		return "codex"
	}
	return c.Command
}

func (c *Codex) args(schemaPath, outPath string) []string {
	args := []string{"exec"}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	if c.Effort != "" {
		args = append(args, "-c", fmt.Sprintf("model_reasoning_effort=%q", c.Effort))
	}
	args = append(args, "--output-schema", schemaPath, "--output-last-message", outPath)
	args = append(args, c.ExtraArgs...)
	return append(args, "-")
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}
	return "..." + s[len(s)-stderrTail:]
}
