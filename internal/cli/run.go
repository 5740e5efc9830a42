package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/triage/internal/message"
	"github.com/roach88/triage/internal/pipeline"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MessageJSON string
	Latest      bool
	Since       string
	MessageID   string
	Account     string
	Mailbox     string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Triage one message",
		Long: `Triage one message and apply its actions.

The message comes from exactly one source:
  --message-json <file>   a message JSON object (or one-element array); - reads stdin
  --latest                the newest unseen message in the mailbox
  --message-id <id>       a specific message, optionally with --account/--mailbox

Exit codes:
  0 - run completed, including duplicate and blocked skips, or no new mail
  1 - the pipeline failed; nothing was recorded as processed
  2 - command error (flags, config, unreadable input)

Examples:
  triage run --message-json ./msg.json
  triage run --latest --since 2024-05-06T00:00:00Z
  triage run --message-id '<abc@example.com>' --save-mode replan`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MessageJSON, "message-json", "", "message JSON file (- for stdin)")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "process the newest unseen message")
	cmd.Flags().StringVar(&opts.Since, "since", "", "with --latest, only messages received after this RFC 3339 time")
	cmd.Flags().StringVar(&opts.MessageID, "message-id", "", "fetch and process this message")
	cmd.Flags().StringVar(&opts.Account, "account", "", "with --message-id, the mail account")
	cmd.Flags().StringVar(&opts.Mailbox, "mailbox", "", "with --message-id, the mailbox")

	return cmd
}

func (o *RunOptions) validate() error {
	sources := 0
	for _, set := range []bool{o.MessageJSON != "", o.Latest, o.MessageID != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return NewExitError(ExitCommandError, "exactly one of --message-json, --latest or --message-id is required")
	}
	if o.Since != "" && !o.Latest {
		return NewExitError(ExitCommandError, "--since requires --latest")
	}
	if (o.Account != "" || o.Mailbox != "") && o.MessageID == "" {
		return NewExitError(ExitCommandError, "--account and --mailbox require --message-id")
	}
	return nil
}

func runOnce(opts *RunOptions, cmd *cobra.Command) error {
	if err := opts.validate(); err != nil {
		return err
	}
	var since time.Time
	if opts.Since != "" {
		t, err := time.Parse(time.RFC3339, opts.Since)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --since", err)
		}
		since = t
	}

	var msg message.Message
	if opts.MessageJSON != "" {
		m, err := readMessage(opts.MessageJSON, cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read message", err)
		}
		msg = m
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := opts.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var res *pipeline.Result
	switch {
	case opts.MessageJSON != "":
		res, err = a.pipeline.Process(ctx, msg)
	case opts.Latest:
		res, err = a.pipeline.ProcessLatest(ctx, since)
	default:
		res, err = a.pipeline.ProcessLocator(ctx, message.Locator{
			Account:   opts.Account,
			Mailbox:   opts.Mailbox,
			MessageID: opts.MessageID,
		})
	}

	out := opts.formatter(cmd)
	if errors.Is(err, pipeline.ErrNoMessage) {
		return out.Success(map[string]string{"status": "no_message"}, "No new message.\n")
	}
	if err != nil {
		_ = out.Error(CodePipeline, err.Error(), map[string]string{"stage": string(pipeline.StageOf(err))})
		return pipelineExit(err)
	}
	return out.Success(res, resultText(res))
}

func readMessage(path string, stdin io.Reader) (message.Message, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return message.Message{}, err
	}
	return message.Decode(data)
}

// resultText renders a result the way the processing-log note does. Skips
// get one reason line instead.
func resultText(res *pipeline.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)\n", res.RunID, res.Status, res.Decision)
	if res.Skip != nil {
		fmt.Fprintf(&b, "  Skipped: %s", res.Skip.Reason)
		if res.Skip.FirstRunID != "" {
			fmt.Fprintf(&b, " (first run %s)", res.Skip.FirstRunID)
		}
		b.WriteString("\n")
		return b.String()
	}
	_, body := pipeline.RenderLogNote(res)
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}
