package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/triage/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit     int
	MessageID string
}

// RunSummary is one archived run as listed by history.
type RunSummary struct {
	RunID      string `json:"run_id"`
	MessageID  string `json:"message_id"`
	Subject    string `json:"subject,omitempty"`
	Status     string `json:"status"`
	Decision   string `json:"decision"`
	SaveMode   string `json:"save_mode"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

func summarize(r store.Run) RunSummary {
	return RunSummary{
		RunID:      r.RunID,
		MessageID:  r.MessageID,
		Subject:    r.Subject,
		Status:     r.Status,
		Decision:   r.Decision,
		SaveMode:   r.SaveMode,
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		FinishedAt: r.FinishedAt.Format(time.RFC3339),
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs",
		Long: `List archived runs, newest first.

Examples:
  triage history
  triage history --limit 50
  triage history --message-id '<abc@example.com>' --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum runs to list")
	cmd.Flags().StringVar(&opts.MessageID, "message-id", "", "only runs of this message")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	a, err := opts.openState(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	var runs []store.Run
	if opts.MessageID != "" {
		runs, err = a.archive.RunsForMessage(ctx, opts.MessageID)
	} else {
		runs, err = a.archive.ListRuns(ctx, opts.Limit)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read archive", err)
	}

	summaries := make([]RunSummary, len(runs))
	for i, r := range runs {
		summaries[i] = summarize(r)
	}

	out := opts.formatter(cmd)
	if len(summaries) == 0 {
		return out.Success(summaries, "No runs found.\n")
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tDECISION\tSUBJECT")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.RunID, s.Status, s.Decision, s.Subject)
	}
	tw.Flush()
	return out.Success(summaries, b.String())
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one archived run",
		Long: `Print the stored result of one run and its per-action items.

Example:
  triage show 20240506-100000-msg-1_example.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, runID string, cmd *cobra.Command) error {
	a, err := opts.openState(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.archive.ReadRun(cmd.Context(), runID)
	out := opts.formatter(cmd)
	if errors.Is(err, store.ErrNotFound) {
		_ = out.Error(CodeNotFound, fmt.Sprintf("run not found: %s", runID), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read archive", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(run.Result, &doc); err != nil {
		return WrapExitError(ExitFailure, "archived result is not valid JSON", err)
	}
	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return out.Success(doc, string(pretty)+"\n")
}
