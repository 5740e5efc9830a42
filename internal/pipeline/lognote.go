package pipeline

import (
	"fmt"
	"strings"

	"github.com/roach88/triage/internal/apply"
)

// RenderLogNote renders the processing-log note of an applied run.
func RenderLogNote(r *Result) (title, body string) {
	title = "Triage log " + r.RunID

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	fmt.Fprintf(&b, "Message: %s\n", orNone(r.MessageID))
	fmt.Fprintf(&b, "From: %s\n", orNone(r.Sender))
	fmt.Fprintf(&b, "Subject: %s\n", orNone(r.Subject))
	fmt.Fprintf(&b, "Save mode: %s\n", r.SaveMode)
	fmt.Fprintf(&b, "Decision: %s\n", r.Decision)
	fmt.Fprintf(&b, "Counts: created=%d skipped=%d failed=%d\n", r.Counts.Created, r.Counts.Skipped, r.Counts.Failed)
	if r.Flag != "" {
		flag := string(r.Flag)
		if r.FlagError != "" {
			flag += " (not set: " + r.FlagError + ")"
		}
		fmt.Fprintf(&b, "Flag: %s\n", flag)
	}

	b.WriteString("\nItems:\n")
	if len(r.Items) == 0 {
		b.WriteString("(none)\n")
	}
	for _, it := range r.Items {
		fmt.Fprintf(&b, "%d. [%s] %s -> %s", it.Index, it.Decision, it.Title, it.Status)
		switch it.Status {
		case apply.StatusCreated:
			if it.Result.Destination != "" {
				fmt.Fprintf(&b, " in %s", it.Result.Destination)
			}
		case apply.StatusDuplicateSaved:
			fmt.Fprintf(&b, " (first run %s)", it.Result.FirstRunID)
		case apply.StatusDuplicateInOutput:
			fmt.Fprintf(&b, " (%s)", it.Result.Error)
		case apply.StatusFailed:
			fmt.Fprintf(&b, ": %s", it.Result.Error)
		}
		b.WriteString("\n")
	}
	return title, b.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
