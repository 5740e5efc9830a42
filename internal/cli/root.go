package cli

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/reasoning"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	LogFile string

	ConfigPath      string
	StateDir        string
	Timezone        string
	SaveMode        string
	DefaultCalendar string
	DefaultList     string

	// Getenv reads the environment. Nil means os.Getenv.
	Getenv func(string) string

	// Engine, Mail and Creator replace the configured collaborators when
	// set. Clock replaces time.Now.
	Engine  reasoning.Engine
	Mail    collab.Mail
	Creator collab.Creator
	Clock   func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the triage command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Turn email into calendar events, reminders and notes",
		Long: `triage reads one email at a time, asks a reasoning engine for follow-up
actions, corrects their dates, drops anything already saved, and creates
each remaining action exactly once.

State (ledger, fingerprint index, run artifacts and archive) lives in the
state directory: --state-dir, TRIAGE_STATE_DIR, or ~/.triage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.LogFile, "log-file", "", "also write logs to this file")
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (default $TRIAGE_CONFIG or <state>/config.cue)")
	flags.StringVar(&opts.StateDir, "state-dir", "", "state directory")
	flags.StringVar(&opts.Timezone, "timezone", "", "IANA timezone for date handling")
	flags.StringVar(&opts.SaveMode, "save-mode", "", "single, replan or autonomous")
	flags.StringVar(&opts.DefaultCalendar, "default-calendar", "", "calendar for events that name none")
	flags.StringVar(&opts.DefaultList, "default-list", "", "reminder list for reminders that name none")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	err := NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return GetExitCode(err)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
