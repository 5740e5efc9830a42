package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/collab/bridge"
	"github.com/roach88/triage/internal/collab/gmail"
	"github.com/roach88/triage/internal/collab/memory"
	"github.com/roach88/triage/internal/config"
	"github.com/roach88/triage/internal/pipeline"
	"github.com/roach88/triage/internal/reasoning"
	"github.com/roach88/triage/internal/store"
)

// app is the per-command wiring: config, logger, archive and, for
// commands that process mail, the pipeline.
type app struct {
	cfg      *config.Config
	env      pipeline.Env
	logger   *slog.Logger
	archive  *store.Store
	pipeline *pipeline.Pipeline

	closeLog func()
}

func (a *app) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Error("archive_close_failed", "error", err)
		}
	}
	a.closeLog()
}

// openState loads the config and opens the archive.
func (o *RootOptions) openState(cmd *cobra.Command) (*app, error) {
	logger, closeLog, err := newLogger(cmd.ErrOrStderr(), o.LogFile, o.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open log file", err)
	}

	cfg, err := o.loadConfig()
	if err != nil {
		closeLog()
		return nil, err
	}
	env, err := cfg.Env(logger)
	if err != nil {
		closeLog()
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if err := os.MkdirAll(env.StateDir, 0o755); err != nil {
		closeLog()
		return nil, WrapExitError(ExitCommandError, "failed to create state directory", err)
	}
	archive, err := store.Open(env.ArchivePath())
	if err != nil {
		closeLog()
		return nil, WrapExitError(ExitCommandError, "failed to open archive", err)
	}

	return &app{cfg: cfg, env: env, logger: logger, archive: archive, closeLog: closeLog}, nil
}

// open is openState plus the pipeline and its collaborators.
func (o *RootOptions) open(ctx context.Context, cmd *cobra.Command) (*app, error) {
	a, err := o.openState(cmd)
	if err != nil {
		return nil, err
	}

	engine := o.Engine
	if engine == nil {
		engine = &reasoning.Codex{
			Command:   a.cfg.Reasoning.Command,
			Model:     a.cfg.Reasoning.Model,
			Effort:    a.cfg.Reasoning.Effort,
			ExtraArgs: a.cfg.Reasoning.ExtraArgs,
			Timeout:   time.Duration(a.cfg.Reasoning.TimeoutSeconds) * time.Second,
			Logger:    a.logger,
		}
	}
	mail, creator, err := o.collaborators(ctx, a.cfg, a.logger)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to set up collaborators", err)
	}

	opts := []pipeline.Option{pipeline.WithArchive(a.archive), pipeline.WithLogger(a.logger)}
	if o.Clock != nil {
		opts = append(opts, pipeline.WithClock(o.Clock))
	}
	p, err := pipeline.New(a.env, engine, mail, creator, opts...)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}
	a.pipeline = p
	return a, nil
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		path = config.DefaultPath(o.Getenv)
	}
	cfg, err := config.Load(path, o.Getenv)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	err = cfg.Apply(config.Overrides{
		StateDir:        o.StateDir,
		Timezone:        o.Timezone,
		SaveMode:        o.SaveMode,
		DefaultCalendar: o.DefaultCalendar,
		DefaultList:     o.DefaultList,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid flag", err)
	}
	return cfg, nil
}

// collaborators builds mail and creator for the configured kind, wrapped
// in the retry policy. Overrides on o win.
func (o *RootOptions) collaborators(ctx context.Context, cfg *config.Config, logger *slog.Logger) (collab.Mail, collab.Creator, error) {
	var (
		mail    collab.Mail
		creator collab.Creator
	)

	c := cfg.Collaborator
	helper := func() *bridge.Client {
		return &bridge.Client{
			Command: c.BridgeCommand,
			Args:    c.BridgeArgs,
			Timeout: time.Duration(c.TimeoutSeconds) * time.Second,
			Logger:  logger,
		}
	}

	switch c.Kind {
	case config.KindMemory:
		mail, creator = memory.NewMail(), memory.NewCreator()
	case config.KindGmail:
		if o.Mail == nil {
			g, err := gmail.New(ctx, c.Gmail.Credentials, c.Gmail.Token, c.Gmail.LabelPrefix)
			if err != nil {
				return nil, nil, err
			}
			mail = g
		}
		creator = helper()
	case config.KindBridge, "":
		b := helper()
		mail, creator = b, b
	default:
		return nil, nil, fmt.Errorf("unknown collaborator kind %q", c.Kind)
	}

	if o.Mail != nil {
		mail = o.Mail
	}
	if o.Creator != nil {
		creator = o.Creator
	}

	policy := cfg.RetryPolicy(logger)
	return &collab.RetryMail{Mail: mail, Policy: policy}, &collab.RetryCreator{Creator: creator, Policy: policy}, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// pipelineExit maps a pipeline error to an exit error.
func pipelineExit(err error) error {
	if errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "interrupted", err)
	}
	if stage := pipeline.StageOf(err); stage != "" {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s stage failed", stage), err)
	}
	return WrapExitError(ExitFailure, "pipeline failed", err)
}
