// Package config loads triage configuration.
//
// Sources, lowest precedence first:
//
//  1. defaults declared in the embedded CUE schema
//  2. the config file, unified with the schema (closed: unknown fields fail)
//  3. environment: TRIAGE_STATE_DIR, TRIAGE_LOCAL_TZ
//  4. command-line overrides
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/fingerprint"
	"github.com/roach88/triage/internal/pipeline"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables read by Load.
const (
	EnvStateDir = "TRIAGE_STATE_DIR"
	EnvTimezone = "TRIAGE_LOCAL_TZ"
	EnvConfig   = "TRIAGE_CONFIG"
)

// Config mirrors #Config in schema.cue.
type Config struct {
	StateDir                   string       `json:"state_dir"`
	Timezone                   string       `json:"timezone"`
	SaveMode                   string       `json:"save_mode"`
	NotesRoot                  string       `json:"notes_root"`
	Defaults                   Defaults     `json:"defaults"`
	LegacyCalendarPlaceholders []string     `json:"legacy_calendar_placeholders"`
	Blocked                    Blocked      `json:"blocked"`
	Reasoning                  Reasoning    `json:"reasoning"`
	Collaborator               Collaborator `json:"collaborator"`
	Retry                      Retry        `json:"retry"`
	DigestLimit                int          `json:"digest_limit"`
	Lock                       bool         `json:"lock"`
}

// Defaults are the destinations used when an action names none.
type Defaults struct {
	Calendar          string `json:"calendar"`
	List              string `json:"list"`
	NoteFolder        string `json:"note_folder"`
	LowPriorityFolder string `json:"low_priority_folder"`
	LogFolder         string `json:"log_folder"`
}

// Blocked lists accounts and sender globs rejected before any reasoning.
type Blocked struct {
	Accounts []string `json:"accounts"`
	Senders  []string `json:"senders"`
}

// Reasoning configures the codex subprocess.
type Reasoning struct {
	Command        string   `json:"command"`
	Model          string   `json:"model"`
	Effort         string   `json:"effort"`
	ExtraArgs      []string `json:"extra_args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// Collaborator kinds.
const (
	KindBridge = "bridge"
	KindGmail  = "gmail"
	KindMemory = "memory"
)

// Collaborator selects and configures the mail and create backends.
type Collaborator struct {
	Kind           string   `json:"kind"`
	BridgeCommand  string   `json:"bridge_command"`
	BridgeArgs     []string `json:"bridge_args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Gmail          Gmail    `json:"gmail"`
}

// Gmail holds the OAuth files and label prefix of the Gmail backend.
type Gmail struct {
	Credentials string `json:"credentials"`
	Token       string `json:"token"`
	LabelPrefix string `json:"label_prefix"`
}

// Retry bounds the backoff of transient collaborator failures.
type Retry struct {
	MaxTries          int `json:"max_tries"`
	InitialIntervalMS int `json:"initial_interval_ms"`
	MaxIntervalMS     int `json:"max_interval_ms"`
}

// Overrides are command-line values. Empty fields leave the config alone.
type Overrides struct {
	StateDir        string
	Timezone        string
	SaveMode        string
	DefaultCalendar string
	DefaultList     string
}

// Load reads the config file at path (empty: no file) and applies the
// environment read through getenv (nil: os.Getenv).
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		file := ctx.CompileBytes(data, cue.Filename(path))
		if err := file.Err(); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		v = v.Unify(file)
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.checkFolders(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if s := getenv(EnvStateDir); s != "" {
		cfg.StateDir = s
	}
	if s := getenv(EnvTimezone); s != "" {
		cfg.Timezone = s
	}
	return &cfg, nil
}

// checkFolders rejects configured note folders outside notes_root.
func (c *Config) checkFolders() error {
	for _, f := range []struct{ key, folder string }{
		{"defaults.note_folder", c.Defaults.NoteFolder},
		{"defaults.low_priority_folder", c.Defaults.LowPriorityFolder},
		{"defaults.log_folder", c.Defaults.LogFolder},
	} {
		if !action.InNotesRoot(f.folder, c.NotesRoot) {
			return fmt.Errorf("%s %q must start with %q", f.key, f.folder, c.NotesRoot+"/")
		}
	}
	return nil
}

// Apply layers command-line overrides on top of c.
func (c *Config) Apply(o Overrides) error {
	if o.StateDir != "" {
		c.StateDir = o.StateDir
	}
	if o.Timezone != "" {
		c.Timezone = o.Timezone
	}
	if o.SaveMode != "" {
		if _, err := pipeline.ParseSaveMode(o.SaveMode); err != nil {
			return err
		}
		c.SaveMode = o.SaveMode
	}
	if o.DefaultCalendar != "" {
		c.Defaults.Calendar = o.DefaultCalendar
	}
	if o.DefaultList != "" {
		c.Defaults.List = o.DefaultList
	}
	return nil
}

// ResolvedStateDir returns the state directory, defaulting to ~/.triage.
func (c *Config) ResolvedStateDir() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(home, ".triage"), nil
}

// Location loads the configured timezone. An empty name is UTC. An unknown
// name is UTC plus a non-nil error describing the fallback.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, fmt.Errorf("unknown timezone %q, using UTC: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) folder(name, fallback string) string {
	if name != "" {
		return name
	}
	return c.NotesRoot + "/" + fallback
}

// Env builds the pipeline environment. A timezone fallback is logged as
// a warning and is not an error.
func (c *Config) Env(logger *slog.Logger) (pipeline.Env, error) {
	if err := c.checkFolders(); err != nil {
		return pipeline.Env{}, err
	}
	stateDir, err := c.ResolvedStateDir()
	if err != nil {
		return pipeline.Env{}, err
	}
	mode, err := pipeline.ParseSaveMode(c.SaveMode)
	if err != nil {
		return pipeline.Env{}, err
	}
	loc, err := c.Location()
	if err != nil && logger != nil {
		logger.Warn("timezone_fallback", "timezone", c.Timezone, "error", err)
	}
	blocked, err := pipeline.NewBlocklist(c.Blocked.Accounts, c.Blocked.Senders)
	if err != nil {
		return pipeline.Env{}, err
	}

	return pipeline.Env{
		StateDir:  stateDir,
		Location:  loc,
		SaveMode:  mode,
		NotesRoot: c.NotesRoot,
		Resolver: fingerprint.Resolver{
			DefaultCalendar: c.Defaults.Calendar,
			DefaultList:     c.Defaults.List,
			DefaultFolder:   c.folder(c.Defaults.NoteFolder, "Inbox"),
			Placeholders:    c.LegacyCalendarPlaceholders,
		},
		LowPriorityFolder: c.folder(c.Defaults.LowPriorityFolder, "Low Priority"),
		LogFolder:         c.folder(c.Defaults.LogFolder, "Triage Log"),
		Blocked:           blocked,
		DigestLimit:       c.DigestLimit,
		Lock:              c.Lock,
	}, nil
}

// RetryPolicy returns the collaborator retry settings.
func (c *Config) RetryPolicy(logger *slog.Logger) collab.RetryPolicy {
	return collab.RetryPolicy{
		MaxTries:        uint(c.Retry.MaxTries),
		InitialInterval: time.Duration(c.Retry.InitialIntervalMS) * time.Millisecond,
		MaxInterval:     time.Duration(c.Retry.MaxIntervalMS) * time.Millisecond,
		Logger:          logger,
	}
}

// DefaultPath returns the config file named by TRIAGE_CONFIG, else
// <state>/config.cue when it exists, else "".
func DefaultPath(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if p := getenv(EnvConfig); p != "" {
		return p
	}
	dir := getenv(EnvStateDir)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".triage")
	}
	p := filepath.Join(dir, "config.cue")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}
