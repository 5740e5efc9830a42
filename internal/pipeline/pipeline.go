package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/apply"
	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/fingerprint"
	"github.com/roach88/triage/internal/ledger"
	"github.com/roach88/triage/internal/message"
	"github.com/roach88/triage/internal/reasoning"
	"github.com/roach88/triage/internal/statefile"
	"github.com/roach88/triage/internal/store"
	"github.com/roach88/triage/internal/temporal"
)

// ErrNoMessage is returned by ProcessLatest when the mailbox holds no
// unseen candidate.
var ErrNoMessage = errors.New("no candidate message")

// Pipeline processes messages one at a time against shared state.
type Pipeline struct {
	env        Env
	engine     reasoning.Engine
	mail       collab.Mail
	creator    collab.Creator
	archive    *store.Store
	normalizer *action.Normalizer
	prompts    prompter
	clock      func() time.Time
	ids        IDGenerator
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithArchive records every terminal result in s and uses it as the
// fingerprint bootstrap source.
func WithArchive(s *store.Store) Option {
	return func(p *Pipeline) { p.archive = s }
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithIDGenerator replaces the UUIDv7 run id fallback.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Pipeline) { p.ids = g }
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline. mail may be nil when messages are supplied
// directly and no flag should be set.
func New(env Env, engine reasoning.Engine, mail collab.Mail, creator collab.Creator, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("pipeline: reasoning engine is required")
	}
	if creator == nil {
		return nil, errors.New("pipeline: creator is required")
	}
	if env.StateDir == "" {
		return nil, errors.New("pipeline: state dir is required")
	}
	if env.SaveMode == "" {
		env.SaveMode = SaveSingle
	}
	if _, err := ParseSaveMode(string(env.SaveMode)); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	n, err := action.NewNormalizer(env.NotesRoot)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	for _, f := range []struct{ name, folder string }{
		{"default folder", env.Resolver.DefaultFolder},
		{"low priority folder", env.LowPriorityFolder},
		{"log folder", env.LogFolder},
	} {
		if !action.InNotesRoot(f.folder, env.NotesRoot) {
			return nil, fmt.Errorf("pipeline: %s %q is not under notes root %q", f.name, f.folder, env.NotesRoot)
		}
	}

	p := &Pipeline{
		env:        env,
		engine:     engine,
		mail:       mail,
		creator:    creator,
		normalizer: n,
		prompts:    newPrompter(env),
		clock:      time.Now,
		ids:        UUIDv7Generator{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Env returns the configuration the pipeline was built with.
func (p *Pipeline) Env() Env { return p.env }

// ProcessLatest fetches the newest unseen message received after since and
// processes it.
func (p *Pipeline) ProcessLatest(ctx context.Context, since time.Time) (*Result, error) {
	if p.mail == nil {
		return nil, &StageError{Stage: StageFetch, Err: errors.New("no mail collaborator configured")}
	}
	m, err := p.mail.Latest(ctx, since)
	if err != nil {
		if collab.IsNotFound(err) {
			return nil, ErrNoMessage
		}
		p.logger.Error("pipeline_failed", "stage", string(StageFetch), "error", err)
		return nil, &StageError{Stage: StageFetch, Err: err}
	}
	return p.Process(ctx, m)
}

// ProcessLocator fetches the message at loc and processes it.
func (p *Pipeline) ProcessLocator(ctx context.Context, loc message.Locator) (*Result, error) {
	if p.mail == nil {
		return nil, &StageError{Stage: StageFetch, Err: errors.New("no mail collaborator configured")}
	}
	m, err := p.mail.Fetch(ctx, loc)
	if err != nil {
		p.logger.Error("pipeline_failed", "stage", string(StageFetch), "message_id", loc.MessageID, "error", err)
		return nil, &StageError{Stage: StageFetch, Err: err}
	}
	return p.Process(ctx, m)
}

// run is the state of one Process call.
type run struct {
	id      string
	dir     string
	msg     message.Message
	log     *slog.Logger
	result  *Result
	actions []action.Action
}

// Process runs one message through the state machine and returns its
// terminal result. A non-nil error is always a *StageError.
func (p *Pipeline) Process(ctx context.Context, raw message.Message) (*Result, error) {
	m := message.Normalize(raw)
	loc := p.env.location()
	started := p.now()

	base := NewRunID(started.In(loc), m.MessageID, p.ids)
	id, err := ClaimRunID(p.env.RunsDir(), base)
	if err != nil {
		p.logger.Error("pipeline_failed", "stage", string(StageSetup), "message_id", m.MessageID, "error", err)
		return nil, &StageError{Stage: StageSetup, RunID: base, Err: err}
	}
	r := &run{
		id:  id,
		dir: p.env.RunDir(id),
		msg: m,
		log: p.logger.With("run_id", id),
		result: &Result{
			RunID:     id,
			MessageID: m.MessageID,
			Subject:   m.Subject,
			Sender:    m.Sender,
			SaveMode:  p.env.SaveMode,
			Items:     []apply.ItemResult{},
			StartedAt: started,
		},
	}
	r.log.Info("pipeline_start",
		"message_id", m.MessageID,
		"subject", m.Subject,
		"save_mode", string(p.env.SaveMode),
	)

	if err := statefile.Save(filepath.Join(r.dir, "message.json"), m); err != nil {
		return nil, p.fail(r, StageSetup, err)
	}

	if reason, blocked := p.env.Blocked.Match(m); blocked {
		r.result.Status = StatusSkippedEarly
		r.result.Decision = string(action.DecisionSkip)
		r.result.Skip = &Skip{Status: StatusSkippedEarly, Target: "none", Reason: reason}
		r.log.Info("pipeline_skipped_early", "reason", reason)
		return p.finish(ctx, r, nil)
	}

	if p.env.Lock {
		lock, err := statefile.Acquire(ctx, p.env.LockPath())
		if err != nil {
			return nil, p.fail(r, StageLock, err)
		}
		defer lock.Release()
	}

	led, err := ledger.Open(p.env.LedgerPath())
	if err != nil {
		return nil, p.fail(r, StageSetup, err)
	}
	if m.MessageID != "" {
		if prev, ok := led.Lookup(m.MessageID); ok {
			r.result.Status = StatusSkippedDuplicate
			r.result.Decision = string(action.DecisionSkip)
			r.result.Skip = &Skip{
				Status:     StatusSkippedDuplicate,
				Target:     "none",
				Reason:     "message_id already processed",
				FirstRunID: prev.RunID,
			}
			r.log.Info("pipeline_skip_duplicate", "message_id", m.MessageID, "first_run_id", prev.RunID)
			return p.finish(ctx, r, nil)
		}
	}

	idx, err := p.openIndex(ctx, r.log)
	if err != nil {
		return nil, p.fail(r, StageIndex, err)
	}

	if err := p.reason(ctx, r, idx); err != nil {
		return nil, err
	}

	eng := &apply.Engine{
		Creator: p.creator,
		Index:   idx,
		Keyer:   p.keyer(),
		Clock:   p.clock,
		Logger:  r.log,
	}
	items, err := eng.Apply(ctx, apply.Run{
		ID:        r.id,
		MessageID: m.MessageID,
		ActionDir: filepath.Join(r.dir, "actions"),
		BaseDir:   p.env.StateDir,
	}, r.actions)
	r.result.Items = items
	r.result.Counts = apply.Tally(items)
	if err != nil {
		return nil, p.fail(r, StageApply, err)
	}

	r.result.Status = StatusApplied
	r.result.Decision = DecisionSummary(r.actions)

	p.flag(ctx, r)
	p.logNote(ctx, r)

	return p.finish(ctx, r, led)
}

// reason runs the configured passes and leaves the final actions on r.
func (p *Pipeline) reason(ctx context.Context, r *run, idx *fingerprint.Index) error {
	loc := p.env.location()
	now := p.now().In(loc)
	received, ok := temporal.ParseLocal(r.msg.ReceivedAt, loc)
	if !ok {
		received = now
	}
	digest := idx.Digest(p.env.digestLimit())

	var planned []action.Action
	for i, pass := range p.env.SaveMode.Passes() {
		stage := passStage(pass)

		var prompt string
		var err error
		if pass == PassParse {
			prompt, err = p.prompts.Parse(r.msg, now, received, digest)
		} else {
			notes := idx.Digest(p.env.digestLimit(), string(action.DecisionNote))
			prompt, err = p.prompts.Replan(pass, r.msg, now, received, planned, digest, notes)
		}
		if err != nil {
			return p.fail(r, stage, err)
		}

		stem := fmt.Sprintf("%02d-%s", i+1, pass)
		if err := statefile.WriteFile(filepath.Join(r.dir, stem+".prompt.txt"), []byte(prompt)); err != nil {
			return p.fail(r, stage, err)
		}

		out, err := p.engine.Complete(ctx, reasoning.Request{
			Pass:   pass,
			Prompt: prompt,
			Schema: p.prompts.schema,
			Dir:    r.dir,
		})
		if len(out) > 0 {
			if werr := statefile.WriteFile(filepath.Join(r.dir, stem+".raw.txt"), out); werr != nil {
				r.log.Warn("raw_output_unsaved", "pass", pass, "error", werr)
			}
		}
		if err != nil {
			return p.fail(r, stage, err)
		}

		obj, err := reasoning.ExtractObject(out)
		if err != nil {
			var re *reasoning.Error
			if errors.As(err, &re) && re.Pass == "" {
				re.Pass = pass
			}
			return p.fail(r, stage, err)
		}
		actions, err := p.normalizer.DecodeBatch(obj)
		if err != nil {
			return p.fail(r, stage, err)
		}

		actions, rec, err := p.refine(r, actions)
		if err != nil {
			return p.fail(r, stage, err)
		}
		rec.Pass = pass
		r.result.Passes = append(r.result.Passes, rec)
		r.log.Info("reasoning_pass",
			"pass", pass,
			"actions", len(actions),
			"downgraded", rec.Downgraded,
			"corrected", len(rec.Corrections),
		)
		planned = actions
	}
	r.actions = planned
	return nil
}

// refine applies the policy rules and weekday correction to every action
// and re-validates the result.
func (p *Pipeline) refine(r *run, actions []action.Action) ([]action.Action, PassRecord, error) {
	rec := PassRecord{Actions: len(actions)}
	pol := action.Policy{LowPriorityFolder: p.env.LowPriorityFolder}
	corr := temporal.Corrector{Location: p.env.location(), Now: p.now, Logger: r.log}
	src := action.Source{Sender: r.msg.Sender, Subject: r.msg.Subject}

	out := make([]action.Action, len(actions))
	for i, a := range actions {
		if downgraded, changed := pol.Apply(a, src); changed {
			rec.Downgraded++
			r.log.Info("decision_downgraded", "index", i+1, "title", a.Title, "from", string(a.Decision))
			a = downgraded
		}
		var changes []temporal.Change
		a, changes = corr.Correct(a, r.msg)
		rec.Corrections = append(rec.Corrections, changes...)
		if err := p.normalizer.Check(i, a); err != nil {
			return nil, rec, err
		}
		out[i] = a
	}
	return out, rec, nil
}

func (p *Pipeline) flag(ctx context.Context, r *run) {
	flag := collab.FlagFor(apply.CreatedDecisions(r.result.Items))
	r.result.Flag = flag
	if p.mail == nil {
		return
	}
	if err := p.mail.SetFlag(ctx, r.msg.Locator(), flag); err != nil {
		r.result.FlagError = err.Error()
		r.log.Warn("flag_failed", "flag", string(flag), "error", err)
	}
}

func (p *Pipeline) logNote(ctx context.Context, r *run) {
	title, body := RenderLogNote(r.result)
	folder := p.env.LogFolder
	if folder == "" {
		folder = p.env.Resolver.Folder("")
	}
	id, err := p.creator.Create(ctx, collab.CreateRequest{
		Kind:        action.DecisionNote,
		Title:       title,
		Notes:       body,
		Destination: folder,
	})
	if err != nil {
		r.result.LogError = err.Error()
		r.log.Warn("log_note_failed", "folder", folder, "error", err)
		return
	}
	r.result.LogNoteID = id
}

// finish writes the terminal result, commits led when non-nil, and
// archives the run.
func (p *Pipeline) finish(ctx context.Context, r *run, led *ledger.Ledger) (*Result, error) {
	res := r.result
	res.FinishedAt = p.now()
	res.Timestamp = res.FinishedAt.In(p.env.location()).Format(time.RFC3339)

	if err := statefile.Save(filepath.Join(r.dir, "result.json"), res); err != nil {
		return nil, p.fail(r, StageResult, err)
	}

	if led != nil && res.MessageID != "" {
		entry := ledger.Entry{Timestamp: res.Timestamp, RunID: res.RunID, Decision: res.Decision}
		if err := led.Commit(res.MessageID, entry); err != nil {
			return nil, p.fail(r, StageLedger, err)
		}
		r.log.Info("ledger_committed", "message_id", res.MessageID, "decision", res.Decision)
	}

	if p.archive != nil {
		row, err := res.archiveRun()
		if err == nil {
			err = p.archive.WriteRun(ctx, row)
		}
		if err != nil {
			r.log.Warn("archive_failed", "error", err)
		}
	}

	r.log.Info("pipeline_done",
		"status", string(res.Status),
		"decision", res.Decision,
		"created", res.Counts.Created,
		"skipped", res.Counts.Skipped,
		"failed", res.Counts.Failed,
	)
	return res, nil
}

// fail logs a fatal error, leaves error.txt in the run directory, and
// returns it as a *StageError.
func (p *Pipeline) fail(r *run, stage Stage, err error) error {
	se := &StageError{Stage: stage, RunID: r.id, Err: err}
	r.log.Error("pipeline_failed", "stage", string(stage), "error", err)
	if werr := statefile.WriteFile(filepath.Join(r.dir, "error.txt"), []byte(se.Error()+"\n")); werr != nil {
		r.log.Warn("error_unsaved", "error", werr)
	}
	return se
}

func (p *Pipeline) openIndex(ctx context.Context, log *slog.Logger) (*fingerprint.Index, error) {
	idx, err := fingerprint.OpenIndex(p.env.IndexPath())
	if err != nil {
		return nil, err
	}
	if p.archive == nil {
		return idx, nil
	}
	stale, err := fingerprint.Stale(ctx, p.archive, idx)
	if err != nil {
		return nil, err
	}
	if stale {
		if _, err := fingerprint.Bootstrap(ctx, p.archive, idx, p.keyer(), p.env.StateDir, log); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Reindex rebuilds the fingerprint index from the archive.
func (p *Pipeline) Reindex(ctx context.Context) (fingerprint.BootstrapResult, error) {
	if p.archive == nil {
		return fingerprint.BootstrapResult{}, errors.New("reindex: no archive configured")
	}
	if p.env.Lock {
		lock, err := statefile.Acquire(ctx, p.env.LockPath())
		if err != nil {
			return fingerprint.BootstrapResult{}, err
		}
		defer lock.Release()
	}
	if err := os.Remove(p.env.IndexPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fingerprint.BootstrapResult{}, fmt.Errorf("reindex: %w", err)
	}
	idx, err := fingerprint.OpenIndex(p.env.IndexPath())
	if err != nil {
		return fingerprint.BootstrapResult{}, err
	}
	return fingerprint.Bootstrap(ctx, p.archive, idx, p.keyer(), p.env.StateDir, p.logger)
}

func (p *Pipeline) keyer() fingerprint.Keyer {
	return fingerprint.Keyer{Resolver: p.env.Resolver}
}

func (p *Pipeline) now() time.Time {
	return p.clock()
}
