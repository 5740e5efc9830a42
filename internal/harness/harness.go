package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/roach88/triage/internal/apply"
	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/collab/memory"
	"github.com/roach88/triage/internal/config"
	"github.com/roach88/triage/internal/fingerprint"
	"github.com/roach88/triage/internal/ledger"
	"github.com/roach88/triage/internal/message"
	"github.com/roach88/triage/internal/pipeline"
	"github.com/roach88/triage/internal/reasoning"
	"github.com/roach88/triage/internal/store"
	"github.com/roach88/triage/internal/testutil"
)

// logNotePrefix marks the per-run log note among created items.
const logNotePrefix = "Triage log "

// Run executes a scenario in a fresh temporary state directory.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "triage-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	defer os.RemoveAll(dir)

	h, err := newHarness(scenario, dir)
	if err != nil {
		return nil, err
	}
	defer h.archive.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	if err := h.collectState(ctx, result); err != nil {
		return nil, err
	}
	for _, e := range EvaluateAssertions(result, scenario.Assertions, h.creator.Created()) {
		result.AddError(e.Error())
	}
	return result, nil
}

type harness struct {
	scenario *Scenario
	env      pipeline.Env
	mail     *memory.Mail
	creator  *memory.Creator
	archive  *store.Store
	clock    *testutil.Clock
	ids      *testutil.SequenceGenerator
	logger   *slog.Logger
	calls    int
}

func newHarness(s *Scenario, dir string) (*harness, error) {
	start, err := time.Parse(time.RFC3339, s.Now)
	if err != nil {
		return nil, fmt.Errorf("now: %w", err)
	}

	cfg, err := config.Load("", func(string) string { return "" })
	if err != nil {
		return nil, err
	}
	cfg.StateDir = dir
	cfg.Timezone = s.Timezone
	if s.NotesRoot != "" {
		cfg.NotesRoot = s.NotesRoot
	}
	cfg.Blocked = config.Blocked{Accounts: s.Blocked.Accounts, Senders: s.Blocked.Senders}
	if err := cfg.Apply(config.Overrides{SaveMode: s.SaveMode}); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env, err := cfg.Env(logger)
	if err != nil {
		return nil, err
	}

	archive, err := store.Open(env.ArchivePath())
	if err != nil {
		return nil, err
	}

	mail := memory.NewMail()
	if s.FlagError != "" {
		mail.FlagErr = &collab.Error{Op: "set_flag", Code: collab.CodeUnavailable, Err: errors.New(s.FlagError)}
	}
	creator := memory.NewCreator()
	creator.NewID = testutil.NewSequenceGenerator("item").Generate
	for _, f := range s.Failures {
		n := f.Times
		if n == 0 {
			n = -1
		}
		creator.FailTimes(f.Title, collab.Code(f.Code), n)
	}

	return &harness{
		scenario: s,
		env:      env,
		mail:     mail,
		creator:  creator,
		archive:  archive,
		clock:    testutil.NewClock(start, time.Second),
		ids:      testutil.NewSequenceGenerator("run"),
		logger:   logger,
	}, nil
}

func (h *harness) runStep(ctx context.Context, n int, step Step, result *Result) error {
	responses := make([]reasoning.Response, len(step.Responses))
	for i, r := range step.Responses {
		responses[i] = reasoning.Response{Output: r.Output, Err: r.Error}
	}
	script := reasoning.NewScript(responses...)

	p, err := pipeline.New(h.env, script, h.mail, h.creator,
		pipeline.WithArchive(h.archive),
		pipeline.WithClock(h.clock.Now),
		pipeline.WithIDGenerator(h.ids),
		pipeline.WithLogger(h.logger),
	)
	if err != nil {
		return err
	}

	msg := message.Message{
		MessageID:  step.Message.MessageID,
		Subject:    step.Message.Subject,
		Sender:     step.Message.Sender,
		ReceivedAt: step.Message.ReceivedAt,
		Mailbox:    step.Message.Mailbox,
		Account:    step.Message.Account,
		Body:       step.Message.Body,
	}
	before := len(h.creator.Created())
	res, runErr := p.Process(ctx, msg)
	h.calls += len(script.Requests())

	if runErr != nil {
		stage := pipeline.StageOf(runErr)
		var se *pipeline.StageError
		runID := ""
		if errors.As(runErr, &se) {
			runID = se.RunID
		}
		result.RunIDs = append(result.RunIDs, runID)
		result.add(TraceEvent{Type: EventRun, Step: n, ErrorStage: string(stage)})
		h.recordCreates(n, before, result)
		checkFailure(n, step.Expect, stage, runErr, result)
		return nil
	}

	result.RunIDs = append(result.RunIDs, res.RunID)
	h.record(n, res, result)
	h.recordCreates(n, before, result)
	checkExpect(n, step.Expect, res, result)
	return nil
}

func (h *harness) record(n int, res *pipeline.Result, result *Result) {
	counts := res.Counts
	ev := TraceEvent{
		Type:     EventRun,
		Step:     n,
		Status:   string(res.Status),
		Decision: res.Decision,
		Flag:     string(res.Flag),
		Counts:   &counts,
	}
	if res.Skip != nil {
		ev.FirstStep = result.stepOf(res.Skip.FirstRunID)
	}
	result.add(ev)

	for _, it := range res.Items {
		result.add(TraceEvent{
			Type:      EventItem,
			Step:      n,
			Index:     it.Index,
			Decision:  string(it.Decision),
			Title:     it.Title,
			Status:    string(it.Status),
			FirstStep: result.stepOf(it.Result.FirstRunID),
		})
	}
}

func (h *harness) recordCreates(n, before int, result *Result) {
	for _, c := range h.creator.Created()[before:] {
		req := c.Request
		if strings.HasPrefix(req.Title, logNotePrefix) {
			result.add(TraceEvent{Type: EventLogNote, Step: n, Destination: req.Destination})
			continue
		}
		result.add(TraceEvent{
			Type:        EventCreate,
			Step:        n,
			Kind:        string(req.Kind),
			Title:       req.Title,
			Destination: req.Destination,
			Start:       req.Start,
			End:         req.End,
			Due:         req.Due,
		})
	}
}

func (h *harness) collectState(ctx context.Context, result *Result) error {
	led, err := ledger.Open(h.env.LedgerPath())
	if err != nil {
		return err
	}
	idx, err := fingerprint.OpenIndex(h.env.IndexPath())
	if err != nil {
		return err
	}
	runs, err := h.archive.ListRuns(ctx, len(h.scenario.Steps))
	if err != nil {
		return err
	}

	result.State.LedgerEntries = led.Len()
	result.State.IndexRecords = idx.Len()
	result.State.ArchivedRuns = len(runs)
	result.State.ReasoningCalls = h.calls
	for _, step := range h.scenario.Steps {
		id := step.Message.MessageID
		if f, ok := h.mail.Flag(id); ok {
			result.State.Flags[id] = string(f)
		}
	}
	return nil
}

func checkExpect(n int, want *Expect, res *pipeline.Result, result *Result) {
	if want == nil {
		return
	}
	if want.ErrorStage != "" {
		result.AddError(fmt.Sprintf("step %d: expected failure in %s, run finished as %s", n, want.ErrorStage, res.Status))
		return
	}
	if want.Status != "" && want.Status != string(res.Status) {
		result.AddError(fmt.Sprintf("step %d: status: expected %q, got %q", n, want.Status, res.Status))
	}
	if want.Decision != "" && want.Decision != res.Decision {
		result.AddError(fmt.Sprintf("step %d: decision: expected %q, got %q", n, want.Decision, res.Decision))
	}
	if want.Flag != "" && want.Flag != string(res.Flag) {
		result.AddError(fmt.Sprintf("step %d: flag: expected %q, got %q", n, want.Flag, res.Flag))
	}
	if want.Items != nil {
		got := make([]string, len(res.Items))
		for i, it := range res.Items {
			got[i] = string(it.Status)
		}
		if strings.Join(got, ",") != strings.Join(want.Items, ",") {
			result.AddError(fmt.Sprintf("step %d: items: expected %v, got %v", n, want.Items, got))
		}
	}
	if want.Counts != nil {
		wc := apply.Counts{Created: want.Counts.Created, Skipped: want.Counts.Skipped, Failed: want.Counts.Failed}
		if wc != res.Counts {
			result.AddError(fmt.Sprintf("step %d: counts: expected %+v, got %+v", n, wc, res.Counts))
		}
	}
	if want.FirstStep != 0 {
		got := 0
		if res.Skip != nil {
			got = result.stepOf(res.Skip.FirstRunID)
		}
		if got != want.FirstStep {
			result.AddError(fmt.Sprintf("step %d: first_step: expected %d, got %d", n, want.FirstStep, got))
		}
	}
}

func checkFailure(n int, want *Expect, stage pipeline.Stage, err error, result *Result) {
	if want == nil || want.ErrorStage == "" {
		result.AddError(fmt.Sprintf("step %d: unexpected failure: %v", n, err))
		return
	}
	if want.ErrorStage != string(stage) {
		result.AddError(fmt.Sprintf("step %d: error_stage: expected %q, got %q", n, want.ErrorStage, stage))
	}
}
