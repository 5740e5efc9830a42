package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/pipeline"
)

// Scenario is a YAML-defined pipeline conformance test.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Now is the RFC 3339 instant of the first run. The clock advances
	// one second per reading.
	Now string `yaml:"now"`

	Timezone  string `yaml:"timezone,omitempty"`
	SaveMode  string `yaml:"save_mode,omitempty"`
	NotesRoot string `yaml:"notes_root,omitempty"`

	Blocked Blocked `yaml:"blocked,omitempty"`

	// Failures make the in-memory creator reject titles.
	Failures []Failure `yaml:"failures,omitempty"`

	// FlagError makes every flag call fail with this message.
	FlagError string `yaml:"flag_error,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Blocked lists account and sender patterns skipped before reasoning.
type Blocked struct {
	Accounts []string `yaml:"accounts,omitempty"`
	Senders  []string `yaml:"senders,omitempty"`
}

// Failure rejects creates of Title with Code. Times limits the number of
// rejections; zero rejects forever.
type Failure struct {
	Title string `yaml:"title"`
	Code  string `yaml:"code"`
	Times int    `yaml:"times,omitempty"`
}

// Step processes one message.
type Step struct {
	Message   Message    `yaml:"message"`
	Responses []Response `yaml:"responses,omitempty"`
	Expect    *Expect    `yaml:"expect,omitempty"`
}

// Message is the inbound email of a step.
type Message struct {
	MessageID  string `yaml:"message_id"`
	Subject    string `yaml:"subject,omitempty"`
	Sender     string `yaml:"sender,omitempty"`
	ReceivedAt string `yaml:"received_at,omitempty"`
	Mailbox    string `yaml:"mailbox,omitempty"`
	Account    string `yaml:"account,omitempty"`
	Body       string `yaml:"body,omitempty"`
}

// Response is the scripted output of one reasoning pass.
type Response struct {
	Output string `yaml:"output,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Expect describes what a step must produce. Empty fields are not checked.
type Expect struct {
	Status   string `yaml:"status,omitempty"`
	Decision string `yaml:"decision,omitempty"`
	Flag     string `yaml:"flag,omitempty"`

	// Items lists the item statuses in order.
	Items []string `yaml:"items,omitempty"`

	// ErrorStage expects the run to fail in the named stage.
	ErrorStage string `yaml:"error_stage,omitempty"`

	// FirstStep is the step a duplicate must refer back to.
	FirstStep int `yaml:"first_step,omitempty"`

	Counts *Counts `yaml:"counts,omitempty"`
}

// Counts mirrors apply.Counts.
type Counts struct {
	Created int `yaml:"created"`
	Skipped int `yaml:"skipped"`
	Failed  int `yaml:"failed"`
}

// Assertion types.
const (
	AssertCreatedCount   = "created_count"
	AssertCreated        = "created"
	AssertLedgerCount    = "ledger_count"
	AssertIndexCount     = "index_count"
	AssertArchiveCount   = "archive_count"
	AssertReasoningCalls = "reasoning_calls"
	AssertFlag           = "flag"
)

// Assertion is a check on the state after the last step.
type Assertion struct {
	Type string `yaml:"type"`

	// Count is used by the *_count and reasoning_calls types. For
	// created_count, Kind narrows the count to one decision.
	Count *int   `yaml:"count,omitempty"`
	Kind  string `yaml:"kind,omitempty"`

	// Match is the subset of create request fields a created item must
	// carry: kind, title, start, end, due, destination, notes.
	Match map[string]string `yaml:"match,omitempty"`

	// MessageID and Flag are used by the flag type. An empty Flag
	// asserts the message was not flagged.
	MessageID string `yaml:"message_id,omitempty"`
	Flag      string `yaml:"flag,omitempty"`
}

var matchFields = map[string]bool{
	"kind": true, "title": true, "start": true, "end": true,
	"due": true, "destination": true, "notes": true,
}

// LoadScenario loads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a scenario. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Now == "" {
		return fmt.Errorf("now is required")
	}
	if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
		return fmt.Errorf("now: %w", err)
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if _, err := pipeline.ParseSaveMode(s.SaveMode); err != nil {
		return err
	}
	if _, err := pipeline.NewBlocklist(s.Blocked.Accounts, s.Blocked.Senders); err != nil {
		return err
	}
	for i, f := range s.Failures {
		if f.Title == "" {
			return fmt.Errorf("failures[%d]: title is required", i)
		}
		if !validCode(f.Code) {
			return fmt.Errorf("failures[%d]: unknown code %q", i, f.Code)
		}
		if f.Times < 0 {
			return fmt.Errorf("failures[%d]: times must not be negative", i)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	if step.Message.MessageID == "" && step.Message.Subject == "" {
		return fmt.Errorf("steps[%d]: message needs a message_id or a subject", i)
	}
	for j, r := range step.Responses {
		if r.Output != "" && r.Error != "" {
			return fmt.Errorf("steps[%d].responses[%d]: output and error are exclusive", i, j)
		}
	}
	if step.Expect == nil {
		return nil
	}
	if fs := step.Expect.FirstStep; fs != 0 && (fs < 1 || fs > i) {
		return fmt.Errorf("steps[%d]: first_step %d must name an earlier step", i, fs)
	}
	if step.Expect.ErrorStage != "" && step.Expect.Status != "" {
		return fmt.Errorf("steps[%d]: error_stage and status are exclusive", i)
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertCreatedCount, AssertLedgerCount, AssertIndexCount, AssertArchiveCount, AssertReasoningCalls:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: %s requires count", i, a.Type)
		}
	case AssertCreated:
		if len(a.Match) == 0 {
			return fmt.Errorf("assertions[%d]: created requires match", i)
		}
		for k := range a.Match {
			if !matchFields[k] {
				return fmt.Errorf("assertions[%d]: unknown match field %q", i, k)
			}
		}
	case AssertFlag:
		if a.MessageID == "" {
			return fmt.Errorf("assertions[%d]: flag requires message_id", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}

func validCode(code string) bool {
	switch collab.Code(code) {
	case collab.CodeNotFound, collab.CodeTransient, collab.CodeRejected, collab.CodeUnavailable:
		return true
	}
	return false
}
