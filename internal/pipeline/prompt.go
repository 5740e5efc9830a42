package pipeline

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/roach88/triage/internal/action"
	"github.com/roach88/triage/internal/message"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// promptData is the view every prompt template renders from.
type promptData struct {
	Pass               string
	Schema             string
	MaxReminderMinutes int
	NotesRoot          string
	DefaultCalendar    string
	DefaultList        string
	DefaultFolder      string
	Now                string
	Received           string
	Message            message.Message

	// Digest lists recently saved items of any decision.
	Digest string

	// NotesDigest lists recently saved notes only.
	NotesDigest string

	// Actions is the previous pass output, indented JSON.
	Actions string
}

// prompter renders the prompt of each pass.
type prompter struct {
	env    Env
	schema map[string]any
}

func newPrompter(env Env) prompter {
	return prompter{env: env, schema: action.BatchDocument(env.NotesRoot)}
}

func (p prompter) data(pass string, m message.Message, now, received time.Time) (promptData, error) {
	schema, err := json.MarshalIndent(p.schema, "", "  ")
	if err != nil {
		return promptData{}, fmt.Errorf("marshal schema: %w", err)
	}
	return promptData{
		Pass:               pass,
		Schema:             string(schema),
		MaxReminderMinutes: action.MaxReminderMinutes,
		NotesRoot:          p.env.NotesRoot,
		DefaultCalendar:    p.env.Resolver.DefaultCalendar,
		DefaultList:        p.env.Resolver.DefaultList,
		DefaultFolder:      p.env.Resolver.DefaultFolder,
		Now:                now.Format(time.RFC3339),
		Received:           received.Format(time.RFC3339),
		Message:            m,
	}, nil
}

// Parse renders the first-pass prompt. digest lists saved fingerprints.
func (p prompter) Parse(m message.Message, now, received time.Time, digest string) (string, error) {
	d, err := p.data(PassParse, m, now, received)
	if err != nil {
		return "", err
	}
	d.Digest = digest
	return render("parse.tmpl", d)
}

// Replan renders a re-plan prompt over the previous pass output.
func (p prompter) Replan(pass string, m message.Message, now, received time.Time, planned []action.Action, digest, notes string) (string, error) {
	d, err := p.data(pass, m, now, received)
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(map[string]any{"actions": planned}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal planned actions: %w", err)
	}
	d.Actions = string(b)
	d.Digest = digest
	d.NotesDigest = notes
	return render("replan.tmpl", d)
}

func render(name string, d promptData) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, d); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()) + "\n", nil
}
