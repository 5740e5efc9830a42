package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxReminderMinutes bounds the reminder lead time.
const MaxReminderMinutes = 240

// Document returns the JSON Schema for one action. Folder values must be
// empty or start with notesRoot followed by a slash.
func Document(notesRoot string) map[string]any {
	text := map[string]any{"type": "string"}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             Keys,
		"properties": map[string]any{
			"decision":   map[string]any{"type": "string", "enum": Decisions},
			"importance": map[string]any{"type": "string", "enum": Importances},
			"title":      text,
			"start":      text,
			"end":        text,
			"due":        text,
			"notes":      text,
			"reminderMinutes": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"maximum": MaxReminderMinutes,
			},
			"calendar": text,
			"list":     text,
			"folder": map[string]any{
				"type":    "string",
				"pattern": folderPattern(notesRoot),
			},
			"reason": text,
		},
	}
}

// BatchDocument returns the JSON Schema handed to the reasoning engine:
// an object with a non-empty "actions" array of actions.
func BatchDocument(notesRoot string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"actions"},
		"properties": map[string]any{
			"actions": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    Document(notesRoot),
			},
		},
	}
}

// InNotesRoot reports whether folder is empty or a folder below notesRoot.
func InNotesRoot(folder, notesRoot string) bool {
	if folder == "" {
		return true
	}
	rest, ok := strings.CutPrefix(folder, notesRoot+"/")
	return ok && rest != ""
}

func folderPattern(notesRoot string) string {
	return "^$|^" + regexp.QuoteMeta(notesRoot) + "/.+"
}

func compileDocument(notesRoot string) (*jsonschema.Schema, error) {
	doc, err := json.Marshal(Document(notesRoot))
	if err != nil {
		return nil, fmt.Errorf("marshal action schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://triage.schemas.local/action.schema.json"
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("action schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("action schema compile failed: %w", err)
	}
	return compiled, nil
}

// violations flattens a validation error tree into its leaf messages.
func violations(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := v.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, loc+": "+v.Message)
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(out)
	return out
}
