package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Normalizer turns raw reasoning output into validated actions.
type Normalizer struct {
	schema *jsonschema.Schema
}

// NewNormalizer compiles the action schema for the given notes root.
func NewNormalizer(notesRoot string) (*Normalizer, error) {
	schema, err := compileDocument(notesRoot)
	if err != nil {
		return nil, err
	}
	return &Normalizer{schema: schema}, nil
}

// DecodeBatch parses a reasoning payload and normalizes every action in it.
//
// Accepted shapes:
//   - {"actions": [action, ...]} with a non-empty list
//   - a bare action object, treated as a one-element batch
//   - an array holding exactly one of the above
func (n *Normalizer) DecodeBatch(data []byte) ([]Action, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, &SchemaError{Index: -1, Reason: fmt.Sprintf("payload is not JSON: %v", err)}
	}
	return n.NormalizePayload(payload)
}

// NormalizePayload normalizes an already decoded payload. See DecodeBatch.
func (n *Normalizer) NormalizePayload(payload any) ([]Action, error) {
	switch v := payload.(type) {
	case map[string]any:
		raw, ok := v["actions"]
		if !ok {
			a, err := n.normalize(-1, v)
			if err != nil {
				return nil, err
			}
			return []Action{a}, nil
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, &SchemaError{Index: -1, Reason: "actions must be a list"}
		}
		if len(list) == 0 {
			return nil, &SchemaError{Index: -1, Reason: "actions must not be empty"}
		}
		out := make([]Action, 0, len(list))
		for i, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, &SchemaError{Index: i, Reason: "action must be an object"}
			}
			a, err := n.normalize(i, obj)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		return out, nil
	case []any:
		if len(v) != 1 {
			return nil, &SchemaError{Index: -1, Reason: fmt.Sprintf("expected a one-element array, got %d elements", len(v))}
		}
		if _, ok := v[0].(map[string]any); !ok {
			return nil, &SchemaError{Index: -1, Reason: "array element must be an object"}
		}
		return n.NormalizePayload(v[0])
	default:
		return nil, &SchemaError{Index: -1, Reason: "payload must be an object"}
	}
}

// Normalize validates one raw action record.
func (n *Normalizer) Normalize(raw map[string]any) (Action, error) {
	return n.normalize(-1, raw)
}

func (n *Normalizer) normalize(index int, raw map[string]any) (Action, error) {
	if missing, extra := diffKeys(raw); len(missing) > 0 || len(extra) > 0 {
		return Action{}, &SchemaError{Index: index, Missing: missing, Extra: extra}
	}

	c := coercer{index: index, raw: raw}
	a := Action{
		Decision:        Decision(strings.ToLower(strings.TrimSpace(c.text("decision")))),
		Importance:      Importance(strings.ToLower(strings.TrimSpace(c.text("importance")))),
		Title:           c.text("title"),
		Start:           c.text("start"),
		End:             c.text("end"),
		Due:             c.text("due"),
		Notes:           c.text("notes"),
		ReminderMinutes: c.integer("reminderMinutes"),
		Calendar:        c.text("calendar"),
		List:            c.text("list"),
		Folder:          c.text("folder"),
		Reason:          c.text("reason"),
	}
	if c.err != nil {
		return Action{}, c.err
	}

	if !a.Decision.Valid() {
		return Action{}, &ValueError{Index: index, Field: "decision", Value: string(a.Decision), Reason: "not one of calendar, reminder, note, skip"}
	}
	if !a.Importance.Valid() {
		return Action{}, &ValueError{Index: index, Field: "importance", Value: string(a.Importance), Reason: "not one of high, medium, low"}
	}
	if a.ReminderMinutes < 0 {
		return Action{}, &ValueError{Index: index, Field: "reminderMinutes", Value: strconv.Itoa(a.ReminderMinutes), Reason: "cannot be negative"}
	}

	if err := n.validate(a); err != nil {
		return Action{}, &SchemaError{Index: index, Violations: violations(err)}
	}
	return a, nil
}

// Check re-validates an action that was rewritten after normalization.
// index is reported in the SchemaError.
func (n *Normalizer) Check(index int, a Action) error {
	if err := n.validate(a); err != nil {
		return &SchemaError{Index: index, Violations: violations(err)}
	}
	return nil
}

func (n *Normalizer) validate(a Action) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return n.schema.Validate(doc)
}

func diffKeys(raw map[string]any) (missing, extra []string) {
	want := make(map[string]bool, len(Keys))
	for _, k := range Keys {
		want[k] = true
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range raw {
		if !want[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

// coercer converts loosely typed JSON values, keeping the first failure.
type coercer struct {
	index int
	raw   map[string]any
	err   error
}

func (c *coercer) fail(field string, v any, reason string) {
	if c.err == nil {
		c.err = &ValueError{Index: c.index, Field: field, Value: fmt.Sprint(v), Reason: reason}
	}
}

func (c *coercer) text(field string) string {
	switch v := c.raw[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		c.fail(field, v, "expected text")
		return ""
	}
}

func (c *coercer) integer(field string) int {
	switch v := c.raw[field].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		f, err := v.Float64()
		if err != nil || f != float64(int64(f)) {
			c.fail(field, v, "expected an integer")
			return 0
		}
		return int(f)
	case float64:
		if v != float64(int64(v)) {
			c.fail(field, v, "expected an integer")
			return 0
		}
		return int(v)
	case int:
		return v
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			c.fail(field, v, "expected an integer")
			return 0
		}
		return i
	default:
		c.fail(field, v, "expected an integer")
		return 0
	}
}
