// Package message defines the normalized email record the pipeline triages.
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message is a normalized email record. It is input context only and is
// never mutated after it has been fetched.
type Message struct {
	MessageID  string `json:"messageID"`
	Subject    string `json:"subject"`
	Sender     string `json:"sender"`
	ReceivedAt string `json:"receivedAt"`
	Mailbox    string `json:"mailbox"`
	Account    string `json:"account"`
	Body       string `json:"body"`
}

// Locator addresses a message inside the mail collaborator.
type Locator struct {
	Account   string `json:"account"`
	Mailbox   string `json:"mailbox"`
	MessageID string `json:"messageID"`
}

// Locator returns the address of m.
func (m Message) Locator() Locator {
	return Locator{Account: m.Account, Mailbox: m.Mailbox, MessageID: m.MessageID}
}

// Normalize trims every header field. The body is kept verbatim.
func Normalize(m Message) Message {
	return Message{
		MessageID:  strings.TrimSpace(m.MessageID),
		Subject:    strings.TrimSpace(m.Subject),
		Sender:     strings.TrimSpace(m.Sender),
		ReceivedAt: strings.TrimSpace(m.ReceivedAt),
		Mailbox:    strings.TrimSpace(m.Mailbox),
		Account:    strings.TrimSpace(m.Account),
		Body:       m.Body,
	}
}

// ErrEmptyPayload is returned by Decode for blank input or an empty array.
var ErrEmptyPayload = errors.New("message payload is empty")

// Decode parses a message payload. Two shapes are accepted: a single JSON
// object, or an array holding exactly one object. Anything else fails.
func Decode(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Message{}, ErrEmptyPayload
	}

	switch trimmed[0] {
	case '{':
		return decodeObject(trimmed)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Message{}, fmt.Errorf("decode message array: %w", err)
		}
		if len(items) == 0 {
			return Message{}, ErrEmptyPayload
		}
		if len(items) > 1 {
			return Message{}, fmt.Errorf("decode message array: expected one object, got %d", len(items))
		}
		item := bytes.TrimSpace(items[0])
		if len(item) == 0 || item[0] != '{' {
			return Message{}, fmt.Errorf("decode message array: element is not an object")
		}
		return decodeObject(item)
	default:
		return Message{}, fmt.Errorf("decode message: expected JSON object or one-element array")
	}
}

func decodeObject(data []byte) (Message, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	m := Message{
		MessageID:  field(raw, "messageID"),
		Subject:    field(raw, "subject"),
		Sender:     field(raw, "sender"),
		ReceivedAt: field(raw, "receivedAt"),
		Mailbox:    field(raw, "mailbox"),
		Account:    field(raw, "account"),
		Body:       field(raw, "body"),
	}
	return Normalize(m), nil
}

// field reads a loosely typed value as text. Mail rules occasionally emit
// numeric ids, so non-string scalars are formatted rather than rejected.
func field(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
	default:
		return fmt.Sprint(val)
	}
}
