// Package gmail implements the mail collaborator on top of the Gmail API.
//
// Messages are addressed by Gmail message id. Flags become user labels
// named "<prefix>/<flag>"; a message carrying any of those labels is no
// longer a candidate for Latest.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/roach88/triage/internal/collab"
	"github.com/roach88/triage/internal/message"
)

const user = "me"

// DefaultLabelPrefix is used when no prefix is configured.
const DefaultLabelPrefix = "Triage"

// Client is a collab.Mail backed by Gmail.
type Client struct {
	srv     *gmail.Service
	prefix  string
	account string

	mu     sync.Mutex
	labels map[string]string // name -> id
}

var _ collab.Mail = (*Client)(nil)

// New builds a client from an OAuth client secret file and a stored token.
// The token must already exist; there is no interactive consent flow here.
func New(ctx context.Context, credentialsPath, tokenPath, labelPrefix string) (*Client, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read token %s (authorize at %s): %w",
			tokenPath, oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline), err)
	}
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return NewWithService(srv, labelPrefix), nil
}

// NewWithService wraps an existing Gmail service.
func NewWithService(srv *gmail.Service, labelPrefix string) *Client {
	if labelPrefix == "" {
		labelPrefix = DefaultLabelPrefix
	}
	return &Client{srv: srv, prefix: labelPrefix, account: "gmail", labels: map[string]string{}}
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// Fetch implements collab.Mail.
func (c *Client) Fetch(ctx context.Context, loc message.Locator) (message.Message, error) {
	msg, err := c.srv.Users.Messages.Get(user, loc.MessageID).Format("full").Context(ctx).Do()
	if err != nil {
		return message.Message{}, classify("fetch", err)
	}
	return c.toMessage(msg), nil
}

// Latest implements collab.Mail.
func (c *Client) Latest(ctx context.Context, since time.Time) (message.Message, error) {
	list, err := c.srv.Users.Messages.List(user).Q(c.query(since)).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return message.Message{}, classify("latest", err)
	}
	if len(list.Messages) == 0 {
		return message.Message{}, &collab.Error{Op: "latest", Code: collab.CodeNotFound, Err: errors.New("no unseen message")}
	}
	return c.Fetch(ctx, message.Locator{Account: c.account, MessageID: list.Messages[0].Id})
}

// SetFlag implements collab.Mail.
func (c *Client) SetFlag(ctx context.Context, loc message.Locator, flag collab.Flag) error {
	labelID, err := c.labelID(ctx, c.labelName(flag))
	if err != nil {
		return err
	}
	_, err = c.srv.Users.Messages.Modify(user, loc.MessageID, &gmail.ModifyMessageRequest{
		AddLabelIds: []string{labelID},
	}).Context(ctx).Do()
	if err != nil {
		return classify("set_flag", err)
	}
	return nil
}

func (c *Client) labelName(flag collab.Flag) string {
	return c.prefix + "/" + string(flag)
}

// query selects inbox mail not yet labeled by any flag.
func (c *Client) query(since time.Time) string {
	parts := []string{"in:inbox", "-in:draft"}
	for _, f := range []collab.Flag{collab.FlagFollowUp, collab.FlagSaved, collab.FlagSkipped} {
		parts = append(parts, fmt.Sprintf("-label:%q", c.labelName(f)))
	}
	if !since.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", since.Unix()))
	}
	return strings.Join(parts, " ")
}

func (c *Client) labelID(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.labels[name]; ok {
		return id, nil
	}
	list, err := c.srv.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return "", classify("labels", err)
	}
	for _, l := range list.Labels {
		c.labels[l.Name] = l.Id
	}
	if id, ok := c.labels[name]; ok {
		return id, nil
	}
	created, err := c.srv.Users.Labels.Create(user, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", classify("create_label", err)
	}
	c.labels[name] = created.Id
	return created.Id, nil
}

func (c *Client) toMessage(msg *gmail.Message) message.Message {
	m := message.Message{
		MessageID: msg.Id,
		Account:   c.account,
		Mailbox:   "INBOX",
	}
	if msg.InternalDate > 0 {
		m.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC().Format(time.RFC3339)
	}
	if msg.Payload == nil {
		return m
	}
	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			m.Subject = header.Value
		case "From":
			m.Sender = header.Value
		}
	}
	m.Body = plainTextBody(msg.Payload)
	if m.Body == "" {
		m.Body = msg.Snippet
	}
	return message.Normalize(m)
}

func plainTextBody(payload *gmail.MessagePart) string {
	if payload.MimeType == "text/plain" && payload.Body != nil && payload.Body.Data != "" {
		if data, err := decodeBody(payload.Body.Data); err == nil {
			return string(data)
		}
	}
	for _, part := range payload.Parts {
		mt := strings.ToLower(part.MimeType)
		if strings.HasPrefix(mt, "text/") || strings.HasPrefix(mt, "multipart/") {
			if body := plainTextBody(part); body != "" {
				return body
			}
		}
	}
	return ""
}

func decodeBody(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

// classify maps API failures onto collaborator error codes.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return &collab.Error{Op: op, Code: collab.CodeNotFound, Err: err}
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return &collab.Error{Op: op, Code: collab.CodeTransient, Err: err}
		default:
			return &collab.Error{Op: op, Code: collab.CodeRejected, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &collab.Error{Op: op, Code: collab.CodeTransient, Err: err}
	}
	return &collab.Error{Op: op, Code: collab.CodeUnavailable, Err: err}
}
