package pipeline

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/gobwas/glob"

	"github.com/roach88/triage/internal/message"
)

// Blocklist is the early hard-block filter. Accounts match exactly
// (case-insensitive); senders match glob patterns against the lowercased
// address, e.g. "*@promo.example.com".
type Blocklist struct {
	accounts map[string]bool
	senders  []senderPattern
}

type senderPattern struct {
	raw string
	g   glob.Glob
}

// NewBlocklist compiles the sender patterns.
func NewBlocklist(accounts, senders []string) (*Blocklist, error) {
	b := &Blocklist{accounts: make(map[string]bool, len(accounts))}
	for _, a := range accounts {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			b.accounts[a] = true
		}
	}
	for _, p := range senders {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("blocked sender %q: %w", p, err)
		}
		b.senders = append(b.senders, senderPattern{raw: p, g: g})
	}
	return b, nil
}

// Match reports whether m is blocked and why.
func (b *Blocklist) Match(m message.Message) (string, bool) {
	if b == nil {
		return "", false
	}
	if acct := strings.ToLower(m.Account); acct != "" && b.accounts[acct] {
		return "blocked account " + m.Account, true
	}
	addr := senderAddress(m.Sender)
	if addr == "" {
		return "", false
	}
	for _, p := range b.senders {
		if p.g.Match(addr) {
			return fmt.Sprintf("blocked sender %s (pattern %s)", addr, p.raw), true
		}
	}
	return "", false
}

// senderAddress extracts the bare address from a From header value, falling
// back to the trimmed input when it does not parse.
func senderAddress(sender string) string {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return ""
	}
	if a, err := mail.ParseAddress(sender); err == nil {
		return strings.ToLower(a.Address)
	}
	return strings.ToLower(sender)
}
