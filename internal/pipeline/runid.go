package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDGenerator supplies the random suffix of a run id when the message has
// no id. Implemented by UUIDv7Generator and by fixed generators in tests.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 strings.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7. Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

const maxTokenLen = 120

var unsafeToken = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeToken maps raw to a filesystem-safe token.
func SafeToken(raw string) string {
	s := unsafeToken.ReplaceAllString(strings.TrimSpace(raw), "_")
	s = strings.Trim(s, "._")
	if len(s) > maxTokenLen {
		s = s[:maxTokenLen]
	}
	return s
}

// NewRunID returns "YYYYMMDD-HHMMSS-<token>" where token is the safe form
// of messageID, or the first 8 characters of a generated id.
func NewRunID(at time.Time, messageID string, gen IDGenerator) string {
	token := SafeToken(messageID)
	if token == "" {
		token = strings.ReplaceAll(gen.Generate(), "-", "")
		if len(token) > 8 {
			token = token[:8]
		}
	}
	return at.Format("20060102-150405") + "-" + token
}

const maxRunIDAttempts = 100

// ClaimRunID reserves a run directory under runsDir and returns its id.
// The first free name of base, base-2, base-3, ... wins; creating the
// directory is the reservation, so concurrent processes never share one.
func ClaimRunID(runsDir, base string) (string, error) {
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return "", fmt.Errorf("claim run id: %w", err)
	}
	for n := 1; n <= maxRunIDAttempts; n++ {
		id := base
		if n > 1 {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		err := os.Mkdir(filepath.Join(runsDir, id), 0o755)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("claim run id: %w", err)
		}
	}
	return "", fmt.Errorf("claim run id: %d runs already named %s", maxRunIDAttempts, base)
}
