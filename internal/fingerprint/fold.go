package fingerprint

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// excerptRunes bounds the notes and reason excerpts that enter a key.
const excerptRunes = 120

var folder = cases.Fold()

// Fold normalizes a field for comparison: NFC, case-folded, inner
// whitespace runs collapsed to one space, and trimmed.
func Fold(s string) string {
	return strings.Join(strings.Fields(folder.String(norm.NFC.String(s))), " ")
}

// excerpt returns the first n runes of the folded value.
func excerpt(s string, n int) string {
	f := Fold(s)
	r := []rune(f)
	if len(r) <= n {
		return f
	}
	return strings.TrimSpace(string(r[:n]))
}
