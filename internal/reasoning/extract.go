package reasoning

import (
	"bytes"
	"encoding/json"
	"regexp"
)

var fenced = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// ExtractObject finds the JSON object in engine output. It tries, in
// order: the whole text, the first fenced code block, and the span from
// the first '{' to the last '}'.
func ExtractObject(raw []byte) ([]byte, error) {
	text := bytes.TrimSpace(raw)
	if len(text) == 0 {
		return nil, &Error{Kind: KindEmpty, Detail: "no output"}
	}

	candidates := [][]byte{text}
	if m := fenced.FindSubmatch(text); m != nil {
		candidates = append(candidates, bytes.TrimSpace(m[1]))
	}
	if start, end := bytes.IndexByte(text, '{'), bytes.LastIndexByte(text, '}'); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	sawJSON := false
	for _, c := range candidates {
		if !json.Valid(c) {
			continue
		}
		sawJSON = true
		if len(c) > 0 && c[0] == '{' {
			return c, nil
		}
	}
	if sawJSON {
		return nil, &Error{Kind: KindNotObject, Detail: "output is JSON but not an object"}
	}
	return nil, &Error{Kind: KindInvalidJSON, Detail: "no JSON object found in output"}
}
