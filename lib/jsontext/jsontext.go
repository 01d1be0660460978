// Package jsontext extracts well-formed JSON fragments from free text. LLM
// responses wrap their payload in prose, markdown fences, or an explicit
// "JSON.stringify([...])" echo; this package is the single place that deals
// with that.
package jsontext

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no well-formed fragment of the requested kind
// exists in the input.
var ErrNoJSON = errors.New("no JSON fragment found in text")

// FirstArray returns the first top-level JSON array in s, verified to parse.
func FirstArray(s string) (string, error) {
	return first(s, '[', ']')
}

// FirstObject returns the first top-level JSON object in s, verified to parse.
func FirstObject(s string) (string, error) {
	return first(s, '{', '}')
}

func first(s string, open, closing byte) (string, error) {
	// A stringify echo pattern means the payload starts after the call, not
	// at the first bracket in the prose.
	if idx := strings.Index(s, "JSON.stringify("); idx != -1 {
		s = s[idx+len("JSON.stringify("):]
	}

	start := strings.IndexByte(s, open)
	for start != -1 {
		if fragment, ok := balanced(s[start:], open, closing); ok {
			if json.Valid([]byte(fragment)) {
				return fragment, nil
			}
		}
		next := strings.IndexByte(s[start+1:], open)
		if next == -1 {
			break
		}
		start = start + 1 + next
	}
	return "", ErrNoJSON
}

// balanced scans s, which must begin with open, and returns the prefix that
// closes the opening bracket. The scan is aware of string literals and escape
// sequences so brackets inside values do not count.
func balanced(s string, open, closing byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
