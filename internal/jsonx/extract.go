// Package jsonx extracts and parses JSON objects embedded in otherwise
// free-form LLM prose: markdown fences stripped, the first balanced
// `{...}` block located, trailing commas tolerated.
package jsonx

import (
	"errors"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// ErrNoObject is returned when no JSON object could be located in text.
var ErrNoObject = errors.New("jsonx: no JSON object found")

// ExtractObject locates the first top-level `{...}` block in text,
// stripping common markdown code fences first, and unmarshals it into
// out using a JSON5-tolerant parser (accepts trailing commas).
func ExtractObject(text string, out any) error {
	block, err := firstObjectBlock(text)
	if err != nil {
		return err
	}
	return json5.Unmarshal([]byte(block), out)
}

func firstObjectBlock(text string) (string, error) {
	text = stripFences(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrNoObject
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
