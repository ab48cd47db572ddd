// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llmjson recovers a JSON object from free-form model output.
// Backends wrap JSON in prose or Markdown code fences despite instructions;
// Decode tolerates both but never returns anything that is not a valid
// JSON object.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrMalformedResponse is matched by every decode failure.
var ErrMalformedResponse = errors.New("malformed response")

// prefixRunes bounds the diagnostic prefix carried by MalformedResponseError.
const prefixRunes = 200

// MalformedResponseError reports that no JSON object could be recovered.
// Prefix holds the start of the original text for diagnostics.
type MalformedResponseError struct {
	Prefix string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: no JSON object found in %q", e.Prefix)
}

// Is makes errors.Is(err, ErrMalformedResponse) true.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// fencePattern matches one fenced block with an optional language tag.
var fencePattern = regexp.MustCompile("(?s)```([A-Za-z0-9_-]*)[ \t]*\r?\n?(.*?)```")

// Decode extracts a JSON object from raw. Attempts, first success wins:
//
//  1. strip surrounding whitespace;
//  2. if the text has a fenced code block, use the first block tagged json,
//     else the first block;
//  3. parse the candidate directly;
//  4. parse the substring from the first '{' to the last '}'.
func Decode(raw string) (map[string]any, error) {
	candidate := strings.TrimSpace(raw)

	if block, ok := fencedBlock(candidate); ok {
		candidate = block
	}

	if obj, ok := parseObject(candidate); ok {
		return obj, nil
	}

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start >= 0 && end > start {
		if obj, ok := parseObject(candidate[start : end+1]); ok {
			return obj, nil
		}
	}

	return nil, &MalformedResponseError{Prefix: truncate(raw, prefixRunes)}
}

// DecodeInto runs Decode and unmarshals the object into v.
func DecodeInto(raw string, v any) error {
	obj, err := Decode(raw)
	if err != nil {
		return err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("re-encoding object: %w", err)
	}
	return json.Unmarshal(data, v)
}

// fencedBlock returns the contents of the preferred fenced block.
func fencedBlock(s string) (string, bool) {
	if !strings.Contains(s, "```") {
		return "", false
	}
	matches := fencePattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return "", false
	}
	for _, m := range matches {
		if strings.EqualFold(m[1], "json") {
			return strings.TrimSpace(m[2]), true
		}
	}
	return strings.TrimSpace(matches[0][2]), true
}

// parseObject accepts s only if it is exactly one JSON object.
func parseObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
