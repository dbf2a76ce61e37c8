package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no parseable JSON object can be recovered
// from model output.
var ErrNoJSON = errors.New("llm: no JSON object in response")

var fenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseJSONObject recovers a JSON object from model output. Models in JSON
// mode usually return clean JSON, but responses sometimes arrive wrapped in
// a markdown fence or padded with prose, so parsing proceeds in three
// attempts: the raw text, the first fenced block, then the first balanced
// brace span.
func ParseJSONObject(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	if m := fenceRE.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), v); err == nil {
			return nil
		}
	}

	if span, ok := balancedObject(text); ok {
		if err := json.Unmarshal([]byte(span), v); err == nil {
			return nil
		}
	}

	return ErrNoJSON
}

// FirstJSONObject returns the widest brace-delimited span of text: from
// the first "{" through the last "}". The specialist agents parse their
// model output this way.
func FirstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// balancedObject scans for the first structurally balanced JSON object,
// tracking strings and escapes so braces inside values don't truncate it.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
