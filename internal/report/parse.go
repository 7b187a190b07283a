package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoConfig means the AI response carried no parseable JSON object.
var ErrNoConfig = errors.New("response contains no JSON object")

// ParseConfig extracts a report configuration from AI output. The response
// is accepted as-is when it parses as a JSON object; otherwise the first
// balanced {...} substring is tried. Anything stricter belongs to a schema.
func ParseConfig(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrNoConfig
	}

	if obj, ok := parseObject(trimmed); ok {
		return obj, nil
	}
	candidate := firstBalancedObject(trimmed)
	if candidate == "" {
		return nil, fmt.Errorf("%w: %.80s", ErrNoConfig, trimmed)
	}
	obj, ok := parseObject(candidate)
	if !ok {
		return nil, fmt.Errorf("%w: extracted candidate is invalid", ErrNoConfig)
	}
	return obj, nil
}

func parseObject(s string) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}

// firstBalancedObject scans for the first {...} with balanced braces,
// respecting JSON string literals and escapes.
func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
