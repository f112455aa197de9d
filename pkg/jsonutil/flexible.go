package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Kind classifies a raw JSON value by its leading token.
type Kind int

const (
	KindInvalid Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

// KindOf returns the JSON kind of raw. An empty message is treated as null.
func KindOf(raw json.RawMessage) Kind {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return KindNull
	}
	switch c := trimmed[0]; {
	case c == 'n':
		return KindNull
	case c == 't' || c == 'f':
		return KindBool
	case c == '"':
		return KindString
	case c == '{':
		return KindObject
	case c == '[':
		return KindArray
	case c == '-' || (c >= '0' && c <= '9'):
		return KindNumber
	}
	return KindInvalid
}

// FlexibleStringValue converts a json.RawMessage to a string, handling sources
// that send numbers or booleans where text is expected. Returns empty string
// for null/empty. Numbers keep their literal text so large ids lose no precision.
func FlexibleStringValue(raw json.RawMessage) string {
	switch KindOf(raw) {
	case KindNull:
		return ""
	case KindString:
		var strVal string
		if err := json.Unmarshal(raw, &strVal); err == nil {
			return strVal
		}
	case KindNumber:
		return string(bytes.TrimSpace(raw))
	case KindBool:
		var boolVal bool
		if err := json.Unmarshal(raw, &boolVal); err == nil {
			return strconv.FormatBool(boolVal)
		}
	}

	// Fallback: return raw string representation
	return string(raw)
}

// Number returns the float value of a JSON number literal.
// Strings are not parsed; callers that accept numeric text coerce it themselves.
func Number(raw json.RawMessage) (float64, bool) {
	if KindOf(raw) != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Integer returns the value of a JSON number literal that has no fractional part.
func Integer(raw json.RawMessage) (int64, bool) {
	if KindOf(raw) != KindNumber {
		return 0, false
	}
	text := string(bytes.TrimSpace(raw))
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, true
	}
	return 0, false
}

// ObjectKeys returns the top-level keys of a JSON object in document order.
// Duplicate keys are reported once, at their first position.
func ObjectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read object start: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var keys []string
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}

		// Skip the value without materializing it
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, fmt.Errorf("read value of %q: %w", key, err)
		}
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read object end: %w", err)
	}
	return keys, nil
}
