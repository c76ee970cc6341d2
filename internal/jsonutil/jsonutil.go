package jsonutil

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MarshalNoEscape encodes v into JSON without escaping <, >, & into <, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Remove trailing newline from json.Encoder.Encode
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalNoEscapeIndent is MarshalNoEscape with indentation.
func MarshalNoEscapeIndent(v any, prefix, indent string) ([]byte, error) {
	flat, err := MarshalNoEscape(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, flat, prefix, indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// StripFence removes one leading/trailing triple-backtick fence, with an
// optional language tag, from a model reply. Text without a fence is
// returned trimmed but otherwise untouched.
func StripFence(s string) string {
	out := strings.TrimSpace(s)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")
	// Drop the language tag on the fence line ("json", "sql", ...).
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		first := strings.TrimSpace(out[:i])
		if first == "" || isFenceTag(first) {
			out = out[i+1:]
		}
	}
	if i := strings.LastIndex(out, "```"); i >= 0 {
		out = out[:i]
	}
	return strings.TrimSpace(out)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// UnmarshalFenced strips a surrounding code fence and unmarshals the rest.
func UnmarshalFenced(s string, v any) error {
	return json.Unmarshal([]byte(StripFence(s)), v)
}
