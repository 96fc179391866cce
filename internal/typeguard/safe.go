// Package typeguard validates loosely-shaped collaborator payloads at the
// boundary and builds default values so partial data never propagates as a crash.
package typeguard

import (
	"strconv"
	"strings"
)

// Map asserts value to map[string]any
func Map(value any) (map[string]any, bool) {
	if value == nil {
		return nil, false
	}
	m, ok := value.(map[string]any)
	return m, ok
}

// Slice asserts value to []any
func Slice(value any) ([]any, bool) {
	if value == nil {
		return nil, false
	}
	s, ok := value.([]any)
	return s, ok
}

// String asserts value to a non-empty, trimmed string
func String(value any) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// StringDefault returns the string at value or def
func StringDefault(value any, def string) string {
	if s, ok := String(value); ok {
		return s
	}
	return def
}

// Float accepts any JSON number and numeric strings such as "2.5" or "2.5mm²"
func Float(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		return parseLeadingFloat(v)
	default:
		return 0, false
	}
}

// FloatDefault returns the number at value or def
func FloatDefault(value any, def float64) float64 {
	if f, ok := Float(value); ok {
		return f
	}
	return def
}

// Int accepts any JSON number, truncating fractions
func Int(value any) (int, bool) {
	f, ok := Float(value)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// IntDefault returns the integer at value or def
func IntDefault(value any, def int) int {
	if i, ok := Int(value); ok {
		return i
	}
	return def
}

// Bool accepts JSON booleans and the strings "true"/"yes"
func Bool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

// BoolDefault returns the boolean at value or def
func BoolDefault(value any, def bool) bool {
	if b, ok := Bool(value); ok {
		return b
	}
	return def
}

// First returns the first key of m whose value is present
func First(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func parseLeadingFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && c == '-') {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
