package persistence

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// Normalize converts fields to their JSON representation so every backend
// stores and compares the same value shapes.
func Normalize(fields Fields) (Fields, error) {
	if fields == nil {
		return Fields{}, nil
	}
	raw, err := json.Marshal(map[string]any(fields))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	out := Fields{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return out, nil
}

// Merge returns a copy of base with patch applied on top.
func Merge(base, patch Fields) Fields {
	out := make(Fields, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Matches reports whether fields satisfy every filter.
func Matches(fields Fields, filters []Filter) bool {
	for _, f := range filters {
		got, ok := fields[f.Field]
		if !ok {
			return false
		}
		if !valuesEqual(got, f.Value) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	na, err := Normalize(Fields{"v": a})
	if err != nil {
		return false
	}
	nb, err := Normalize(Fields{"v": b})
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na["v"], nb["v"])
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Text reads a string field, returning "" when absent or not a string.
func (f Fields) Text(key string) string {
	s, _ := f[key].(string)
	return s
}

// Int reads a numeric field written by any backend.
func (f Fields) Int(key string) int {
	if n, ok := toFloat(f[key]); ok {
		return int(math.Round(n))
	}
	if s, ok := f[key].(string); ok {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

// Bool reads a boolean field.
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// StringSlice reads a list of strings. A scalar string is read as a
// one-element list and blanks are dropped.
func (f Fields) StringSlice(key string) []string {
	switch v := f[key].(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Time reads an RFC 3339 timestamp field or a native time value.
func (f Fields) Time(key string) time.Time {
	switch v := f[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

// Map reads a nested object field.
func (f Fields) Map(key string) map[string]any {
	m, _ := f[key].(map[string]any)
	return m
}

// Slice reads a list field.
func (f Fields) Slice(key string) []any {
	s, _ := f[key].([]any)
	return s
}

// FormatTime renders t for storage.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
