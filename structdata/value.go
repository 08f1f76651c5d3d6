package structdata

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// text coerces a decoded JSON value into a trimmed string. Arrays yield their
// first non-empty element; {"@value": ...} wrappers are unwrapped.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case []any:
		for _, e := range t {
			if s := text(e); s != "" {
				return s
			}
		}
	case map[string]any:
		if inner, ok := t["@value"]; ok {
			return text(inner)
		}
	}
	return ""
}

// texts coerces a scalar or array into a list of non-empty strings.
func texts(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := text(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := text(v); s != "" {
			return []string{s}
		}
	}
	return nil
}

// number parses JSON numbers and numeric strings. Strings may use a comma as
// decimal separator ("4,5") or as thousands separator ("1,299.00").
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case float64:
		return t, true
	case string:
		return parseNumericString(t)
	case []any:
		if len(t) > 0 {
			return number(t[0])
		}
	case map[string]any:
		if inner, ok := t["@value"]; ok {
			return number(inner)
		}
	}
	return 0, false
}

func parseNumericString(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			// 1.299,00
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Contains(s, ","):
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// count parses a non-negative integer count.
func count(v any) (int, bool) {
	f, ok := number(v)
	if !ok || f < 0 {
		return 0, false
	}
	return int(math.Round(f)), true
}

// present reports whether a field carries any non-empty value.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		for _, e := range t {
			if present(e) {
				return true
			}
		}
		return false
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// looksLikeURL reports whether s is an absolute or root-relative URL.
func looksLikeURL(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") || strings.HasPrefix(s, "/")
}

// sortedKeys returns map keys in lexical order so every walk is deterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
