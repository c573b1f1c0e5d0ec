package normalize

import (
	"strconv"
	"strings"
)

// Accessors for decoded JSON. Upstream omits or re-types fields freely, so
// every accessor tolerates nil and wrong kinds.

func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}

func asSlice(value any) []any {
	s, _ := value.([]any)
	return s
}

func asString(value any) string {
	s, _ := value.(string)
	return s
}

func asBool(value any) bool {
	b, _ := value.(bool)
	return b
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// parseCount parses a string counter into an integer, returning nil when the
// field is absent or unparseable. Absence is not zero.
func parseCount(value any) *int64 {
	s, ok := value.(string)
	if !ok {
		if f, ok := value.(float64); ok {
			n := int64(f)
			return &n
		}
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func dig(value any, path ...string) any {
	current := value
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}
