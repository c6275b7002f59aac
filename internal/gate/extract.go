package gate

import (
	"fmt"
	"strconv"
	"strings"
)

// Lookup resolves a dot-separated path inside a decoded JSON payload.
func Lookup(payload map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = payload
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// FirstString tries each candidate path in order and returns the first
// present value rendered as a string. Numeric ids are common in provider
// payloads, so numbers stringify rather than miss.
func FirstString(payload map[string]any, paths ...string) (string, bool) {
	for _, path := range paths {
		v, ok := Lookup(payload, path)
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val, true
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(val), true
		default:
			return fmt.Sprintf("%v", val), true
		}
	}
	return "", false
}
