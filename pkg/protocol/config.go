package protocol

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// String returns config[key] when it is a string, or "".
func String(config map[string]any, key string) string {
	s, _ := config[key].(string)

	return s
}

// Float returns config[key] as a float64, accepting JSON numbers and numeric strings.
func Float(config map[string]any, key string) (float64, bool) {
	return ToFloat(config[key])
}

// ToFloat converts JSON numbers and numeric strings to float64. NaN and infinities are
// rejected.
func ToFloat(value any) (float64, bool) {
	f, ok := toFloat(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

// StringMap returns config[key] as a string map, dropping non-string values.
func StringMap(config map[string]any, key string) map[string]string {
	out := make(map[string]string)

	switch v := config[key].(type) {
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
	case map[string]any:
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	}

	return out
}

// StringList accepts a single string (comma separated) or a list of strings.
func StringList(config map[string]any, key string) []string {
	var out []string

	switch v := config[key].(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}

	return out
}
