package workflow

import (
	"encoding/json"
	"unicode/utf8"
)

// MaxSummaryBytes bounds the JSON size of a step's stored input and output.
const MaxSummaryBytes = 4 << 10

// summarize returns value unchanged when its JSON form fits in MaxSummaryBytes. Larger
// values are replaced by a preview of their JSON cut on a rune boundary.
func summarize(value map[string]any) map[string]any {
	if value == nil {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return map[string]any{"_truncated": true, "error": err.Error()}
	}

	if len(raw) <= MaxSummaryBytes {
		return value
	}

	cut := MaxSummaryBytes
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}

	return map[string]any{
		"_truncated": true,
		"size":       len(raw),
		"preview":    string(raw[:cut]),
	}
}
