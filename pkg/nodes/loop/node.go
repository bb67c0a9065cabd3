// Package loop resolves the collection a loop node iterates over. The runtime drives the
// iterations themselves.
package loop

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/protocol"
	"github.com/flowforge/flowforge/pkg/template"
)

// MaxCount bounds numeric item counts before the runtime's own iteration cap applies.
const MaxCount = 10000

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Execute(_ context.Context, in protocol.Input) (map[string]any, error) {
	items, err := Items(in.Config["items"])
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"items": items,
		"count": len(items),
	}, nil
}

// Items accepts a list, a JSON array string, or a count n that yields 0..n-1.
func Items(raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, protocol.MissingField(models.NodeTypeLoop, "items")
	case []any:
		return v, nil
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}

		return items, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if template.IsPlaceholder(trimmed) {
			return nil, failures.Newf(failures.KindData, models.NodeTypeLoop, "unresolved variable %s", trimmed)
		}

		if strings.HasPrefix(trimmed, "[") {
			var items []any
			if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
				return nil, failures.Newf(failures.KindData, models.NodeTypeLoop, "items is not valid JSON: %v", err)
			}

			return items, nil
		}

		if n, ok := protocol.ToFloat(trimmed); ok {
			return countItems(n)
		}

		return nil, failures.New(failures.KindData, models.NodeTypeLoop, "items must be a list, a JSON array or a number")
	default:
		if n, ok := protocol.ToFloat(v); ok {
			return countItems(n)
		}

		return nil, failures.Newf(failures.KindData, models.NodeTypeLoop, "items must be a list, got %T", raw)
	}
}

func countItems(n float64) ([]any, error) {
	if n < 0 {
		return nil, failures.New(failures.KindConfiguration, models.NodeTypeLoop, "items count must not be negative")
	}

	count := MaxCount
	if n < MaxCount {
		count = int(n)
	}

	items := make([]any, count)
	for i := range items {
		items[i] = i
	}

	return items, nil
}
