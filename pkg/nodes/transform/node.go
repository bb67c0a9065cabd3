// Package transform reshapes data with a jq program or a mapping of resolved templates.
package transform

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/protocol"
	"github.com/itchyny/gojq"
)

// Adapter caches compiled jq programs; compiled code is safe for concurrent use.
type Adapter struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

func New() *Adapter {
	return &Adapter{cache: make(map[string]*gojq.Code)}
}

func (a *Adapter) Execute(ctx context.Context, in protocol.Input) (map[string]any, error) {
	if mapping, ok := in.Config["mapping"].(map[string]any); ok {
		return mapping, nil
	}

	query := protocol.String(in.Config, "query")
	if query == "" {
		return nil, protocol.MissingField(models.NodeTypeTransform, "query")
	}

	code, err := a.compile(query)
	if err != nil {
		return nil, err
	}

	input, hasInput := in.Config["input"]
	if !hasInput {
		input = map[string]any{
			"trigger": map[string]any{"data": in.TriggerData},
			"results": in.Results,
			"item":    in.Item,
		}
	}

	normalized, err := normalize(input)
	if err != nil {
		return nil, failures.Newf(failures.KindData, models.NodeTypeTransform, "input is not valid JSON: %v", err)
	}

	var results []any

	iter := code.RunWithContext(ctx, normalized)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := v.(error); isErr {
			return nil, failures.Newf(failures.KindData, models.NodeTypeTransform, "jq evaluation failed: %v", err)
		}

		results = append(results, v)
	}

	var result any

	switch len(results) {
	case 0:
	case 1:
		result = results[0]
	default:
		result = results
	}

	return map[string]any{"result": result}, nil
}

func (a *Adapter) compile(query string) (*gojq.Code, error) {
	a.mu.RLock()
	code, ok := a.cache[query]
	a.mu.RUnlock()

	if ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, failures.Newf(failures.KindConfiguration, models.NodeTypeTransform, "invalid jq query: %v", err)
	}

	code, err = gojq.Compile(parsed, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, failures.Newf(failures.KindConfiguration, models.NodeTypeTransform, "invalid jq query: %v", err)
	}

	a.mu.Lock()
	a.cache[query] = code
	a.mu.Unlock()

	return code, nil
}

// normalize converts arbitrary Go values into the plain JSON shapes gojq accepts.
func normalize(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out, nil
}
