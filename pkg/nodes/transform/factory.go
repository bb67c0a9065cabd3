package transform

import "github.com/flowforge/flowforge/pkg/models"

func (a *Adapter) Type() string {
	return models.NodeTypeTransform
}

func (a *Adapter) Name() string {
	return "Transform"
}

func (a *Adapter) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "jq program run over {trigger, results, item} or over input when set",
			},
			"input": map[string]any{
				"description": "Optional value the query runs against",
			},
			"mapping": map[string]any{
				"type":        "object",
				"description": "Object of templates returned as the node output",
			},
		},
		"anyOf": []any{
			map[string]any{"required": []string{"query"}},
			map[string]any{"required": []string{"mapping"}},
		},
	}
}
