package delay

import "github.com/flowforge/flowforge/pkg/models"

func (a *Adapter) Type() string {
	return models.NodeTypeDelay
}

func (a *Adapter) Name() string {
	return "Delay"
}

func (a *Adapter) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{
				"type":        []string{"number", "string"},
				"description": "Seconds to wait, capped at 300",
			},
			"duration": map[string]any{
				"type":        "string",
				"description": "Wait time such as 90s or 2m, capped at 5m",
			},
		},
	}
}
