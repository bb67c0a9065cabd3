package loop

import "github.com/flowforge/flowforge/pkg/models"

func (a *Adapter) Type() string {
	return models.NodeTypeLoop
}

func (a *Adapter) Name() string {
	return "Loop"
}

func (a *Adapter) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"description": "List, JSON array string, count, or a placeholder resolving to one of those",
			},
		},
		"required": []string{"items"},
	}
}
