package condition

import "github.com/flowforge/flowforge/pkg/models"

func (a *Adapter) Type() string {
	return models.NodeTypeCondition
}

func (a *Adapter) Name() string {
	return "Condition"
}

func (a *Adapter) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"description": "Value under test, usually a placeholder",
			},
			"operator": map[string]any{
				"type": "string",
				"enum": Operators,
			},
			"value": map[string]any{
				"description": "Operand for binary operators",
			},
			"expression": map[string]any{
				"type":        "string",
				"description": "Boolean expression over trigger, results, item and index",
			},
		},
		"anyOf": []any{
			map[string]any{"required": []string{"operator"}},
			map[string]any{"required": []string{"expression"}},
		},
	}
}
