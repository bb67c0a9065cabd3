package email

import "github.com/flowforge/flowforge/pkg/models"

func (a *Adapter) Type() string {
	return models.NodeTypeEmail
}

func (a *Adapter) Name() string {
	return "Send Email"
}

func (a *Adapter) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"description": "Recipient address, comma separated list or array of addresses",
				"type":        []string{"string", "array"},
				"minLength":   1,
			},
			"subject": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"body": map[string]any{
				"type": "string",
			},
			"html": map[string]any{
				"type":    "boolean",
				"default": false,
			},
		},
		"required": []string{"to", "subject"},
	}
}
