package slack

import "github.com/flowforge/flowforge/pkg/models"

func (a *Adapter) Type() string {
	return models.NodeTypeSlack
}

func (a *Adapter) Name() string {
	return "Slack Message"
}

func (a *Adapter) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"channel": map[string]any{
				"type":        "string",
				"description": "Channel id or #name. Required when the integration uses a bot token",
			},
			"text": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
		},
		"required": []string{"text"},
	}
}
