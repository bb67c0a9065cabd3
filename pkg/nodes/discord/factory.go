package discord

import "github.com/flowforge/flowforge/pkg/models"

func (a *Adapter) Type() string {
	return models.NodeTypeDiscord
}

func (a *Adapter) Name() string {
	return "Discord Message"
}

func (a *Adapter) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Message text, truncated to 2000 characters",
			},
			"username": map[string]any{
				"type": "string",
			},
		},
		"required": []string{"content"},
	}
}
