package httprequest

import "github.com/flowforge/flowforge/pkg/models"

// Type returns the node type.
func (a *Adapter) Type() string {
	return models.NodeTypeHTTP
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "HTTP Request"
}

// Schema returns the JSON schema for HTTP request node configuration.
func (a *Adapter) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Request URL. Supports {{trigger.data.*}} and {{<node>.output.*}} placeholders",
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS", "get", "post", "put", "delete", "patch", "head", "options"},
			},
			"headers": map[string]any{
				"type": "object",
			},
			"body": map[string]any{
				"description": "Request body. Objects and arrays are sent as JSON",
			},
			"timeout": map[string]any{
				"type":        []string{"number", "string"},
				"description": "Per-call timeout in seconds, capped at 300",
				"default":     30,
			},
		},
		"required": []string{"url"},
	}
}
