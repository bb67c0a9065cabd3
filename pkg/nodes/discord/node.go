// Package discord posts messages to a Discord channel webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/protocol"
)

// Discord rejects messages longer than this.
const maxContentLength = 2000

type Adapter struct {
	client *http.Client
}

type Option func(*Adapter)

func WithClient(client *http.Client) Option {
	return func(a *Adapter) { a.client = client }
}

func New(opts ...Option) *Adapter {
	a := &Adapter{client: &http.Client{Timeout: 30 * time.Second}}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Adapter) Execute(ctx context.Context, in protocol.Input) (map[string]any, error) {
	content := protocol.String(in.Config, "content")
	if content == "" {
		return nil, protocol.MissingField(models.NodeTypeDiscord, "content")
	}

	if len(content) > maxContentLength {
		content = content[:maxContentLength]
	}

	if in.Credentials == nil {
		return nil, failures.New(failures.KindConfiguration, models.NodeTypeDiscord, "no discord integration connected")
	}

	creds, err := in.Credentials.Credentials(ctx, models.NodeTypeDiscord)
	if err != nil {
		return nil, err
	}

	webhookURL, _ := creds["webhook_url"].(string)
	if webhookURL == "" {
		return nil, failures.New(failures.KindConfiguration, models.NodeTypeDiscord, "discord integration has no webhook_url: invalid credentials")
	}

	body := map[string]string{"content": content}
	if username := protocol.String(in.Config, "username"); username != "" {
		body["username"] = username
	}

	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, failures.Wrap(failures.KindConfiguration, models.NodeTypeDiscord, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, protocol.TransportError(models.NodeTypeDiscord, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return nil, protocol.StatusError(models.NodeTypeDiscord, resp.StatusCode, string(raw))
	}

	return map[string]any{
		"sent":        true,
		"status_code": resp.StatusCode,
	}, nil
}
