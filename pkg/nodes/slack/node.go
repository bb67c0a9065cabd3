// Package slack posts messages to Slack through a bot token or an incoming webhook.
package slack

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

const (
	// DefaultAPIBase is the Slack Web API root.
	DefaultAPIBase = "https://slack.com/api"

	requestTimeout = 30 * time.Second
)

// Errors reported by chat.postMessage that mean the credentials must be replaced.
var credentialErrors = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"token_revoked":    true,
	"token_expired":    true,
	"account_inactive": true,
	"missing_scope":    true,
}

type Adapter struct {
	client  *http.Client
	apiBase string
}

type Option func(*Adapter)

func WithClient(client *http.Client) Option {
	return func(a *Adapter) { a.client = client }
}

// WithAPIBase points the adapter at a different Web API root.
func WithAPIBase(base string) Option {
	return func(a *Adapter) { a.apiBase = base }
}

func New(opts ...Option) *Adapter {
	a := &Adapter{client: &http.Client{Timeout: requestTimeout}, apiBase: DefaultAPIBase}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type postMessageResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

func (a *Adapter) Execute(ctx context.Context, in protocol.Input) (map[string]any, error) {
	text := protocol.String(in.Config, "text")
	if text == "" {
		return nil, protocol.MissingField(models.NodeTypeSlack, "text")
	}

	if in.Credentials == nil {
		return nil, failures.New(failures.KindConfiguration, models.NodeTypeSlack, "no slack integration connected")
	}

	creds, err := in.Credentials.Credentials(ctx, models.NodeTypeSlack)
	if err != nil {
		return nil, err
	}

	channel := protocol.String(in.Config, "channel")
	token, _ := creds["bot_token"].(string)
	webhookURL, _ := creds["webhook_url"].(string)

	switch {
	case token != "":
		if channel == "" {
			return nil, protocol.MissingField(models.NodeTypeSlack, "channel")
		}

		return a.postMessage(ctx, token, channel, text)
	case webhookURL != "":
		return a.postWebhook(ctx, webhookURL, channel, text)
	default:
		return nil, failures.New(failures.KindConfiguration, models.NodeTypeSlack, "slack integration has no bot_token or webhook_url: invalid credentials")
	}
}

func (a *Adapter) postMessage(ctx context.Context, token, channel, text string) (map[string]any, error) {
	payload, _ := json.Marshal(map[string]string{"channel": channel, "text": text})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return nil, failures.Wrap(failures.KindFatal, models.NodeTypeSlack, err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	raw, err := a.do(req)
	if err != nil {
		return nil, err
	}

	var resp postMessageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, failures.Wrap(failures.KindFatal, models.NodeTypeSlack, err)
	}

	if !resp.OK {
		switch {
		case resp.Error == "ratelimited":
			return nil, failures.New(failures.KindTransient, models.NodeTypeSlack, "chat.postMessage failed: rate limited")
		case credentialErrors[resp.Error]:
			return nil, failures.New(failures.KindConfiguration, models.NodeTypeSlack, "chat.postMessage failed: "+resp.Error)
		default:
			return nil, failures.New(failures.KindFatal, models.NodeTypeSlack, "chat.postMessage failed: "+resp.Error)
		}
	}

	return map[string]any{
		"sent":    true,
		"channel": resp.Channel,
		"ts":      resp.TS,
	}, nil
}

func (a *Adapter) postWebhook(ctx context.Context, url, channel, text string) (map[string]any, error) {
	body := map[string]string{"text": text}
	if channel != "" {
		body["channel"] = channel
	}

	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, failures.Wrap(failures.KindConfiguration, models.NodeTypeSlack, err)
	}

	req.Header.Set("Content-Type", "application/json")

	if _, err := a.do(req); err != nil {
		return nil, err
	}

	return map[string]any{"sent": true, "channel": channel}, nil
}

func (a *Adapter) do(req *http.Request) ([]byte, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, protocol.TransportError(models.NodeTypeSlack, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, protocol.TransportError(models.NodeTypeSlack, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, protocol.StatusError(models.NodeTypeSlack, resp.StatusCode, string(raw))
	}

	return raw, nil
}
