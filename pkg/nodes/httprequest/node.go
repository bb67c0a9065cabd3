// Package httprequest provides the HTTP call adapter.
package httprequest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/protocol"
)

const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 5 * time.Minute

	maxResponseBody = 10 << 20
)

// Adapter performs one HTTP request per invocation.
type Adapter struct {
	client *http.Client
}

// Option configures the adapter.
type Option func(*Adapter)

// WithClient overrides the HTTP client. Per-call timeouts are applied through the context.
func WithClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.client = client
	}
}

func New(opts ...Option) *Adapter {
	a := &Adapter{client: &http.Client{}}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Execute sends the configured request. Responses with status >= 400 are errors.
func (a *Adapter) Execute(ctx context.Context, in protocol.Input) (map[string]any, error) {
	url := protocol.String(in.Config, "url")
	if url == "" {
		return nil, protocol.MissingField(models.NodeTypeHTTP, "url")
	}

	method := strings.ToUpper(protocol.String(in.Config, "method"))
	if method == "" {
		method = http.MethodGet
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout(in.Config))
	defer cancel()

	body, contentType, err := requestBody(in.Config["body"])
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, failures.Wrap(failures.KindConfiguration, models.NodeTypeHTTP, err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for key, value := range protocol.StringMap(in.Config, "headers") {
		req.Header.Set(key, value)
	}

	start := time.Now()

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, protocol.TransportError(models.NodeTypeHTTP, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, protocol.TransportError(models.NodeTypeHTTP, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, protocol.StatusError(models.NodeTypeHTTP, resp.StatusCode, string(raw))
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        string(raw),
		"duration_ms": time.Since(start).Milliseconds(),
	}

	var parsed any
	if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil {
		output["json"] = parsed
	}

	return output, nil
}

// Timeout returns the configured per-call timeout, capped at MaxTimeout.
func Timeout(config map[string]any) time.Duration {
	seconds, ok := protocol.Float(config, "timeout")
	if !ok || seconds <= 0 {
		return DefaultTimeout
	}

	timeout := time.Duration(seconds * float64(time.Second))
	if timeout > MaxTimeout {
		return MaxTimeout
	}

	return timeout
}

func requestBody(body any) (io.Reader, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		if v == "" {
			return nil, "", nil
		}

		if json.Valid([]byte(v)) {
			return strings.NewReader(v), "application/json", nil
		}

		return strings.NewReader(v), "text/plain; charset=utf-8", nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, "", failures.Wrap(failures.KindData, models.NodeTypeHTTP, err)
		}

		return strings.NewReader(string(raw)), "application/json", nil
	}
}
