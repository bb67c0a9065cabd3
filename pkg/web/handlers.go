// Package web serves the engine's HTTP surface: webhook intake, manual runs and execution
// lookups.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/flowforge/flowforge/pkg/auth"
	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/metrics"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// MetaKey holds request metadata inside webhook trigger data.
const MetaKey = "_meta"

// MaxBodySize bounds webhook and run request payloads.
const MaxBodySize = 1 << 20

// Headers copied into the webhook metadata. Credentials are never copied.
var metaHeaders = []string{"Content-Type", "User-Agent", "X-Request-Id", "X-Forwarded-For"}

type APIHandlers struct {
	logger     *slog.Logger
	workflows  *services.Workflow
	dispatcher *services.Dispatcher
	triggers   persistence.TriggerRepository
	keys       *auth.APIKeys
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*APIHandlers)

// WithMetrics counts webhook outcomes and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *APIHandlers) { h.metrics = m }
}

func NewAPIHandlers(
	logger *slog.Logger,
	workflows *services.Workflow,
	dispatcher *services.Dispatcher,
	triggers persistence.TriggerRepository,
	keys *auth.APIKeys,
	opts ...Option,
) *APIHandlers {
	h := &APIHandlers{
		logger:     logger.With("module", "web"),
		workflows:  workflows,
		dispatcher: dispatcher,
		triggers:   triggers,
		keys:       keys,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Routes mounts every endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	if h.metrics != nil {
		router.Get("/metrics", adaptor.HTTPHandler(h.metrics.Handler()))
	}

	router.Post("/webhooks/:token", h.ReceiveWebhook)
	router.Get("/webhooks/:token", h.WebhookInfo)

	router.Post("/workflows/:id/run", h.RunWorkflow)
	router.Get("/workflows/:id/executions", h.ListExecutions)
	router.Get("/executions/:id", h.GetExecution)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, ok := h.workflows.HealthCheck(c.Context())
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{Status: "unhealthy", Message: message})
	}

	return c.JSON(HealthResponse{Status: "healthy", Message: message})
}

// ReceiveWebhook authenticates an inbound call and queues an execution of the trigger's
// workflow. No execution row is created for rejected calls.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	ctx := c.Context()
	token := c.Params("token")

	trigger, err := h.activeTrigger(c, token)
	if err != nil {
		h.countWebhook(metrics.WebhookNotFound)

		if errors.Is(err, persistence.ErrTriggerNotFound) {
			return notFound(c, "webhook not found")
		}

		return handleError(c, err)
	}

	logger := h.logger.With("trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID)

	req := auth.Request{
		Authorization: c.Get(auth.HeaderAuthorization),
		APIKey:        c.Get(auth.HeaderAPIKey),
		Signature:     c.Get(auth.HeaderSignature),
		Body:          c.Body(),
	}

	key, err := h.keys.Verify(ctx, req.PlatformKey(trigger.AuthMethod), auth.ScopeWorkflowTrigger)
	if err == nil {
		err = auth.Authenticate(trigger, req)
	}

	if err != nil {
		logger.WarnContext(ctx, "Webhook rejected", "error", err)
		h.countWebhook(metrics.WebhookRejected)

		return handleError(c, err)
	}

	data := parseBody(req.Body)

	if len(trigger.JSONSchema) > 0 {
		if problems, err := validateBody(trigger.JSONSchema, data); err != nil {
			h.countWebhook(metrics.WebhookInvalid)

			return handleError(c, err)
		} else if len(problems) > 0 {
			h.countWebhook(metrics.WebhookInvalid)

			return badRequest(c, "payload does not match schema: "+strings.Join(problems, "; "))
		}
	}

	data[MetaKey] = h.requestMeta(c)

	execution, err := h.dispatcher.Trigger(ctx, services.TriggerRequest{
		WorkflowID:  trigger.WorkflowID,
		TriggeredBy: models.TriggerSourceWebhook,
		TriggerID:   trigger.ID,
		TriggerData: data,
		ActorID:     key.UserID,
	})
	if err != nil {
		logger.WarnContext(ctx, "Webhook could not be dispatched", "error", err)
		h.countWebhook(metrics.WebhookRejected)

		return handleError(c, err)
	}

	h.countWebhook(metrics.WebhookAccepted)

	return c.Status(fiber.StatusAccepted).JSON(WebhookResponse{
		Success:     true,
		ExecutionID: execution.ID,
		Message:     "Workflow execution queued",
	})
}

// WebhookInfo reports whether a webhook token exists. It has no side effects.
func (h *APIHandlers) WebhookInfo(c fiber.Ctx) error {
	trigger, err := h.triggers.WebhookTriggerByToken(c.Context(), c.Params("token"))
	if err != nil {
		if errors.Is(err, persistence.ErrTriggerNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(WebhookInfoResponse{})
		}

		return handleError(c, failures.Wrap(failures.KindTransient, "webhook_info", err))
	}

	return c.JSON(WebhookInfoResponse{
		Exists:     true,
		Active:     trigger.IsActive,
		WorkflowID: trigger.WorkflowID,
		AuthMethod: trigger.AuthMethod,
	})
}

// RunWorkflow queues a manual execution. The request body, when present, becomes the
// trigger data.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	key, err := h.verify(c, auth.ScopeWorkflowTrigger)
	if err != nil {
		return handleError(c, err)
	}

	data := map[string]any{}

	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &data); err != nil {
			return badRequest(c, "request body must be a JSON object")
		}
	}

	execution, err := h.dispatcher.Trigger(c.Context(), services.TriggerRequest{
		WorkflowID:  c.Params("id"),
		TriggeredBy: models.TriggerSourceManual,
		TriggerData: data,
		ActorID:     key.UserID,
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(WebhookResponse{
		Success:     true,
		ExecutionID: execution.ID,
		Message:     "Workflow execution queued",
	})
}

// GetExecution returns an execution with its steps. Failed executions carry the
// classified error detail.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	key, err := h.verify(c, auth.ScopeExecutionRead)
	if err != nil {
		return handleError(c, err)
	}

	detail, err := h.workflows.Execution(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if detail.UserID != key.UserID {
		return notFound(c, "execution not found")
	}

	return c.JSON(detail)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	key, err := h.verify(c, auth.ScopeExecutionRead)
	if err != nil {
		return handleError(c, err)
	}

	wf, err := h.workflows.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if wf.UserID != key.UserID {
		return notFound(c, "workflow not found")
	}

	limit := 0

	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return badRequest(c, "limit must be a number")
		}
	}

	executions, err := h.workflows.Executions(c.Context(), wf.ID, limit)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) activeTrigger(c fiber.Ctx, token string) (*models.WebhookTrigger, error) {
	if token == "" {
		return nil, persistence.ErrTriggerNotFound
	}

	trigger, err := h.triggers.WebhookTriggerByToken(c.Context(), token)
	if err != nil {
		if errors.Is(err, persistence.ErrTriggerNotFound) {
			return nil, err
		}

		return nil, failures.Wrap(failures.KindTransient, "find_webhook", err)
	}

	if !trigger.IsActive {
		return nil, persistence.ErrTriggerNotFound
	}

	return trigger, nil
}

func (h *APIHandlers) verify(c fiber.Ctx, scope string) (*models.APIKey, error) {
	req := auth.Request{Authorization: c.Get(auth.HeaderAuthorization), APIKey: c.Get(auth.HeaderAPIKey)}

	return h.keys.Verify(c.Context(), req.PlatformKey(models.WebhookAuthURLToken), scope)
}

func (h *APIHandlers) requestMeta(c fiber.Ctx) map[string]any {
	headers := make(map[string]any, len(metaHeaders))

	for _, name := range metaHeaders {
		if value := c.Get(name); value != "" {
			headers[strings.ToLower(name)] = value
		}
	}

	return map[string]any{
		"method":     c.Method(),
		"headers":    headers,
		"ip":         c.IP(),
		"receivedAt": h.now().UTC().Format(time.RFC3339),
	}
}

func (h *APIHandlers) countWebhook(outcome string) {
	if h.metrics != nil {
		h.metrics.WebhookRequests.WithLabelValues(outcome).Inc()
	}
}

// parseBody decodes a webhook body. JSON objects are used as is, other JSON values are
// wrapped under "body" and anything else is kept as text under "rawBody".
func parseBody(body []byte) map[string]any {
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]any{}
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return map[string]any{"rawBody": string(body)}
	}

	if object, ok := value.(map[string]any); ok {
		return object
	}

	return map[string]any{"body": value}
}
