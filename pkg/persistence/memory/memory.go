// Package memory provides an in-process persistence implementation used by tests and by
// single-binary development setups.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
)

// Persistence implements persistence.Persistence with maps guarded by one lock. Values are
// copied on the way in and out so callers never share state with the store.
type Persistence struct {
	mu           sync.RWMutex
	workflows    map[string]*models.Workflow
	executions   map[string]*models.Execution
	steps        map[string][]*models.ExecutionStep
	webhooks     map[string]*models.WebhookTrigger
	schedules    map[string]*models.ScheduleTrigger
	integrations map[string]*models.Integration
	apiKeys      map[string]*models.APIKey
}

var _ persistence.Persistence = (*Persistence)(nil)

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:    make(map[string]*models.Workflow),
		executions:   make(map[string]*models.Execution),
		steps:        make(map[string][]*models.ExecutionStep),
		webhooks:     make(map[string]*models.WebhookTrigger),
		schedules:    make(map[string]*models.ScheduleTrigger),
		integrations: make(map[string]*models.Integration),
		apiKeys:      make(map[string]*models.APIKey),
	}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, persistence.NewEntityError("WorkflowByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return cloneWorkflow(workflow), nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
	p.workflows[workflow.ID] = cloneWorkflow(workflow)

	return nil
}

func (p *Persistence) WebhookTriggerByToken(_ context.Context, token string) (*models.WebhookTrigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, trigger := range p.webhooks {
		if trigger.WebhookToken == token {
			clone := *trigger

			return &clone, nil
		}
	}

	return nil, persistence.NewEntityError("WebhookTriggerByToken", "trigger", "", persistence.ErrTriggerNotFound)
}

func (p *Persistence) SaveWebhookTrigger(_ context.Context, trigger *models.WebhookTrigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	clone := *trigger
	p.webhooks[trigger.ID] = &clone

	return nil
}

func (p *Persistence) ScheduleTriggers(_ context.Context) ([]*models.ScheduleTrigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	triggers := make([]*models.ScheduleTrigger, 0, len(p.schedules))
	for _, trigger := range p.schedules {
		clone := *trigger
		triggers = append(triggers, &clone)
	}

	slices.SortFunc(triggers, func(a, b *models.ScheduleTrigger) int {
		return strings.Compare(a.ID, b.ID)
	})

	return triggers, nil
}

func (p *Persistence) SaveScheduleTrigger(_ context.Context, trigger *models.ScheduleTrigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	clone := *trigger
	p.schedules[trigger.ID] = &clone

	return nil
}

func (p *Persistence) ActiveIntegration(_ context.Context, userID, integrationType string) (*models.Integration, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var found *models.Integration

	for _, integration := range p.integrations {
		if integration.UserID != userID || integration.Type != integrationType || !integration.IsActive {
			continue
		}

		if found == nil || integration.UpdatedAt.After(found.UpdatedAt) {
			found = integration
		}
	}

	if found == nil {
		return nil, persistence.NewEntityError("ActiveIntegration", "integration", integrationType, persistence.ErrIntegrationNotFound)
	}

	clone := *found

	return &clone, nil
}

func (p *Persistence) Integrations(_ context.Context) ([]*models.Integration, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	integrations := make([]*models.Integration, 0, len(p.integrations))
	for _, integration := range p.integrations {
		clone := *integration
		integrations = append(integrations, &clone)
	}

	slices.SortFunc(integrations, func(a, b *models.Integration) int {
		return strings.Compare(a.ID, b.ID)
	})

	return integrations, nil
}

func (p *Persistence) SaveIntegration(_ context.Context, integration *models.Integration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}

	integration.UpdatedAt = now

	clone := *integration
	p.integrations[integration.ID] = &clone

	return nil
}

func (p *Persistence) APIKeyByHash(_ context.Context, hashedKey string) (*models.APIKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, key := range p.apiKeys {
		if key.HashedKey == hashedKey {
			return cloneAPIKey(key), nil
		}
	}

	return nil, persistence.NewEntityError("APIKeyByHash", "api key", "", persistence.ErrAPIKeyNotFound)
}

func (p *Persistence) SaveAPIKey(_ context.Context, key *models.APIKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	p.apiKeys[key.ID] = cloneAPIKey(key)

	return nil
}

func (p *Persistence) TouchAPIKey(_ context.Context, id string, usedAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key, ok := p.apiKeys[id]
	if !ok {
		return persistence.NewEntityError("TouchAPIKey", "api key", id, persistence.ErrAPIKeyNotFound)
	}

	key.LastUsedAt = &usedAt

	return nil
}

func cloneWorkflow(w *models.Workflow) *models.Workflow {
	clone := *w

	clone.Nodes = make([]*models.Node, len(w.Nodes))
	for i, node := range w.Nodes {
		n := *node
		clone.Nodes[i] = &n
	}

	clone.Edges = make([]*models.Edge, len(w.Edges))
	for i, edge := range w.Edges {
		e := *edge
		clone.Edges[i] = &e
	}

	return &clone
}

func cloneAPIKey(k *models.APIKey) *models.APIKey {
	clone := *k
	clone.Scopes = slices.Clone(k.Scopes)

	return &clone
}
