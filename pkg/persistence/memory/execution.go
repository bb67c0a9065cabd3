package memory

import (
	"context"
	"slices"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
)

func (p *Persistence) CreateExecution(_ context.Context, execution *models.Execution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *execution
	p.executions[execution.ID] = &clone

	return nil
}

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	execution, ok := p.executions[id]
	if !ok {
		return nil, persistence.NewEntityError("ExecutionByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	clone := *execution

	return &clone, nil
}

func (p *Persistence) UpdateExecution(_ context.Context, execution *models.Execution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.executions[execution.ID]
	if !ok {
		return persistence.NewEntityError("UpdateExecution", "execution", execution.ID, persistence.ErrExecutionNotFound)
	}

	if current.Status.IsTerminal() {
		return persistence.NewEntityError("UpdateExecution", "execution", execution.ID, persistence.ErrExecutionFinalized)
	}

	clone := *execution
	p.executions[execution.ID] = &clone

	return nil
}

func (p *Persistence) ExecutionsByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	executions := make([]*models.Execution, 0)

	for _, execution := range p.executions {
		if execution.WorkflowID == workflowID {
			clone := *execution
			executions = append(executions, &clone)
		}
	}

	slices.SortFunc(executions, func(a, b *models.Execution) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (p *Persistence) CreateStep(_ context.Context, step *models.ExecutionStep) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.steps[step.ExecutionID] {
		if existing.StepOrder == step.StepOrder {
			return persistence.NewEntityError("CreateStep", "execution step", step.ID, persistence.ErrDuplicateStepOrder)
		}
	}

	clone := *step
	p.steps[step.ExecutionID] = append(p.steps[step.ExecutionID], &clone)

	return nil
}

func (p *Persistence) UpdateStep(_ context.Context, step *models.ExecutionStep) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, existing := range p.steps[step.ExecutionID] {
		if existing.ID == step.ID {
			clone := *step
			p.steps[step.ExecutionID][i] = &clone

			return nil
		}
	}

	return persistence.NewEntityError("UpdateStep", "execution step", step.ID, persistence.ErrStepNotFound)
}

func (p *Persistence) StepsByExecution(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	steps := make([]*models.ExecutionStep, 0, len(p.steps[executionID]))
	for _, step := range p.steps[executionID] {
		clone := *step
		steps = append(steps, &clone)
	}

	slices.SortFunc(steps, func(a, b *models.ExecutionStep) int {
		return a.StepOrder - b.StepOrder
	})

	return steps, nil
}

func (p *Persistence) MaxStepOrder(_ context.Context, executionID string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	maxOrder := 0
	for _, step := range p.steps[executionID] {
		maxOrder = max(maxOrder, step.StepOrder)
	}

	return maxOrder, nil
}
