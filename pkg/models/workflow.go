// Package models defines the core domain models for workflow automation and execution.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft  WorkflowStatus = "draft"  // Editable, not executable
	WorkflowStatusActive WorkflowStatus = "active" // Executable by triggers
	WorkflowStatusPaused WorkflowStatus = "paused" // Temporarily not executable
)

// Workflow is a directed graph of nodes connected by edges. The engine treats it as read-only.
type Workflow struct {
	ID        string         `json:"id"         validate:"required"`
	Name      string         `json:"name"       validate:"required"`
	UserID    string         `json:"user_id"    validate:"required"`
	Status    WorkflowStatus `json:"status"     validate:"required,oneof=draft active paused"`
	Nodes     []*Node        `json:"nodes"      validate:"dive"`
	Edges     []*Edge        `json:"edges"      validate:"dive"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsActive reports whether the workflow may be executed.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// Node returns the node with the given id, or nil.
func (w *Workflow) Node(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// TriggerNodes returns the workflow trigger nodes in declaration order.
func (w *Workflow) TriggerNodes() []*Node {
	triggers := make([]*Node, 0, 1)

	for _, node := range w.Nodes {
		if node.Kind == NodeKindTrigger {
			triggers = append(triggers, node)
		}
	}

	return triggers
}
