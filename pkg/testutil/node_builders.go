// Package testutil provides workflow graph builders for tests.
package testutil

import "github.com/flowforge/flowforge/pkg/models"

// Node builds a node whose config carries nodeType under the type key. A nil config is
// replaced by an empty one.
func Node(id string, kind models.NodeKind, nodeType string, config map[string]any) *models.Node {
	if config == nil {
		config = map[string]any{}
	}

	config[models.TypeKey] = nodeType

	return &models.Node{ID: id, Kind: kind, Name: id, Config: config}
}

// Edge connects source to target. handle names the source output, e.g. "true" for a
// condition branch; empty for plain edges.
func Edge(source, target, handle string) *models.Edge {
	return &models.Edge{ID: source + "-" + target, Source: source, Target: target, SourceHandle: handle}
}

// ActiveWorkflow builds an active workflow owned by "user-1".
func ActiveWorkflow(id string, nodes []*models.Node, edges []*models.Edge, overrides ...func(*models.Workflow)) *models.Workflow {
	wf := &models.Workflow{
		ID:     id,
		Name:   id,
		UserID: "user-1",
		Status: models.WorkflowStatusActive,
		Nodes:  nodes,
		Edges:  edges,
	}

	for _, override := range overrides {
		override(wf)
	}

	return wf
}

// WithOwner sets the workflow owner.
func WithOwner(userID string) func(*models.Workflow) {
	return func(wf *models.Workflow) {
		wf.UserID = userID
	}
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(wf *models.Workflow) {
		wf.Status = status
	}
}

// Linear builds an active workflow of a trigger followed by actions chained in order.
func Linear(id, triggerType string, actions ...*models.Node) *models.Workflow {
	nodes := []*models.Node{Node("t1", models.NodeKindTrigger, triggerType, nil)}
	edges := make([]*models.Edge, 0, len(actions))

	previous := "t1"

	for _, action := range actions {
		nodes = append(nodes, action)
		edges = append(edges, Edge(previous, action.ID, ""))
		previous = action.ID
	}

	return ActiveWorkflow(id, nodes, edges)
}
