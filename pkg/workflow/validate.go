package workflow

import (
	"errors"
	"slices"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
)

// ErrWorkflowNotActive is returned when a workflow that is not active is asked to run.
var ErrWorkflowNotActive = errors.New("workflow is not active")

// TypeRegistry reports which node types can be executed.
type TypeRegistry interface {
	Has(nodeType string) bool
}

// Validate checks that a workflow can be executed. Problems are validation errors that
// must block enqueueing.
func Validate(wf *models.Workflow, types TypeRegistry, kinds map[string][]models.NodeKind) error {
	const op = "validate workflow"

	if wf == nil {
		return failures.New(failures.KindValidation, op, "workflow is required")
	}

	if !wf.IsActive() {
		return &failures.Error{Kind: failures.KindValidation, Op: op, Message: "workflow is not active", Err: ErrWorkflowNotActive}
	}

	var triggers, actions []string

	seen := make(map[string]bool, len(wf.Nodes))

	for _, node := range wf.Nodes {
		if node.ID == "" {
			return failures.New(failures.KindValidation, op, "node id is required")
		}

		if seen[node.ID] {
			return failures.Newf(failures.KindValidation, op, "duplicate node id %q", node.ID)
		}

		seen[node.ID] = true

		switch node.Kind {
		case models.NodeKindTrigger:
			triggers = append(triggers, node.ID)
		case models.NodeKindAction:
			actions = append(actions, node.ID)
		}

		nodeType := node.Type()
		if nodeType == "" {
			return failures.Newf(failures.KindValidation, op, "node %q has no %s", node.ID, models.TypeKey)
		}

		if !types.Has(nodeType) {
			return failures.Newf(failures.KindValidation, op, "node %q has unknown type %q", node.ID, nodeType)
		}

		if allowed, ok := kinds[nodeType]; ok && !slices.Contains(allowed, node.Kind) {
			return failures.Newf(failures.KindValidation, op, "node %q of type %q cannot be a %s node", node.ID, nodeType, node.Kind)
		}
	}

	if len(triggers) == 0 {
		return failures.New(failures.KindValidation, op, "workflow has no trigger node")
	}

	if len(actions) == 0 {
		return failures.New(failures.KindValidation, op, "workflow has no action node")
	}

	for _, edge := range wf.Edges {
		if !seen[edge.Source] || !seen[edge.Target] {
			return failures.Newf(failures.KindValidation, op, "edge %q connects unknown nodes %q -> %q", edge.ID, edge.Source, edge.Target)
		}
	}

	reachable := newGraph(wf).reachable(triggers...)

	for _, node := range wf.Nodes {
		if !reachable[node.ID] {
			return failures.Newf(failures.KindValidation, op, "node %q is not connected to a trigger", node.ID)
		}
	}

	return nil
}
