// Package trigger implements the entry nodes of a workflow. They execute nothing and expose
// the trigger payload as their output.
package trigger

import (
	"context"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/protocol"
)

type Adapter struct {
	nodeType string
	name     string
}

// New returns the pass-through adapter for one trigger node type.
func New(nodeType, name string) *Adapter {
	return &Adapter{nodeType: nodeType, name: name}
}

// All returns the adapters for every built-in trigger type.
func All() []*Adapter {
	return []*Adapter{
		New(models.NodeTypeWebhook, "Webhook Trigger"),
		New(models.NodeTypeManual, "Manual Trigger"),
		New(models.NodeTypeSchedule, "Schedule Trigger"),
	}
}

func (a *Adapter) Execute(_ context.Context, in protocol.Input) (map[string]any, error) {
	out := make(map[string]any, len(in.TriggerData))
	for k, v := range in.TriggerData {
		out[k] = v
	}

	return out, nil
}
