package registry

import (
	"github.com/flowforge/flowforge/pkg/nodes/condition"
	"github.com/flowforge/flowforge/pkg/nodes/delay"
	"github.com/flowforge/flowforge/pkg/nodes/discord"
	"github.com/flowforge/flowforge/pkg/nodes/email"
	"github.com/flowforge/flowforge/pkg/nodes/httprequest"
	"github.com/flowforge/flowforge/pkg/nodes/loop"
	"github.com/flowforge/flowforge/pkg/nodes/slack"
	"github.com/flowforge/flowforge/pkg/nodes/transform"
	"github.com/flowforge/flowforge/pkg/nodes/trigger"
	"github.com/flowforge/flowforge/pkg/protocol"
)

// RegisterDefaults registers all built-in adapters.
func (r *Registry) RegisterDefaults() error {
	adapters := []protocol.Adapter{
		email.New(),
		slack.New(),
		discord.New(),
		httprequest.New(),
		transform.New(),
		condition.New(),
		delay.New(),
		loop.New(),
	}

	for _, t := range trigger.All() {
		adapters = append(adapters, t)
	}

	for _, adapter := range adapters {
		if err := r.Register(adapter); err != nil {
			return err
		}
	}

	return nil
}
