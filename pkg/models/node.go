package models

// NodeKind is the structural role of a node in the graph.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition"
	NodeKindDelay     NodeKind = "delay"
	NodeKindLoop      NodeKind = "loop"
)

// TypeKey is the config key holding the adapter discriminator.
const TypeKey = "_type"

// Node config discriminators.
const (
	NodeTypeEmail     = "email"
	NodeTypeSlack     = "slack"
	NodeTypeDiscord   = "discord"
	NodeTypeHTTP      = "http"
	NodeTypeTransform = "transform"
	NodeTypeCondition = "condition"
	NodeTypeDelay     = "delay"
	NodeTypeLoop      = "loop"
	NodeTypeWebhook   = "webhook"
	NodeTypeManual    = "manual"
	NodeTypeSchedule  = "schedule"
)

// Edge source handles.
const (
	HandleYes  = "yes"
	HandleNo   = "no"
	HandleBody = "body"
	HandleDone = "done"
)

// Node is a single unit of work. Name is display-only; behavior is chosen by the
// "_type" entry of Config.
type Node struct {
	ID     string         `json:"id"     validate:"required"`
	Kind   NodeKind       `json:"kind"   validate:"required,oneof=trigger action condition delay loop"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// Type returns the adapter discriminator stored under "_type", or "".
func (n *Node) Type() string {
	if n.Config == nil {
		return ""
	}

	t, _ := n.Config[TypeKey].(string)

	return t
}

// Edge connects the output of Source to Target. SourceHandle selects a branch on
// condition ("yes"/"no") and loop ("body"/"done") nodes.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"                  validate:"required"`
	Target       string `json:"target"                  validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
}
