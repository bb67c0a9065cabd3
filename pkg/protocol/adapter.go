// Package protocol defines the contract between the execution runtime and node adapters.
package protocol

import (
	"context"
	"log/slog"
)

// CredentialSource decrypts a user's integration settings on demand. Implementations must
// not cache plaintext beyond a single execution.
type CredentialSource interface {
	Credentials(ctx context.Context, integrationType string) (map[string]any, error)
}

// Input is everything an adapter may use for one invocation. Config has already had its
// placeholders resolved.
type Input struct {
	WorkflowID  string
	ExecutionID string
	NodeID      string
	Config      map[string]any
	TriggerData map[string]any
	Results     map[string]any
	Item        any
	Index       int
	Credentials CredentialSource
	Logger      *slog.Logger
}

// Adapter executes one node type, selected by the node's "_type" config entry.
type Adapter interface {
	// Type returns the "_type" discriminator this adapter handles
	Type() string

	// Name returns the human-readable name for this node type
	Name() string

	// Schema returns the JSON schema the resolved config must satisfy
	Schema() map[string]any

	// Execute runs the node and returns its output
	Execute(ctx context.Context, in Input) (map[string]any, error)
}
