// Package registry maps node "_type" discriminators to adapters and validates node config
// against each adapter's JSON schema.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var ErrAdapterAlreadyRegistered = errors.New("adapter already registered")

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	adapters map[string]protocol.Adapter
	schemas  map[string]*gojsonschema.Schema
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "registry"),
		adapters: make(map[string]protocol.Adapter),
		schemas:  make(map[string]*gojsonschema.Schema),
	}
}

// Register adds an adapter and compiles its schema.
func (r *Registry) Register(adapter protocol.Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[adapter.Type()]; exists {
		return fmt.Errorf("%w: %s", ErrAdapterAlreadyRegistered, adapter.Type())
	}

	var schema *gojsonschema.Schema

	if raw := adapter.Schema(); raw != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
		if err != nil {
			return fmt.Errorf("invalid schema for %s: %w", adapter.Type(), err)
		}

		schema = compiled
	}

	r.adapters[adapter.Type()] = adapter
	r.schemas[adapter.Type()] = schema

	r.logger.Debug("Registered adapter", "type", adapter.Type(), "name", adapter.Name())

	return nil
}

// Adapter returns the adapter registered for nodeType.
func (r *Registry) Adapter(nodeType string) (protocol.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[nodeType]

	return adapter, ok
}

// Has reports whether nodeType is registered.
func (r *Registry) Has(nodeType string) bool {
	_, ok := r.Adapter(nodeType)

	return ok
}

// Types returns the registered discriminators, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// Validate checks a resolved node config against the adapter schema. Violations are
// configuration errors naming the first offending field.
func (r *Registry) Validate(nodeType string, config map[string]any) error {
	r.mu.RLock()
	schema, registered := r.schemas[nodeType]
	r.mu.RUnlock()

	if !registered {
		return failures.Newf(failures.KindConfiguration, nodeType, "unknown node type %q", nodeType)
	}

	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return failures.Wrap(failures.KindConfiguration, nodeType, err)
	}

	if result.Valid() {
		return nil
	}

	violation := result.Errors()[0]

	switch violation.Type() {
	case "required":
		field, _ := violation.Details()["property"].(string)

		return protocol.MissingField(nodeType, field)
	case "string_gte":
		return protocol.MissingField(nodeType, fieldName(violation.Field()))
	default:
		return failures.Newf(failures.KindConfiguration, nodeType, "invalid field %q: %s", fieldName(violation.Field()), violation.Description())
	}
}

func fieldName(field string) string {
	return strings.TrimPrefix(field, "(root).")
}

// Kinds lists the node kinds each built-in type may appear under.
var Kinds = map[string][]models.NodeKind{
	models.NodeTypeWebhook:   {models.NodeKindTrigger},
	models.NodeTypeManual:    {models.NodeKindTrigger},
	models.NodeTypeSchedule:  {models.NodeKindTrigger},
	models.NodeTypeEmail:     {models.NodeKindAction},
	models.NodeTypeSlack:     {models.NodeKindAction},
	models.NodeTypeDiscord:   {models.NodeKindAction},
	models.NodeTypeHTTP:      {models.NodeKindAction},
	models.NodeTypeTransform: {models.NodeKindAction},
	models.NodeTypeCondition: {models.NodeKindCondition},
	models.NodeTypeDelay:     {models.NodeKindDelay},
	models.NodeTypeLoop:      {models.NodeKindLoop},
}
