package nodes

import (
	"sort"

	"github.com/agentkit/agentkit/common/config"
)

// Registry maps node type discriminators to handler instances.
// It is built once at startup and never mutated afterwards, so it is
// safe to share across concurrent executions.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates a registry with all builtin handlers wired
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		handlers: map[string]Handler{
			"email_trigger":   &EmailTriggerHandler{},
			"extract_content": &ExtractContentHandler{},
			"summarize":       NewSummarizeHandler(cfg),
			"google_sheets":   NewGoogleSheetsHandler(),
			"response":        &ResponseHandler{},
		},
	}
}

// Register adds or replaces a handler. Only called during startup
// wiring, before the registry is shared.
func (r *Registry) Register(nodeType string, h Handler) {
	r.handlers[nodeType] = h
}

// HandlerFor returns the handler for a node type.
// An unknown type returns UnknownNodeTypeError.
func (r *Registry) HandlerFor(nodeType string) (Handler, error) {
	h, ok := r.handlers[nodeType]
	if !ok {
		return nil, &UnknownNodeTypeError{Type: nodeType, Supported: r.Types()}
	}
	return h, nil
}

// Types returns the registered node types, sorted
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
