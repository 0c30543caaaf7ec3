// Package mcp implements the Model Context Protocol tool registry,
// dispatch, and session machinery (§4.8/§4.9): a single catalog of tools
// shared by the stdio, HTTP JSON-RPC, and HTTP+SSE transports, wired
// against the same cache/pool/accounts/attachments/outbox/syncengine
// services the REST API uses.
package mcp

import "context"

// Handler executes one tool call against the given session (nil for a
// stateless HTTP JSON-RPC call with no bound session) and arguments
// decoded from the JSON-RPC params.arguments object.
type Handler func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error)

// Tool is one entry in the registry: name, description, and JSON-Schema
// input shape, per §4.8's "single source of truth for tool metadata".
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	Handler     Handler                `json:"-"`
}

// Registry is the ordered, name-deduplicated tool catalog backing both
// `tools/list` and the REST dashboard's `/mcp/tools` listing (§8 property
// 5: the two must be identical).
type Registry struct {
	order []string
	byName map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds tool to the catalog. Per §4.8, "the combined listing
// across layers is deduplicated by name (first occurrence wins)" — a
// second registration of an already-known name is silently ignored so the
// high-level layer can re-declare a low-level tool under the same name
// (a "delegates by name" discovery tool) without producing two entries.
func (r *Registry) Register(t Tool) {
	if _, exists := r.byName[t.Name]; exists {
		return
	}
	r.order = append(r.order, t.Name)
	r.byName[t.Name] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// List returns every tool in registration order, stable for both the MCP
// and REST catalogs.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func intProp(description string, def int) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description, "default": def}
}

func boolProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

func arrayProp(description string, items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "description": description, "items": items}
}
