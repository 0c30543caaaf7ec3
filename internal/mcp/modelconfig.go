package mcp

import (
	"context"
	"sync"
)

// ModelProvider is the call shape an AI completion backend must satisfy to
// back the agentic tools. Wiring an actual model (OpenAI, Anthropic, a local
// runner) is out of scope here — "AI provider adapters beyond their call
// shape" is explicitly excluded — so NoopProvider is the only
// implementation shipped.
type ModelProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NoopProvider satisfies ModelProvider without calling out anywhere, so the
// agentic tools are wired end-to-end and return a well-formed, honest
// response instead of silently doing nothing.
type NoopProvider struct{}

func (NoopProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", errNoModelConfigured
}

var errNoModelConfigured = &noModelError{}

type noModelError struct{}

func (*noModelError) Error() string {
	return "no model provider is configured for this deployment"
}

// ModelConfig tracks which model name the agentic tools should ask a real
// ModelProvider to use, and which provider is actually wired in. Both the
// provider and the model names are mutable at runtime via the
// set_tool_calling_model/set_drafting_model tools.
type ModelConfig struct {
	mu sync.RWMutex

	Provider       ModelProvider
	ToolCallingModel string
	DraftingModel    string
}

func NewModelConfig(provider ModelProvider) *ModelConfig {
	if provider == nil {
		provider = NoopProvider{}
	}
	return &ModelConfig{Provider: provider}
}

func (c *ModelConfig) Get() (toolCalling, drafting string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ToolCallingModel, c.DraftingModel
}

func (c *ModelConfig) SetToolCallingModel(name string) {
	c.mu.Lock()
	c.ToolCallingModel = name
	c.mu.Unlock()
}

func (c *ModelConfig) SetDraftingModel(name string) {
	c.mu.Lock()
	c.DraftingModel = name
	c.mu.Unlock()
}

func (c *ModelConfig) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.RLock()
	provider := c.Provider
	c.mu.RUnlock()
	return provider.Complete(ctx, systemPrompt, userPrompt)
}
