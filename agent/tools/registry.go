package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentflowhq/agentrt/provider/model"
)

// Result is the outcome of a tool invocation.
type Result struct {
	Content []model.Part
	IsError bool
}

// TextResult builds a Result carrying a single text part.
func TextResult(text string) Result {
	return Result{Content: []model.Part{model.TextPart{Text: text}}}
}

// ErrorResult builds a Result carrying a single text part and IsError set.
func ErrorResult(text string) Result {
	return Result{Content: []model.Part{model.TextPart{Text: text}}, IsError: true}
}

// Handler executes one tool call. params is the raw JSON arguments the
// model supplied; Handler is responsible for validating and unmarshaling
// them.
type Handler func(ctx context.Context, params json.RawMessage) (Result, error)

// Tool pairs a model-facing definition with its execution handler.
type Tool struct {
	Definition model.ToolDefinition
	Handler    Handler
}

// Registry holds the set of tools available to an agent session. Registry
// is safe for concurrent use: reads (Definitions, Get) may run concurrently
// with each other and with Register.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds or replaces a tool. It returns an error if name is empty.
func (r *Registry) Register(t Tool) error {
	if t.Definition.Name == "" {
		return fmt.Errorf("tools: registered tool must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Definition.Name] = t
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the model.ToolDefinition for every registered tool,
// suitable for attaching to a model.Request.Tools.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition)
	}
	return defs
}

// Call invokes the named tool's handler. Calling an unregistered name
// returns an error Result rather than an error, so the caller can surface
// it to the model as a tool_result the same way any other tool failure is
// surfaced.
func (r *Registry) Call(ctx context.Context, name string, params json.RawMessage) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("Unknown tool: %s", name)), nil
	}
	return t.Handler(ctx, params)
}
