// Package handler implements the built-in node handlers (Start, Exit,
// Codergen, Conditional, WaitForHuman, Parallel, FanIn, Tool, CodingAgent)
// and the registry that resolves a graph node to one of them.
package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentflowhq/agentrt/pipeline"
)

// Handler is an alias for pipeline.Handler, kept so handler-package code
// can spell it without an import qualifier. Engine (package pipeline)
// depends on pipeline.Handler directly so it never has to import this
// package.
type Handler = pipeline.Handler

// Emitter is an alias for pipeline.Emitter, for the same reason.
type Emitter = pipeline.Emitter

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, node *pipeline.Node, pctx *pipeline.Context, g *pipeline.Graph, logsRoot string) (pipeline.Outcome, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, node *pipeline.Node, pctx *pipeline.Context, g *pipeline.Graph, logsRoot string) (pipeline.Outcome, error) {
	return f(ctx, node, pctx, g, logsRoot)
}

// shapeToType is the shape→type fallback mapping a node resolves to when
// its own type is unregistered or unset.
var shapeToType = map[pipeline.NodeShape]string{
	pipeline.ShapeMdiamond:      "start",
	pipeline.ShapeMsquare:       "exit",
	pipeline.ShapeBox:           "codergen",
	pipeline.ShapeHexagon:       "wait.human",
	pipeline.ShapeDiamond:       "conditional",
	pipeline.ShapeComponent:     "parallel",
	pipeline.ShapeTripleOctagon: "parallel.fan_in",
	pipeline.ShapeParallelogram: "tool",
	pipeline.ShapeHouse:         "stack.manager_loop",
}

// Registry maps handler type names to Handlers and resolves a node to one
// via (1) its explicit type if registered, (2) the shape→type fallback if
// that type is registered, (3) a configured default. A node whose type
// cannot be resolved and for which no default is configured is a fatal
// configuration error.
type Registry struct {
	mu      sync.RWMutex
	byType  map[string]Handler
	deflt   Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byType: map[string]Handler{}}
}

// Register binds typeName to h, overwriting any previous binding.
func (r *Registry) Register(typeName string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[typeName] = h
}

// SetDefault sets the handler used when a node's type cannot otherwise be
// resolved.
func (r *Registry) SetDefault(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deflt = h
}

// Resolve picks the handler for node, per the three-step resolution order.
func (r *Registry) Resolve(node *pipeline.Node) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if node.Type != "" {
		if h, ok := r.byType[node.Type]; ok {
			return h, nil
		}
	}
	if mapped, ok := shapeToType[node.Shape]; ok {
		if h, ok := r.byType[mapped]; ok {
			return h, nil
		}
	}
	if r.deflt != nil {
		return r.deflt, nil
	}
	return nil, fmt.Errorf("pipeline: node %q: no handler registered for type %q or shape %q, and no default handler configured", node.ID, node.Type, node.Shape)
}

// RegisterBuiltins registers the nine built-in handler types under their
// canonical type names.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) {
	r.Register("start", Start{})
	r.Register("exit", Exit{})
	r.Register("codergen", NewCodergen(deps.CodergenBackend))
	r.Register("conditional", Conditional{})
	r.Register("wait.human", NewWaitForHuman(deps.Interviewer, deps.Emitter))
	r.Register("parallel", NewParallel(deps.BranchExecutor, deps.Emitter))
	r.Register("parallel.fan_in", FanIn{})
	r.Register("tool", NewTool(deps.ToolInvoker))
	r.Register("coding_agent", NewCodingAgent(deps.AgentSessionFactory))
}

// BuiltinDeps bundles the optional collaborators the built-in handlers
// call out to. A nil CodergenBackend or BranchExecutor runs that handler
// in simulation mode; a nil Interviewer makes every question time out; a
// nil ToolInvoker or AgentSessionFactory makes that handler fail every
// node.
type BuiltinDeps struct {
	CodergenBackend     CodergenBackend
	Interviewer         Interviewer
	BranchExecutor      BranchExecutor
	ToolInvoker         ToolInvoker
	AgentSessionFactory AgentSessionFactory

	// Emitter receives Parallel's branch events and WaitForHuman's
	// interview events. Nil discards them.
	Emitter Emitter
}
