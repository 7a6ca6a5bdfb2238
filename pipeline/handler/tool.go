package handler

import (
	"context"
	"fmt"

	"github.com/agentflowhq/agentrt/pipeline"
)

// ToolInvoker calls a named tool and returns its raw result, which Tool
// maps to an Outcome.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, node *pipeline.Node, pctx *pipeline.Context) (any, error)
}

// Tool invokes the callable named by the node's prompt (the tool name),
// mapping its return value or error into an Outcome.
type Tool struct {
	invoker ToolInvoker
}

// NewTool returns a Tool handler. A nil invoker fails every node it
// executes, since there is nothing to call.
func NewTool(invoker ToolInvoker) *Tool {
	return &Tool{invoker: invoker}
}

// Execute implements Handler.
func (h *Tool) Execute(ctx context.Context, node *pipeline.Node, pctx *pipeline.Context, _ *pipeline.Graph, _ string) (pipeline.Outcome, error) {
	if h.invoker == nil {
		return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: "tool: no invoker configured"}, nil
	}
	result, err := h.invoker.Invoke(ctx, node.Prompt, node, pctx)
	if err != nil {
		return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: err.Error()}, nil
	}
	switch v := result.(type) {
	case pipeline.Outcome:
		return v, nil
	case string:
		return pipeline.Outcome{Status: pipeline.StatusSuccess, Notes: v}, nil
	case nil:
		return pipeline.Outcome{Status: pipeline.StatusSuccess}, nil
	default:
		return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: fmt.Sprintf("tool: unsupported return type %T", v)}, nil
	}
}
