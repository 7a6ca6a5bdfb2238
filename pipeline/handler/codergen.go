package handler

import (
	"context"
	"fmt"

	"github.com/agentflowhq/agentrt/pipeline"
)

// CodergenBackend generates a response for an expanded prompt. It may
// return either a plain string (wrapped into a success Outcome by
// Codergen) or a fully-formed Outcome when the backend needs to report
// something other than plain success.
type CodergenBackend interface {
	Generate(ctx context.Context, node *pipeline.Node, prompt string) (any, error)
}

// Codergen expands "$goal" in the node's prompt using the graph's goal
// attribute, writes prompt.md, invokes the configured backend (or runs in
// simulation mode if none is configured), and writes response.md and
// status.json alongside it.
type Codergen struct {
	backend CodergenBackend
}

// NewCodergen returns a Codergen handler. A nil backend runs every node in
// simulation mode.
func NewCodergen(backend CodergenBackend) *Codergen {
	return &Codergen{backend: backend}
}

// Execute implements Handler.
func (h *Codergen) Execute(ctx context.Context, node *pipeline.Node, pctx *pipeline.Context, g *pipeline.Graph, logsRoot string) (pipeline.Outcome, error) {
	prompt := withPreamble(expandGoal(node.Prompt, g.Attrs.Goal), pctx)

	var response string
	var outcome pipeline.Outcome

	if h.backend == nil {
		response = fmt.Sprintf("[simulated] completed %q", node.ID)
		outcome = pipeline.Outcome{Status: pipeline.StatusSuccess, Notes: "simulated: no codergen backend configured"}
	} else {
		result, err := h.backend.Generate(ctx, node, prompt)
		if err != nil {
			outcome = pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: err.Error()}
			response = err.Error()
		} else {
			switch v := result.(type) {
			case string:
				response = v
				outcome = pipeline.Outcome{Status: pipeline.StatusSuccess, Notes: v}
			case pipeline.Outcome:
				outcome = v
				response = v.Notes
			default:
				outcome = pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: fmt.Sprintf("codergen backend returned unsupported type %T", v)}
			}
		}
	}

	outcome = withLastResponse(outcome, response, 200)

	if err := writeStageFiles(logsRoot, node.ID, prompt, response, outcome); err != nil {
		return pipeline.Outcome{}, err
	}
	return outcome, nil
}
