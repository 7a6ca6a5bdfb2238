package handler

import (
	"context"

	"github.com/agentflowhq/agentrt/pipeline"
)

// Conditional performs no work itself; it exists only as a branch point
// whose outgoing edges carry the conditions that do the actual routing
// during edge selection. It always succeeds.
type Conditional struct{}

// Execute implements Handler.
func (Conditional) Execute(context.Context, *pipeline.Node, *pipeline.Context, *pipeline.Graph, string) (pipeline.Outcome, error) {
	return pipeline.Outcome{Status: pipeline.StatusSuccess}, nil
}
