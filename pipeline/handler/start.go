package handler

import (
	"context"

	"github.com/agentflowhq/agentrt/pipeline"
)

// Start is the entry-node handler: it performs no work and always
// succeeds. The engine is responsible for choosing the start node itself;
// Start's only job is to be a valid, always-succeeding first step.
type Start struct{}

// Execute implements Handler.
func (Start) Execute(context.Context, *pipeline.Node, *pipeline.Context, *pipeline.Graph, string) (pipeline.Outcome, error) {
	return pipeline.Outcome{Status: pipeline.StatusSuccess}, nil
}

// Exit is the sink-node handler: it performs no work and always succeeds.
// Goal-gate enforcement (verifying the run's context satisfies the
// configured goal predicate before the run is allowed to finish
// successfully) lives in the engine, not here, since it needs visibility
// into edge selection having produced no further edge.
type Exit struct{}

// Execute implements Handler.
func (Exit) Execute(context.Context, *pipeline.Node, *pipeline.Context, *pipeline.Graph, string) (pipeline.Outcome, error) {
	return pipeline.Outcome{Status: pipeline.StatusSuccess}, nil
}
