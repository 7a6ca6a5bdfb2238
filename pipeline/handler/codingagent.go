package handler

import (
	"context"

	"github.com/agentflowhq/agentrt/pipeline"
)

// AgentSession is the minimal surface CodingAgent needs from an agent
// session — just enough to run one task to completion and read back its
// final reply. *agent.Session satisfies this directly.
type AgentSession interface {
	ProcessInput(ctx context.Context, text string) error
	LastAssistantText() string
}

// AgentSessionFactory creates a fresh AgentSession for one CodingAgent
// node execution.
type AgentSessionFactory interface {
	NewSession(node *pipeline.Node) AgentSession
}

// CodingAgent treats a node's prompt as a task for a child agent session:
// it runs the task to completion and reports success or failure from the
// session's final reply.
type CodingAgent struct {
	factory AgentSessionFactory
}

// NewCodingAgent returns a CodingAgent handler. A nil factory fails every
// node it executes, since there is no session to run the task in.
func NewCodingAgent(factory AgentSessionFactory) *CodingAgent {
	return &CodingAgent{factory: factory}
}

// Execute implements Handler.
func (h *CodingAgent) Execute(ctx context.Context, node *pipeline.Node, pctx *pipeline.Context, g *pipeline.Graph, logsRoot string) (pipeline.Outcome, error) {
	if h.factory == nil {
		return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: "coding_agent: no session factory configured"}, nil
	}
	prompt := withPreamble(expandGoal(node.Prompt, g.Attrs.Goal), pctx)
	session := h.factory.NewSession(node)

	var outcome pipeline.Outcome
	var response string
	if err := session.ProcessInput(ctx, prompt); err != nil {
		response = err.Error()
		outcome = pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: err.Error()}
	} else {
		response = session.LastAssistantText()
		outcome = pipeline.Outcome{
			Status: pipeline.StatusSuccess,
			Notes:  truncateString(response, 500),
		}
	}
	outcome = withLastResponse(outcome, response, 200)

	if err := writeStageFiles(logsRoot, node.ID, prompt, response, outcome); err != nil {
		return pipeline.Outcome{}, err
	}
	return outcome, nil
}
