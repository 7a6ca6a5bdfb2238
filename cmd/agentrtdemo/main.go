// Command agentrtdemo wires the provider, agent, and pipeline libraries
// together end to end: a four-node pipeline graph (start, a Codergen
// stage, a CodingAgent stage, exit), the CodingAgent stage backed by a real agent
// session talking to a model client built from environment credentials.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/agentflowhq/agentrt/agent"
	"github.com/agentflowhq/agentrt/agent/tools"
	"github.com/agentflowhq/agentrt/pipeline"
	"github.com/agentflowhq/agentrt/pipeline/handler"
	"github.com/agentflowhq/agentrt/provider"
)

// sessionFactory adapts agent.Session to the handler.AgentSessionFactory
// interface pipeline/handler.CodingAgent expects: one fresh session per
// CodingAgent node execution, all sharing the same client and profile.
type sessionFactory struct {
	client  agent.Completer
	profile agent.Profile
}

func (f sessionFactory) NewSession(node *pipeline.Node) handler.AgentSession {
	return agent.NewSession(agent.Options{
		Client:     f.client,
		Profile:    f.profile,
		WorkingDir: ".",
	})
}

func main() {
	ctx := context.Background()

	client, err := provider.NewFromEnv(ctx, provider.EnvConfig{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentrtdemo: no provider credentials in environment, running with simulated handlers:", err)
	}

	registry := tools.NewRegistry()
	env := tools.NewLocalEnvironment(".", 64*1024)
	if regErr := tools.RegisterBuiltins(registry, env); regErr != nil {
		panic(regErr)
	}

	profile := agent.Profile{
		Provider:   "anthropic",
		Model:      "claude-sonnet-4-5",
		BasePrompt: "You are a careful coding assistant working inside a single repository checkout.",
		Registry:   registry,
	}

	start := &pipeline.Node{ID: "start", Shape: pipeline.ShapeMdiamond, Type: "start"}
	plan := &pipeline.Node{ID: "plan", Shape: pipeline.ShapeBox, Type: "codergen", Prompt: "Draft a short plan for: $goal"}
	implement := &pipeline.Node{ID: "implement", Shape: pipeline.ShapeBox, Type: "coding_agent", Prompt: "Carry out the plan for: $goal", GoalGate: true}
	exit := &pipeline.Node{ID: "exit", Shape: pipeline.ShapeMsquare, Type: "exit"}

	g := pipeline.NewGraph("demo", pipeline.GraphAttrs{Goal: "add a health check endpoint"}, []*pipeline.Node{start, plan, implement, exit}, []pipeline.Edge{
		{Source: "start", Target: "plan"},
		{Source: "plan", Target: "implement"},
		{Source: "implement", Target: "exit"},
	})

	var sessionFact handler.AgentSessionFactory
	if client != nil {
		sessionFact = sessionFactory{client: client, profile: profile}
	}

	reg := handler.NewRegistry()
	handler.RegisterBuiltins(reg, handler.BuiltinDeps{
		// CodergenBackend left nil: the demo runs the plan stage in
		// simulation mode and only exercises a real model through the
		// coding_agent stage's session.
		AgentSessionFactory: sessionFact,
	})

	logsRoot, err := os.MkdirTemp("", "agentrtdemo-logs-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(logsRoot)

	eng := pipeline.NewEngine(g, pipeline.EngineOptions{
		Resolver: reg,
		LogsRoot: logsRoot,
		Backoff:  pipeline.BackoffPolicy{Disabled: true},
	})

	result, err := eng.Run(ctx, "demo-run-1")
	if err != nil {
		panic(err)
	}

	fmt.Println("success:", result.Success)
	fmt.Println("completed nodes:", result.CompletedNodes)
	if !result.Success {
		fmt.Println("failure reason:", result.FailureReason)
	}
}
