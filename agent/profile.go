package agent

import (
	"github.com/agentflowhq/agentrt/agent/tools"
	"github.com/agentflowhq/agentrt/provider/model"
)

// Profile is a provider-aligned bundle of default model, tool registry, and
// system-prompt template. A Session is always
// constructed against exactly one Profile; a Sub-Agent Manager's children
// inherit their parent's Profile unchanged.
type Profile struct {
	// Provider names the registered provider.ModelClient this profile talks
	// to (e.g. "anthropic", "openai-responses").
	Provider string
	// Model is the provider-native model identifier (e.g.
	// "claude-sonnet-4-5").
	Model string
	// ReasoningEffort is passed through on every Request built from this
	// profile.
	ReasoningEffort model.ReasoningEffort
	// BasePrompt is the provider profile's base system prompt, the first
	// component concatenated into the per-round system prompt.
	BasePrompt string
	// Registry is the set of tools advertised to the model and dispatched
	// against on tool_call turns.
	Registry *tools.Registry
	// SupportsParallelToolCalls controls whether a round's tool calls run
	// concurrently (when there are ≥2) or sequentially.
	SupportsParallelToolCalls bool
}
