package agent

import (
	"time"

	"github.com/agentflowhq/agentrt/provider/model"
)

// TurnKind tags the closed set of entries a Session's history can hold.
type TurnKind string

const (
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
	TurnSystem      TurnKind = "system"
	TurnSteering    TurnKind = "steering"
)

// Turn is one strictly-ordered entry in a Session's history. Only the
// fields relevant to Kind are populated.
type Turn struct {
	Kind      TurnKind
	Timestamp time.Time

	// user, system, steering, assistant
	Text string

	// assistant
	ToolCalls  []pendingToolCall
	Reasoning  string
	Usage      *model.Usage
	ResponseID string

	// tool_results
	ToolResults []toolResult
}

// materializeMessages renders history into the role-tagged messages sent to
// the model: user turns and steering turns both become user messages,
// system turns become system messages, assistant turns become assistant
// messages with content parts [text if nonempty, then one tool_call part
// per call], and each tool_results turn becomes one tool-role message
// carrying one ToolResultPart per result.
func materializeMessages(history []Turn) []model.Message {
	msgs := make([]model.Message, 0, len(history))
	for _, t := range history {
		switch t.Kind {
		case TurnUser, TurnSteering:
			msgs = append(msgs, model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: t.Text}}})
		case TurnSystem:
			msgs = append(msgs, model.Message{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: t.Text}}})
		case TurnAssistant:
			var parts []model.Part
			if t.Text != "" {
				parts = append(parts, model.TextPart{Text: t.Text})
			}
			for _, tc := range t.ToolCalls {
				parts = append(parts, model.ToolCallPart{ID: tc.id, Name: tc.name, Args: tc.args, RawArgs: tc.argsRaw})
			}
			msgs = append(msgs, model.Message{Role: model.RoleAssistant, Parts: parts})
		case TurnToolResults:
			parts := make([]model.Part, 0, len(t.ToolResults))
			for _, r := range t.ToolResults {
				parts = append(parts, model.ToolResultPart{ToolCallID: r.toolCallID, Content: r.content, IsError: r.isError})
			}
			msgs = append(msgs, model.Message{Role: model.RoleTool, Parts: parts})
		}
	}
	return msgs
}
