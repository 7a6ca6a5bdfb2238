package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentflowhq/agentrt/pipeline"
)

// Choice is one option WaitForHuman presents to an Interviewer, derived
// from one outgoing edge.
type Choice struct {
	Key    string
	Label  string
	Target string
}

// Answer is an Interviewer's response to a multiple-choice question.
type Answer struct {
	Key      string
	TimedOut bool
	Skipped  bool
}

// Interviewer presents a multiple-choice question to a human (or any
// other out-of-band decision source) and reports their answer.
type Interviewer interface {
	Ask(ctx context.Context, prompt string, choices []Choice) (Answer, error)
}

// WaitForHuman derives a set of choices from the node's outgoing edges,
// presents them to an Interviewer, and maps the returned key back to the
// chosen edge's target and label.
type WaitForHuman struct {
	interviewer Interviewer
	emitter     Emitter
}

// NewWaitForHuman returns a WaitForHuman handler. A nil interviewer means
// every question times out immediately, since there is no one to answer
// it. A nil emitter discards interview events.
func NewWaitForHuman(interviewer Interviewer, emitter Emitter) *WaitForHuman {
	if emitter == nil {
		emitter = pipeline.NopEmitter
	}
	return &WaitForHuman{interviewer: interviewer, emitter: emitter}
}

// Execute implements Handler.
func (h *WaitForHuman) Execute(ctx context.Context, node *pipeline.Node, pctx *pipeline.Context, g *pipeline.Graph, logsRoot string) (pipeline.Outcome, error) {
	edges := g.OutgoingEdges(node.ID)
	choices := make([]Choice, 0, len(edges))
	for _, e := range edges {
		label := edgeLabelOrTarget(e)
		choices = append(choices, Choice{Key: acceleratorKey(label), Label: label, Target: e.Target})
	}

	h.emitter.Emit(pipeline.Event{Type: pipeline.EventInterviewStarted, NodeID: node.ID, Notes: node.Prompt})

	var answer Answer
	var err error
	if h.interviewer == nil {
		answer = Answer{TimedOut: true}
	} else {
		answer, err = h.interviewer.Ask(ctx, node.Prompt, choices)
		if err != nil {
			return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: err.Error()}, nil
		}
	}

	if answer.TimedOut {
		h.emitter.Emit(pipeline.Event{Type: pipeline.EventInterviewTimeout, NodeID: node.ID})
		if defaultChoice, ok := defaultChoiceOf(node); ok {
			for _, c := range choices {
				if c.Key == defaultChoice || strings.EqualFold(c.Label, defaultChoice) {
					return humanChoiceOutcome(node.ID, c, pipeline.StatusSuccess, ""), nil
				}
			}
		}
		return pipeline.Outcome{Status: pipeline.StatusRetry, FailureReason: "wait for human: timed out with no default_choice"}, nil
	}
	if answer.Skipped {
		return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: "wait for human: skipped"}, nil
	}

	for _, c := range choices {
		if c.Key == answer.Key {
			h.emitter.Emit(pipeline.Event{Type: pipeline.EventInterviewCompleted, NodeID: node.ID, Notes: c.Label})
			return humanChoiceOutcome(node.ID, c, pipeline.StatusSuccess, ""), nil
		}
	}
	return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: fmt.Sprintf("wait for human: no choice matching key %q", answer.Key)}, nil
}

func edgeLabelOrTarget(e pipeline.Edge) string {
	if e.Label != "" {
		return e.Label
	}
	return e.Target
}

func humanChoiceOutcome(nodeID string, c Choice, status pipeline.Status, failureReason string) pipeline.Outcome {
	return pipeline.Outcome{
		Status:           status,
		PreferredLabel:   c.Label,
		SuggestedNextIDs: []string{c.Target},
		FailureReason:    failureReason,
		ContextUpdates: map[string]any{
			fmt.Sprintf("human.%s.selected", nodeID): c.Target,
			fmt.Sprintf("human.%s.label", nodeID):    c.Label,
		},
	}
}

func defaultChoiceOf(node *pipeline.Node) (string, bool) {
	if node.Raw == nil {
		return "", false
	}
	v, ok := node.Raw["default_choice"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
