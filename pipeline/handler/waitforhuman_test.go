package handler

import (
	"context"
	"testing"

	"github.com/agentflowhq/agentrt/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedInterviewer struct {
	answer Answer
	err    error
}

func (f fixedInterviewer) Ask(ctx context.Context, prompt string, choices []Choice) (Answer, error) {
	return f.answer, f.err
}

func waitGraphAndNode() (*pipeline.Graph, *pipeline.Node) {
	node := &pipeline.Node{ID: "w", Prompt: "Approve?"}
	g := pipeline.NewGraph("g", pipeline.GraphAttrs{}, []*pipeline.Node{node}, []pipeline.Edge{
		{Source: "w", Target: "yes", Label: "Yes"},
		{Source: "w", Target: "no", Label: "No"},
	})
	return g, node
}

func TestWaitForHumanMatchesAnswerKeyToEdge(t *testing.T) {
	t.Parallel()

	g, node := waitGraphAndNode()
	h := NewWaitForHuman(fixedInterviewer{answer: Answer{Key: "Y"}}, nil)

	outcome, err := h.Execute(context.Background(), node, pipeline.NewContext(), g, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusSuccess, outcome.Status)
	assert.Equal(t, []string{"yes"}, outcome.SuggestedNextIDs)
}

func TestWaitForHumanNilInterviewerTimesOutImmediately(t *testing.T) {
	t.Parallel()

	g, node := waitGraphAndNode()
	h := NewWaitForHuman(nil, nil)

	outcome, err := h.Execute(context.Background(), node, pipeline.NewContext(), g, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusRetry, outcome.Status)
}

func TestWaitForHumanTimeoutFallsBackToDefaultChoice(t *testing.T) {
	t.Parallel()

	node := &pipeline.Node{ID: "w", Prompt: "Approve?", Raw: map[string]any{"default_choice": "No"}}
	g := pipeline.NewGraph("g", pipeline.GraphAttrs{}, []*pipeline.Node{node}, []pipeline.Edge{
		{Source: "w", Target: "yes", Label: "Yes"},
		{Source: "w", Target: "no", Label: "No"},
	})
	h := NewWaitForHuman(fixedInterviewer{answer: Answer{TimedOut: true}}, nil)

	outcome, err := h.Execute(context.Background(), node, pipeline.NewContext(), g, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusSuccess, outcome.Status)
	assert.Equal(t, []string{"no"}, outcome.SuggestedNextIDs)
}

func TestWaitForHumanTimeoutWithoutDefaultChoiceRetries(t *testing.T) {
	t.Parallel()

	g, node := waitGraphAndNode()
	h := NewWaitForHuman(fixedInterviewer{answer: Answer{TimedOut: true}}, nil)

	outcome, err := h.Execute(context.Background(), node, pipeline.NewContext(), g, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusRetry, outcome.Status)
}

func TestWaitForHumanSkippedAnswerFails(t *testing.T) {
	t.Parallel()

	g, node := waitGraphAndNode()
	h := NewWaitForHuman(fixedInterviewer{answer: Answer{Skipped: true}}, nil)

	outcome, err := h.Execute(context.Background(), node, pipeline.NewContext(), g, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusFail, outcome.Status)
}

func TestWaitForHumanUnmatchedKeyFails(t *testing.T) {
	t.Parallel()

	g, node := waitGraphAndNode()
	h := NewWaitForHuman(fixedInterviewer{answer: Answer{Key: "does-not-exist"}}, nil)

	outcome, err := h.Execute(context.Background(), node, pipeline.NewContext(), g, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusFail, outcome.Status)
}

func TestWaitForHumanEmitsInterviewEvents(t *testing.T) {
	t.Parallel()

	g, node := waitGraphAndNode()
	var types []pipeline.EventType
	h := NewWaitForHuman(fixedInterviewer{answer: Answer{Key: "Y"}}, pipeline.EmitterFunc(func(e pipeline.Event) { types = append(types, e.Type) }))

	_, err := h.Execute(context.Background(), node, pipeline.NewContext(), g, "")
	require.NoError(t, err)
	assert.Contains(t, types, pipeline.EventInterviewStarted)
	assert.Contains(t, types, pipeline.EventInterviewCompleted)
}

func TestWaitForHumanEmitsTimeoutEvent(t *testing.T) {
	t.Parallel()

	g, node := waitGraphAndNode()
	var types []pipeline.EventType
	h := NewWaitForHuman(fixedInterviewer{answer: Answer{TimedOut: true}}, pipeline.EmitterFunc(func(e pipeline.Event) { types = append(types, e.Type) }))

	_, err := h.Execute(context.Background(), node, pipeline.NewContext(), g, "")
	require.NoError(t, err)
	assert.Contains(t, types, pipeline.EventInterviewTimeout)
}
