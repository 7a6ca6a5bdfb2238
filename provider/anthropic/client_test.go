package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflowhq/agentrt/provider/model"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
	stream     *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubMessagesClient) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.lastParams = body
	if s.stream == nil {
		s.stream = ssestream.NewStream[sdk.MessageStreamEventUnion](&noopDecoder{}, nil)
	}
	return s.stream
}

type noopDecoder struct{}

func (n *noopDecoder) Event() ssestream.Event { return ssestream.Event{} }
func (n *noopDecoder) Next() bool             { return false }
func (n *noopDecoder) Close() error           { return nil }
func (n *noopDecoder) Err() error             { return nil }

func textRequest(text string) model.Request {
	return model.Request{
		Messages: []model.Message{
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: text}}},
		},
	}
}

func TestCompleteTranslatesTextResponseAndUsage(t *testing.T) {
	t.Parallel()

	stub := &stubMessagesClient{}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	stub.resp = &sdk.Message{
		Model:      sdk.Model("claude-3-5-sonnet"),
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "world"}},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}

	resp, err := cl.Complete(context.Background(), textRequest("hello"))
	require.NoError(t, err)
	require.Len(t, resp.Message.Parts, 1)
	assert.Equal(t, "world", resp.Message.Parts[0].(model.TextPart).Text)
	assert.Equal(t, model.FinishStop, resp.Finish.Reason)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "anthropic", resp.Provider)
}

// TestCompleteRoundTripsToolCallThroughSanitizedName pins the provider
// round-trip property: a tool name that Anthropic's naming rules would
// reject must still surface under its original, canonical name once the
// response comes back.
func TestCompleteRoundTripsToolCallThroughSanitizedName(t *testing.T) {
	t.Parallel()

	stub := &stubMessagesClient{}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	req := textRequest("call the tool")
	req.Tools = []model.ToolDefinition{
		{Name: "test.tool name", Description: "a tool", Parameters: json.RawMessage(`{"type":"object"}`)},
	}

	toolParams, canonToSan, _, err := encodeTools(req.Tools)
	require.NoError(t, err)
	require.Len(t, toolParams, 1)
	sanitized := canonToSan["test.tool name"]
	require.NotEmpty(t, sanitized)
	assert.True(t, isProviderSafeToolName(sanitized))

	stub.resp = &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "tool_use", Name: sanitized, ID: "call-1", Input: json.RawMessage(`{"x":1}`)},
		},
		StopReason: sdk.StopReasonToolUse,
	}

	resp, err := cl.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Message.Parts, 1)
	tc, ok := resp.Message.Parts[0].(model.ToolCallPart)
	require.True(t, ok)
	assert.Equal(t, "test.tool name", tc.Name, "the canonical name must be restored, not the sanitized wire name")
	assert.Equal(t, "call-1", tc.ID)
	assert.Equal(t, model.FinishToolCalls, resp.Finish.Reason)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	t.Parallel()

	stub := &stubMessagesClient{}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), model.Request{})
	assert.Error(t, err)
}

func TestCompleteRequiresPositiveMaxTokens(t *testing.T) {
	t.Parallel()

	stub := &stubMessagesClient{}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet"})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), textRequest("hi"))
	assert.Error(t, err)
}

func TestSanitizeToolNameIsIdentityForSafeNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "read_file", sanitizeToolName("read_file"))
}

func TestSanitizeToolNameReplacesDisallowedRunes(t *testing.T) {
	t.Parallel()

	got := sanitizeToolName("read file.v2")
	assert.True(t, isProviderSafeToolName(got))
	assert.NotContains(t, got, " ")
	assert.NotContains(t, got, ".")
}

func TestTranslateStopReasonMapsKnownReasons(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.FinishStop, translateStopReason("end_turn").Reason)
	assert.Equal(t, model.FinishStop, translateStopReason("stop_sequence").Reason)
	assert.Equal(t, model.FinishLength, translateStopReason("max_tokens").Reason)
	assert.Equal(t, model.FinishToolCalls, translateStopReason("tool_use").Reason)
	assert.Equal(t, model.FinishOther, translateStopReason("something_new").Reason)
}
