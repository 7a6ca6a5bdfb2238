package openaichat

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflowhq/agentrt/provider/model"
)

type stubChatClient struct {
	lastParams openai.ChatCompletionRequest
	resp       openai.ChatCompletionResponse
	err        error
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastParams = req
	return s.resp, s.err
}

func (s *stubChatClient) CreateChatCompletionStream(_ context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	s.lastParams = req
	return nil, nil
}

func textReq(text string) model.Request {
	return model.Request{Messages: []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: text}}},
	}}
}

func TestChatCompleteTranslatesTextAndUsage(t *testing.T) {
	t.Parallel()

	stub := &stubChatClient{}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)

	stub.resp = openai.ChatCompletionResponse{
		ID:    "resp-1",
		Model: "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "hi there"}, FinishReason: "stop"},
		},
		Usage: openai.Usage{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10},
	}

	resp, err := cl.Complete(context.Background(), textReq("hello"))
	require.NoError(t, err)
	require.Len(t, resp.Message.Parts, 1)
	assert.Equal(t, "hi there", resp.Message.Parts[0].(model.TextPart).Text)
	assert.Equal(t, model.FinishStop, resp.Finish.Reason)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o-mini", stub.lastParams.Model)
}

func TestChatCompleteRoundTripsToolCallName(t *testing.T) {
	t.Parallel()

	stub := &stubChatClient{}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)

	req := textReq("call a tool")
	req.Tools = []model.ToolDefinition{{Name: "do_thing", Description: "does a thing"}}

	stub.resp = openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{
					ID:       "call-1",
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: "do_thing", Arguments: `{"x":1}`},
				}},
			},
			FinishReason: "tool_calls",
		}},
	}

	resp, err := cl.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Message.Parts, 1)
	tc, ok := resp.Message.Parts[0].(model.ToolCallPart)
	require.True(t, ok)
	assert.Equal(t, "do_thing", tc.Name)
	assert.Equal(t, "call-1", tc.ID)
	assert.Equal(t, model.FinishToolCalls, resp.Finish.Reason)
}

func TestChatCompleteRejectsEmptyMessages(t *testing.T) {
	t.Parallel()

	stub := &stubChatClient{}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), model.Request{})
	assert.Error(t, err)
}

func TestTranslateFinishMapsKnownReasons(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.FinishStop, translateFinish("stop").Reason)
	assert.Equal(t, model.FinishLength, translateFinish("length").Reason)
	assert.Equal(t, model.FinishToolCalls, translateFinish("tool_calls").Reason)
	assert.Equal(t, model.FinishToolCalls, translateFinish("function_call").Reason)
	assert.Equal(t, model.FinishContentFilter, translateFinish("content_filter").Reason)
	assert.Equal(t, model.FinishOther, translateFinish("unknown").Reason)
}

func TestEncodeToolChoiceModes(t *testing.T) {
	t.Parallel()

	got, err := encodeToolChoice(&model.ToolChoice{Mode: model.ToolChoiceAuto})
	require.NoError(t, err)
	assert.Equal(t, "auto", got)

	got, err = encodeToolChoice(&model.ToolChoice{Mode: model.ToolChoiceNone})
	require.NoError(t, err)
	assert.Equal(t, "none", got)

	got, err = encodeToolChoice(&model.ToolChoice{Mode: model.ToolChoiceNamed, ToolName: "do_thing"})
	require.NoError(t, err)
	tc, ok := got.(openai.ToolChoice)
	require.True(t, ok)
	assert.Equal(t, "do_thing", tc.Function.Name)
}
