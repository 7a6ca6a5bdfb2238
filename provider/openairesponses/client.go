// Package openairesponses adapts github.com/openai/openai-go's Responses
// API (client.Responses.New/NewStreaming) to the provider-neutral
// provider.ModelClient shape. It is the OpenAI adapter used against api.openai.com;
// package openaichat covers OpenAI-Chat-Compatible endpoints (self-hosted
// vLLM/Ollama/Together/Groq) via the Chat Completions shape instead.
package openairesponses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"

	"github.com/agentflowhq/agentrt/provider/model"
	"github.com/agentflowhq/agentrt/provider/transport"
)

// ResponsesClient captures the subset of the OpenAI SDK used by this
// adapter.
type ResponsesClient interface {
	New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
	NewStreaming(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) *ssestream.Stream[responses.ResponseStreamEventUnion]
}

// Options configures optional adapter behavior.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements a provider.ModelClient-shaped adapter over the Responses API.
type Client struct {
	resp         ResponsesClient
	defaultModel string
	maxTok       int
	temp         float64
}

// New builds a client from the given Responses client and options.
func New(resp ResponsesClient, opts Options) (*Client, error) {
	if resp == nil {
		return nil, errors.New("openairesponses: responses client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openairesponses: default model identifier is required")
	}
	return &Client{resp: resp, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client against the public OpenAI API.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openairesponses: api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Responses, Options{DefaultModel: defaultModel})
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params, toolNames, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	out, err := c.resp.New(ctx, *params)
	if err != nil {
		return nil, wrapError(err)
	}
	return translateResponse(out, toolNames)
}

func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, toolNames, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.resp.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, wrapError(err)
	}
	return newStreamer(stream, toolNames), nil
}

func (c *Client) prepareRequest(req model.Request) (*responses.ResponseNewParams, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, &transport.Error{Kind: transport.KindInvalidRequest, Provider: "openai", Message: "messages are required"}
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	items, err := encodeInput(req.Messages)
	if err != nil {
		return nil, nil, err
	}
	tools, names := encodeTools(req.Tools)

	params := &responses.ResponseNewParams{
		Model: responses.ResponsesModel(modelID),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	maxTok := req.MaxTokens
	if maxTok <= 0 {
		maxTok = c.maxTok
	}
	if maxTok > 0 {
		params.MaxOutputTokens = openai.Int(int64(maxTok))
	}
	temp := c.temp
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}
	if req.ReasoningEffort != "" && req.ReasoningEffort != model.ReasoningNone {
		params.Reasoning = responses.ReasoningParam{Effort: responses.ReasoningEffort(req.ReasoningEffort)}
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(req.ToolChoice)
		if err != nil {
			return nil, nil, err
		}
		params.ToolChoice = tc
	}
	return params, names, nil
}

func encodeInput(msgs []model.Message) (responses.ResponseInputParam, error) {
	items := make(responses.ResponseInputParam, 0, len(msgs))
	for _, m := range msgs {
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text == "" {
					continue
				}
				role := roleToResponses(m.Role)
				items = append(items, responses.ResponseInputItemParamOfMessage(v.Text, role))
			case model.ToolCallPart:
				raw := v.RawArgs
				if raw == "" {
					if b, err := json.Marshal(v.Args); err == nil {
						raw = string(b)
					}
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(raw, v.ID, v.Name))
			case model.ToolResultPart:
				items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(v.ToolCallID, toolResultText(v)))
			}
		}
	}
	if len(items) == 0 {
		return nil, &transport.Error{Kind: transport.KindInvalidRequest, Provider: "openai", Message: "at least one encodable input item is required"}
	}
	return items, nil
}

func roleToResponses(r model.Role) responses.EasyInputMessageRole {
	switch r {
	case model.RoleSystem, model.RoleDeveloper:
		return responses.EasyInputMessageRoleSystem
	case model.RoleAssistant:
		return responses.EasyInputMessageRoleAssistant
	default:
		return responses.EasyInputMessageRoleUser
	}
}

func toolResultText(v model.ToolResultPart) string {
	switch c := v.Content.(type) {
	case string:
		return c
	case []byte:
		return string(c)
	default:
		if b, err := json.Marshal(c); err == nil {
			return string(b)
		}
		return ""
	}
}

func encodeTools(defs []model.ToolDefinition) (responses.ToolUnionParam, map[string]string) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make(responses.ToolUnionParam, 0, len(defs))
	names := make(map[string]string, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.Parameters) > 0 {
			_ = json.Unmarshal(def.Parameters, &schema)
		}
		tools = append(tools, responses.ToolParamOfFunction(def.Name, schema, true))
		names[def.Name] = def.Name
	}
	return tools, names
}

func encodeToolChoice(choice *model.ToolChoice) (responses.ResponseNewParamsToolChoiceUnion, error) {
	switch choice.Mode {
	case "", model.ToolChoiceAuto:
		return responses.ResponseNewParamsToolChoiceUnion{}, nil
	case model.ToolChoiceNone:
		return responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: openai.String(string(responses.ToolChoiceOptionsNone))}, nil
	case model.ToolChoiceRequired:
		return responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: openai.String(string(responses.ToolChoiceOptionsRequired))}, nil
	case model.ToolChoiceNamed:
		return responses.ResponseNewParamsToolChoiceUnion{
			OfFunctionTool: &responses.ToolChoiceFunctionParam{Name: choice.ToolName},
		}, nil
	default:
		return responses.ResponseNewParamsToolChoiceUnion{}, fmt.Errorf("openairesponses: unsupported tool choice mode %q", choice.Mode)
	}
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	kind := transport.KindServerError
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
		switch {
		case status == 401:
			kind = transport.KindAuthentication
		case status == 403:
			kind = transport.KindAccessDenied
		case status == 404:
			kind = transport.KindNotFound
		case status == 408:
			kind = transport.KindRequestTimeout
		case status == 429:
			kind = transport.KindRateLimit
		case status >= 500:
			kind = transport.KindServerError
		case status > 0:
			kind = transport.KindInvalidRequest
		}
	}
	return &transport.Error{Kind: kind, Provider: "openai", StatusCode: status, Message: err.Error(), Err: err}
}

func translateResponse(out *responses.Response, names map[string]string) (*model.Response, error) {
	if out == nil {
		return nil, errors.New("openairesponses: response is nil")
	}
	msg := model.Message{Role: model.RoleAssistant}
	for _, item := range out.Output {
		switch v := item.AsAny().(type) {
		case responses.ResponseOutputMessage:
			for _, content := range v.Content {
				if text := content.AsAny(); text != nil {
					if t, ok := text.(responses.ResponseOutputText); ok && t.Text != "" {
						msg.Parts = append(msg.Parts, model.TextPart{Text: t.Text})
					}
				}
			}
		case responses.ResponseFunctionToolCall:
			name := v.Name
			if canonical, ok := names[name]; ok {
				name = canonical
			}
			msg.Parts = append(msg.Parts, model.ToolCallPart{ID: v.CallID, Name: name, RawArgs: v.Arguments})
		case responses.ResponseReasoningItem:
			for _, s := range v.Summary {
				msg.Parts = append(msg.Parts, model.ThinkingPart{Text: s.Text})
			}
		}
	}

	resp := &model.Response{
		ID:       out.ID,
		Model:    string(out.Model),
		Provider: "openai",
		Message:  msg,
		Finish:   translateFinish(out),
		Raw:      out,
	}
	if u := out.Usage; u.TotalTokens != 0 {
		reasoning := int(u.OutputTokensDetails.ReasoningTokens)
		cacheRead := int(u.InputTokensDetails.CachedTokens)
		resp.Usage = model.Usage{
			InputTokens:     int(u.InputTokens),
			OutputTokens:    int(u.OutputTokens),
			TotalTokens:     int(u.TotalTokens),
			ReasoningTokens: &reasoning,
			CacheReadTokens: &cacheRead,
		}
	}
	return resp, nil
}

func translateFinish(out *responses.Response) model.Finish {
	status := string(out.Status)
	switch status {
	case "completed":
		for _, item := range out.Output {
			if _, ok := item.AsAny().(responses.ResponseFunctionToolCall); ok {
				return model.Finish{Reason: model.FinishToolCalls, Raw: status}
			}
		}
		return model.Finish{Reason: model.FinishStop, Raw: status}
	case "incomplete":
		return model.Finish{Reason: model.FinishLength, Raw: status}
	default:
		return model.Finish{Reason: model.FinishOther, Raw: status}
	}
}
