// Package openaichat adapts github.com/sashabaranov/go-openai's Chat
// Completions API to the provider-neutral provider.ModelClient shape. It targets
// OpenAI-Chat-Compatible endpoints — self-hosted vLLM, Ollama, Together,
// Groq, and any other server speaking the Chat Completions wire format —
// via a configurable base URL, distinct from package openairesponses which
// talks to api.openai.com's native Responses API.
package openaichat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentflowhq/agentrt/provider/model"
	"github.com/agentflowhq/agentrt/provider/transport"
)

// ChatClient captures the subset of the go-openai client this adapter
// depends on.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Options configures optional adapter behavior.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
	// BaseURL points at an OpenAI-Chat-Compatible server; empty uses the
	// default OpenAI API.
	BaseURL string
}

// Client implements a provider.ModelClient-shaped adapter over Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
	maxTok       int
	temp         float64
}

// New builds a client from the given chat client and options.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openaichat: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openaichat: default model identifier is required")
	}
	return &Client{chat: chat, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client, optionally pointed at a custom base
// URL for OpenAI-compatible servers.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openaichat: api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return New(openai.NewClientWithConfig(cfg), opts)
}

func (c *Client) Name() string { return "openai-chat" }

func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params, names, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	out, err := c.chat.CreateChatCompletion(ctx, *params)
	if err != nil {
		return nil, wrapError(err)
	}
	return translateResponse(&out, names)
}

func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, names, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	params.Stream = true
	stream, err := c.chat.CreateChatCompletionStream(ctx, *params)
	if err != nil {
		return nil, wrapError(err)
	}
	return newStreamer(stream, names), nil
}

func (c *Client) prepareRequest(req model.Request) (*openai.ChatCompletionRequest, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, &transport.Error{Kind: transport.KindInvalidRequest, Provider: "openai-chat", Message: "messages are required"}
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, nil, err
	}
	tools, names := encodeTools(req.Tools)

	params := &openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: msgs,
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	maxTok := req.MaxTokens
	if maxTok <= 0 {
		maxTok = c.maxTok
	}
	if maxTok > 0 {
		params.MaxTokens = maxTok
	}
	temp := c.temp
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	if temp > 0 {
		params.Temperature = float32(temp)
	}
	if req.TopP != nil {
		params.TopP = float32(*req.TopP)
	}
	if len(req.StopSequences) > 0 {
		params.Stop = req.StopSequences
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == model.ResponseFormatJSON {
		params.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
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

func encodeMessages(msgs []model.Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role, err := roleToChat(m.Role)
		if err != nil {
			return nil, err
		}
		var text string
		var toolCalls []openai.ToolCall
		var toolCallID string
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				text += v.Text
			case model.ToolCallPart:
				args := v.RawArgs
				if args == "" {
					if b, err := json.Marshal(v.Args); err == nil {
						args = string(b)
					}
				}
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   v.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      v.Name,
						Arguments: args,
					},
				})
			case model.ToolResultPart:
				toolCallID = v.ToolCallID
				text = toolResultText(v)
			}
		}
		msg := openai.ChatCompletionMessage{Role: role, Content: text}
		if len(toolCalls) > 0 {
			msg.ToolCalls = toolCalls
		}
		if toolCallID != "" {
			msg.ToolCallID = toolCallID
		}
		out = append(out, msg)
	}
	if len(out) == 0 {
		return nil, &transport.Error{Kind: transport.KindInvalidRequest, Provider: "openai-chat", Message: "at least one message is required"}
	}
	return out, nil
}

func roleToChat(r model.Role) (string, error) {
	switch r {
	case model.RoleSystem:
		return openai.ChatMessageRoleSystem, nil
	case model.RoleDeveloper:
		return openai.ChatMessageRoleSystem, nil
	case model.RoleUser:
		return openai.ChatMessageRoleUser, nil
	case model.RoleAssistant:
		return openai.ChatMessageRoleAssistant, nil
	case model.RoleTool:
		return openai.ChatMessageRoleTool, nil
	default:
		return "", fmt.Errorf("openaichat: unsupported message role %q", r)
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

func encodeTools(defs []model.ToolDefinition) ([]openai.Tool, map[string]string) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	names := make(map[string]string, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.Parameters) > 0 {
			_ = json.Unmarshal(def.Parameters, &schema)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  schema,
			},
		})
		names[def.Name] = def.Name
	}
	return tools, names
}

func encodeToolChoice(choice *model.ToolChoice) (any, error) {
	switch choice.Mode {
	case "", model.ToolChoiceAuto:
		return "auto", nil
	case model.ToolChoiceNone:
		return "none", nil
	case model.ToolChoiceRequired:
		return "required", nil
	case model.ToolChoiceNamed:
		return openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: choice.ToolName},
		}, nil
	default:
		return nil, fmt.Errorf("openaichat: unsupported tool choice mode %q", choice.Mode)
	}
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	kind := transport.KindServerError
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
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
	return &transport.Error{Kind: kind, Provider: "openai-chat", StatusCode: status, Message: err.Error(), Err: err}
}

func translateResponse(out *openai.ChatCompletionResponse, names map[string]string) (*model.Response, error) {
	if out == nil || len(out.Choices) == 0 {
		return nil, errors.New("openaichat: response has no choices")
	}
	choice := out.Choices[0]
	msg := model.Message{Role: model.RoleAssistant}
	if choice.Message.Content != "" {
		msg.Parts = append(msg.Parts, model.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		name := tc.Function.Name
		if canonical, ok := names[name]; ok {
			name = canonical
		}
		msg.Parts = append(msg.Parts, model.ToolCallPart{ID: tc.ID, Name: name, RawArgs: tc.Function.Arguments})
	}

	resp := &model.Response{
		ID:       out.ID,
		Model:    out.Model,
		Provider: "openai-chat",
		Message:  msg,
		Finish:   translateFinish(string(choice.FinishReason)),
		Raw:      out,
	}
	if out.Usage.TotalTokens != 0 {
		resp.Usage = model.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		}
	}
	return resp, nil
}

func translateFinish(raw string) model.Finish {
	switch raw {
	case "stop":
		return model.Finish{Reason: model.FinishStop, Raw: raw}
	case "length":
		return model.Finish{Reason: model.FinishLength, Raw: raw}
	case "tool_calls", "function_call":
		return model.Finish{Reason: model.FinishToolCalls, Raw: raw}
	case "content_filter":
		return model.Finish{Reason: model.FinishContentFilter, Raw: raw}
	default:
		return model.Finish{Reason: model.FinishOther, Raw: raw}
	}
}
