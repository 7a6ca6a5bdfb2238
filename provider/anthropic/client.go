// Package anthropic adapts github.com/anthropics/anthropic-sdk-go's Messages
// API to the provider-neutral provider.ModelClient shape, translating unified
// Request/Response/StreamEvent values into and out of Anthropic's wire
// format (tool_use/tool_result blocks, extended thinking, and prompt-cache
// read/write token counts; no cache_control markers are sent).
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentflowhq/agentrt/provider/model"
	"github.com/agentflowhq/agentrt/provider/transport"
)

// MessagesClient captures the subset of the Anthropic SDK client this
// adapter depends on, so tests can substitute a fake in place of
// *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures optional Anthropic adapter behavior.
type Options struct {
	// DefaultModel is used when Request.Model is empty.
	DefaultModel string
	// MaxTokens is the completion cap used when a request does not specify one.
	MaxTokens int
	// Temperature is used when a request does not specify one.
	Temperature float64
	// ThinkingBudget is the default extended-thinking token budget.
	ThinkingBudget int64
}

// Client implements a provider.ModelClient-shaped adapter on top of Anthropic
// Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTok       int
	temp         float64
	think        int64
}

// New builds an Anthropic-backed client from the given Messages client and
// options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
		think:        opts.ThinkingBudget,
	}, nil
}

// NewFromAPIKey constructs a client against the public Anthropic API.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Name returns the provider identifier used in model.Response.Provider.
func (c *Client) Name() string { return "anthropic" }

// Complete issues a non-streaming Messages.New call.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params, toolNames, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, wrapError(err)
	}
	return translateResponse(msg, toolNames)
}

// Stream issues Messages.NewStreaming and adapts events into model.StreamEvents.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, toolNames, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, wrapError(err)
	}
	return newStreamer(stream, toolNames), nil
}

func (c *Client) prepareRequest(req model.Request) (*sdk.MessageNewParams, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, &transport.Error{Kind: transport.KindInvalidRequest, Provider: "anthropic", Message: "messages are required"}
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	toolParams, canonToSan, sanToCanon, err := encodeTools(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	msgs, system, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return nil, nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens <= 0 {
		return nil, nil, &transport.Error{Kind: transport.KindInvalidRequest, Provider: "anthropic", Message: "max_tokens must be positive"}
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}
	temp := c.temp
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if req.ReasoningEffort != "" && req.ReasoningEffort != model.ReasoningNone {
		budget := c.think
		if budget <= 0 {
			budget = effortBudget(req.ReasoningEffort)
		}
		if budget >= int64(maxTokens) {
			budget = int64(maxTokens) / 2
		}
		if budget >= 1024 {
			params.Thinking = sdk.ThinkingConfigParamOfEnabled(budget)
		}
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(req.ToolChoice, canonToSan)
		if err != nil {
			return nil, nil, err
		}
		params.ToolChoice = tc
	}
	return &params, sanToCanon, nil
}

func effortBudget(e model.ReasoningEffort) int64 {
	switch e {
	case model.ReasoningLow:
		return 1024
	case model.ReasoningHigh:
		return 8192
	default:
		return 4096
	}
}

func encodeMessages(msgs []model.Message, nameMap map[string]string) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0, len(msgs))

	for _, m := range msgs {
		if m.Role == model.RoleSystem || m.Role == model.RoleDeveloper {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: v.Text})
				}
			}
			continue
		}

		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(v.Text))
				}
			case model.ToolCallPart:
				sanitized, ok := nameMap[v.Name]
				if !ok {
					return nil, nil, fmt.Errorf("anthropic: tool_call part references unknown tool %q", v.Name)
				}
				blocks = append(blocks, sdk.NewToolUseBlock(v.ID, v.Args, sanitized))
			case model.ToolResultPart:
				blocks = append(blocks, encodeToolResult(v))
			}
			// Thinking/image/audio/document parts are not re-encoded into the
			// outbound request; only the three part kinds above are part of the
			// Anthropic wire protocol this adapter rebuilds.
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case model.RoleUser, model.RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case model.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, &transport.Error{Kind: transport.KindInvalidRequest, Provider: "anthropic", Message: "at least one user/assistant message is required"}
	}
	return conversation, system, nil
}

func encodeToolResult(v model.ToolResultPart) sdk.ContentBlockParamUnion {
	var content string
	switch c := v.Content.(type) {
	case nil:
		content = ""
	case string:
		content = c
	case []byte:
		content = string(c)
	default:
		if data, err := json.Marshal(c); err == nil {
			content = string(data)
		}
	}
	return sdk.NewToolResultBlock(v.ToolCallID, content, v.IsError)
}

// encodeTools builds Anthropic tool params and the canonical<->sanitized
// name maps. Anthropic tool names are restricted to [A-Za-z0-9_-]{1,64};
// sanitizeToolName rewrites disallowed runes so any unified tool name
// round-trips through the wire format.
func encodeTools(defs []model.ToolDefinition) ([]sdk.ToolUnionParam, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]sdk.ToolUnionParam, 0, len(defs))
	canonToSan := make(map[string]string, len(defs))
	sanToCanon := make(map[string]string, len(defs))

	for _, def := range defs {
		canonical := def.Name
		if canonical == "" {
			continue
		}
		sanitized := sanitizeToolName(canonical)
		if prev, ok := sanToCanon[sanitized]; ok && prev != canonical {
			return nil, nil, nil, fmt.Errorf("anthropic: tool name %q sanitizes to %q which collides with %q", canonical, sanitized, prev)
		}
		sanToCanon[sanitized] = canonical
		canonToSan[canonical] = sanitized

		var schemaMap map[string]any
		if len(def.Parameters) > 0 {
			if err := json.Unmarshal(def.Parameters, &schemaMap); err != nil {
				return nil, nil, nil, fmt.Errorf("anthropic: tool %q schema: %w", canonical, err)
			}
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schemaMap}, sanitized)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		toolList = append(toolList, u)
	}
	return toolList, canonToSan, sanToCanon, nil
}

func encodeToolChoice(choice *model.ToolChoice, canonToSan map[string]string) (sdk.ToolChoiceUnionParam, error) {
	switch choice.Mode {
	case "", model.ToolChoiceAuto:
		return sdk.ToolChoiceUnionParam{}, nil
	case model.ToolChoiceNone:
		none := sdk.NewToolChoiceNoneParam()
		return sdk.ToolChoiceUnionParam{OfNone: &none}, nil
	case model.ToolChoiceRequired:
		return sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}, nil
	case model.ToolChoiceNamed:
		sanitized, ok := canonToSan[choice.ToolName]
		if !ok {
			return sdk.ToolChoiceUnionParam{}, fmt.Errorf("anthropic: tool choice name %q does not match any tool", choice.ToolName)
		}
		return sdk.ToolChoiceParamOfTool(sanitized), nil
	default:
		return sdk.ToolChoiceUnionParam{}, fmt.Errorf("anthropic: unsupported tool choice mode %q", choice.Mode)
	}
}

// sanitizeToolName rewrites a canonical tool name so it satisfies
// Anthropic's ^[a-zA-Z0-9_-]{1,64}$ tool name constraint.
func sanitizeToolName(in string) string {
	if isProviderSafeToolName(in) {
		return in
	}
	out := make([]rune, 0, len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return string(out)
}

func isProviderSafeToolName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *sdk.Error
	kind := transport.KindServerError
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
		switch status {
		case 401:
			kind = transport.KindAuthentication
		case 403:
			kind = transport.KindAccessDenied
		case 404:
			kind = transport.KindNotFound
		case 408:
			kind = transport.KindRequestTimeout
		case 413, 422:
			kind = transport.KindInvalidRequest
		case 429:
			kind = transport.KindRateLimit
		default:
			if status >= 500 {
				kind = transport.KindServerError
			} else if status > 0 {
				kind = transport.KindInvalidRequest
			}
		}
	} else if strings.Contains(err.Error(), "context deadline exceeded") {
		kind = transport.KindRequestTimeout
	}
	return &transport.Error{Kind: kind, Provider: "anthropic", StatusCode: status, Message: err.Error(), Err: err}
}

func translateResponse(msg *sdk.Message, nameMap map[string]string) (*model.Response, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	out := model.Message{Role: model.RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				out.Parts = append(out.Parts, model.TextPart{Text: block.Text})
			}
		case "thinking":
			out.Parts = append(out.Parts, model.ThinkingPart{Text: block.Thinking})
		case "tool_use":
			name := block.Name
			if canonical, ok := nameMap[name]; ok {
				name = canonical
			}
			raw, _ := json.Marshal(block.Input)
			out.Parts = append(out.Parts, model.ToolCallPart{ID: block.ID, Name: name, RawArgs: string(raw)})
		}
	}

	resp := &model.Response{
		Model:    string(msg.Model),
		Provider: "anthropic",
		Message:  out,
		Finish:   translateStopReason(string(msg.StopReason)),
		Raw:      msg,
	}
	u := msg.Usage
	if u.InputTokens != 0 || u.OutputTokens != 0 {
		cacheRead := int(u.CacheReadInputTokens)
		cacheWrite := int(u.CacheCreationInputTokens)
		resp.Usage = model.Usage{
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			TotalTokens:      int(u.InputTokens + u.OutputTokens),
			CacheReadTokens:  &cacheRead,
			CacheWriteTokens: &cacheWrite,
		}
	}
	return resp, nil
}

func translateStopReason(raw string) model.Finish {
	switch raw {
	case "end_turn", "stop_sequence":
		return model.Finish{Reason: model.FinishStop, Raw: raw}
	case "max_tokens":
		return model.Finish{Reason: model.FinishLength, Raw: raw}
	case "tool_use":
		return model.Finish{Reason: model.FinishToolCalls, Raw: raw}
	default:
		return model.Finish{Reason: model.FinishOther, Raw: raw}
	}
}
