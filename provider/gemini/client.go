// Package gemini adapts google.golang.org/genai's GenerateContent API to
// the provider-neutral provider.ModelClient shape, translating the unified
// Request/Response/StreamEvent values into and out of Gemini's
// Content/Part wire format (function calls, inline blobs, system
// instructions).
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/agentflowhq/agentrt/provider/model"
	"github.com/agentflowhq/agentrt/provider/transport"
)

// Options configures optional adapter behavior.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements a provider.ModelClient-shaped adapter over the Gemini API.
type Client struct {
	genai        *genai.Client
	defaultModel string
	maxTok       int
	temp         float64
}

// New builds a client from an already-constructed genai.Client.
func New(c *genai.Client, opts Options) (*Client, error) {
	if c == nil {
		return nil, errors.New("gemini: client is required")
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = "gemini-2.0-flash"
	}
	return &Client{genai: c, defaultModel: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client against the public Gemini API.
func NewFromAPIKey(ctx context.Context, apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return New(c, Options{DefaultModel: defaultModel})
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	modelID, contents, config, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.genai.Models.GenerateContent(ctx, modelID, contents, config)
	if err != nil {
		return nil, wrapError(err)
	}
	return translateResponse(resp, modelID)
}

func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	modelID, contents, config, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	iterSeq := c.genai.Models.GenerateContentStream(ctx, modelID, contents, config)
	return newStreamer(ctx, iterSeq, modelID), nil
}

func (c *Client) prepareRequest(req model.Request) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	if len(req.Messages) == 0 {
		return "", nil, nil, &transport.Error{Kind: transport.KindInvalidRequest, Provider: "gemini", Message: "messages are required"}
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	contents, system, err := convertMessages(req.Messages)
	if err != nil {
		return "", nil, nil, err
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	maxTok := req.MaxTokens
	if maxTok <= 0 {
		maxTok = c.maxTok
	}
	if maxTok > 0 {
		config.MaxOutputTokens = int32(maxTok)
	}
	temp := c.temp
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	if temp > 0 {
		t := float32(temp)
		config.Temperature = &t
	}
	if len(req.Tools) > 0 {
		config.Tools = convertTools(req.Tools)
	}
	if req.ToolChoice != nil {
		config.ToolConfig = convertToolChoice(req.ToolChoice)
	}
	return modelID, contents, config, nil
}

func convertMessages(msgs []model.Message) ([]*genai.Content, string, error) {
	var result []*genai.Content
	var system strings.Builder

	for _, m := range msgs {
		if m.Role == model.RoleSystem || m.Role == model.RoleDeveloper {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok {
					system.WriteString(v.Text)
				}
			}
			continue
		}

		content := &genai.Content{}
		switch m.Role {
		case model.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text != "" {
					content.Parts = append(content.Parts, &genai.Part{Text: v.Text})
				}
			case model.ImagePart:
				if len(v.Bytes) > 0 {
					content.Parts = append(content.Parts, &genai.Part{InlineData: &genai.Blob{Data: v.Bytes, MIMEType: v.MediaType}})
				} else if v.URL != "" {
					content.Parts = append(content.Parts, &genai.Part{FileData: &genai.FileData{FileURI: v.URL, MIMEType: v.MediaType}})
				}
			case model.ToolCallPart:
				var args map[string]any
				if v.Args != nil {
					if b, err := json.Marshal(v.Args); err == nil {
						_ = json.Unmarshal(b, &args)
					}
				} else if v.RawArgs != "" {
					_ = json.Unmarshal([]byte(v.RawArgs), &args)
				}
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: v.Name, Args: args}})
			case model.ToolResultPart:
				response := toolResultResponse(v)
				content.Parts = append(content.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{Name: v.ToolCallID, Response: response}})
			}
		}
		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	if len(result) == 0 {
		return nil, "", &transport.Error{Kind: transport.KindInvalidRequest, Provider: "gemini", Message: "at least one user/assistant message is required"}
	}
	return result, system.String(), nil
}

func toolResultResponse(v model.ToolResultPart) map[string]any {
	switch c := v.Content.(type) {
	case map[string]any:
		return c
	case string:
		var m map[string]any
		if json.Unmarshal([]byte(c), &m) == nil {
			return m
		}
		return map[string]any{"result": c, "error": v.IsError}
	default:
		b, _ := json.Marshal(c)
		var m map[string]any
		if json.Unmarshal(b, &m) == nil {
			return m
		}
		return map[string]any{"result": string(b), "error": v.IsError}
	}
}

func convertTools(defs []model.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.Parameters) > 0 {
			_ = json.Unmarshal(def.Parameters, &schema)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 def.Name,
			Description:          def.Description,
			ParametersJsonSchema: schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func convertToolChoice(choice *model.ToolChoice) *genai.ToolConfig {
	switch choice.Mode {
	case model.ToolChoiceNone:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone}}
	case model.ToolChoiceRequired:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny}}
	case model.ToolChoiceNamed:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{choice.ToolName},
		}}
	default:
		return nil
	}
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	kind := transport.KindServerError
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource_exhausted"):
		kind = transport.KindRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthenticated"):
		kind = transport.KindAuthentication
	case strings.Contains(msg, "403") || strings.Contains(msg, "permission_denied"):
		kind = transport.KindAccessDenied
	case strings.Contains(msg, "404") || strings.Contains(msg, "not_found"):
		kind = transport.KindNotFound
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout"):
		kind = transport.KindRequestTimeout
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "unavailable"):
		kind = transport.KindServerError
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		kind = transport.KindNetworkError
	}
	return &transport.Error{Kind: kind, Provider: "gemini", Message: err.Error(), Err: err}
}

func translateResponse(resp *genai.GenerateContentResponse, modelID string) (*model.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("gemini: response has no candidates")
	}
	candidate := resp.Candidates[0]
	msg := model.Message{Role: model.RoleAssistant}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				msg.Parts = append(msg.Parts, model.TextPart{Text: part.Text})
			}
			if part.FunctionCall != nil {
				raw, _ := json.Marshal(part.FunctionCall.Args)
				msg.Parts = append(msg.Parts, model.ToolCallPart{
					ID:      generateToolCallID(part.FunctionCall.Name),
					Name:    part.FunctionCall.Name,
					RawArgs: string(raw),
				})
			}
		}
	}

	out := &model.Response{
		Model:    modelID,
		Provider: "gemini",
		Message:  msg,
		Finish:   translateFinish(string(candidate.FinishReason)),
		Raw:      resp,
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = model.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func translateFinish(raw string) model.Finish {
	switch raw {
	case "STOP":
		return model.Finish{Reason: model.FinishStop, Raw: raw}
	case "MAX_TOKENS":
		return model.Finish{Reason: model.FinishLength, Raw: raw}
	case "SAFETY", "RECITATION", "PROHIBITED_CONTENT", "SPII":
		return model.Finish{Reason: model.FinishContentFilter, Raw: raw}
	case "":
		return model.Finish{Reason: model.FinishOther, Raw: raw}
	default:
		return model.Finish{Reason: model.FinishOther, Raw: raw}
	}
}

// generateToolCallID synthesizes a stable-enough call ID for providers
// (Gemini) that do not themselves assign one to function calls.
func generateToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", name, time.Now().UnixNano())
}
