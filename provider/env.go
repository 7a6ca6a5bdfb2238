package provider

import (
	"context"
	"errors"
	"os"

	"github.com/agentflowhq/agentrt/provider/anthropic"
	"github.com/agentflowhq/agentrt/provider/gemini"
	"github.com/agentflowhq/agentrt/provider/openaichat"
	"github.com/agentflowhq/agentrt/provider/openairesponses"
)

// EnvConfig controls which provider adapters NewFromEnv wires up and under
// which registry name.
type EnvConfig struct {
	AnthropicModel    string
	OpenAIModel       string
	OpenAIChatModel   string
	OpenAIChatBaseURL string
	GeminiModel       string
	Middleware        []Middleware
}

// NewFromEnv builds a Client wired from well-known environment variables
// (ANTHROPIC_API_KEY, OPENAI_API_KEY, OPENAI_COMPAT_API_KEY,
// GOOGLE_API_KEY/GEMINI_API_KEY), registering only the providers whose key
// is present. It returns an error if none of these keys are set, or if
// constructing one of the configured adapters fails.
func NewFromEnv(ctx context.Context, cfg EnvConfig) (*Client, error) {
	clients := map[string]ModelClient{}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model := cfg.AnthropicModel
		if model == "" {
			model = "claude-sonnet-4-5"
		}
		c, err := anthropic.NewFromAPIKey(key, model)
		if err != nil {
			return nil, err
		}
		clients["anthropic"] = c
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model := cfg.OpenAIModel
		if model == "" {
			model = "gpt-4.1"
		}
		c, err := openairesponses.NewFromAPIKey(key, model)
		if err != nil {
			return nil, err
		}
		clients["openai"] = c
	}

	if key := os.Getenv("OPENAI_COMPAT_API_KEY"); key != "" {
		model := cfg.OpenAIChatModel
		if model == "" {
			model = "gpt-4o"
		}
		c, err := openaichat.NewFromAPIKey(key, openaichat.Options{DefaultModel: model, BaseURL: cfg.OpenAIChatBaseURL})
		if err != nil {
			return nil, err
		}
		clients["openai-chat"] = c
	}

	key := os.Getenv("GOOGLE_API_KEY")
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key != "" {
		model := cfg.GeminiModel
		if model == "" {
			model = "gemini-2.0-flash"
		}
		c, err := gemini.NewFromAPIKey(ctx, key, model)
		if err != nil {
			return nil, err
		}
		clients["gemini"] = c
	}

	if len(clients) == 0 {
		return nil, errNoProviderConfigured
	}

	return New(clients, WithMiddleware(cfg.Middleware...)), nil
}

var errNoProviderConfigured = errors.New("provider: no provider API key set in the environment")
