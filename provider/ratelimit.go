package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/agentflowhq/agentrt/provider/model"
)

// RateLimiter applies a tokens-per-minute budget across Complete and Stream
// calls, estimating each request's cost with estimateTokens.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-minute
// budget. A non-positive tpm defaults to a conservative 60000.
func NewRateLimiter(tpm float64) *RateLimiter {
	if tpm <= 0 {
		tpm = 60000
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(tpm/60.0), int(tpm))}
}

// Middleware returns a Middleware enforcing this limiter ahead of every
// Complete/Stream call.
func (l *RateLimiter) Middleware() Middleware {
	return func(next ModelClient) ModelClient {
		return &rateLimitedClient{next: next, limiter: l}
	}
}

type rateLimitedClient struct {
	next    ModelClient
	limiter *RateLimiter
}

func (c *rateLimitedClient) Name() string { return c.next.Name() }

func (c *rateLimitedClient) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	return c.next.Complete(ctx, req)
}

func (c *rateLimitedClient) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	return c.next.Stream(ctx, req)
}

func (l *RateLimiter) wait(ctx context.Context, req model.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

// estimateTokens approximates request token cost as message text length
// over 4 (the common ~4-characters-per-token heuristic) plus req.MaxTokens.
func estimateTokens(req model.Request) int {
	chars := 0
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			if v, ok := p.(model.TextPart); ok {
				chars += len(v.Text)
			}
		}
	}
	tokens := chars/4 + req.MaxTokens
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
