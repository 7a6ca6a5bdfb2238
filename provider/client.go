// Package provider assembles the four model adapters behind a single
// onion-middleware Client, and folds streamed StreamEvents back into a
// Response via Accumulator.
package provider

import (
	"context"

	"github.com/agentflowhq/agentrt/provider/model"
)

// ModelClient is implemented by every provider adapter (anthropic,
// openairesponses, openaichat, gemini).
type ModelClient interface {
	Name() string
	Complete(ctx context.Context, req model.Request) (*model.Response, error)
	Stream(ctx context.Context, req model.Request) (model.Streamer, error)
}

// Middleware wraps a ModelClient to add cross-cutting behavior (retry,
// logging, rate limiting) without changing its interface. Middlewares
// compose in onion order: the first Middleware passed to New wraps
// outermost, so its request-leg code runs first and its response-leg code
// runs last.
type Middleware func(ModelClient) ModelClient

// Client dispatches requests to a named set of registered model clients,
// wrapped in the configured middleware chain.
type Client struct {
	clients map[string]ModelClient
	chain   []Middleware
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithMiddleware appends mw to the client's middleware chain, applied in
// the order supplied (first argument outermost).
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Client) { c.chain = append(c.chain, mw...) }
}

// New builds a Client dispatching to the given named model clients.
func New(clients map[string]ModelClient, opts ...Option) *Client {
	c := &Client{clients: map[string]ModelClient{}}
	for name, mc := range clients {
		c.clients[name] = mc
	}
	for _, opt := range opts {
		opt(c)
	}
	for name, mc := range c.clients {
		c.clients[name] = applyChain(mc, c.chain)
	}
	return c
}

// applyChain wraps base in mw in reverse order so that mw[0] ends up as the
// outermost layer: mw[0](mw[1](...mw[n](base))).
func applyChain(base ModelClient, mw []Middleware) ModelClient {
	wrapped := base
	for i := len(mw) - 1; i >= 0; i-- {
		wrapped = mw[i](wrapped)
	}
	return wrapped
}

// For resolves the ModelClient registered for the given provider name.
func (c *Client) For(providerName string) (ModelClient, bool) {
	mc, ok := c.clients[providerName]
	return mc, ok
}

// Complete dispatches req to the client registered for req.Provider.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	mc, ok := c.For(req.Provider)
	if !ok {
		return nil, &unknownProviderError{req.Provider}
	}
	return mc.Complete(ctx, req)
}

// Stream dispatches req to the client registered for req.Provider.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	mc, ok := c.For(req.Provider)
	if !ok {
		return nil, &unknownProviderError{req.Provider}
	}
	return mc.Stream(ctx, req)
}

type unknownProviderError struct{ name string }

func (e *unknownProviderError) Error() string { return "provider: unknown provider " + e.name }
