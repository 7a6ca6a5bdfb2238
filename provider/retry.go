package provider

import (
	"context"

	"github.com/agentflowhq/agentrt/provider/model"
	"github.com/agentflowhq/agentrt/provider/transport"
)

// RetryMiddleware wraps a ModelClient so Complete calls are retried under
// the given policy. Stream calls are not retried — a partially consumed
// stream cannot be safely replayed, so streaming retries are left to the
// caller.
func RetryMiddleware(policy transport.RetryPolicy) Middleware {
	return func(next ModelClient) ModelClient {
		return &retryClient{next: next, policy: policy}
	}
}

type retryClient struct {
	next   ModelClient
	policy transport.RetryPolicy
}

func (c *retryClient) Name() string { return c.next.Name() }

func (c *retryClient) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	var resp *model.Response
	err := transport.Do(ctx, c.policy, func(ctx context.Context, _ int) error {
		var err error
		resp, err = c.next.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *retryClient) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return c.next.Stream(ctx, req)
}
