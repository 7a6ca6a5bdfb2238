package provider

import (
	"context"
	"time"

	"github.com/agentflowhq/agentrt/provider/model"
	"github.com/agentflowhq/agentrt/telemetry"
)

// LoggingMiddleware logs request/response metadata and records latency for
// every Complete and Stream call, and token-usage metrics for Complete calls
// only.
func LoggingMiddleware(log telemetry.Logger, metrics telemetry.Metrics) Middleware {
	return func(next ModelClient) ModelClient {
		return &loggingClient{next: next, log: log, metrics: metrics}
	}
}

type loggingClient struct {
	next    ModelClient
	log     telemetry.Logger
	metrics telemetry.Metrics
}

func (c *loggingClient) Name() string { return c.next.Name() }

func (c *loggingClient) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	start := time.Now()
	resp, err := c.next.Complete(ctx, req)
	c.record(ctx, "complete", req, start, err)
	if resp != nil {
		c.metrics.IncCounter("provider.tokens.input", float64(resp.Usage.InputTokens), "provider", c.Name())
		c.metrics.IncCounter("provider.tokens.output", float64(resp.Usage.OutputTokens), "provider", c.Name())
	}
	return resp, err
}

func (c *loggingClient) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	start := time.Now()
	s, err := c.next.Stream(ctx, req)
	c.record(ctx, "stream", req, start, err)
	return s, err
}

func (c *loggingClient) record(ctx context.Context, op string, req model.Request, start time.Time, err error) {
	c.metrics.RecordTimer("provider.latency", time.Since(start), "provider", c.Name(), "op", op)
	if err != nil {
		c.log.Error(ctx, "provider call failed", "provider", c.Name(), "op", op, "model", req.Model, "error", err)
		c.metrics.IncCounter("provider.errors", 1, "provider", c.Name(), "op", op)
		return
	}
	c.log.Debug(ctx, "provider call completed", "provider", c.Name(), "op", op, "model", req.Model)
}
