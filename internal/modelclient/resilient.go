package modelclient

import (
	"context"
	"time"

	"github.com/agentmail-core/agentmail/internal/breaker"
	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/agentmail-core/agentmail/internal/metrics"
	"github.com/agentmail-core/agentmail/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResilientClient wraps a Provider with the model breaker and retry loop,
// the same "facade wraps store" layering used by internal/search,
// internal/summarize, and internal/reservation — here the wrapped
// resource is a model endpoint instead of the embedded store. A
// token-bucket limiter additionally bounds request rate, since an
// overloaded model endpoint degrades by queueing rather than refusing
// outright, unlike the store's pool-exhaustion failure mode.
type ResilientClient struct {
	provider Provider
	loop     *retry.Loop
	limiter  *rate.Limiter
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// NewResilientClient builds a ResilientClient. limiter may be nil to
// disable request-rate bounding (tests commonly do this). collector may be
// nil to disable metrics recording (also common in tests).
func NewResilientClient(provider Provider, b *breaker.Breaker, policy retry.Policy, limiter *rate.Limiter, collector *metrics.Collector, logger *zap.Logger) *ResilientClient {
	return &ResilientClient{
		provider: provider,
		loop:     retry.New(policy, b, logger),
		limiter:  limiter,
		logger:   logger.With(zap.String("component", "modelclient")),
		metrics:  collector,
	}
}

// Complete runs one model call through the rate limiter, breaker, and
// retry loop. It is the generic primitive; the Refiner in refiner.go
// adapts it to summarize.ModelRefiner.
func (c *ResilientClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, errs.New(errs.CodeCancelled, "model request rate limit wait cancelled").WithCause(err)
		}
	}

	start := time.Now()
	var resp Response
	err := c.loop.Do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.provider.Complete(ctx, req)
		if callErr == nil {
			return nil
		}
		return toErrsError(callErr)
	})
	c.recordMetrics(req, resp, time.Since(start), err)
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// recordMetrics reports one completed (successful or failed) call. Cost
// tracking is left at zero — this module has no per-provider pricing
// table — but request volume, latency, and token counts are real signal
// even without it.
func (c *ResilientClient) recordMetrics(req Request, resp Response, elapsed time.Duration, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordLLMRequest(c.provider.Name(), req.Model, status, elapsed, resp.PromptTokens, resp.CompletionTokens, 0)
}

func toErrsError(err error) *errs.Error {
	if e, ok := err.(*Error); ok {
		return errs.New(errs.CodeModelUnavailable, e.Message).WithCause(e).WithRetryable(e.Retryable)
	}
	return errs.New(errs.CodeModelUnavailable, err.Error()).WithCause(err).WithRetryable(false)
}
