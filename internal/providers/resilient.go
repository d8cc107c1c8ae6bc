package providers

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/eeslabs/embedding-core/internal/eeserrors"
	"github.com/eeslabs/embedding-core/internal/observability"
)

// defaultProviderRPS and defaultProviderBurst bound the outbound call rate
// Resilient allows through to its wrapped provider, grounded on the
// teacher's token-bucket rate limiter (pkg/middleware/rate_limit.go's
// rate.NewLimiter(rate.Limit(rps), burst)) adapted from inbound
// request-gating to outbound provider-call throttling.
const (
	defaultProviderRPS   = 20
	defaultProviderBurst = 40
)

// Resilient wraps a Provider with a circuit breaker, a client-side rate
// limiter, and bounded retry. Only Connection errors are retried;
// Authentication and Model errors short-circuit immediately since
// retrying cannot change the outcome, and RateLimit errors are surfaced
// as-is so the caller can honor RetryAfter.
type Resilient struct {
	inner      Provider
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     observability.Logger
	metrics    *observability.Metrics
	maxRetries uint64
}

// NewResilient wraps inner with a per-instance circuit breaker (opens
// after 5 consecutive failures, half-opens after 30s), a token-bucket rate
// limiter capping outbound calls at defaultProviderRPS, and up to 3
// bounded exponential-backoff retries for Connection errors.
func NewResilient(inner Provider, logger observability.Logger, metrics *observability.Metrics) *Resilient {
	settings := gobreaker.Settings{
		Name:        "provider:" + inner.Tag(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Resilient{
		inner:      inner,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		limiter:    rate.NewLimiter(rate.Limit(defaultProviderRPS), defaultProviderBurst),
		logger:     logger,
		metrics:    metrics,
		maxRetries: 3,
	}
}

func (r *Resilient) Tag() string                                    { return r.inner.Tag() }
func (r *Resilient) ListModels() []ModelInfo                        { return r.inner.ListModels() }
func (r *Resilient) IsModelAvailable(modelName string) bool         { return r.inner.IsModelAvailable(modelName) }
func (r *Resilient) GetModelInfo(m string) (ModelInfo, bool)        { return r.inner.GetModelInfo(m) }
func (r *Resilient) DefaultModel() string                           { return r.inner.DefaultModel() }

// GenerateEmbedding calls the wrapped provider through the circuit breaker,
// retrying Connection failures with bounded exponential backoff.
func (r *Resilient) GenerateEmbedding(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	start := time.Now()
	model := req.ModelName
	if model == "" {
		model = r.inner.DefaultModel()
	}

	var resp *GenerateResponse
	op := func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return &eeserrors.ProviderError{
				Kind:     eeserrors.ProviderConnection,
				Provider: r.inner.Tag(),
				Model:    model,
				Message:  "rate limiter wait: " + err.Error(),
				Cause:    err,
			}
		}
		result, err := r.breaker.Execute(func() (any, error) {
			return r.inner.GenerateEmbedding(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return &eeserrors.ProviderError{
					Kind:     eeserrors.ProviderConnection,
					Provider: r.inner.Tag(),
					Model:    model,
					Message:  "circuit breaker open: " + err.Error(),
					Cause:    err,
				}
			}
			var perr *eeserrors.ProviderError
			if errors.As(err, &perr) {
				return perr
			}
			return err
		}
		resp = result.(*GenerateResponse)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = defaultProviderTimeout
	bo.InitialInterval = 100 * time.Millisecond

	retryable := func(err error) bool {
		var perr *eeserrors.ProviderError
		if errors.As(err, &perr) {
			return perr.Kind == eeserrors.ProviderConnection
		}
		return false
	}

	var attempt uint64
	wrapped := func() error {
		err := op()
		if err != nil && retryable(err) && attempt < r.maxRetries {
			attempt++
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(wrapped, backoff.WithMaxRetries(bo, r.maxRetries))

	outcome := "success"
	if err != nil {
		outcome = "error"
		var perr *eeserrors.ProviderError
		if errors.As(err, &perr) {
			outcome = string(perr.Kind)
		}
	}
	r.metrics.ObserveProviderCall(r.inner.Tag(), model, outcome, time.Since(start))

	if err != nil {
		var permErr *backoff.PermanentError
		if errors.As(err, &permErr) {
			return nil, permErr.Err
		}
		return nil, err
	}
	return resp, nil
}
