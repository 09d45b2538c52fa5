package llm

import (
	"context"
	"time"
)

// RetryProvider wraps a Provider with bounded retries for transient failures.
// Only rate-limit and timeout errors are retried; everything else is returned
// to the caller immediately.
type RetryProvider struct {
	provider    Provider
	maxAttempts int
	baseDelay   time.Duration
}

// NewRetryProvider wraps the given provider with retry behavior. maxAttempts
// counts the initial call, so maxAttempts=3 means up to two retries.
func NewRetryProvider(provider Provider, maxAttempts int) Provider {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryProvider{
		provider:    provider,
		maxAttempts: maxAttempts,
		baseDelay:   time.Second,
	}
}

func (r *RetryProvider) Name() string {
	return r.provider.Name()
}

func (r *RetryProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error

	delay := r.baseDelay
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		resp, err := r.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !Retryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}
