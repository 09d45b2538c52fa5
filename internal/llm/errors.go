package llm

import (
	"context"
	"errors"
	"net/http"
)

// Sentinel errors for completion failures. Callers branch on these to decide
// between retrying, skipping a candidate, or substituting a neutral verdict.
var (
	// ErrRateLimited indicates the provider rejected the call due to rate limits.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrTimeout indicates the call timed out or was cancelled by a deadline.
	ErrTimeout = errors.New("llm: request timed out")
	// ErrInvalidResponse indicates the provider returned a response the engine
	// could not use (empty content, malformed body).
	ErrInvalidResponse = errors.New("llm: invalid response")
)

// Retryable reports whether an error is transient and worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// classifyStatus maps an HTTP status code to a sentinel error, or nil for 2xx.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return ErrInvalidResponse
	}
}

// classifyErr maps a transport-level error to a sentinel error.
func classifyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
