package network

import (
	"context"
	"io"
	"net/http"
	"time"
)

// retryableStatus reports whether an HTTP status is worth retrying for an
// idempotent request.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// RetryingRoundTripper retries idempotent requests that fail with a
// transient network error or a retryable status (429/5xx). Only GET and
// HEAD are retried; everything else passes through once.
type RetryingRoundTripper struct {
	Base       http.RoundTripper
	MaxRetries int
	RetryDelay time.Duration
}

// RoundTrip implements http.RoundTripper.
func (rt *RetryingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return base.RoundTrip(req)
	}

	var (
		resp    *http.Response
		lastErr error
	)

	for attempt := 0; attempt <= rt.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * rt.RetryDelay

			timer := time.NewTimer(delay)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return nil, req.Context().Err()
			case <-timer.C:
			}
		}

		resp, lastErr = base.RoundTrip(req)
		if lastErr != nil {
			if req.Context().Err() != nil {
				return nil, lastErr
			}
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		if attempt == rt.MaxRetries {
			// Out of attempts; let the caller inspect the status.
			return resp, nil
		}

		// The body must be drained before the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()

		lastErr = nil
	}

	return nil, lastErr
}

// Doer is the request surface components depend on, satisfied by
// *http.Client and by test doubles.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewRequest builds a GET request bound to ctx.
func NewRequest(ctx context.Context, url string) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
}
