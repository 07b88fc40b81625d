package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	MaxRetries     int           // additional attempts after the first
	BaseDelay      time.Duration // first backoff interval
	MaxDelay       time.Duration // backoff ceiling
	AttemptTimeout time.Duration // per-attempt deadline, 0 = none
}

// DefaultRetryConfig is suitable for most remote calls.
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   60 * time.Second,
}

// minBackoff is the floor for the first backoff interval.
const minBackoff = 100 * time.Millisecond

// RetryDo retries fn with exponential backoff and ±50% jitter. Each
// attempt runs under its own deadline when AttemptTimeout is set; a
// deadline hit counts as retryable. Terminal errors (not-found, invalid
// input, quota, configuration, open circuit) abort without consuming a
// retry.
func RetryDo[T any](ctx context.Context, rc RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = max(rc.BaseDelay, minBackoff)
	bo.RandomizationFactor = 0.5
	bo.Multiplier = 2.0
	bo.MaxInterval = rc.MaxDelay
	if bo.MaxInterval <= 0 {
		bo.MaxInterval = DefaultRetryConfig.MaxDelay
	}

	operation := func() (T, error) {
		var zero T
		attemptCtx := ctx
		cancel := func() {}
		if rc.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, rc.AttemptTimeout)
		}
		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = Wrapf(ErrTimeout, "attempt deadline")
		}
		if !IsRetryable(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(rc.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("retrying", slog.Duration("wait", wait), slog.Any("error", err))
		}),
	)
}

// RetryHTTP executes an HTTP request function with retry logic.
// The function should build and send the request; RetryHTTP wraps
// retryable status codes so RetryDo backs off on them.
func RetryHTTP(ctx context.Context, rc RetryConfig, fn func(context.Context) (*http.Response, error)) (*http.Response, error) {
	return RetryDo(ctx, rc, func(ctx context.Context) (*http.Response, error) {
		resp, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if isRetryableStatus(resp.StatusCode) {
			resp.Body.Close()
			return nil, &httpStatusError{StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
}

// StatusError wraps an HTTP status code the retry classifier understands.
func StatusError(code int) error {
	return &httpStatusError{StatusCode: code}
}

// httpStatusError wraps a retryable HTTP status code.
type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.StatusCode)
}

// Is maps 429 onto the rate-limited kind for callers using errors.Is.
func (e *httpStatusError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// IsRetryable returns true for transient errors worth retrying.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrAPIConfiguration),
		errors.Is(err, ErrCircuitOpen):
		return false
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrTimeout):
		return true
	}

	// HTTP status errors (already filtered by isRetryableStatus)
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return true
	}

	// Connection errors (dial failures, connection refused, etc.)
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	// Timeout errors (net.Error includes OpError, so check after OpError)
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// isRetryableStatus returns true for HTTP status codes worth retrying.
func isRetryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
