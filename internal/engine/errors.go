package engine

import (
	"errors"
	"fmt"
)

// Error kinds crossing component boundaries. Helpers that can resolve a
// problem locally (classification fallback, per-video validation) never
// return these; only genuine upstream failures do.
var (
	// ErrInvalidInput marks an unusable source term. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a remote 404-equivalent. Never retried.
	ErrNotFound = errors.New("resource not found")

	// ErrQuotaExceeded marks remote quota exhaustion. Once observed, the
	// process-wide quota gate stays closed until restart.
	ErrQuotaExceeded = errors.New("api quota exceeded")

	// ErrRateLimited marks a remote throttling response. Retryable.
	ErrRateLimited = errors.New("rate limited")

	// ErrCircuitOpen is returned without touching the upstream while a
	// breaker rejects calls. Surfaced as "try again later".
	ErrCircuitOpen = errors.New("circuit open")

	// ErrTimeout marks a per-attempt deadline hit. Retryable for remote
	// calls, terminal for a single transcript fetch.
	ErrTimeout = errors.New("operation timed out")

	// ErrAPIConfiguration marks missing or invalid credentials. Fatal for
	// the capability, not recoverable per request.
	ErrAPIConfiguration = errors.New("api configuration error")
)

// IsTemporary reports whether the caller should treat err as "try again
// later" rather than a permanent failure.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrCircuitOpen)
}

// Wrapf wraps kind with call-site context, keeping errors.Is working.
func Wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, kind)...)
}
