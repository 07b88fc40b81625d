package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}
}

func TestRetryDoTerminalErrorAbortsImmediately(t *testing.T) {
	terminal := []error{ErrNotFound, ErrInvalidInput, ErrQuotaExceeded, ErrAPIConfiguration, ErrCircuitOpen}
	for _, kind := range terminal {
		t.Run(kind.Error(), func(t *testing.T) {
			attempts := 0
			_, err := RetryDo(context.Background(), fastRetryConfig(3), func(context.Context) (int, error) {
				attempts++
				return 0, Wrapf(kind, "call")
			})
			if !errors.Is(err, kind) {
				t.Errorf("got %v, want %v", err, kind)
			}
			if attempts != 1 {
				t.Errorf("attempts = %d, want 1", attempts)
			}
		})
	}
}

func TestRetryDoRetriesTransientErrors(t *testing.T) {
	attempts := 0
	_, err := RetryDo(context.Background(), fastRetryConfig(2), func(context.Context) (int, error) {
		attempts++
		return 0, Wrapf(ErrRateLimited, "call")
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("got %v, want ErrRateLimited", err)
	}
	if attempts != 3 { // first try + 2 retries
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryDoSucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	got, err := RetryDo(context.Background(), fastRetryConfig(3), func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", StatusError(http.StatusServiceUnavailable)
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done" {
		t.Errorf("got %q, want %q", got, "done")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", ErrRateLimited, true},
		{"timeout kind", ErrTimeout, true},
		{"http 500", StatusError(500), true},
		{"http 429 maps to rate limited", StatusError(429), true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"dns error", &net.DNSError{Err: "no such host"}, true},
		{"quota", ErrQuotaExceeded, false},
		{"not found", ErrNotFound, false},
		{"invalid input", ErrInvalidInput, false},
		{"configuration", ErrAPIConfiguration, false},
		{"circuit open", ErrCircuitOpen, false},
		{"wrapped quota", Wrapf(ErrQuotaExceeded, "videos"), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusError429IsRateLimited(t *testing.T) {
	if !errors.Is(StatusError(429), ErrRateLimited) {
		t.Error("429 should satisfy errors.Is(_, ErrRateLimited)")
	}
	if errors.Is(StatusError(500), ErrRateLimited) {
		t.Error("500 should not satisfy errors.Is(_, ErrRateLimited)")
	}
}

func TestRetryHTTPRetriesServerErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := RetryHTTP(context.Background(), fastRetryConfig(3), func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if err != nil {
			return nil, err
		}
		return http.DefaultClient.Do(req)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if hits != 3 {
		t.Errorf("server hits = %d, want 3", hits)
	}
}
