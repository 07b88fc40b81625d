package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_ingest/internal/engine"
)

// Data API v3 client. Owns classification, resolution, source expansion,
// batched detail fetching, and quota bookkeeping. Every remote call goes
// breaker → retry → HTTP, and is paced by a shared rate limiter.

// quotaCosts are the documented unit costs per API resource.
var quotaCosts = map[string]int64{
	"videos":        1,
	"channels":      1,
	"playlists":     1,
	"playlistItems": 1,
	"search":        100,
}

// Client talks to the video platform API.
type Client struct {
	quota     *engine.QuotaState
	breaker   *engine.Breaker
	limiter   *rate.Limiter
	keys      []string
	activeKey atomic.Int32

	urlParseCache *engine.Cache[Identifier]
	resolveCache  *engine.Cache[Identifier]
	pageCache     *engine.Cache[playlistPage]
}

// NewClient builds a client from engine.Cfg. The quota state is injected
// so the whole process shares one gate.
func NewClient(quota *engine.QuotaState) (*Client, error) {
	c := engine.Cfg
	if c.APIKey == "" {
		return nil, engine.Wrapf(engine.ErrAPIConfiguration, "API_KEY is required")
	}
	keys := []string{c.APIKey}
	if c.APIKeyFallback != "" {
		keys = append(keys, c.APIKeyFallback)
	}
	minDelay := c.MinCallDelay
	if minDelay <= 0 {
		minDelay = 100 * time.Millisecond
	}
	return &Client{
		quota:   quota,
		breaker: engine.NewBreaker("youtube-api", engine.BreakerConfig{
			FailureThreshold:  c.BreakerFailureThreshold,
			ResetTimeout:      c.BreakerResetTimeout,
			HalfOpenSuccesses: c.BreakerHalfOpenSuccesses,
		}),
		limiter:       rate.NewLimiter(rate.Every(minDelay), 1),
		keys:          keys,
		urlParseCache: engine.NewCache[Identifier]("url_parse", c.URLParseCacheSize, 0, c.CacheEvictionPercent),
		resolveCache:  engine.NewCache[Identifier]("resolve", c.ResolveCacheSize, c.ResolveCacheTTL, c.CacheEvictionPercent),
		pageCache:     engine.NewCache[playlistPage]("playlist_pages", c.PlaylistPageCacheSize, c.PlaylistPageCacheTTL, c.CacheEvictionPercent),
	}, nil
}

func (c *Client) currentKey() string {
	return c.keys[c.activeKey.Load()]
}

// BreakerState reports the API circuit breaker state for stats output.
func (c *Client) BreakerState() string { return c.breaker.State() }

// rotateKey switches to the next fallback key, reporting whether one was
// available.
func (c *Client) rotateKey() bool {
	for {
		idx := c.activeKey.Load()
		if int(idx) >= len(c.keys)-1 {
			return false
		}
		if c.activeKey.CompareAndSwap(idx, idx+1) {
			return true
		}
	}
}

// pace enforces the minimum inter-call delay plus a small random jitter so
// bursts do not hammer the upstream.
func (c *Client) pace(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	spread := engine.Cfg.MaxCallDelay - engine.Cfg.MinCallDelay
	if spread <= 0 {
		return nil
	}
	jitter := rand.N(spread)
	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call performs one logical API call: quota gate, pacing, breaker, retry,
// decode. Quota units are charged only on success. A quota-exhaustion
// response first rotates to the fallback key; when no key is left, the
// process-wide gate closes.
func (c *Client) call(ctx context.Context, resource string, params url.Values, out any) error {
	if c.quota.Reached() {
		return engine.Wrapf(engine.ErrQuotaExceeded, "quota gate closed")
	}
	if err := c.pace(ctx); err != nil {
		return err
	}

	rc := engine.RetryConfig{
		MaxRetries:     engine.Cfg.MaxRetries,
		BaseDelay:      engine.Cfg.RetryBaseDelay,
		MaxDelay:       60 * time.Second,
		AttemptTimeout: engine.Cfg.APITimeout,
	}

	var body []byte
	var err error
	for {
		body, err = engine.BreakerDo(c.breaker, func() ([]byte, error) {
			return engine.RetryDo(ctx, rc, func(ctx context.Context) ([]byte, error) {
				return c.doOnce(ctx, resource, params)
			})
		})
		if err != nil && isQuotaErr(err) && c.rotateKey() {
			slog.Warn("api: key quota exhausted, switching to fallback key",
				slog.String("resource", resource))
			continue
		}
		break
	}
	if err != nil {
		engine.IncrAPIErrors()
		if isQuotaErr(err) {
			c.quota.MarkReached()
		}
		return err
	}

	engine.IncrAPICalls()
	c.quota.RecordCall(quotaCosts[resource])

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s response: %w", resource, err)
		}
	}
	return nil
}

func isQuotaErr(err error) bool {
	return errors.Is(err, engine.ErrQuotaExceeded)
}

// doOnce issues a single HTTP attempt and maps the response status onto
// the error taxonomy.
func (c *Client) doOnce(ctx context.Context, resource string, params url.Values) ([]byte, error) {
	p := url.Values{}
	for k, v := range params {
		p[k] = v
	}
	p.Set("key", c.currentKey())

	apiURL := engine.Cfg.APIBaseURL + "/" + resource + "?" + p.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", engine.UserAgentBot)
	req.Header.Set("Accept", "application/json")

	resp, err := engine.Cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", resource, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, engine.Wrapf(engine.ErrNotFound, "%s", resource)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, engine.Wrapf(engine.ErrInvalidInput, "%s: %s", resource, apiReason(body))
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, engine.Wrapf(engine.ErrAPIConfiguration, "%s: invalid credentials", resource)
	case resp.StatusCode == http.StatusForbidden:
		reason := apiReason(body)
		switch reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return nil, engine.Wrapf(engine.ErrRateLimited, "%s: %s", resource, reason)
		default:
			// quotaExceeded, dailyLimitExceeded, and any other 403
			// are treated as quota exhaustion.
			return nil, engine.Wrapf(engine.ErrQuotaExceeded, "%s: %s", resource, reason)
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, engine.Wrapf(engine.ErrRateLimited, "%s", resource)
	default:
		return nil, engine.StatusError(resp.StatusCode)
	}
}

// apiReason extracts the first error reason from an API error body.
func apiReason(body []byte) string {
	var er apiErrorResp
	if json.Unmarshal(body, &er) != nil {
		return "unknown"
	}
	if len(er.Error.Errors) > 0 && er.Error.Errors[0].Reason != "" {
		return er.Error.Errors[0].Reason
	}
	if er.Error.Message != "" {
		return engine.Truncate(er.Error.Message, 120)
	}
	return "unknown"
}
