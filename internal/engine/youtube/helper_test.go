package youtube

import (
	"testing"
	"time"

	"github.com/anatolykoptev/go_ingest/internal/engine"
)

// initTestEngine installs a fast test configuration and returns a client
// wired to the given API base URL (usually an httptest server).
func initTestEngine(t *testing.T, testAPIBase string) *Client {
	t.Helper()

	c := engine.DefaultConfig()
	c.APIKey = "test-key"
	c.MaxRetries = 0
	c.RetryBaseDelay = time.Millisecond
	c.MinCallDelay = time.Millisecond
	c.MaxCallDelay = time.Millisecond
	c.APITimeout = 5 * time.Second
	c.TranscriptTimeout = 5 * time.Second
	if testAPIBase != "" {
		c.APIBaseURL = testAPIBase
	}
	engine.Init(c)

	quota := engine.NewQuotaState()
	client, err := NewClient(quota)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}
