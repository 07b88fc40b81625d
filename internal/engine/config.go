package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	APIKey             string
	APIKeyFallback     string
	APIBaseURL         string
	TranscriptsEnabled bool

	BatchSize           int // ids per detail call
	MaxVideosPerRequest int
	MaxSearchResults    int
	MinDurationSeconds  int

	PreferredLanguages        []string // ordered transcript language preference
	DefaultTranscriptInterval int      // seconds per transcript block
	TranscriptConcurrency     int64    // global fetch ceiling
	TranscriptTimeout         time.Duration

	APITimeout     time.Duration // per remote call attempt
	NetworkTimeout time.Duration // whole HTTP client timeout
	MaxRetries     int
	RetryBaseDelay time.Duration
	MinCallDelay   time.Duration // pacing between remote calls
	MaxCallDelay   time.Duration

	URLParseCacheSize     int
	ResolveCacheSize      int
	ResolveCacheTTL       time.Duration
	PlaylistPageCacheSize int
	PlaylistPageCacheTTL  time.Duration
	TranscriptCacheSize   int
	TranscriptCacheTTL    time.Duration
	CacheEvictionPercent  int

	BreakerFailureThreshold  int
	BreakerResetTimeout      time.Duration
	BreakerHalfOpenSuccesses int

	EmptyPageStopThreshold int // consecutive out-of-range pages before pagination stops

	HTTPClient *http.Client
}

// DefaultConfig returns the baseline configuration. main.go overrides
// individual fields from the environment.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:                "https://www.googleapis.com/youtube/v3",
		TranscriptsEnabled:        true,
		BatchSize:                 50,
		MaxVideosPerRequest:       200,
		MaxSearchResults:          50,
		MinDurationSeconds:        20,
		PreferredLanguages:        []string{"en", "fr", "es", "pt", "it", "de"},
		DefaultTranscriptInterval: 10,
		TranscriptConcurrency:     5,
		TranscriptTimeout:         15 * time.Second,
		APITimeout:                20 * time.Second,
		NetworkTimeout:            30 * time.Second,
		MaxRetries:                3,
		RetryBaseDelay:            time.Second,
		MinCallDelay:              100 * time.Millisecond,
		MaxCallDelay:              400 * time.Millisecond,
		URLParseCacheSize:         256,
		ResolveCacheSize:          128,
		ResolveCacheTTL:           time.Hour,
		PlaylistPageCacheSize:     32,
		PlaylistPageCacheTTL:      30 * time.Minute,
		TranscriptCacheSize:       256,
		TranscriptCacheTTL:        time.Hour,
		CacheEvictionPercent:      20,
		BreakerFailureThreshold:   5,
		BreakerResetTimeout:       300 * time.Second,
		BreakerHalfOpenSuccesses:  3,
		EmptyPageStopThreshold:    3,
	}
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (youtube, ingest).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{
			Timeout: c.NetworkTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		}
	}
	cfg = c
	Cfg = &cfg
}
