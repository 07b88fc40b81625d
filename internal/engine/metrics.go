package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	APICalls            atomic.Int64
	APIErrors           atomic.Int64
	ResolveRequests     atomic.Int64
	SearchRequests      atomic.Int64
	PlaylistPages       atomic.Int64
	VideoDetailRequests atomic.Int64
	TranscriptRequests  atomic.Int64
	TranscriptErrors    atomic.Int64
	TranscriptNegatives atomic.Int64
	IngestRequests      atomic.Int64
	IngestErrors        atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache totals.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStatsTotals()
	return map[string]int64{
		"api_calls":             metrics.APICalls.Load(),
		"api_errors":            metrics.APIErrors.Load(),
		"resolve_requests":      metrics.ResolveRequests.Load(),
		"search_requests":       metrics.SearchRequests.Load(),
		"playlist_pages":        metrics.PlaylistPages.Load(),
		"video_detail_requests": metrics.VideoDetailRequests.Load(),
		"transcript_requests":   metrics.TranscriptRequests.Load(),
		"transcript_errors":     metrics.TranscriptErrors.Load(),
		"transcript_negatives":  metrics.TranscriptNegatives.Load(),
		"ingest_requests":       metrics.IngestRequests.Load(),
		"ingest_errors":         metrics.IngestErrors.Load(),
		"cache_hits":            hits,
		"cache_misses":          misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"api_calls", "api_errors",
		"resolve_requests", "search_requests",
		"playlist_pages", "video_detail_requests",
		"transcript_requests", "transcript_errors", "transcript_negatives",
		"ingest_requests", "ingest_errors",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for the youtube/ sub-package.
func IncrAPICalls()            { metrics.APICalls.Add(1) }
func IncrAPIErrors()           { metrics.APIErrors.Add(1) }
func IncrResolveRequests()     { metrics.ResolveRequests.Add(1) }
func IncrSearchRequests()      { metrics.SearchRequests.Add(1) }
func IncrPlaylistPages()       { metrics.PlaylistPages.Add(1) }
func IncrVideoDetailRequests() { metrics.VideoDetailRequests.Add(1) }
func IncrTranscriptRequests()  { metrics.TranscriptRequests.Add(1) }
func IncrTranscriptErrors()    { metrics.TranscriptErrors.Add(1) }
func IncrTranscriptNegatives() { metrics.TranscriptNegatives.Add(1) }

// Incrementors for the ingest/ sub-package.
func IncrIngestRequests() { metrics.IngestRequests.Add(1) }
func IncrIngestErrors()   { metrics.IngestErrors.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
