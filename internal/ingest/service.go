package ingest

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_ingest/internal/engine"
	"github.com/anatolykoptev/go_ingest/internal/engine/youtube"
	"github.com/anatolykoptev/go_ingest/internal/store"
)

// The pipeline orchestrator: one input term in, an aggregated result out.
// Stages run strictly in order — quota gate, classify, expand, details,
// transcripts, sort, stats — and a source expanding to nothing is a
// successful empty result, not an error.

// transcriptSubBatch bounds how many transcript fetches one request runs
// at a time (the Transcript Manager applies its own global ceiling too).
const transcriptSubBatch = 10

// allowedIntervals are the accepted transcript grouping intervals.
var allowedIntervals = map[int]bool{0: true, 10: true, 20: true, 30: true, 60: true}

// Options control one ingestion request.
type Options struct {
	IncludeTranscript  bool
	IncludeDescription bool
	TranscriptInterval int // seconds per block; invalid values fall back to the default
	StartDate          time.Time
	EndDate            time.Time
}

// RequestStats is the per-request accounting delta.
type RequestStats struct {
	ProcessingTimeMs int64 `json:"processing_time_ms"`
	APICalls         int64 `json:"api_calls"`
	QuotaUnits       int64 `json:"quota_units"`
	TranscriptCount  int   `json:"transcript_count"`
	TokenEstimate    int   `json:"token_estimate"`
}

// Result is the aggregated outcome of one request.
type Result struct {
	RequestID     string                `json:"request_id"`
	SourceType    string                `json:"source_type"`
	SourceName    string                `json:"source_name"`
	Videos        []youtube.VideoRecord `json:"videos"`
	Digest        string                `json:"digest"`
	Stats         RequestStats          `json:"stats"`
	HighQuotaCost bool                  `json:"high_quota_cost"`
}

// GlobalStats is the process-wide view served by the stats endpoint.
type GlobalStats struct {
	UptimeSeconds    int64                        `json:"uptime_seconds"`
	TotalRequests    int64                        `json:"total_requests"`
	TotalErrors      int64                        `json:"total_errors"`
	TotalVideos      int64                        `json:"total_videos"`
	TotalTranscripts int64                        `json:"total_transcripts"`
	QuotaCalls       int64                        `json:"quota_calls"`
	QuotaUnits       int64                        `json:"quota_units"`
	QuotaReached     bool                         `json:"quota_reached"`
	BreakerState     string                       `json:"breaker_state,omitempty"`
	Caches           map[string]engine.CacheStats `json:"caches"`
	Metrics          map[string]int64             `json:"metrics"`
}

// Service wires the API client and Transcript Manager into one pipeline.
type Service struct {
	client      *youtube.Client
	transcripts *youtube.Manager
	quota       *engine.QuotaState
	history     store.Store // nil disables request history
	started     time.Time

	totalRequests    atomic.Int64
	totalErrors      atomic.Int64
	totalVideos      atomic.Int64
	totalTranscripts atomic.Int64
}

// New builds a service. quota is injected so tests (and the process) own
// the single gate; history may be nil.
func New(quota *engine.QuotaState, history store.Store) (*Service, error) {
	client, err := youtube.NewClient(quota)
	if err != nil {
		return nil, err
	}
	return &Service{
		client:      client,
		transcripts: youtube.NewManager(),
		quota:       quota,
		history:     history,
		started:     time.Now(),
	}, nil
}

// ProcessSource runs the full pipeline for one input term.
func (s *Service) ProcessSource(ctx context.Context, input string, opts Options) (*Result, error) {
	engine.IncrIngestRequests()
	s.totalRequests.Add(1)
	start := time.Now()
	callsBefore, unitsBefore := s.quota.Snapshot()

	result := &Result{RequestID: uuid.NewString()}
	log := slog.With(slog.String("request_id", result.RequestID))

	err := engine.TrackOperation(ctx, "ingest", func(ctx context.Context) error {
		return s.runPipeline(ctx, log, input, opts, result)
	})
	if err != nil {
		engine.IncrIngestErrors()
		s.totalErrors.Add(1)
		log.Warn("ingest: request failed", slog.String("input", engine.Truncate(input, 120)), slog.Any("error", err))
		return nil, err
	}

	callsAfter, unitsAfter := s.quota.Snapshot()
	result.Stats.ProcessingTimeMs = time.Since(start).Milliseconds()
	result.Stats.APICalls = callsAfter - callsBefore
	result.Stats.QuotaUnits = unitsAfter - unitsBefore
	result.Stats.TokenEstimate = engine.EstimateTokens(result.Digest)
	s.totalVideos.Add(int64(len(result.Videos)))
	s.totalTranscripts.Add(int64(result.Stats.TranscriptCount))

	s.recordHistory(ctx, input, result)

	log.Info("ingest: request done",
		slog.String("source", result.SourceName),
		slog.Int("videos", len(result.Videos)),
		slog.Int64("api_calls", result.Stats.APICalls),
		slog.Int64("quota_units", result.Stats.QuotaUnits),
		slog.Bool("high_quota_cost", result.HighQuotaCost),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (s *Service) runPipeline(ctx context.Context, log *slog.Logger, input string, opts Options, result *Result) error {
	// Quota gate: once the remote quota was seen exhausted, no request
	// may touch the upstream until restart.
	if s.quota.Reached() {
		return engine.Wrapf(engine.ErrQuotaExceeded, "quota gate")
	}

	ident, err := s.client.ExtractIdentifier(ctx, input)
	if err != nil {
		return err
	}
	result.SourceType = string(ident.Type)
	log.Debug("ingest: classified", slog.String("type", string(ident.Type)), slog.String("value", ident.Value))

	expansion, err := s.client.GetVideosFromSource(ctx, ident, youtube.ExpandOptions{
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
	})
	if err != nil {
		return err
	}
	result.SourceName = expansion.SourceName
	result.HighQuotaCost = expansion.HighQuotaCost
	if len(expansion.VideoIDs) == 0 {
		result.Videos = []youtube.VideoRecord{}
		return nil
	}

	videos, err := s.client.GetVideoDetailsBatch(ctx, expansion.VideoIDs)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		result.Videos = []youtube.VideoRecord{}
		return nil
	}
	if ident.Type == youtube.SourceVideo && videos[0].Title != "" {
		result.SourceName = "Video: " + videos[0].Title
	}

	interval := opts.TranscriptInterval
	if !allowedIntervals[interval] {
		interval = engine.Cfg.DefaultTranscriptInterval
	}
	if opts.IncludeTranscript {
		result.Stats.TranscriptCount = s.attachTranscripts(ctx, videos, interval)
	}

	// Stable sort, newest first; unparsable dates (zero time) end up last.
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].PublishedAt.After(videos[j].PublishedAt)
	})

	result.Videos = videos
	result.Digest = RenderDigest(videos, opts.IncludeDescription, opts.IncludeTranscript)
	return nil
}

// attachTranscripts fetches transcripts in bounded sub-batches over the
// current video set. Per-video failures leave that transcript absent;
// they never abort the request.
func (s *Service) attachTranscripts(ctx context.Context, videos []youtube.VideoRecord, interval int) int {
	attached := 0
	for batchStart := 0; batchStart < len(videos); batchStart += transcriptSubBatch {
		batchEnd := min(batchStart+transcriptSubBatch, len(videos))

		var wg sync.WaitGroup
		var mu sync.Mutex
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				v := &videos[idx]
				tr, ok := s.transcripts.GetTranscript(ctx, v.ID, v.DefaultLanguage, v.DefaultAudioLng, interval)
				if !ok {
					return
				}
				mu.Lock()
				v.Transcript = &tr
				attached++
				mu.Unlock()
			}(i)
		}
		wg.Wait()
	}
	return attached
}

func (s *Service) recordHistory(ctx context.Context, input string, result *Result) {
	if s.history == nil {
		return
	}
	rec := store.IngestRecord{
		ID:              result.RequestID,
		Input:           engine.Truncate(input, 500),
		SourceType:      result.SourceType,
		SourceName:      result.SourceName,
		VideoCount:      len(result.Videos),
		TranscriptCount: result.Stats.TranscriptCount,
		APICalls:        result.Stats.APICalls,
		QuotaUnits:      result.Stats.QuotaUnits,
		DurationMs:      result.Stats.ProcessingTimeMs,
		HighQuotaCost:   result.HighQuotaCost,
	}
	if err := s.history.SaveIngest(ctx, rec); err != nil {
		slog.Warn("ingest: history save failed", slog.Any("error", err))
	}
}

// GlobalStats returns the process-wide counters.
func (s *Service) GlobalStats() GlobalStats {
	calls, units := s.quota.Snapshot()
	return GlobalStats{
		UptimeSeconds:    int64(time.Since(s.started).Seconds()),
		TotalRequests:    s.totalRequests.Load(),
		TotalErrors:      s.totalErrors.Load(),
		TotalVideos:      s.totalVideos.Load(),
		TotalTranscripts: s.totalTranscripts.Load(),
		QuotaCalls:       calls,
		QuotaUnits:       units,
		QuotaReached:     s.quota.Reached(),
		BreakerState:     s.client.BreakerState(),
		Caches:           engine.AllCacheStats(),
		Metrics:          engine.GetMetrics(),
	}
}

// ClearAllCaches empties every registered cache, returning per-cache
// cleared counts.
func (s *Service) ClearAllCaches() map[string]int {
	return engine.ClearAllCaches()
}
