// go_ingest — resilient YouTube content ingestion service.
//
// Turns a URL or free-text search term into a structured set of videos
// with metadata and optional timestamped transcripts, behind a quota
// gate, circuit breakers and layered caches.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/anatolykoptev/go_ingest/internal/engine"
	"github.com/anatolykoptev/go_ingest/internal/ingest"
	"github.com/anatolykoptev/go_ingest/internal/store"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	initLogging()
	initEngine()

	ctx := context.Background()

	history, err := store.Open(ctx, env.Str("DATABASE_URL", ""), env.Str("HISTORY_DB_PATH", ""))
	if err != nil {
		slog.Warn("history store init failed, running without history", slog.Any("error", err))
		history = nil
	}

	quota := engine.NewQuotaState()
	service, err := ingest.New(quota, history)
	if err != nil {
		slog.Error("service init failed", slog.Any("error", err))
		os.Exit(1)
	}

	engine.StartCacheSweeper(ctx, env.Duration("CACHE_SWEEP_INTERVAL", 5*time.Minute))

	port := env.Str("PORT", "8080")
	slog.Info("starting go_ingest",
		slog.String("version", version),
		slog.String("port", port))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router(service, history),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      600 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func initLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(env.Str("LOG_LEVEL", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func initEngine() {
	c := engine.DefaultConfig()
	c.APIKey = env.Str("API_KEY", "")
	c.APIKeyFallback = env.Str("API_KEY_FALLBACK", "")
	c.APIBaseURL = env.Str("API_BASE_URL", c.APIBaseURL)
	c.TranscriptsEnabled = env.Str("TRANSCRIPTS_ENABLED", "true") == "true"
	c.BatchSize = env.Int("BATCH_SIZE", c.BatchSize)
	c.MaxVideosPerRequest = env.Int("MAX_VIDEOS_PER_REQUEST", c.MaxVideosPerRequest)
	c.MaxSearchResults = env.Int("MAX_SEARCH_RESULTS", c.MaxSearchResults)
	c.MinDurationSeconds = env.Int("MIN_VIDEO_DURATION_SECONDS", c.MinDurationSeconds)
	if langs := env.List("TRANSCRIPT_LANGUAGES", ""); len(langs) > 0 {
		c.PreferredLanguages = langs
	}
	c.DefaultTranscriptInterval = env.Int("TRANSCRIPT_INTERVAL", c.DefaultTranscriptInterval)
	c.TranscriptConcurrency = int64(env.Int("TRANSCRIPT_CONCURRENCY", int(c.TranscriptConcurrency)))
	c.TranscriptTimeout = env.Duration("TRANSCRIPT_TIMEOUT", c.TranscriptTimeout)
	c.APITimeout = env.Duration("API_TIMEOUT", c.APITimeout)
	c.NetworkTimeout = env.Duration("NETWORK_TIMEOUT", c.NetworkTimeout)
	c.MaxRetries = env.Int("MAX_RETRIES", c.MaxRetries)
	c.RetryBaseDelay = env.Duration("RETRY_BASE_DELAY", c.RetryBaseDelay)
	engine.Init(c)

	engine.InitCacheL2(env.Str("REDIS_URL", ""), env.Duration("CACHE_TTL", time.Hour))
}

func router(service *ingest.Service, history store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	r.Post("/ingest", handleIngest(service))
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, service.GlobalStats())
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(engine.FormatMetrics()))
	})
	r.Get("/history", handleHistory(history))
	r.Post("/admin/caches/clear", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"cleared": service.ClearAllCaches()})
	})
	return r
}

type ingestRequest struct {
	Input              string `json:"input"`
	IncludeTranscript  *bool  `json:"include_transcript"`
	IncludeDescription *bool  `json:"include_description"`
	TranscriptInterval *int   `json:"transcript_interval"`
	StartDate          string `json:"start_date"`
	EndDate            string `json:"end_date"`
}

func handleIngest(service *ingest.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		body := http.MaxBytesReader(w, r.Body, 1<<20)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Input) == "" {
			writeError(w, http.StatusBadRequest, "input is required")
			return
		}

		opts := ingest.Options{
			IncludeTranscript:  true,
			IncludeDescription: true,
			TranscriptInterval: engine.Cfg.DefaultTranscriptInterval,
		}
		if req.IncludeTranscript != nil {
			opts.IncludeTranscript = *req.IncludeTranscript
		}
		if req.IncludeDescription != nil {
			opts.IncludeDescription = *req.IncludeDescription
		}
		if req.TranscriptInterval != nil {
			opts.TranscriptInterval = *req.TranscriptInterval
		}

		var err error
		if opts.StartDate, err = parseDate(req.StartDate, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date")
			return
		}
		if opts.EndDate, err = parseDate(req.EndDate, true); err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date")
			return
		}

		result, err := service.ProcessSource(r.Context(), req.Input, opts)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleHistory(history store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			writeError(w, http.StatusNotFound, "history disabled")
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		records, err := history.RecentIngests(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "history query failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ingests": records, "count": len(records)})
	}
}

// parseDate accepts YYYY-MM-DD or RFC 3339; end dates snap to end of day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t.UTC(), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrRateLimited), errors.Is(err, engine.ErrCircuitOpen):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
