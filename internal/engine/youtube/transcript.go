package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/anatolykoptev/go_ingest/internal/engine"
)

// Transcript Manager: per-video track discovery, language selection,
// bounded concurrent fetching with single-flight deduplication, and
// timestamp-block formatting.
//
// Track listing goes ANDROID Innertube /player first (works from most
// IPs), then falls back to scraping ytInitialPlayerResponse out of the
// watch page.

var (
	innertubeURL = "https://www.youtube.com/youtubei/v1/player"
	watchBase    = "https://www.youtube.com/watch?v="
)

const (
	ytAndroidVersion = "19.09.37"
	ytAndroidUA      = "com.google.android.youtube/19.09.37 (Linux; U; Android 11) gzip"

	ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "
)

// Permanent listing failures: a video that structurally has no transcript
// stays that way regardless of formatting interval, so these are cached
// by video ID alone. Transient fetch failures are never cached.
var (
	errTranscriptsDisabled = errors.New("transcripts disabled")
	errNoTranscript        = errors.New("no transcript available")
)

// Manager coordinates transcript retrieval for the whole process.
type Manager struct {
	cache    *engine.Cache[TranscriptResult] // (videoId, interval) → formatted result
	negCache *engine.Cache[string]           // videoId → permanent failure reason
	group    singleflight.Group
	sem      *semaphore.Weighted
	breaker  *engine.Breaker
}

// NewManager builds a manager from engine.Cfg.
func NewManager() *Manager {
	c := engine.Cfg
	limit := c.TranscriptConcurrency
	if limit <= 0 {
		limit = 5
	}
	return &Manager{
		cache:    engine.NewCache[TranscriptResult]("transcripts", c.TranscriptCacheSize, c.TranscriptCacheTTL, c.CacheEvictionPercent),
		negCache: engine.NewCache[string]("transcript_negatives", c.TranscriptCacheSize, 0, c.CacheEvictionPercent),
		sem:      semaphore.NewWeighted(limit),
		breaker: engine.NewBreaker("youtube-transcript", engine.BreakerConfig{
			FailureThreshold:  c.BreakerFailureThreshold,
			ResetTimeout:      c.BreakerResetTimeout,
			HalfOpenSuccesses: c.BreakerHalfOpenSuccesses,
		}),
	}
}

// GetTranscript returns the formatted transcript for a video, or false
// when none is available. It never returns an error: transcript absence
// is a normal outcome, and transient failures just leave the transcript
// off this time around.
func (m *Manager) GetTranscript(ctx context.Context, videoID, defaultLang, defaultAudioLang string, interval int) (TranscriptResult, bool) {
	if !engine.Cfg.TranscriptsEnabled || videoID == "" {
		return TranscriptResult{}, false
	}
	if interval < 0 {
		interval = engine.Cfg.DefaultTranscriptInterval
	}
	cacheKey := videoID + "|" + strconv.Itoa(interval)

	if cached, ok := m.cache.Get(cacheKey); ok {
		return cached, true
	}
	if reason, ok := m.negCache.Get(videoID); ok {
		engine.IncrTranscriptNegatives()
		slog.Debug("transcript: cached negative", slog.String("id", videoID), slog.String("reason", reason))
		return TranscriptResult{}, false
	}
	l2Key := engine.CacheKey("transcript", videoID, strconv.Itoa(interval))
	if cached, ok := engine.CacheLoadJSON[TranscriptResult](ctx, l2Key); ok {
		m.cache.Put(cacheKey, cached)
		return cached, true
	}

	engine.IncrTranscriptRequests()

	// Single flight per video: concurrent callers share one fetch. Only
	// the owner's closure runs, so only the owner writes the interval
	// caches — a joined caller may have asked for a different interval
	// than the one the shared result was formatted at, and must not file
	// it under its own key.
	v, err, _ := m.group.Do(videoID, func() (any, error) {
		result, err := m.fetchAndFormat(ctx, videoID, defaultLang, defaultAudioLang, interval)
		if err != nil {
			return TranscriptResult{}, err
		}
		m.cache.Put(cacheKey, result)
		engine.CacheStoreJSON(ctx, l2Key, result)
		return result, nil
	})
	if err != nil {
		engine.IncrTranscriptErrors()
		if errors.Is(err, errTranscriptsDisabled) || errors.Is(err, errNoTranscript) {
			m.negCache.Put(videoID, err.Error())
		}
		slog.Debug("transcript: unavailable", slog.String("id", videoID), slog.Any("error", err))
		return TranscriptResult{}, false
	}
	return v.(TranscriptResult), true
}

// fetchAndFormat does the remote work under the global concurrency
// ceiling and the transcript timeout.
func (m *Manager) fetchAndFormat(ctx context.Context, videoID, defaultLang, defaultAudioLang string, interval int) (TranscriptResult, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return TranscriptResult{}, err
	}
	defer m.sem.Release(1)

	fetchCtx := ctx
	if t := engine.Cfg.TranscriptTimeout; t > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	tracks, err := m.listTracksGuarded(fetchCtx, videoID)
	if err != nil {
		return TranscriptResult{}, err
	}

	prefs := buildPreferences(defaultAudioLang, defaultLang, engine.Cfg.PreferredLanguages)
	track, ok := selectTrack(tracks, prefs)
	if !ok {
		return TranscriptResult{}, fmt.Errorf("%w: no usable track among %d", errNoTranscript, len(tracks))
	}

	segments, err := m.fetchSegments(fetchCtx, track.BaseURL)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("fetch track %s: %w", track.LanguageCode, err)
	}

	text := formatSegments(segments, interval)
	if text == "" {
		return TranscriptResult{}, fmt.Errorf("track %s formatted to empty text", track.LanguageCode)
	}
	return TranscriptResult{
		Language:  track.LanguageCode,
		Text:      text,
		Generated: track.Kind == "asr",
	}, nil
}

// --- track listing ---

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" marks auto-generated tracks
}

type innertubePlayerResp struct {
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

// trackListing carries a permanent no-transcript outcome past the
// breaker: a video without captions is a normal answer from a healthy
// upstream, not a failure.
type trackListing struct {
	tracks    []captionTrack
	permanent error
}

// listTracksGuarded runs track listing through the transcript breaker.
func (m *Manager) listTracksGuarded(ctx context.Context, videoID string) ([]captionTrack, error) {
	listing, err := engine.BreakerDo(m.breaker, func() (trackListing, error) {
		tracks, err := m.listTracks(ctx, videoID)
		if err != nil && (errors.Is(err, errTranscriptsDisabled) || errors.Is(err, errNoTranscript)) {
			return trackListing{permanent: err}, nil
		}
		return trackListing{tracks: tracks}, err
	})
	if err != nil {
		return nil, err
	}
	if listing.permanent != nil {
		return nil, listing.permanent
	}
	return listing.tracks, nil
}

// listTracks enumerates the available caption tracks for a video.
func (m *Manager) listTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	tracks, err := m.listTracksViaPlayer(ctx, videoID)
	if err == nil || errors.Is(err, errNoTranscript) || errors.Is(err, errTranscriptsDisabled) {
		return tracks, err
	}
	slog.Debug("transcript: player listing failed, scraping watch page",
		slog.String("id", videoID), slog.Any("error", err))
	return m.listTracksViaWatchPage(ctx, videoID)
}

// listTracksViaPlayer uses the ANDROID Innertube /player endpoint.
func (m *Manager) listTracksViaPlayer(ctx context.Context, videoID string) ([]captionTrack, error) {
	reqBody, err := json.Marshal(map[string]any{
		"videoId": videoID,
		"context": map[string]any{
			"client": map[string]any{
				"clientName":        "ANDROID",
				"clientVersion":     ytAndroidVersion,
				"androidSdkVersion": 30,
				"hl":                "en",
				"gl":                "US",
			},
		},
		"contentCheckOk": true,
		"racyCheckOk":    true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := engine.RetryHTTP(ctx, transcriptRetryConfig(), func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, innertubeURL+"?prettyPrint=false", bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", ytAndroidUA)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("android innertube: %w", err)
	}
	defer resp.Body.Close()

	var playerResp innertubePlayerResp
	if err := json.NewDecoder(resp.Body).Decode(&playerResp); err != nil {
		return nil, fmt.Errorf("decode player: %w", err)
	}
	return tracksFromPlayerResp(playerResp)
}

// tracksFromPlayerResp maps a player response onto the permanent-failure
// taxonomy: a playable video without captions has none to offer.
func tracksFromPlayerResp(playerResp innertubePlayerResp) ([]captionTrack, error) {
	status := ""
	if playerResp.PlayabilityStatus != nil {
		status = playerResp.PlayabilityStatus.Status
	}
	if playerResp.Captions == nil {
		if status == "" || status == "OK" {
			return nil, errTranscriptsDisabled
		}
		return nil, fmt.Errorf("player not usable: %s", status)
	}
	tracks := playerResp.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, errNoTranscript
	}
	return tracks, nil
}

// listTracksViaWatchPage scrapes ytInitialPlayerResponse from the watch
// page HTML: walk the script nodes, find the marker, brace-extract the
// JSON blob.
func (m *Manager) listTracksViaWatchPage(ctx context.Context, videoID string) ([]captionTrack, error) {
	resp, err := engine.RetryHTTP(ctx, transcriptRetryConfig(), func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchBase+videoID, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentChrome)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 6*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read watch page: %w", err)
	}

	jsonData := playerResponseFromHTML(body)
	if jsonData == nil {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	var playerResp innertubePlayerResp
	if err := json.Unmarshal(jsonData, &playerResp); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return tracksFromPlayerResp(playerResp)
}

// transcriptRetryConfig keeps transcript retries short: a single video's
// transcript is not worth a long backoff tail.
func transcriptRetryConfig() engine.RetryConfig {
	return engine.RetryConfig{
		MaxRetries: 1,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// --- timed segments ---

type segment struct {
	Start float64
	Dur   float64
	Text  string
}

type timedText struct {
	Lines []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

// fetchSegments fetches and parses one track's timedtext XML. Unusable
// lines are skipped individually.
func (m *Manager) fetchSegments(ctx context.Context, baseURL string) ([]segment, error) {
	resp, err := engine.RetryHTTP(ctx, transcriptRetryConfig(), func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, err
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	segments := make([]segment, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		start, err := strconv.ParseFloat(line.Start, 64)
		if err != nil || start < 0 {
			continue
		}
		dur, err := strconv.ParseFloat(line.Dur, 64)
		if err != nil {
			dur = 0
		}
		text := engine.CleanHTML(html.UnescapeString(line.Text))
		if text == "" {
			continue
		}
		segments = append(segments, segment{Start: start, Dur: dur, Text: text})
	}
	return segments, nil
}

// --- language selection ---

// buildPreferences assembles the ordered language preference list:
// video defaults first, their base languages next, then the configured
// preference list, with "en" as the final fallback.
func buildPreferences(defaultAudioLang, defaultLang string, configured []string) []string {
	var prefs []string
	seen := make(map[string]struct{})
	add := func(lang string) {
		if lang == "" {
			return
		}
		if _, ok := seen[lang]; ok {
			return
		}
		seen[lang] = struct{}{}
		prefs = append(prefs, lang)
	}
	add(defaultAudioLang)
	add(defaultLang)
	add(baseLang(defaultAudioLang))
	add(baseLang(defaultLang))
	for _, lang := range configured {
		add(lang)
	}
	add("en")
	return prefs
}

func baseLang(lang string) string {
	if idx := strings.IndexByte(lang, '-'); idx > 0 {
		return lang[:idx]
	}
	return lang
}

// selectTrack picks the best track: exact preference match (manual before
// generated at each rank), then base-language match the same way, then
// any manual track (preferring English), then any generated one.
func selectTrack(tracks []captionTrack, prefs []string) (captionTrack, bool) {
	if len(tracks) == 0 {
		return captionTrack{}, false
	}

	find := func(match func(captionTrack) bool) (captionTrack, bool) {
		for _, t := range tracks {
			if match(t) {
				return t, true
			}
		}
		return captionTrack{}, false
	}
	manual := func(t captionTrack) bool { return t.Kind != "asr" }

	for _, p := range prefs {
		if t, ok := find(func(t captionTrack) bool { return t.LanguageCode == p && manual(t) }); ok {
			return t, true
		}
		if t, ok := find(func(t captionTrack) bool { return t.LanguageCode == p }); ok {
			return t, true
		}
	}
	for _, p := range prefs {
		base := baseLang(p)
		if t, ok := find(func(t captionTrack) bool { return baseLang(t.LanguageCode) == base && manual(t) }); ok {
			return t, true
		}
		if t, ok := find(func(t captionTrack) bool { return baseLang(t.LanguageCode) == base }); ok {
			return t, true
		}
	}
	if t, ok := find(func(t captionTrack) bool { return manual(t) && baseLang(t.LanguageCode) == "en" }); ok {
		return t, true
	}
	if t, ok := find(manual); ok {
		return t, true
	}
	if t, ok := find(func(t captionTrack) bool { return baseLang(t.LanguageCode) == "en" }); ok {
		return t, true
	}
	return tracks[0], true
}
