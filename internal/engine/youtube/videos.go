package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/anatolykoptev/go_ingest/internal/engine"
)

// Batched detail fetching and per-video validation.

// detailBatchParallelism bounds concurrent videos.list calls.
const detailBatchParallelism = 4

// GetVideoDetailsBatch fetches structured details for the given IDs.
// Duplicates are discarded; videos failing validation (live or upcoming
// broadcasts, too short, malformed duration) are dropped, not errors.
func (c *Client) GetVideoDetailsBatch(ctx context.Context, ids []string) ([]VideoRecord, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	batchSize := engine.Cfg.BatchSize
	if batchSize <= 0 || batchSize > 50 {
		batchSize = 50
	}

	var chunks [][]string
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		chunks = append(chunks, ids[start:end])
	}

	results := make([][]VideoRecord, len(chunks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailBatchParallelism)
	for i, chunk := range chunks {
		g.Go(func() error {
			records, err := c.fetchDetailChunk(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = records
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []VideoRecord
	for _, records := range results {
		out = append(out, records...)
	}
	return out, nil
}

func (c *Client) fetchDetailChunk(ctx context.Context, ids []string) ([]VideoRecord, error) {
	engine.IncrVideoDetailRequests()

	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("id", strings.Join(ids, ","))

	var resp videoListResp
	if err := c.call(ctx, "videos", params, &resp); err != nil {
		return nil, err
	}

	records := make([]VideoRecord, 0, len(resp.Items))
	for _, item := range resp.Items {
		record, reason := buildRecord(item)
		if reason != "" {
			slog.Debug("videos: dropped by validation",
				slog.String("id", item.ID), slog.String("reason", reason))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// buildRecord converts one API item, returning a rejection reason for
// invalid videos. Live and upcoming broadcasts are excluded; malformed
// durations are rejected, not defaulted.
func buildRecord(item videoItem) (VideoRecord, string) {
	live := item.Snippet.LiveBroadcastContent
	if live != "" && live != "none" && live != "completed" {
		return VideoRecord{}, "live status " + live
	}

	seconds, err := parseISODuration(item.ContentDetails.Duration)
	if err != nil {
		return VideoRecord{}, "malformed duration " + item.ContentDetails.Duration
	}
	if seconds < engine.Cfg.MinDurationSeconds {
		return VideoRecord{}, fmt.Sprintf("duration %ds below minimum", seconds)
	}

	return VideoRecord{
		ID:              item.ID,
		Title:           item.Snippet.Title,
		Description:     item.Snippet.Description,
		ChannelID:       item.Snippet.ChannelID,
		ChannelTitle:    item.Snippet.ChannelTitle,
		PublishedAt:     parsePublishedAt(item.Snippet.PublishedAt),
		DurationSeconds: seconds,
		Tags:            item.Snippet.Tags,
		LiveStatus:      live,
		DefaultLanguage: item.Snippet.DefaultLanguage,
		DefaultAudioLng: item.Snippet.DefaultAudioLanguage,
		DescriptionURLs: engine.ExtractURLs(item.Snippet.Description),
	}, ""
}

// parseISODuration parses an ISO-8601 duration (PnDTnHnMnS) into whole
// seconds. Empty or malformed input is an error.
func parseISODuration(s string) (int, error) {
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("not an ISO-8601 duration: %q", s)
	}

	total := 0
	num := 0
	haveNum := false
	inTime := false
	sawUnit := false
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
			haveNum = true
		case r == 'T':
			if inTime {
				return 0, fmt.Errorf("duplicate T in duration: %q", s)
			}
			inTime = true
		default:
			if !haveNum {
				return 0, fmt.Errorf("dangling unit in duration: %q", s)
			}
			mult, ok := durationUnit(r, inTime)
			if !ok {
				return 0, fmt.Errorf("bad unit %q in duration: %q", r, s)
			}
			total += num * mult
			num = 0
			haveNum = false
			sawUnit = true
		}
	}
	if haveNum || !sawUnit {
		return 0, fmt.Errorf("malformed duration: %q", s)
	}
	return total, nil
}

func durationUnit(r rune, inTime bool) (int, bool) {
	switch r {
	case 'W':
		return 7 * 86400, !inTime
	case 'D':
		return 86400, !inTime
	case 'H':
		return 3600, inTime
	case 'M':
		if inTime {
			return 60, true
		}
		return 30 * 86400, true // calendar months never appear in practice
	case 'S':
		return 1, inTime
	}
	return 0, false
}

// dedupe drops duplicate IDs, keeping first occurrence order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
