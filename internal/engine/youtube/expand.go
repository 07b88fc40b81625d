package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go_ingest/internal/engine"
)

// Source expansion: turn one classified identifier into a bounded list of
// video IDs plus a human-readable source name.

// ExpandOptions bound one expansion.
type ExpandOptions struct {
	StartDate time.Time // zero = unbounded
	EndDate   time.Time
	MaxVideos int // 0 = engine default
}

// Expansion is the result of expanding one source.
type Expansion struct {
	SourceName    string
	VideoIDs      []string
	HighQuotaCost bool // search path: 100 units per page
}

// GetVideosFromSource dispatches on the resolved source type. The ID list
// is truncated to the per-request maximum regardless of source type.
func (c *Client) GetVideosFromSource(ctx context.Context, ident Identifier, opts ExpandOptions) (Expansion, error) {
	capacity := opts.MaxVideos
	if capacity <= 0 || capacity > engine.Cfg.MaxVideosPerRequest {
		capacity = engine.Cfg.MaxVideosPerRequest
	}

	var exp Expansion
	var err error
	switch ident.Type {
	case SourceVideo:
		exp = Expansion{SourceName: "Video: " + ident.Value, VideoIDs: []string{ident.Value}}
	case SourcePlaylist:
		exp, err = c.expandPlaylist(ctx, ident.Value, opts, capacity)
	case SourceChannel:
		exp, err = c.expandChannel(ctx, ident.Value, opts, capacity)
	case SourceSearch:
		exp, err = c.expandSearch(ctx, ident.Value, opts, capacity)
	default:
		return Expansion{}, engine.Wrapf(engine.ErrInvalidInput, "unexpected source type %s", ident.Type)
	}
	if err != nil {
		return Expansion{}, err
	}

	if len(exp.VideoIDs) > capacity {
		exp.VideoIDs = exp.VideoIDs[:capacity]
	}
	return exp, nil
}

// expandChannel looks up the channel's uploads playlist and paginates it.
func (c *Client) expandChannel(ctx context.Context, channelID string, opts ExpandOptions, capacity int) (Expansion, error) {
	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("id", channelID)

	var resp channelListResp
	if err := c.call(ctx, "channels", params, &resp); err != nil {
		return Expansion{}, err
	}
	if len(resp.Items) == 0 {
		return Expansion{}, engine.Wrapf(engine.ErrNotFound, "channel %s", channelID)
	}
	uploads := resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
	if uploads == "" {
		return Expansion{}, engine.Wrapf(engine.ErrNotFound, "channel %s has no uploads playlist", channelID)
	}

	ids, err := c.paginatePlaylist(ctx, uploads, opts, capacity)
	if err != nil {
		return Expansion{}, err
	}
	return Expansion{SourceName: "Channel: " + resp.Items[0].Snippet.Title, VideoIDs: ids}, nil
}

// expandPlaylist fetches the playlist title and paginates its items.
func (c *Client) expandPlaylist(ctx context.Context, playlistID string, opts ExpandOptions, capacity int) (Expansion, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("id", playlistID)

	var resp playlistListResp
	if err := c.call(ctx, "playlists", params, &resp); err != nil {
		return Expansion{}, err
	}
	if len(resp.Items) == 0 {
		return Expansion{}, engine.Wrapf(engine.ErrNotFound, "playlist %s", playlistID)
	}

	ids, err := c.paginatePlaylist(ctx, playlistID, opts, capacity)
	if err != nil {
		return Expansion{}, err
	}
	return Expansion{SourceName: "Playlist: " + resp.Items[0].Snippet.Title, VideoIDs: ids}, nil
}

// paginatePlaylist walks playlistItems pages, filtering by publish date.
// Pages are cached by (playlistId, pageToken). The collection is assumed
// reverse-chronological: with an "after" bound active, a run of
// consecutive pages with zero in-range items means nothing newer remains,
// so pagination stops early.
func (c *Client) paginatePlaylist(ctx context.Context, playlistID string, opts ExpandOptions, capacity int) ([]string, error) {
	var ids []string
	pageToken := ""
	emptyPages := 0
	stopAfter := engine.Cfg.EmptyPageStopThreshold
	if stopAfter <= 0 {
		stopAfter = 3
	}

	for {
		page, err := c.playlistPage(ctx, playlistID, pageToken)
		if err != nil {
			return nil, err
		}

		inRange := 0
		for _, item := range page.Items {
			if item.VideoID == "" {
				continue
			}
			if !withinRange(item.PublishedAt, opts.StartDate, opts.EndDate) {
				continue
			}
			inRange++
			ids = append(ids, item.VideoID)
			if len(ids) >= capacity {
				return ids, nil
			}
		}

		if inRange == 0 {
			emptyPages++
		} else {
			emptyPages = 0
		}
		// The stop deliberately requires a lower date bound: uploads page
		// newest-first, so only a start date makes an out-of-range run
		// final. With just an end date the matching videos lie past the
		// run, and stopping would drop them.
		if !opts.StartDate.IsZero() && emptyPages >= stopAfter {
			slog.Debug("playlist: early stop after consecutive out-of-range pages",
				slog.String("playlist", playlistID), slog.Int("pages", emptyPages))
			return ids, nil
		}

		if page.Next == "" {
			return ids, nil
		}
		pageToken = page.Next
	}
}

// playlistPage fetches (or recalls) one playlistItems page.
func (c *Client) playlistPage(ctx context.Context, playlistID, pageToken string) (playlistPage, error) {
	cacheKey := playlistID + "|" + pageToken
	if cached, ok := c.pageCache.Get(cacheKey); ok {
		return cached, nil
	}
	engine.IncrPlaylistPages()

	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", "50")
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp playlistItemsResp
	if err := c.call(ctx, "playlistItems", params, &resp); err != nil {
		return playlistPage{}, err
	}

	page := playlistPage{Next: resp.NextPageToken}
	for _, item := range resp.Items {
		page.Items = append(page.Items, playlistPageItem{
			VideoID:     item.ContentDetails.VideoID,
			PublishedAt: parsePublishedAt(item.ContentDetails.VideoPublishedAt),
		})
	}
	c.pageCache.Put(cacheKey, page)
	return page, nil
}

// expandSearch parses operators, applies request-level date bounds only
// when the query did not set its own, and paginates search results.
func (c *Client) expandSearch(ctx context.Context, query string, opts ExpandOptions, capacity int) (Expansion, error) {
	engine.IncrSearchRequests()
	filters := parseSearchQuery(query)

	if filters.ChannelRef != "" {
		resolved, err := c.resolveChannel(ctx, Identifier{
			RawInput: filters.ChannelRef, Type: sourceCustom, Value: filters.ChannelRef,
		})
		if err != nil {
			slog.Warn("search: channel operator dropped, channel not resolvable",
				slog.String("channel", filters.ChannelRef), slog.Any("error", err))
		} else {
			filters.Params.Set("channelId", resolved.Value)
		}
	}
	if !opts.StartDate.IsZero() && !filters.HasAfter {
		filters.Params.Set("publishedAfter", opts.StartDate.UTC().Format(time.RFC3339))
	}
	if !opts.EndDate.IsZero() && !filters.HasBefore {
		filters.Params.Set("publishedBefore", opts.EndDate.UTC().Format(time.RFC3339))
	}

	limit := min(capacity, engine.Cfg.MaxSearchResults)
	var ids []string
	pageToken := ""
	for len(ids) < limit {
		params := url.Values{}
		for k, v := range filters.Params {
			params[k] = v
		}
		params.Set("part", "id")
		params.Set("type", "video")
		params.Set("q", filters.Query)
		params.Set("maxResults", strconv.Itoa(min(50, limit-len(ids))))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp searchListResp
		if err := c.call(ctx, "search", params, &resp); err != nil {
			return Expansion{}, err
		}
		for _, item := range resp.Items {
			if item.ID.VideoID != "" {
				ids = append(ids, item.ID.VideoID)
			}
		}
		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	name := fmt.Sprintf("Search: %q", query)
	return Expansion{SourceName: name, VideoIDs: ids, HighQuotaCost: true}, nil
}

// withinRange checks a publish date against optional bounds. Unparsable
// dates (zero time) only pass when no bound is active.
func withinRange(t, start, end time.Time) bool {
	if start.IsZero() && end.IsZero() {
		return true
	}
	if t.IsZero() {
		return false
	}
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

// parsePublishedAt parses the API's timestamp format: trailing Z and
// fractional seconds are stripped, the rest is UTC. Unparsable input
// yields the zero time, which sorts as oldest.
func parsePublishedAt(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	s = strings.TrimSuffix(s, "Z")
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		s = s[:idx]
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
