package youtube

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go_ingest/internal/engine"
)

// Input classification. Pattern matching is a pure function of the input
// string and is cached; handle/custom/username matches need one remote
// resolution call, cached separately. Resolution failure degrades the
// classification to a search over the raw input — it never errors.

var urlPatterns = []struct {
	typ SourceType
	re  *regexp.Regexp
}{
	{SourceVideo, regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:[^#\s]*&)?v=|embed/|shorts/|live/)|youtu\.be/)([A-Za-z0-9_-]{11})`)},
	{SourcePlaylist, regexp.MustCompile(`youtube\.com/(?:playlist|watch)\?(?:[^#\s]*&)?list=([A-Za-z0-9_-]{12,})`)},
	{SourceChannel, regexp.MustCompile(`youtube\.com/channel/(UC[A-Za-z0-9_-]{22})`)},
	{sourceHandle, regexp.MustCompile(`youtube\.com/(@[A-Za-z0-9._-]{3,31})`)},
	{sourceCustom, regexp.MustCompile(`youtube\.com/c/([A-Za-z0-9._-]+)`)},
	{sourceUsername, regexp.MustCompile(`youtube\.com/user/([A-Za-z0-9._-]+)`)},
	{SourceSearch, regexp.MustCompile(`youtube\.com/results\?(?:[^#\s]*&)?search_query=([^&\s]+)`)},
}

var bareHandleRe = regexp.MustCompile(`^@[A-Za-z0-9._-]{3,31}$`)

// ExtractIdentifier classifies a user-supplied input into a concrete
// source. Indirect channel identifiers are resolved to a channel ID; if
// the channel cannot be found the original input becomes a search query.
func (c *Client) ExtractIdentifier(ctx context.Context, input string) (Identifier, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Identifier{}, engine.Wrapf(engine.ErrInvalidInput, "empty input")
	}

	match := c.matchInput(input)
	switch match.Type {
	case sourceHandle, sourceCustom, sourceUsername:
		resolved, err := c.resolveChannel(ctx, match)
		if err == nil {
			return resolved, nil
		}
		if errors.Is(err, engine.ErrNotFound) {
			slog.Info("classify: channel resolution failed, falling back to search",
				slog.String("identifier", match.Value), slog.String("type", string(match.Type)))
			return Identifier{RawInput: input, Type: SourceSearch, Value: input}, nil
		}
		return Identifier{}, err
	default:
		return match, nil
	}
}

// matchInput runs the ordered pattern list. Unmatched input, URL-shaped
// or not, is a search term.
func (c *Client) matchInput(input string) Identifier {
	if cached, ok := c.urlParseCache.Get(input); ok {
		return cached
	}

	ident := Identifier{RawInput: input, Type: SourceSearch, Value: input}
	switch {
	case bareHandleRe.MatchString(input):
		ident = Identifier{RawInput: input, Type: sourceHandle, Value: input}
	default:
		for _, p := range urlPatterns {
			m := p.re.FindStringSubmatch(input)
			if m == nil {
				continue
			}
			value := m[1]
			if p.typ == SourceSearch {
				value = decodeQueryValue(value)
			}
			ident = Identifier{RawInput: input, Type: p.typ, Value: value}
			break
		}
	}

	c.urlParseCache.Put(input, ident)
	return ident
}

func decodeQueryValue(v string) string {
	if dec, err := url.QueryUnescape(v); err == nil {
		return dec
	}
	return strings.ReplaceAll(v, "+", " ")
}

// resolveChannel turns a handle/custom/username identifier into a channel
// ID via the remote find-channel capability. Results are cached by
// (identifier, original type). Custom names are tried handle-style first,
// then username-style — two fixed attempts, nothing recursive.
func (c *Client) resolveChannel(ctx context.Context, ident Identifier) (Identifier, error) {
	cacheKey := ident.Value + "|" + string(ident.Type)
	if cached, ok := c.resolveCache.Get(cacheKey); ok {
		return cached, nil
	}
	engine.IncrResolveRequests()

	var channelID string
	var err error
	switch ident.Type {
	case sourceHandle:
		channelID, err = c.lookupChannel(ctx, "forHandle", strings.TrimPrefix(ident.Value, "@"))
	case sourceUsername:
		channelID, err = c.lookupChannel(ctx, "forUsername", ident.Value)
	case sourceCustom:
		channelID, err = c.lookupChannel(ctx, "forHandle", ident.Value)
		if errors.Is(err, engine.ErrNotFound) {
			channelID, err = c.lookupChannel(ctx, "forUsername", ident.Value)
		}
	default:
		return Identifier{}, engine.Wrapf(engine.ErrInvalidInput, "unresolvable type %s", ident.Type)
	}
	if err != nil {
		return Identifier{}, err
	}

	resolved := Identifier{RawInput: ident.RawInput, Type: SourceChannel, Value: channelID}
	c.resolveCache.Put(cacheKey, resolved)
	return resolved, nil
}

// lookupChannel queries channels.list with one filter param and returns
// the matching channel ID.
func (c *Client) lookupChannel(ctx context.Context, param, value string) (string, error) {
	params := url.Values{}
	params.Set("part", "id")
	params.Set(param, value)

	var resp channelListResp
	if err := c.call(ctx, "channels", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", engine.Wrapf(engine.ErrNotFound, "channel %s=%s", param, value)
	}
	return resp.Items[0].ID, nil
}
