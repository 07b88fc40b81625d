package youtube

import (
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Search-operator parsing. Operators map onto search.list filter params;
// invalid values are dropped with a warning, never an error. Quoted
// phrases survive verbatim in the free-text query.

// filterOps maps operator → API param and allowed values. Empty allowed
// list means any non-empty value passes.
var filterOps = map[string]struct {
	param   string
	allowed []string
}{
	"order":      {"order", []string{"date", "rating", "relevance", "title", "viewCount"}},
	"duration":   {"videoDuration", []string{"short", "medium", "long", "any"}},
	"definition": {"videoDefinition", []string{"high", "standard", "any"}},
	"dimension":  {"videoDimension", []string{"2d", "3d", "any"}},
	"caption":    {"videoCaption", []string{"closedCaption", "none", "any"}},
	"license":    {"videoLicense", []string{"creativeCommon", "youtube", "any"}},
	"embeddable": {"videoEmbeddable", []string{"true", "any"}},
	"syndicated": {"videoSyndicated", []string{"true", "any"}},
}

var searchDateLayouts = []string{"2006-01-02", "2006/01/02", "20060102"}

// searchFilters is the parsed form of a free-text search query.
type searchFilters struct {
	Query      string
	Params     url.Values
	ChannelRef string // channel: value still needing resolution
	HasBefore  bool
	HasAfter   bool
}

// parseSearchQuery splits operators out of a raw query.
func parseSearchQuery(raw string) searchFilters {
	f := searchFilters{Params: url.Values{}}
	var terms []string

	for _, tok := range splitQuoted(raw) {
		op, value, ok := splitOperator(tok)
		if !ok {
			terms = append(terms, tok)
			continue
		}
		switch op {
		case "intitle", "description":
			// Folded back into the free-text term.
			terms = append(terms, value)
		case "before", "after":
			ts, err := parseSearchDate(value)
			if err != nil {
				slog.Warn("search: invalid date operator dropped",
					slog.String("op", op), slog.String("value", value))
				continue
			}
			if op == "before" {
				f.Params.Set("publishedBefore", ts)
				f.HasBefore = true
			} else {
				f.Params.Set("publishedAfter", ts)
				f.HasAfter = true
			}
		case "channel":
			if strings.HasPrefix(value, "UC") && len(value) == 24 {
				f.Params.Set("channelId", value)
			} else {
				f.ChannelRef = value
			}
		default:
			def, known := filterOps[op]
			if !known {
				// Unrecognized word: token is literal query text.
				terms = append(terms, tok)
				continue
			}
			if !allowedValue(def.allowed, value) {
				slog.Warn("search: invalid operator value dropped",
					slog.String("op", op), slog.String("value", value))
				continue
			}
			f.Params.Set(def.param, value)
		}
	}

	f.Query = strings.Join(terms, " ")
	return f
}

// splitOperator returns (op, value, true) for word:value tokens. Quoted
// tokens are never operators.
func splitOperator(tok string) (string, string, bool) {
	if strings.HasPrefix(tok, `"`) {
		return "", "", false
	}
	idx := strings.Index(tok, ":")
	if idx <= 0 || idx == len(tok)-1 {
		return "", "", false
	}
	op := strings.ToLower(tok[:idx])
	for _, r := range op {
		if r < 'a' || r > 'z' {
			return "", "", false
		}
	}
	return op, strings.Trim(tok[idx+1:], `"`), true
}

// splitQuoted splits on whitespace, keeping double-quoted phrases (and
// operator values) as single tokens.
func splitQuoted(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// parseSearchDate renders a date value as an RFC-3339 start-of-day bound.
func parseSearchDate(value string) (string, error) {
	var lastErr error
	for _, layout := range searchDateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
		lastErr = err
	}
	return "", lastErr
}

func allowedValue(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return value != ""
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}
