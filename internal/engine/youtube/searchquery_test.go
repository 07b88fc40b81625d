package youtube

import (
	"testing"
)

func TestParseSearchQuery(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantQuery  string
		wantParams map[string]string
	}{
		{
			name:      "plain terms",
			raw:       "golang concurrency",
			wantQuery: "golang concurrency",
		},
		{
			name:       "order operator",
			raw:        "golang order:date",
			wantQuery:  "golang",
			wantParams: map[string]string{"order": "date"},
		},
		{
			name:       "duration operator",
			raw:        "talks duration:long",
			wantQuery:  "talks",
			wantParams: map[string]string{"videoDuration": "long"},
		},
		{
			name:      "invalid operator value dropped",
			raw:       "golang order:bogus",
			wantQuery: "golang",
		},
		{
			name:      "unknown operator stays literal",
			raw:       "re:zero episode",
			wantQuery: "re:zero episode",
		},
		{
			name:      "intitle folded into terms",
			raw:       "intitle:tutorial golang",
			wantQuery: "tutorial golang",
		},
		{
			name:      "quoted phrase survives",
			raw:       `"exact phrase" golang`,
			wantQuery: `"exact phrase" golang`,
		},
		{
			name:      "quoted token is not an operator",
			raw:       `"order:date"`,
			wantQuery: `"order:date"`,
		},
		{
			name:       "after operator",
			raw:        "golang after:2024-01-15",
			wantQuery:  "golang",
			wantParams: map[string]string{"publishedAfter": "2024-01-15T00:00:00Z"},
		},
		{
			name:       "before with slash layout",
			raw:        "golang before:2024/02/01",
			wantQuery:  "golang",
			wantParams: map[string]string{"publishedBefore": "2024-02-01T00:00:00Z"},
		},
		{
			name:      "invalid date dropped",
			raw:       "golang after:notadate",
			wantQuery: "golang",
		},
		{
			name:       "channel ID operator",
			raw:        "golang channel:UCBR8-60-B28hp2BmDPdntcQ",
			wantQuery:  "golang",
			wantParams: map[string]string{"channelId": "UCBR8-60-B28hp2BmDPdntcQ"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseSearchQuery(tt.raw)
			if f.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", f.Query, tt.wantQuery)
			}
			for k, v := range tt.wantParams {
				if got := f.Params.Get(k); got != v {
					t.Errorf("Params[%s] = %q, want %q", k, got, v)
				}
			}
			if tt.wantParams == nil && len(f.Params) != 0 {
				t.Errorf("Params = %v, want none", f.Params)
			}
		})
	}
}

func TestParseSearchQueryChannelRef(t *testing.T) {
	f := parseSearchQuery("golang channel:somecreator")
	if f.ChannelRef != "somecreator" {
		t.Errorf("ChannelRef = %q, want somecreator", f.ChannelRef)
	}
	if f.Params.Get("channelId") != "" {
		t.Error("non-UC channel value must not become channelId directly")
	}
}

func TestParseSearchQueryDateFlags(t *testing.T) {
	f := parseSearchQuery("x after:2024-01-01 before:2024-06-01")
	if !f.HasAfter || !f.HasBefore {
		t.Errorf("HasAfter/HasBefore = %v/%v, want true/true", f.HasAfter, f.HasBefore)
	}
}
