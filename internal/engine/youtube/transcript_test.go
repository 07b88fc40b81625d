package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestBuildPreferences(t *testing.T) {
	tests := []struct {
		name       string
		audio      string
		def        string
		configured []string
		want       []string
	}{
		{
			name:       "defaults first then configured",
			audio:      "fr",
			def:        "de",
			configured: []string{"en", "es"},
			want:       []string{"fr", "de", "en", "es"},
		},
		{
			name:       "regional variants add base language",
			audio:      "pt-BR",
			def:        "",
			configured: []string{"en"},
			want:       []string{"pt-BR", "pt", "en"},
		},
		{
			name: "en appended as last resort",
			want: []string{"en"},
		},
		{
			name:       "no duplicates",
			audio:      "en",
			def:        "en",
			configured: []string{"en", "fr"},
			want:       []string{"en", "fr"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildPreferences(tt.audio, tt.def, tt.configured)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectTrack(t *testing.T) {
	manualFR := captionTrack{BaseURL: "fr-manual", LanguageCode: "fr"}
	asrFR := captionTrack{BaseURL: "fr-asr", LanguageCode: "fr", Kind: "asr"}
	asrEN := captionTrack{BaseURL: "en-asr", LanguageCode: "en", Kind: "asr"}
	manualPTBR := captionTrack{BaseURL: "ptbr-manual", LanguageCode: "pt-BR"}
	manualJA := captionTrack{BaseURL: "ja-manual", LanguageCode: "ja"}

	tests := []struct {
		name   string
		tracks []captionTrack
		prefs  []string
		want   string
	}{
		{"manual beats generated at same rank", []captionTrack{asrFR, manualFR}, []string{"fr"}, "fr-manual"},
		{"higher rank generated beats lower rank manual", []captionTrack{asrFR, asrEN}, []string{"fr", "en"}, "fr-asr"},
		{"base language match", []captionTrack{manualPTBR}, []string{"pt"}, "ptbr-manual"},
		{"any manual when no rank matches", []captionTrack{asrFR, manualJA}, []string{"ko"}, "ja-manual"},
		{"any generated last", []captionTrack{asrFR}, []string{"ko"}, "fr-asr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := selectTrack(tt.tracks, tt.prefs)
			if !ok {
				t.Fatal("expected a track")
			}
			if got.BaseURL != tt.want {
				t.Errorf("selected %q, want %q", got.BaseURL, tt.want)
			}
		})
	}

	if _, ok := selectTrack(nil, []string{"en"}); ok {
		t.Error("no tracks should select nothing")
	}
}

func TestTracksFromPlayerResp(t *testing.T) {
	t.Run("playable without captions is disabled", func(t *testing.T) {
		var resp innertubePlayerResp
		if _, err := tracksFromPlayerResp(resp); err != errTranscriptsDisabled {
			t.Errorf("got %v, want errTranscriptsDisabled", err)
		}
	})

	t.Run("blocked player is transient", func(t *testing.T) {
		var resp innertubePlayerResp
		resp.PlayabilityStatus = &struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
		}{Status: "LOGIN_REQUIRED"}
		_, err := tracksFromPlayerResp(resp)
		if err == nil || err == errTranscriptsDisabled || err == errNoTranscript {
			t.Errorf("got %v, want a transient error", err)
		}
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1};var x=2`, `{"a":1}`},
		{`{"a":{"b":"}"}} trailing`, `{"a":{"b":"}"}}`},
		{`{"esc":"\""}`, `{"esc":"\""}`},
		{`not json`, ""},
		{`{"unterminated":`, ""},
	}
	for _, tt := range tests {
		got := string(extractJSON([]byte(tt.in)))
		if got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlayerResponseFromHTML(t *testing.T) {
	page := `<html><head><script>var ytInitialPlayerResponse = {"captions":{"k":1}};var other=2;</script></head><body></body></html>`
	got := playerResponseFromHTML([]byte(page))
	if string(got) != `{"captions":{"k":1}}` {
		t.Errorf("got %q", got)
	}

	if playerResponseFromHTML([]byte("<html><body>nothing</body></html>")) != nil {
		t.Error("missing marker should yield nil")
	}
}

const timedtextXML = `<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="0" dur="5">Hello</text>
  <text start="5" dur="5">world</text>
  <text start="10" dur="5">this is</text>
  <text start="15" dur="5">a test</text>
  <text start="20" dur="5">with timestamps</text>
</transcript>`

// transcriptTestServer serves both the player endpoint and timedtext.
func transcriptTestServer(t *testing.T, playerCalls *atomic.Int64) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/player":
			playerCalls.Add(1)
			fmt.Fprintf(w, `{"playabilityStatus":{"status":"OK"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":%q,"languageCode":"en"}]}}}`,
				srv.URL+"/timedtext")
		case "/timedtext":
			w.Write([]byte(timedtextXML)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	return srv
}

func TestGetTranscriptEndToEnd(t *testing.T) {
	initTestEngine(t, "")

	var playerCalls atomic.Int64
	srv := transcriptTestServer(t, &playerCalls)
	defer srv.Close()

	prev := innertubeURL
	innertubeURL = srv.URL + "/player"
	t.Cleanup(func() { innertubeURL = prev })

	m := NewManager()
	result, ok := m.GetTranscript(context.Background(), "dQw4w9WgXcQ", "", "", 10)
	if !ok {
		t.Fatal("expected a transcript")
	}
	if result.Language != "en" {
		t.Errorf("language = %q, want en", result.Language)
	}
	want := "[00:00:00] Hello world\n[00:00:10] this is a test\n[00:00:20] with timestamps"
	if result.Text != want {
		t.Errorf("text:\n%s\nwant:\n%s", result.Text, want)
	}

	// Second call for the same (video, interval) must come from cache.
	if _, ok := m.GetTranscript(context.Background(), "dQw4w9WgXcQ", "", "", 10); !ok {
		t.Fatal("expected cached transcript")
	}
	if playerCalls.Load() != 1 {
		t.Errorf("player calls = %d, want 1", playerCalls.Load())
	}
}

// blockingTranscriptServer is transcriptTestServer with a gate: every
// /player response signals on arrived, then waits for release to close.
func blockingTranscriptServer(t *testing.T, playerCalls *atomic.Int64, arrived chan<- struct{}, release <-chan struct{}) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/player":
			playerCalls.Add(1)
			arrived <- struct{}{}
			<-release
			fmt.Fprintf(w, `{"playabilityStatus":{"status":"OK"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":%q,"languageCode":"en"}]}}}`,
				srv.URL+"/timedtext")
		case "/timedtext":
			w.Write([]byte(timedtextXML)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	return srv
}

func TestGetTranscriptConcurrentCallsShareOneFetch(t *testing.T) {
	initTestEngine(t, "")

	var playerCalls atomic.Int64
	arrived := make(chan struct{}, 4)
	release := make(chan struct{})
	srv := blockingTranscriptServer(t, &playerCalls, arrived, release)
	defer srv.Close()

	prev := innertubeURL
	innertubeURL = srv.URL + "/player"
	t.Cleanup(func() { innertubeURL = prev })

	m := NewManager()
	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			r, ok := m.GetTranscript(context.Background(), "dQw4w9WgXcQ", "", "", 10)
			if !ok {
				results <- ""
				return
			}
			results <- r.Text
		}()
	}

	<-arrived // the flight owner reached the upstream
	time.Sleep(100 * time.Millisecond)
	close(release)

	want := "[00:00:00] Hello world\n[00:00:10] this is a test\n[00:00:20] with timestamps"
	for i := 0; i < 2; i++ {
		if got := <-results; got != want {
			t.Errorf("caller %d text = %q, want %q", i, got, want)
		}
	}
	if playerCalls.Load() != 1 {
		t.Errorf("player calls = %d, want 1 (concurrent callers share the fetch)", playerCalls.Load())
	}
}

func TestGetTranscriptJoinedCallerKeepsIntervalCacheClean(t *testing.T) {
	initTestEngine(t, "")

	var playerCalls atomic.Int64
	arrived := make(chan struct{}, 4)
	release := make(chan struct{})
	srv := blockingTranscriptServer(t, &playerCalls, arrived, release)
	defer srv.Close()

	prev := innertubeURL
	innertubeURL = srv.URL + "/player"
	t.Cleanup(func() { innertubeURL = prev })

	m := NewManager()

	ownerDone := make(chan string, 1)
	go func() {
		r, _ := m.GetTranscript(context.Background(), "dQw4w9WgXcQ", "", "", 0)
		ownerDone <- r.Text
	}()
	<-arrived // interval-0 fetch is in flight

	joinerDone := make(chan string, 1)
	go func() {
		r, _ := m.GetTranscript(context.Background(), "dQw4w9WgXcQ", "", "", 10)
		joinerDone <- r.Text
	}()
	time.Sleep(100 * time.Millisecond) // let the joiner attach to the flight
	close(release)

	plain := "Hello world this is a test with timestamps"
	if got := <-ownerDone; got != plain {
		t.Errorf("owner text = %q, want %q", got, plain)
	}
	// The joiner shares the owner's interval-0 result this one time.
	if got := <-joinerDone; got != plain {
		t.Errorf("joiner text = %q, want the shared interval-0 text", got)
	}
	if playerCalls.Load() != 1 {
		t.Fatalf("player calls = %d, want 1", playerCalls.Load())
	}

	// The shared result must not be filed under the joiner's interval: a
	// fresh interval-10 call re-fetches and comes back timestamped.
	r, ok := m.GetTranscript(context.Background(), "dQw4w9WgXcQ", "", "", 10)
	if !ok {
		t.Fatal("expected a transcript")
	}
	if !strings.HasPrefix(r.Text, "[00:00:00] ") {
		t.Errorf("interval-10 text = %q, want timestamp blocks", r.Text)
	}
	if playerCalls.Load() != 2 {
		t.Errorf("player calls = %d, want 2 (interval-10 result fetched fresh)", playerCalls.Load())
	}
}

func TestGetTranscriptPermanentNegativeCached(t *testing.T) {
	initTestEngine(t, "")

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		// Playable video, no captions object: transcripts disabled.
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"playabilityStatus": map[string]any{"status": "OK"},
		})
	}))
	defer srv.Close()

	prev := innertubeURL
	innertubeURL = srv.URL
	t.Cleanup(func() { innertubeURL = prev })

	m := NewManager()
	if _, ok := m.GetTranscript(context.Background(), "noCaptions1", "", "", 10); ok {
		t.Fatal("expected no transcript")
	}
	// A different interval still hits the video-level negative cache.
	if _, ok := m.GetTranscript(context.Background(), "noCaptions1", "", "", 30); ok {
		t.Fatal("expected no transcript")
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1 (negative result cached by video)", calls.Load())
	}
}

func TestGetTranscriptDisabledAndEmptyID(t *testing.T) {
	initTestEngine(t, "")
	m := NewManager()

	if _, ok := m.GetTranscript(context.Background(), "", "", "", 10); ok {
		t.Error("empty video ID must yield nothing")
	}
}
