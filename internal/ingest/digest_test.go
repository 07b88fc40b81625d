package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/anatolykoptev/go_ingest/internal/engine"
	"github.com/anatolykoptev/go_ingest/internal/engine/youtube"
)

func sampleVideo() youtube.VideoRecord {
	return youtube.VideoRecord{
		ID:              "dQw4w9WgXcQ",
		Title:           "A Sample Video",
		Description:     "First line.\n\nSecond paragraph.",
		ChannelID:       "UCBR8-60-B28hp2BmDPdntcQ",
		ChannelTitle:    "Test Channel",
		PublishedAt:     time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		DurationSeconds: 330,
	}
}

func TestRenderDigestMetadata(t *testing.T) {
	engine.Init(engine.DefaultConfig())

	digest := RenderDigest([]youtube.VideoRecord{sampleVideo()}, true, true)

	for _, want := range []string{
		"Video Title: A Sample Video",
		"- Publication Date: 2024-03-01 12:30:00 (UTC)",
		"- Duration: 00:05:30",
		"- Tags: None",
		"- Video URL: <https://youtu.be/dQw4w9WgXcQ>",
		"- Channel Name: Test Channel",
		"- Channel URL: <https://www.youtube.com/channel/UCBR8-60-B28hp2BmDPdntcQ>",
		"Description:\nFirst line.",
	} {
		if !strings.Contains(digest, want) {
			t.Errorf("digest missing %q:\n%s", want, digest)
		}
	}
}

func TestRenderDigestTagsCapped(t *testing.T) {
	v := sampleVideo()
	v.Tags = []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10", "t11", "t12"}

	digest := RenderDigest([]youtube.VideoRecord{v}, false, false)
	if !strings.Contains(digest, "'t10' ... and 2 more") {
		t.Errorf("tags not capped:\n%s", digest)
	}
	if strings.Contains(digest, "t11") {
		t.Error("overflow tags should not be listed")
	}
}

func TestRenderDigestUnknownDate(t *testing.T) {
	v := sampleVideo()
	v.PublishedAt = time.Time{}

	digest := RenderDigest([]youtube.VideoRecord{v}, false, false)
	if !strings.Contains(digest, "- Publication Date: Unknown Date") {
		t.Errorf("missing unknown-date marker:\n%s", digest)
	}
}

func TestRenderDigestSections(t *testing.T) {
	v := sampleVideo()
	v.Transcript = &youtube.TranscriptResult{Language: "en", Text: "[00:00:00] Hello world"}

	t.Run("transcript included", func(t *testing.T) {
		digest := RenderDigest([]youtube.VideoRecord{v}, false, true)
		if !strings.Contains(digest, "Transcript (language en):\n[00:00:00] Hello world") {
			t.Errorf("missing transcript section:\n%s", digest)
		}
		if strings.Contains(digest, "Description:") {
			t.Error("description excluded but rendered")
		}
	})

	t.Run("transcript excluded", func(t *testing.T) {
		digest := RenderDigest([]youtube.VideoRecord{v}, true, false)
		if strings.Contains(digest, "Transcript") {
			t.Error("transcript included despite flag")
		}
		if !strings.Contains(digest, "Description:") {
			t.Error("description missing")
		}
	})
}

func TestRenderDigestJoinsVideos(t *testing.T) {
	v1 := sampleVideo()
	v2 := sampleVideo()
	v2.Title = "Second Video"

	digest := RenderDigest([]youtube.VideoRecord{v1, v2}, false, false)
	if strings.Count(digest, "Video Title:") != 2 {
		t.Errorf("expected two video blocks:\n%s", digest)
	}
	if !strings.Contains(digest, "\n\nVideo Title: Second Video") {
		t.Error("blocks should be separated by a blank line")
	}
}

func TestRenderDigestEmpty(t *testing.T) {
	if got := RenderDigest(nil, true, true); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
