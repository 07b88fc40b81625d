package ingest

import (
	"fmt"
	"html"
	"strings"

	"github.com/anatolykoptev/go_ingest/internal/engine"
	"github.com/anatolykoptev/go_ingest/internal/engine/youtube"
)

// Text digest rendering. Each video becomes a titled block of metadata
// plus optional description and transcript sections; blocks are joined
// by blank lines.

const maxDigestTags = 10

// RenderDigest renders the plain-text digest for a video set.
func RenderDigest(videos []youtube.VideoRecord, includeDescription, includeTranscript bool) string {
	blocks := make([]string, 0, len(videos))
	for i := range videos {
		blocks = append(blocks, renderVideo(&videos[i], includeDescription, includeTranscript))
	}
	return strings.Join(blocks, "\n\n")
}

func renderVideo(v *youtube.VideoRecord, includeDescription, includeTranscript bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Video Title: %s\n", engine.CleanTitle(v.Title))

	b.WriteString("\nMetadata:\n")
	fmt.Fprintf(&b, "- Publication Date: %s\n", formatPublished(v))
	fmt.Fprintf(&b, "- Duration: %s\n", engine.FormatTimestamp(v.DurationSeconds))
	fmt.Fprintf(&b, "- Tags: %s\n", formatTags(v.Tags))
	fmt.Fprintf(&b, "- Video URL: <%s>\n", html.EscapeString(v.URL()))
	fmt.Fprintf(&b, "- Channel Name: %s\n", html.EscapeString(v.ChannelTitle))
	fmt.Fprintf(&b, "- Channel URL: <%s>", html.EscapeString(v.ChannelURL()))

	if includeDescription {
		if desc := engine.CleanDescription(v.Description); desc != "" {
			b.WriteString("\n\nDescription:\n")
			b.WriteString(desc)
		}
	}

	if includeTranscript && v.Transcript != nil && v.Transcript.Text != "" {
		fmt.Fprintf(&b, "\n\nTranscript (language %s):\n", v.Transcript.Language)
		b.WriteString(v.Transcript.Text)
	}

	return b.String()
}

func formatPublished(v *youtube.VideoRecord) string {
	if v.PublishedAt.IsZero() {
		return "Unknown Date"
	}
	return v.PublishedAt.UTC().Format("2006-01-02 15:04:05") + " (UTC)"
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return "None"
	}
	shown := tags
	extra := 0
	if len(tags) > maxDigestTags {
		shown = tags[:maxDigestTags]
		extra = len(tags) - maxDigestTags
	}
	quoted := make([]string, len(shown))
	for i, t := range shown {
		quoted[i] = "'" + t + "'"
	}
	out := strings.Join(quoted, ", ")
	if extra > 0 {
		out += fmt.Sprintf(" ... and %d more", extra)
	}
	return out
}
