package youtube

import (
	"math"
	"sort"
	"strings"

	"github.com/anatolykoptev/go_ingest/internal/engine"
)

// Timestamp-block formatting: group timed segments into fixed-duration
// windows rendered as "[HH:MM:SS] text…" lines.

// formatSegments renders segments. interval == 0 concatenates all text
// with single spaces and no timestamps. Otherwise segments are sorted by
// start time and grouped greedily: a new block begins whenever a
// segment's start is at least interval seconds past the current block's
// start. Output is identical for sorted and unsorted input.
func formatSegments(segments []segment, interval int) string {
	cleaned := make([]segment, 0, len(segments))
	for _, s := range segments {
		text := strings.Join(strings.Fields(s.Text), " ")
		if text == "" || math.IsNaN(s.Start) || s.Start < 0 {
			continue
		}
		s.Text = text
		cleaned = append(cleaned, s)
	}
	if len(cleaned) == 0 {
		return ""
	}

	sort.SliceStable(cleaned, func(i, j int) bool { return cleaned[i].Start < cleaned[j].Start })

	if interval == 0 {
		parts := make([]string, len(cleaned))
		for i, s := range cleaned {
			parts[i] = s.Text
		}
		return strings.Join(parts, " ")
	}

	var lines []string
	blockStart := cleaned[0].Start
	var blockTexts []string
	flush := func() {
		if len(blockTexts) == 0 {
			return
		}
		stamp := engine.FormatTimestamp(int(math.Floor(blockStart)))
		lines = append(lines, "["+stamp+"] "+strings.Join(blockTexts, " "))
		blockTexts = blockTexts[:0]
	}
	for _, s := range cleaned {
		if s.Start >= blockStart+float64(interval) {
			flush()
			blockStart = s.Start
		}
		blockTexts = append(blockTexts, s.Text)
	}
	flush()

	return strings.Join(lines, "\n")
}
