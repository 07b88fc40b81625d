package youtube

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Watch-page scraping support. The player response lives inside an
// inline <script>; the HTML is walked tree-wise rather than regexed so
// attribute noise and split markers don't break extraction.

// playerResponseFromHTML returns the ytInitialPlayerResponse JSON blob
// from a watch page, or nil when absent.
func playerResponseFromHTML(body []byte) []byte {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var blob []byte
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if blob != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "script" && n.FirstChild != nil {
			text := n.FirstChild.Data
			if idx := strings.Index(text, ytInitialPlayerResponseMarker); idx >= 0 {
				blob = extractJSON([]byte(text[idx+len(ytInitialPlayerResponseMarker):]))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return blob
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by
// tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	var prev byte
	for i, c := range b {
		if inStr {
			if c == '"' && prev != '\\' {
				inStr = false
			}
		} else {
			switch c {
			case '"':
				inStr = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return b[:i+1]
				}
			}
		}
		prev = c
	}
	return nil
}
