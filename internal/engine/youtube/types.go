package youtube

import "time"

// SourceType classifies what a user-supplied input resolves to.
type SourceType string

const (
	SourceVideo    SourceType = "video"
	SourcePlaylist SourceType = "playlist"
	SourceChannel  SourceType = "channel"
	SourceSearch   SourceType = "search"

	// Intermediate types produced by URL matching; collapsed to
	// SourceChannel (or SourceSearch on failure) by resolution.
	sourceHandle   SourceType = "handle"
	sourceCustom   SourceType = "custom"
	sourceUsername SourceType = "username"
)

// Identifier is a classified input: Value is a platform resource ID, or
// the query string for SourceSearch. Immutable once resolved.
type Identifier struct {
	RawInput string     `json:"raw_input"`
	Type     SourceType `json:"type"`
	Value    string     `json:"value"`
}

// TranscriptResult is a formatted transcript for one video.
type TranscriptResult struct {
	Language  string `json:"language"`
	Text      string `json:"text"`
	Generated bool   `json:"generated"`
}

// VideoRecord is one normalized video. Transcript is attached at most
// once, during the transcript stage; the record is never mutated after.
type VideoRecord struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	ChannelID       string            `json:"channel_id"`
	ChannelTitle    string            `json:"channel_title"`
	PublishedAt     time.Time         `json:"published_at"`
	DurationSeconds int               `json:"duration_seconds"`
	Tags            []string          `json:"tags,omitempty"`
	LiveStatus      string            `json:"live_status,omitempty"`
	DefaultLanguage string            `json:"default_language,omitempty"`
	DefaultAudioLng string            `json:"default_audio_language,omitempty"`
	DescriptionURLs []string          `json:"description_urls,omitempty"`
	Transcript      *TranscriptResult `json:"transcript,omitempty"`
}

// URL returns the canonical short link for the video.
func (v *VideoRecord) URL() string {
	if v.ID == "" {
		return "#"
	}
	return "https://youtu.be/" + v.ID
}

// ChannelURL returns the canonical channel link.
func (v *VideoRecord) ChannelURL() string {
	if v.ChannelID == "" {
		return "#"
	}
	return "https://www.youtube.com/channel/" + v.ChannelID
}

// --- Data API v3 response shapes ---

type apiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

type channelListResp struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistListResp struct {
	Items []struct {
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

type playlistItemsResp struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ContentDetails struct {
			VideoID          string `json:"videoId"`
			VideoPublishedAt string `json:"videoPublishedAt"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// playlistPage is the cached form of one playlistItems.list page.
type playlistPage struct {
	Items []playlistPageItem `json:"items"`
	Next  string             `json:"next"`
}

type playlistPageItem struct {
	VideoID     string    `json:"video_id"`
	PublishedAt time.Time `json:"published_at"`
}

type searchListResp struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type videoListResp struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title                string   `json:"title"`
		Description          string   `json:"description"`
		ChannelID            string   `json:"channelId"`
		ChannelTitle         string   `json:"channelTitle"`
		PublishedAt          string   `json:"publishedAt"`
		Tags                 []string `json:"tags"`
		LiveBroadcastContent string   `json:"liveBroadcastContent"`
		DefaultLanguage      string   `json:"defaultLanguage"`
		DefaultAudioLanguage string   `json:"defaultAudioLanguage"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}
