package models

import (
	"time"
)

// Platform identifies the platform a content item was published on.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformTwitch    Platform = "twitch"
	PlatformX         Platform = "x"
	PlatformFacebook  Platform = "facebook"
)

// ContentType identifies the format of a content item.
type ContentType string

const (
	ContentTypeVideo      ContentType = "video"
	ContentTypeShort      ContentType = "short"
	ContentTypeClip       ContentType = "clip"
	ContentTypeLivestream ContentType = "livestream"
	ContentTypePost       ContentType = "post"
	ContentTypeImage      ContentType = "image"
)

// MetricsSnapshot is a point-in-time copy of a content item's raw platform
// counters, maintained by the catalog's platform sync.
type MetricsSnapshot struct {
	Views       int64     `json:"views"`
	Engagements int64     `json:"engagements"`
	Shares      int64     `json:"shares"`
	Likes       int64     `json:"likes"`
	Comments    int64     `json:"comments"`
	CapturedAt  time.Time `json:"captured_at"`
}

// EffectiveEngagements returns the engagements counter, falling back to
// likes + comments + shares for platforms that do not report a combined
// engagement figure.
func (m MetricsSnapshot) EffectiveEngagements() int64 {
	if m.Engagements > 0 {
		return m.Engagements
	}
	return m.Likes + m.Comments + m.Shares
}

// ContentNode is a content item as the catalog knows it. The catalog owns
// these rows; this service only reads them.
type ContentNode struct {
	ID          string          `json:"id"`
	Platform    Platform        `json:"platform"`
	ContentType ContentType     `json:"content_type"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Metrics     MetricsSnapshot `json:"metrics"`
	PublishedAt time.Time       `json:"published_at"`
}
