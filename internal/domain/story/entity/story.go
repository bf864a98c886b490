package entity

import (
	"sort"
	"time"
)

// TTL is how long a story stays visible after creation
const TTL = 24 * time.Hour

// MaxCaptionLength is the maximum caption length in characters
const MaxCaptionLength = 200

// Story is a short-lived "Blink" shown to everyone until it expires
type Story struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	MediaURL  string    `json:"media_url"`
	MediaType string    `json:"media_type"` // image or video
	MusicURL  string    `json:"music_url,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Author *Author `json:"author,omitempty"`
}

// Author is the summary of a story's creator
type Author struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Visible reports whether the story is still shown at now
func (s Story) Visible(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// FilterActive returns the stories visible at now, newest first.
// The input slice is not modified.
func FilterActive(stories []Story, now time.Time) []Story {
	active := make([]Story, 0, len(stories))
	for _, s := range stories {
		if s.Visible(now) {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active
}
