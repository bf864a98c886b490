package entity

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxCaptionLength is the maximum post caption length in characters
const MaxCaptionLength = 2200

// FeedLimit is the number of posts returned by the home feed
const FeedLimit = 50

// Post is a permanent publication on an author's profile
type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	ImageURL      string    `json:"image_url,omitempty"`
	VideoURL      string    `json:"video_url,omitempty"`
	MusicURL      string    `json:"music_url,omitempty"`
	Caption       string    `json:"caption,omitempty"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	LikedByViewer bool      `json:"liked_by_viewer"`
	CreatedAt     time.Time `json:"created_at"`

	Author *Author `json:"author,omitempty"`
}

// Author is the summary of a post's creator
type Author struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// HasMedia reports whether the post carries an image or a video
func (p Post) HasMedia() bool {
	return p.ImageURL != "" || p.VideoURL != ""
}

// ValidateCaption trims a caption and checks its length
func ValidateCaption(caption string) (string, error) {
	caption = strings.TrimSpace(caption)
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return "", ErrCaptionTooLong
	}
	return caption, nil
}
