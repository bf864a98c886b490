package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyUpload      = errors.New("upload is empty")
	ErrTooLarge         = errors.New("upload exceeds size limit")
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// Kind classifies an upload for size limits
type Kind string

const (
	KindStoryMedia Kind = "story_media"
	KindStoryMusic Kind = "story_music"
	KindPostImage  Kind = "post_image"
	KindPostVideo  Kind = "post_video"
	KindPostMusic  Kind = "post_music"
	KindAvatar     Kind = "avatar"
)

const mb = 1 << 20

var limits = map[Kind]int64{
	KindStoryMedia: 50 * mb,
	KindStoryMusic: 10 * mb,
	KindPostImage:  5 * mb,
	KindPostVideo:  50 * mb,
	KindPostMusic:  10 * mb,
	KindAvatar:     5 * mb,
}

// Limit returns the maximum size in bytes for kind
func Limit(kind Kind) int64 {
	return limits[kind]
}

// CheckSize reports whether an upload of size bytes is allowed for kind
func CheckSize(kind Kind, size int64) error {
	if size <= 0 {
		return ErrEmptyUpload
	}
	limit, ok := limits[kind]
	if !ok {
		return fmt.Errorf("unknown upload kind %q", kind)
	}
	if size > limit {
		return fmt.Errorf("%w: %d bytes, max %dMB", ErrTooLarge, size, limit/mb)
	}
	return nil
}

// MediaKind returns "image", "video" or "audio" for a content type
func MediaKind(contentType string) (string, error) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image", nil
	case strings.HasPrefix(contentType, "video/"):
		return "video", nil
	case strings.HasPrefix(contentType, "audio/"):
		return "audio", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, contentType)
}
