package storage

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckSize(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		size    int64
		wantErr error
	}{
		{"story media at limit", KindStoryMedia, 50 * mb, nil},
		{"story media over limit", KindStoryMedia, 50*mb + 1, ErrTooLarge},
		{"music over limit", KindStoryMusic, 11 * mb, ErrTooLarge},
		{"avatar within limit", KindAvatar, 4 * mb, nil},
		{"avatar over limit", KindAvatar, 6 * mb, ErrTooLarge},
		{"post image over limit", KindPostImage, 6 * mb, ErrTooLarge},
		{"post video", KindPostVideo, 40 * mb, nil},
		{"post music", KindPostMusic, 10 * mb, nil},
		{"empty", KindPostImage, 0, ErrEmptyUpload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSize(tt.kind, tt.size)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("CheckSize() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckSize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMediaKind(t *testing.T) {
	for ct, want := range map[string]string{
		"image/png":  "image",
		"video/mp4":  "video",
		"audio/mpeg": "audio",
	} {
		got, err := MediaKind(ct)
		if err != nil || got != want {
			t.Errorf("MediaKind(%q) = %q, %v; want %q", ct, got, err, want)
		}
	}

	if _, err := MediaKind("application/pdf"); !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("MediaKind(pdf) error = %v, want ErrUnsupportedMedia", err)
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("user-1", "", "image/png")
	if !strings.HasPrefix(key, "user-1/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("ObjectKey() = %q", key)
	}

	if key == ObjectKey("user-1", "", "image/png") {
		t.Fatal("ObjectKey() should be unique")
	}

	if got := ObjectKey("", "clip.mov", "video/mp4"); strings.Contains(got, "/") || !strings.HasSuffix(got, ".mov") {
		t.Fatalf("ObjectKey() without prefix = %q", got)
	}
}

func TestPublicURL(t *testing.T) {
	s := &S3Storage{publicURL: "http://cdn.local"}
	if got := s.PublicURL(BucketStories, "a/b.png"); got != "http://cdn.local/stories/a/b.png" {
		t.Fatalf("PublicURL() = %q", got)
	}
}

func TestKeyFromURL(t *testing.T) {
	s := &S3Storage{publicURL: "http://cdn.local"}

	key, ok := s.KeyFromURL(BucketStories, "http://cdn.local/stories/u1/123.png")
	if !ok || key != "u1/123.png" {
		t.Fatalf("KeyFromURL() = %q, %v", key, ok)
	}
	if _, ok := s.KeyFromURL(BucketStories, "http://elsewhere/stories/x.png"); ok {
		t.Fatal("foreign URL must not yield a key")
	}
	if _, ok := s.KeyFromURL(BucketPostImages, "http://cdn.local/stories/x.png"); ok {
		t.Fatal("URL from another bucket must not yield a key")
	}
}
