package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vadim/blinka/internal/domain/story/entity"
	"github.com/vadim/blinka/internal/storage"
)

// Repository defines the interface for story storage
type Repository interface {
	Create(ctx context.Context, s *entity.Story) error
	ListActive(ctx context.Context, now time.Time) ([]entity.Story, error)
	GetByID(ctx context.Context, id string) (*entity.Story, error)
	UpdateCaption(ctx context.Context, id, caption string) error
	Delete(ctx context.Context, id string) error
}

// BlobStore stores and removes story media
type BlobStore interface {
	Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadOutput, error)
	Delete(ctx context.Context, bucket, key string) error
	KeyFromURL(bucket, url string) (string, bool)
}

// Service handles story business logic
type Service struct {
	repo   Repository
	blobs  BlobStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new story service
func New(repo Repository, blobs BlobStore, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		blobs:  blobs,
		logger: logger.With("component", "story_service"),
		now:    time.Now,
	}
}

// CreateInput represents input for posting a story
type CreateInput struct {
	AuthorID string
	Media    storage.File
	Music    *storage.File
	Caption  string
}

// Create validates and uploads the media, then records a story that expires in 24 hours.
// Nothing is uploaded when validation fails.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Story, error) {
	if in.Media.Reader == nil || in.Media.Size == 0 {
		return nil, entity.ErrMediaRequired
	}
	mediaType, err := storage.MediaKind(in.Media.ContentType)
	if err != nil || (mediaType != "image" && mediaType != "video") {
		return nil, entity.ErrInvalidMedia
	}
	if err := storage.CheckSize(storage.KindStoryMedia, in.Media.Size); err != nil {
		return nil, err
	}
	if in.Music != nil {
		if kind, err := storage.MediaKind(in.Music.ContentType); err != nil || kind != "audio" {
			return nil, entity.ErrInvalidMusic
		}
		if err := storage.CheckSize(storage.KindStoryMusic, in.Music.Size); err != nil {
			return nil, err
		}
	}
	caption, err := validateCaption(in.Caption)
	if err != nil {
		return nil, err
	}

	media, err := s.upload(ctx, in.AuthorID, in.Media)
	if err != nil {
		return nil, fmt.Errorf("uploading story media: %w", err)
	}

	story := &entity.Story{
		AuthorID:  in.AuthorID,
		MediaURL:  media.URL,
		MediaType: mediaType,
		Caption:   caption,
	}

	if in.Music != nil {
		music, err := s.upload(ctx, in.AuthorID+"/music", *in.Music)
		if err != nil {
			s.removeBlob(ctx, media.URL)
			return nil, fmt.Errorf("uploading story music: %w", err)
		}
		story.MusicURL = music.URL
	}

	story.ExpiresAt = s.now().Add(entity.TTL)
	if err := s.repo.Create(ctx, story); err != nil {
		s.removeBlob(ctx, story.MediaURL)
		s.removeBlob(ctx, story.MusicURL)
		return nil, fmt.Errorf("creating story: %w", err)
	}

	return story, nil
}

// ListActive returns every story that has not expired, newest first
func (s *Service) ListActive(ctx context.Context) ([]entity.Story, error) {
	now := s.now()
	stories, err := s.repo.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("listing stories: %w", err)
	}
	return entity.FilterActive(stories, now), nil
}

// UpdateCaption changes the caption of the author's own story
func (s *Service) UpdateCaption(ctx context.Context, authorID, id, caption string) (*entity.Story, error) {
	story, err := s.owned(ctx, authorID, id)
	if err != nil {
		return nil, err
	}
	caption, err = validateCaption(caption)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateCaption(ctx, id, caption); err != nil {
		return nil, fmt.Errorf("updating story: %w", err)
	}
	story.Caption = caption
	return story, nil
}

// Delete removes the author's own story and its media
func (s *Service) Delete(ctx context.Context, authorID, id string) error {
	story, err := s.owned(ctx, authorID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting story: %w", err)
	}

	s.removeBlob(ctx, story.MediaURL)
	s.removeBlob(ctx, story.MusicURL)
	return nil
}

func (s *Service) owned(ctx context.Context, authorID, id string) (*entity.Story, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entity.ErrStoryNotFound
	}
	story, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting story: %w", err)
	}
	if story == nil {
		return nil, entity.ErrStoryNotFound
	}
	if story.AuthorID != authorID {
		return nil, entity.ErrNotOwner
	}
	return story, nil
}

func (s *Service) upload(ctx context.Context, prefix string, f storage.File) (*storage.UploadOutput, error) {
	return s.blobs.Upload(ctx, storage.UploadInput{
		Bucket:      storage.BucketStories,
		Prefix:      prefix,
		Reader:      f.Reader,
		ContentType: f.ContentType,
		Size:        f.Size,
		Filename:    f.Filename,
	})
}

// removeBlob deletes stored media; failures only leave an orphaned object and are logged
func (s *Service) removeBlob(ctx context.Context, url string) {
	if url == "" {
		return
	}
	key, ok := s.blobs.KeyFromURL(storage.BucketStories, url)
	if !ok {
		return
	}
	if err := s.blobs.Delete(ctx, storage.BucketStories, key); err != nil {
		s.logger.Warn("failed to remove story media", "key", key, "error", err)
	}
}

func validateCaption(caption string) (string, error) {
	caption = strings.TrimSpace(caption)
	if utf8.RuneCountInString(caption) > entity.MaxCaptionLength {
		return "", entity.ErrCaptionTooLong
	}
	return caption, nil
}
