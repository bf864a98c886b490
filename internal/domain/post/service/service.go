package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	notificationentity "github.com/vadim/blinka/internal/domain/notification/entity"
	notificationservice "github.com/vadim/blinka/internal/domain/notification/service"
	"github.com/vadim/blinka/internal/domain/post/entity"
	"github.com/vadim/blinka/internal/storage"
)

// Repository defines the interface for post storage
type Repository interface {
	Create(ctx context.Context, p *entity.Post) error
	GetByID(ctx context.Context, viewerID, id string) (*entity.Post, error)
	ListByAuthor(ctx context.Context, viewerID, authorID string) ([]entity.Post, error)
	Feed(ctx context.Context, viewerID string, limit int) ([]entity.Post, error)
	Delete(ctx context.Context, authorID, id string) error
	Like(ctx context.Context, actorID, postID string) error
	Unlike(ctx context.Context, actorID, postID string) error
}

// BlobStore stores and removes post media
type BlobStore interface {
	Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadOutput, error)
	Delete(ctx context.Context, bucket, key string) error
	KeyFromURL(bucket, url string) (string, bool)
}

// Notifier records notifications for post authors
type Notifier interface {
	Create(ctx context.Context, in notificationservice.CreateInput) (string, error)
}

// Service handles post business logic
type Service struct {
	repo     Repository
	blobs    BlobStore
	notifier Notifier
	logger   *slog.Logger
}

// New creates a new post service
func New(repo Repository, blobs BlobStore, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		blobs:    blobs,
		notifier: notifier,
		logger:   logger.With("component", "post_service"),
	}
}

// CreateInput represents input for publishing a post.
// Every attachment is optional but a post needs media or a caption.
type CreateInput struct {
	AuthorID string
	Image    *storage.File
	Video    *storage.File
	Music    *storage.File
	Caption  string
}

type attachment struct {
	file    *storage.File
	kind    storage.Kind
	media   string
	invalid error
	target  *string
}

// Create validates every attachment, uploads them and records the post
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Post, error) {
	caption, err := entity.ValidateCaption(in.Caption)
	if err != nil {
		return nil, err
	}

	post := &entity.Post{AuthorID: in.AuthorID, Caption: caption}
	attachments := []attachment{
		{in.Image, storage.KindPostImage, "image", entity.ErrInvalidImage, &post.ImageURL},
		{in.Video, storage.KindPostVideo, "video", entity.ErrInvalidVideo, &post.VideoURL},
		{in.Music, storage.KindPostMusic, "audio", entity.ErrInvalidMusic, &post.MusicURL},
	}

	if in.Image == nil && in.Video == nil && caption == "" {
		return nil, entity.ErrEmptyPost
	}

	for _, a := range attachments {
		if a.file == nil {
			continue
		}
		if kind, err := storage.MediaKind(a.file.ContentType); err != nil || kind != a.media {
			return nil, a.invalid
		}
		if err := storage.CheckSize(a.kind, a.file.Size); err != nil {
			return nil, err
		}
	}

	for _, a := range attachments {
		if a.file == nil {
			continue
		}
		out, err := s.blobs.Upload(ctx, storage.UploadInput{
			Bucket:      storage.BucketPostImages,
			Prefix:      in.AuthorID,
			Reader:      a.file.Reader,
			ContentType: a.file.ContentType,
			Size:        a.file.Size,
			Filename:    a.file.Filename,
		})
		if err != nil {
			s.removeMedia(ctx, post)
			return nil, fmt.Errorf("uploading post %s: %w", a.media, err)
		}
		*a.target = out.URL
	}

	if err := s.repo.Create(ctx, post); err != nil {
		s.removeMedia(ctx, post)
		return nil, fmt.Errorf("creating post: %w", err)
	}

	return post, nil
}

// Get returns a single post as seen by viewer
func (s *Service) Get(ctx context.Context, viewerID, id string) (*entity.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entity.ErrPostNotFound
	}
	post, err := s.repo.GetByID(ctx, viewerID, id)
	if err != nil {
		return nil, fmt.Errorf("getting post: %w", err)
	}
	if post == nil {
		return nil, entity.ErrPostNotFound
	}
	return post, nil
}

// ListByAuthor returns an author's posts, newest first
func (s *Service) ListByAuthor(ctx context.Context, viewerID, authorID string) ([]entity.Post, error) {
	if _, err := uuid.Parse(authorID); err != nil {
		return []entity.Post{}, nil
	}
	posts, err := s.repo.ListByAuthor(ctx, viewerID, authorID)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return posts, nil
}

// Feed returns the newest posts of followed identities and the viewer's own
func (s *Service) Feed(ctx context.Context, viewerID string) ([]entity.Post, error) {
	posts, err := s.repo.Feed(ctx, viewerID, entity.FeedLimit)
	if err != nil {
		return nil, fmt.Errorf("loading feed: %w", err)
	}
	return posts, nil
}

// Like adds actor's like to a post. Liking one's own post never notifies.
func (s *Service) Like(ctx context.Context, actorID, postID string) error {
	post, err := s.Get(ctx, actorID, postID)
	if err != nil {
		return err
	}
	if err := s.repo.Like(ctx, actorID, postID); err != nil {
		if errors.Is(err, entity.ErrAlreadyLiked) {
			return err
		}
		return fmt.Errorf("liking post: %w", err)
	}

	if post.AuthorID == actorID {
		return nil
	}
	// The like is stored; a lost notification is only logged
	if _, err := s.notifier.Create(ctx, notificationservice.CreateInput{
		RecipientID: post.AuthorID,
		Type:        notificationentity.TypeLike,
		ActorID:     actorID,
		PostID:      postID,
	}); err != nil {
		s.logger.Error("failed to notify post author", "post_id", postID, "error", err)
	}
	return nil
}

// Unlike removes actor's like from a post
func (s *Service) Unlike(ctx context.Context, actorID, postID string) error {
	if _, err := uuid.Parse(postID); err != nil {
		return entity.ErrPostNotFound
	}
	if err := s.repo.Unlike(ctx, actorID, postID); err != nil {
		if errors.Is(err, entity.ErrNotLiked) {
			return err
		}
		return fmt.Errorf("unliking post: %w", err)
	}
	return nil
}

// Delete removes the author's own post and its media
func (s *Service) Delete(ctx context.Context, authorID, id string) error {
	post, err := s.Get(ctx, authorID, id)
	if err != nil {
		return err
	}
	if post.AuthorID != authorID {
		return entity.ErrNotOwner
	}

	if err := s.repo.Delete(ctx, authorID, id); err != nil {
		if errors.Is(err, entity.ErrPostNotFound) {
			return err
		}
		return fmt.Errorf("deleting post: %w", err)
	}

	s.removeMedia(ctx, post)
	return nil
}

func (s *Service) removeMedia(ctx context.Context, p *entity.Post) {
	for _, url := range []string{p.ImageURL, p.VideoURL, p.MusicURL} {
		if url == "" {
			continue
		}
		key, ok := s.blobs.KeyFromURL(storage.BucketPostImages, url)
		if !ok {
			continue
		}
		if err := s.blobs.Delete(ctx, storage.BucketPostImages, key); err != nil {
			s.logger.Warn("failed to remove post media", "key", key, "error", err)
		}
	}
}
