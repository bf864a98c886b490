package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/vadim/blinka/internal/config"
)

// Buckets used by the application
const (
	BucketStories         = "stories"
	BucketPostImages      = "post-images"
	BucketProfilePictures = "profile-pictures"
)

// S3Storage provides S3-compatible blob storage with public URLs
type S3Storage struct {
	client    *s3.Client
	publicURL string
}

// NewS3Storage creates a new S3 storage client
func NewS3Storage(cfg config.S3) *S3Storage {
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		UsePathStyle: true, // Required for MinIO
	})

	return &S3Storage{
		client:    client,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}
}

// UploadInput represents a blob to store
type UploadInput struct {
	Bucket      string
	Prefix      string // Optional key prefix, usually the owner's identity id
	Reader      io.Reader
	ContentType string
	Size        int64
	Filename    string
}

// UploadOutput represents a stored blob
type UploadOutput struct {
	Bucket     string
	Key        string
	URL        string
	Size       int64
	UploadedAt time.Time
}

// Upload stores a blob under a generated unique key and returns its public URL
func (s *S3Storage) Upload(ctx context.Context, in UploadInput) (*UploadOutput, error) {
	key := ObjectKey(in.Prefix, in.Filename, in.ContentType)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(in.Bucket),
		Key:           aws.String(key),
		Body:          in.Reader,
		ContentType:   aws.String(in.ContentType),
		ContentLength: aws.Int64(in.Size),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading to s3 bucket %s: %w", in.Bucket, err)
	}

	return &UploadOutput{
		Bucket:     in.Bucket,
		Key:        key,
		URL:        s.PublicURL(in.Bucket, key),
		Size:       in.Size,
		UploadedAt: time.Now(),
	}, nil
}

// Delete removes a blob
func (s *S3Storage) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting from s3: %w", err)
	}
	return nil
}

// PublicURL returns the public address of a stored blob
func (s *S3Storage) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, bucket, key)
}

// KeyFromURL extracts the object key from a public URL produced by PublicURL
func (s *S3Storage) KeyFromURL(bucket, url string) (string, bool) {
	prefix := s.PublicURL(bucket, "")
	if !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// ObjectKey builds a unique key: <prefix>/<unix-millis>-<uuid><ext>
func ObjectKey(prefix, filename, contentType string) string {
	ext := path.Ext(filename)
	if ext == "" {
		ext = extensionFromContentType(contentType)
	}
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString(), ext)
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func extensionFromContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	default:
		return ""
	}
}

// File is an uploaded file awaiting storage
type File struct {
	Reader      io.Reader
	ContentType string
	Size        int64
	Filename    string
}
