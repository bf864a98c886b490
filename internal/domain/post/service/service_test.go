package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	notificationentity "github.com/vadim/blinka/internal/domain/notification/entity"
	notificationservice "github.com/vadim/blinka/internal/domain/notification/service"
	"github.com/vadim/blinka/internal/domain/post/entity"
	"github.com/vadim/blinka/internal/storage"
)

type memoryPosts struct {
	mu            sync.Mutex
	posts         map[string]*entity.Post
	likes         map[string]bool
	follows       map[string][]string
	postsCount    map[string]int
	clock         time.Time
}

func newMemoryPosts() *memoryPosts {
	return &memoryPosts{
		posts:      map[string]*entity.Post{},
		likes:      map[string]bool{},
		follows:    map[string][]string{},
		postsCount: map[string]int{},
		clock:      time.Now(),
	}
}

func (m *memoryPosts) Create(_ context.Context, p *entity.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	p.ID = uuid.NewString()
	p.CreatedAt = m.clock
	cp := *p
	m.posts[p.ID] = &cp
	m.postsCount[p.AuthorID]++
	return nil
}

func (m *memoryPosts) view(viewerID string, p *entity.Post) entity.Post {
	cp := *p
	cp.LikedByViewer = m.likes[viewerID+"/"+p.ID]
	return cp
}

func (m *memoryPosts) GetByID(_ context.Context, viewerID, id string) (*entity.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, nil
	}
	v := m.view(viewerID, p)
	return &v, nil
}

func (m *memoryPosts) sorted(viewerID string, keep func(*entity.Post) bool) []entity.Post {
	out := []entity.Post{}
	for _, p := range m.posts {
		if keep(p) {
			out = append(out, m.view(viewerID, p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memoryPosts) ListByAuthor(_ context.Context, viewerID, authorID string) ([]entity.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(viewerID, func(p *entity.Post) bool { return p.AuthorID == authorID }), nil
}

func (m *memoryPosts) Feed(_ context.Context, viewerID string, limit int) ([]entity.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	visible := map[string]bool{viewerID: true}
	for _, id := range m.follows[viewerID] {
		visible[id] = true
	}
	out := m.sorted(viewerID, func(p *entity.Post) bool { return visible[p.AuthorID] })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryPosts) Delete(_ context.Context, authorID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.AuthorID != authorID {
		return entity.ErrPostNotFound
	}
	delete(m.posts, id)
	m.postsCount[authorID]--
	return nil
}

func (m *memoryPosts) Like(_ context.Context, actorID, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := actorID + "/" + postID
	if m.likes[key] {
		return entity.ErrAlreadyLiked
	}
	m.likes[key] = true
	p := m.posts[postID]
	p.LikesCount++
	return nil
}

func (m *memoryPosts) Unlike(_ context.Context, actorID, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := actorID + "/" + postID
	if !m.likes[key] {
		return entity.ErrNotLiked
	}
	delete(m.likes, key)
	m.posts[postID].LikesCount--
	return nil
}

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string]bool
	uploads int
}

func (b *memoryBlobs) Upload(_ context.Context, in storage.UploadInput) (*storage.UploadOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads++
	key := storage.ObjectKey(in.Prefix, in.Filename, in.ContentType)
	b.objects[key] = true
	return &storage.UploadOutput{Bucket: in.Bucket, Key: key, URL: "http://cdn/" + in.Bucket + "/" + key}, nil
}

func (b *memoryBlobs) Delete(_ context.Context, _, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memoryBlobs) KeyFromURL(bucket, url string) (string, bool) {
	prefix := "http://cdn/" + bucket + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notificationservice.CreateInput
	err  error
}

func (n *recordingNotifier) Create(_ context.Context, in notificationservice.CreateInput) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return "", n.err
	}
	n.sent = append(n.sent, in)
	return uuid.NewString(), nil
}

func setup(t *testing.T) (*Service, *memoryPosts, *memoryBlobs) {
	svc, repo, blobs, _ := setupWithNotifier(t)
	return svc, repo, blobs
}

func setupWithNotifier(t *testing.T) (*Service, *memoryPosts, *memoryBlobs, *recordingNotifier) {
	t.Helper()
	repo := newMemoryPosts()
	blobs := &memoryBlobs{objects: map[string]bool{}}
	notifier := &recordingNotifier{}
	return New(repo, blobs, notifier, slog.New(slog.NewTextHandler(io.Discard, nil))), repo, blobs, notifier
}

func upload(contentType string, size int64) *storage.File {
	return &storage.File{Reader: strings.NewReader("x"), ContentType: contentType, Size: size, Filename: "f"}
}

func TestCreatePost(t *testing.T) {
	svc, repo, blobs := setup(t)
	ctx := context.Background()

	post, err := svc.Create(ctx, CreateInput{
		AuthorID: "u1",
		Image:    upload("image/jpeg", 1<<20),
		Music:    upload("audio/mpeg", 1<<20),
		Caption:  " beach ",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if post.ImageURL == "" || post.MusicURL == "" || post.VideoURL != "" || post.Caption != "beach" {
		t.Fatalf("Create() = %+v", post)
	}
	if blobs.uploads != 2 {
		t.Errorf("uploads = %d, want 2", blobs.uploads)
	}
	if repo.postsCount["u1"] != 1 {
		t.Errorf("posts count = %d, want 1", repo.postsCount["u1"])
	}

	if _, err := svc.Create(ctx, CreateInput{AuthorID: "u1", Caption: "just words"}); err != nil {
		t.Fatalf("caption-only Create() error = %v", err)
	}
}

func TestCreatePostRejectsBeforeUpload(t *testing.T) {
	svc, _, blobs := setup(t)

	tests := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"empty", CreateInput{AuthorID: "u1", Caption: "   "}, entity.ErrEmptyPost},
		{"music only", CreateInput{AuthorID: "u1", Music: upload("audio/mpeg", 1024)}, entity.ErrEmptyPost},
		{"image too large", CreateInput{AuthorID: "u1", Image: upload("image/png", 6<<20)}, storage.ErrTooLarge},
		{"video too large", CreateInput{AuthorID: "u1", Video: upload("video/mp4", 51<<20)}, storage.ErrTooLarge},
		{"music too large", CreateInput{AuthorID: "u1", Image: upload("image/png", 1024), Music: upload("audio/mpeg", 11<<20)}, storage.ErrTooLarge},
		{"image wrong type", CreateInput{AuthorID: "u1", Image: upload("video/mp4", 1024)}, entity.ErrInvalidImage},
		{"video wrong type", CreateInput{AuthorID: "u1", Video: upload("image/png", 1024)}, entity.ErrInvalidVideo},
		{"caption too long", CreateInput{AuthorID: "u1", Caption: strings.Repeat("a", entity.MaxCaptionLength+1)}, entity.ErrCaptionTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
	if blobs.uploads != 0 {
		t.Fatalf("uploads = %d, want 0", blobs.uploads)
	}
}

func TestFeedShowsFollowedAndOwnPosts(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	repo.follows["me"] = []string{"friend"}
	mine, _ := svc.Create(ctx, CreateInput{AuthorID: "me", Caption: "mine"})
	_, _ = svc.Create(ctx, CreateInput{AuthorID: "stranger", Caption: "hidden"})
	theirs, _ := svc.Create(ctx, CreateInput{AuthorID: "friend", Caption: "theirs"})

	feed, err := svc.Feed(ctx, "me")
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(feed) != 2 || feed[0].ID != theirs.ID || feed[1].ID != mine.ID {
		t.Fatalf("Feed() = %+v", feed)
	}
}

func TestLikeNotifiesAuthorOnly(t *testing.T) {
	svc, _, _, notifier := setupWithNotifier(t)
	ctx := context.Background()

	post, _ := svc.Create(ctx, CreateInput{AuthorID: "author", Caption: "hi"})

	if err := svc.Like(ctx, "author", post.ID); err != nil {
		t.Fatalf("self Like() error = %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("self like notified: %+v", notifier.sent)
	}

	if err := svc.Like(ctx, "fan", post.ID); err != nil {
		t.Fatalf("Like() error = %v", err)
	}
	if err := svc.Like(ctx, "fan", post.ID); !errors.Is(err, entity.ErrAlreadyLiked) {
		t.Fatalf("second Like() error = %v, want ErrAlreadyLiked", err)
	}
	want := notificationservice.CreateInput{RecipientID: "author", Type: notificationentity.TypeLike, ActorID: "fan", PostID: post.ID}
	if len(notifier.sent) != 1 || notifier.sent[0] != want {
		t.Fatalf("notifications = %+v, want [%+v]", notifier.sent, want)
	}

	got, _ := svc.Get(ctx, "fan", post.ID)
	if got.LikesCount != 2 || !got.LikedByViewer {
		t.Fatalf("Get() = %+v", got)
	}

	if err := svc.Unlike(ctx, "fan", post.ID); err != nil {
		t.Fatalf("Unlike() error = %v", err)
	}
	if err := svc.Unlike(ctx, "fan", post.ID); !errors.Is(err, entity.ErrNotLiked) {
		t.Fatalf("second Unlike() error = %v, want ErrNotLiked", err)
	}
	if err := svc.Like(ctx, "fan", uuid.NewString()); !errors.Is(err, entity.ErrPostNotFound) {
		t.Fatalf("Like() on missing post error = %v, want ErrPostNotFound", err)
	}
}

func TestLikeSurvivesNotificationFailure(t *testing.T) {
	svc, _, _, notifier := setupWithNotifier(t)
	ctx := context.Background()

	post, _ := svc.Create(ctx, CreateInput{AuthorID: "author", Caption: "hi"})
	notifier.err = errors.New("notifications down")

	if err := svc.Like(ctx, "fan", post.ID); err != nil {
		t.Fatalf("Like() error = %v, want nil", err)
	}
	got, _ := svc.Get(ctx, "fan", post.ID)
	if got.LikesCount != 1 {
		t.Fatalf("likes = %d, want 1", got.LikesCount)
	}
}

func TestDeletePost(t *testing.T) {
	svc, repo, blobs := setup(t)
	ctx := context.Background()

	post, _ := svc.Create(ctx, CreateInput{AuthorID: "u1", Image: upload("image/png", 1024)})

	if err := svc.Delete(ctx, "u2", post.ID); !errors.Is(err, entity.ErrNotOwner) {
		t.Fatalf("Delete() by other error = %v, want ErrNotOwner", err)
	}
	if err := svc.Delete(ctx, "u1", post.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(blobs.objects) != 0 {
		t.Errorf("media left behind: %v", blobs.objects)
	}
	if repo.postsCount["u1"] != 0 {
		t.Errorf("posts count = %d, want 0", repo.postsCount["u1"])
	}
}
