package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vadim/blinka/internal/domain/identity/entity"
	"github.com/vadim/blinka/internal/session"
	"github.com/vadim/blinka/internal/storage"
)

// IdentityRepository defines the interface for identity storage
type IdentityRepository interface {
	Create(ctx context.Context, id *entity.Identity) error
	GetByID(ctx context.Context, id string) (*entity.Identity, error)
	GetByEmail(ctx context.Context, email string) (*entity.Identity, error)
	GetByUserID(ctx context.Context, userID string) (*entity.Identity, error)
	Update(ctx context.Context, id string, upd entity.ProfileUpdate) (*entity.Identity, error)
	SetAvatar(ctx context.Context, id, url string) error
	Suggested(ctx context.Context, viewerID string, limit int) ([]entity.Identity, error)
}

// SessionRepository defines the interface for session storage
type SessionRepository interface {
	Create(ctx context.Context, rec *entity.SessionRecord) error
	Get(ctx context.Context, id string) (*entity.SessionRecord, error)
	Revoke(ctx context.Context, id string) error
	DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenCodec issues and verifies session tokens
type TokenCodec interface {
	Issue(sess session.Session) (string, error)
	Parse(token string) (session.Session, error)
}

// BlobUploader stores uploaded files
type BlobUploader interface {
	Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadOutput, error)
}

const (
	defaultSuggestionLimit = 20
	userIDAttempts         = 5
)

// Config holds credential and session settings
type Config struct {
	SessionTTL time.Duration
	BcryptCost int
}

// Service handles sign-up, sign-in and profile business logic
type Service struct {
	identities IdentityRepository
	sessions   SessionRepository
	tokens     TokenCodec
	blobs      BlobUploader
	cfg        Config
	now        func() time.Time
}

// New creates a new identity service
func New(identities IdentityRepository, sessions SessionRepository, tokens TokenCodec, blobs BlobUploader, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		identities: identities,
		sessions:   sessions,
		tokens:     tokens,
		blobs:      blobs,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SignUpInput represents input for registering an identity
type SignUpInput struct {
	Email    string
	Password string
	Username string
}

// AuthOutput represents a successful sign-up or sign-in
type AuthOutput struct {
	Identity *entity.Identity
	Session  session.Session
	Token    string
}

// SignUp registers a new identity with a generated user-facing id and signs it in
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*AuthOutput, error) {
	email := entity.NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, entity.ErrInvalidEmail
	}
	if len(in.Password) < entity.MinPasswordLength {
		return nil, entity.ErrWeakPassword
	}
	username := strings.TrimSpace(in.Username)
	if err := entity.ValidateUsername(username); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	ident := &entity.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Username:     username,
	}

	for attempt := 0; ; attempt++ {
		ident.UserID, err = generateUserID(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generating user id: %w", err)
		}

		err = s.identities.Create(ctx, ident)
		if err == nil {
			break
		}
		if !errors.Is(err, entity.ErrUserIDTaken) || attempt+1 >= userIDAttempts {
			return nil, fmt.Errorf("creating identity: %w", err)
		}
	}

	return s.startSession(ctx, ident)
}

// SignIn authenticates by email or user-facing id and password
func (s *Service) SignIn(ctx context.Context, login, password string) (*AuthOutput, error) {
	login = strings.TrimSpace(login)

	var (
		ident *entity.Identity
		err   error
	)
	if entity.IsUserID(login) {
		ident, err = s.identities.GetByUserID(ctx, login)
		if err != nil {
			return nil, fmt.Errorf("resolving user id: %w", err)
		}
		if ident == nil {
			return nil, entity.ErrUserIDNotFound
		}
	} else {
		ident, err = s.identities.GetByEmail(ctx, entity.NormalizeEmail(login))
		if err != nil {
			return nil, fmt.Errorf("getting identity: %w", err)
		}
		if ident == nil {
			return nil, entity.ErrInvalidCredentials
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		return nil, entity.ErrInvalidCredentials
	}

	return s.startSession(ctx, ident)
}

// SignOut revokes a session
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}

// Authenticate verifies a token and checks its session has not been revoked
func (s *Service) Authenticate(ctx context.Context, token string) (session.Session, error) {
	sess, err := s.tokens.Parse(token)
	if err != nil {
		return session.Session{}, err
	}
	if err := s.Verify(ctx, sess); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// Verify checks that an already authenticated session is still neither
// revoked nor expired. Long-lived connections call it periodically.
func (s *Service) Verify(ctx context.Context, sess session.Session) error {
	rec, err := s.sessions.Get(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("getting session: %w", err)
	}
	if rec == nil || rec.IdentityID != sess.IdentityID {
		return entity.ErrSessionNotFound
	}
	if rec.RevokedAt != nil {
		return entity.ErrSessionRevoked
	}
	if !s.now().Before(rec.ExpiresAt) {
		return entity.ErrSessionExpired
	}
	return nil
}

// GetProfile retrieves an identity by primary id or, for numeric ids, by user-facing id
func (s *Service) GetProfile(ctx context.Context, id string) (*entity.Identity, error) {
	var (
		ident *entity.Identity
		err   error
	)
	if entity.IsUserID(id) {
		ident, err = s.identities.GetByUserID(ctx, id)
	} else {
		if _, parseErr := uuid.Parse(id); parseErr != nil {
			return nil, entity.ErrIdentityNotFound
		}
		ident, err = s.identities.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting identity: %w", err)
	}
	if ident == nil {
		return nil, entity.ErrIdentityNotFound
	}
	return ident, nil
}

// UpdateProfile applies profile changes for the identity
func (s *Service) UpdateProfile(ctx context.Context, id string, upd entity.ProfileUpdate) (*entity.Identity, error) {
	if upd.Username != nil {
		trimmed := strings.TrimSpace(*upd.Username)
		if err := entity.ValidateUsername(trimmed); err != nil {
			return nil, err
		}
		upd.Username = &trimmed
	}
	if upd.Bio != nil {
		if err := entity.ValidateBio(*upd.Bio); err != nil {
			return nil, err
		}
	}
	if upd.Empty() {
		return s.GetProfile(ctx, id)
	}

	ident, err := s.identities.Update(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	if ident == nil {
		return nil, entity.ErrIdentityNotFound
	}
	return ident, nil
}

// SetAvatar uploads a profile picture and stores its public URL
func (s *Service) SetAvatar(ctx context.Context, id string, in storage.File) (string, error) {
	if err := storage.CheckSize(storage.KindAvatar, in.Size); err != nil {
		return "", err
	}
	if kind, err := storage.MediaKind(in.ContentType); err != nil || kind != "image" {
		return "", storage.ErrUnsupportedMedia
	}

	out, err := s.blobs.Upload(ctx, storage.UploadInput{
		Bucket:      storage.BucketProfilePictures,
		Prefix:      id,
		Reader:      in.Reader,
		ContentType: in.ContentType,
		Size:        in.Size,
		Filename:    in.Filename,
	})
	if err != nil {
		return "", fmt.Errorf("uploading avatar: %w", err)
	}

	if err := s.identities.SetAvatar(ctx, id, out.URL); err != nil {
		return "", fmt.Errorf("saving avatar: %w", err)
	}
	return out.URL, nil
}

// PruneSessions deletes session records that can no longer authenticate
func (s *Service) PruneSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteInactive(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	return n, nil
}

// Suggested returns up to 20 identities the viewer does not follow
func (s *Service) Suggested(ctx context.Context, viewerID string) ([]entity.Identity, error) {
	idents, err := s.identities.Suggested(ctx, viewerID, defaultSuggestionLimit)
	if err != nil {
		return nil, fmt.Errorf("getting suggestions: %w", err)
	}
	if idents == nil {
		idents = []entity.Identity{}
	}
	return idents, nil
}

func (s *Service) startSession(ctx context.Context, ident *entity.Identity) (*AuthOutput, error) {
	now := s.now()
	rec := &entity.SessionRecord{
		ID:         uuid.NewString(),
		IdentityID: ident.ID,
		ExpiresAt:  now.Add(s.cfg.SessionTTL).Truncate(time.Second),
	}
	if err := s.sessions.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	sess := session.Session{ID: rec.ID, IdentityID: rec.IdentityID, ExpiresAt: rec.ExpiresAt}
	token, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, err
	}

	return &AuthOutput{Identity: ident, Session: sess, Token: token}, nil
}

// generateUserID returns a random fixed-width numeric id that never starts with 0
func generateUserID(r io.Reader) (string, error) {
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(entity.UserIDDigits-1), nil)
	span := new(big.Int).Sub(new(big.Int).Mul(low, big.NewInt(10)), low)

	n, err := rand.Int(r, span)
	if err != nil {
		return "", err
	}
	return n.Add(n, low).String(), nil
}
