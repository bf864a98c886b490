package entity

import (
	"regexp"
	"strings"
	"time"
)

// Identity is a registered account and its public profile
type Identity struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"` // user-facing numeric id
	Email          string    `json:"email,omitempty"`
	PasswordHash   string    `json:"-"`
	Username       string    `json:"username"`
	Bio            string    `json:"bio"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	IsPrivate      bool      `json:"is_private"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	PostsCount     int       `json:"posts_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Public returns a copy without private fields
func (i Identity) Public() Identity {
	i.Email = ""
	i.PasswordHash = ""
	return i
}

// Summary is the minimal view of an identity shown next to content
type Summary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Summary returns the identity's summary
func (i Identity) Summary() Summary {
	return Summary{ID: i.ID, Username: i.Username, AvatarURL: i.AvatarURL}
}

// ProfileUpdate holds optional profile changes
type ProfileUpdate struct {
	Username  *string
	Bio       *string
	IsPrivate *bool
}

// Empty reports whether the update changes nothing
func (u ProfileUpdate) Empty() bool {
	return u.Username == nil && u.Bio == nil && u.IsPrivate == nil
}

// SessionRecord is a stored sign-in
type SessionRecord struct {
	ID         string
	IdentityID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

const (
	MinPasswordLength = 6
	MaxUsernameLength = 30
	MaxBioLength      = 150
	UserIDDigits      = 8
)

var (
	userIDPattern   = regexp.MustCompile(`^\d{6,}$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._]+$`)
)

// IsUserID reports whether a sign-in login is a user-facing numeric id rather than an email
func IsUserID(login string) bool {
	return userIDPattern.MatchString(login)
}

// NormalizeEmail lowercases and trims an email
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername validates a username
func ValidateUsername(username string) error {
	if username == "" || len(username) > MaxUsernameLength || !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateBio validates a profile bio
func ValidateBio(bio string) error {
	if len([]rune(bio)) > MaxBioLength {
		return ErrBioTooLong
	}
	return nil
}
