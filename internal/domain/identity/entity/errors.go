package entity

import "errors"

// Domain errors for identities and sessions
var (
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrUserIDNotFound     = errors.New("user ID not found")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrUserIDTaken        = errors.New("user id is already assigned")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password is too short")
	ErrInvalidUsername    = errors.New("username may contain only letters, digits, dots and underscores")
	ErrBioTooLong         = errors.New("bio exceeds maximum length")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionRevoked     = errors.New("session has been revoked")
	ErrSessionExpired     = errors.New("session has expired")
)
