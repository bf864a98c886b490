package entity

import "errors"

// Domain errors for Direct Messages
var (
	ErrEmptyMessage     = errors.New("message text cannot be empty")
	ErrMessageTooLong   = errors.New("message exceeds maximum length")
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidRecipient = errors.New("invalid recipient")
)
