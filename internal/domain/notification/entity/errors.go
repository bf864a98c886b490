package entity

import "errors"

// Domain errors for notifications
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidType          = errors.New("invalid notification type")
)
