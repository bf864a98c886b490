package entity

import "errors"

// Domain errors for stories
var (
	ErrStoryNotFound  = errors.New("story not found")
	ErrMediaRequired  = errors.New("a photo or video is required")
	ErrInvalidMedia   = errors.New("story media must be an image or video")
	ErrInvalidMusic   = errors.New("story music must be an audio file")
	ErrCaptionTooLong = errors.New("caption exceeds maximum length")
	ErrNotOwner       = errors.New("only the author can change this story")
)
