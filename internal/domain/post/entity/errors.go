package entity

import "errors"

var (
	ErrPostNotFound   = errors.New("post not found")
	ErrEmptyPost      = errors.New("post needs an image, a video or a caption")
	ErrInvalidImage   = errors.New("image must be an image file")
	ErrInvalidVideo   = errors.New("video must be a video file")
	ErrInvalidMusic   = errors.New("music must be an audio file")
	ErrCaptionTooLong = errors.New("caption is too long")
	ErrAlreadyLiked   = errors.New("post already liked")
	ErrNotLiked       = errors.New("post not liked")
	ErrNotOwner       = errors.New("only the author can change this post")
)
