package entity

import "errors"

// Domain errors for follows and follow requests
var (
	ErrSelfFollow       = errors.New("cannot follow yourself")
	ErrTargetNotFound   = errors.New("identity not found")
	ErrAlreadyFollowing = errors.New("already following")
	ErrNotFollowing     = errors.New("not following")
	ErrRequestPending   = errors.New("follow request already pending")
	ErrRequestNotFound  = errors.New("follow request not found")
	ErrRequestResolved  = errors.New("follow request already resolved")
)
