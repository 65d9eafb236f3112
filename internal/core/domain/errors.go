package domain

import "errors"

var (
	ErrPollNotFound   = errors.New("poll not found")
	ErrInvalidPollID  = errors.New("invalid poll id")
	ErrOptionNotFound = errors.New("option does not belong to this poll")
	ErrNotInitialized = errors.New("poll counter not initialized")
	ErrStateNotFound  = errors.New("no counter state recorded")
	ErrInternal       = errors.New("internal server error")
)
