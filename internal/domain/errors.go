package domain

import "errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("not a member of this event")
	ErrValidation      = errors.New("validation failed")
	ErrPersistence     = errors.New("persistence failure")

	ErrEmptyContent   = errors.New("message content is required")
	ErrContentTooLong = errors.New("message content is too long")

	ErrEventNotFound = errors.New("event not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidCursor = errors.New("invalid cursor")
)
