package http

import (
	"errors"
	"net/http"

	"github.com/ngo-portal/event-chat/internal/domain"
)

const (
	msgNotMember       = "You are not a member of this event"
	msgContentRequired = "Message content is required"
	msgContentTooLong  = "Message content is too long"
	msgInvalidCursor   = "Invalid cursor"
	msgInvalidLimit    = "Invalid limit"
	msgInvalidBody     = "Invalid request body"
	msgUnauthenticated = "Not authenticated"
	msgServerError     = "Server error"
)

// statusFor maps a service error to the HTTP status and the message shown to
// the caller. Unknown events and non-membership are indistinguishable.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, msgUnauthenticated
	case errors.Is(err, domain.ErrInvalidCursor):
		return http.StatusBadRequest, msgInvalidCursor
	case errors.Is(err, domain.ErrContentTooLong):
		return http.StatusBadRequest, msgContentTooLong
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, msgContentRequired
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrEventNotFound):
		return http.StatusForbidden, msgNotMember
	default:
		return http.StatusInternalServerError, msgServerError
	}
}
