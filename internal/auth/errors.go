package auth

import "errors"

var (
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidIssuer  = errors.New("invalid issuer")
	ErrTokenExpired   = errors.New("token expired or not valid yet")
	ErrInvalidSubject = errors.New("invalid subject")
)
