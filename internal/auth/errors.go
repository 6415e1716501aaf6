package auth

import "errors"

// Sentinel errors for token handling.
var (
	ErrTokenInvalid  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token has expired")
	ErrMissingSecret = errors.New("signing secret is empty")
)
