// Package common defines shared constants and sentinel errors used across
// the auth server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Registration errors.
	ErrEmailAlreadyExists = errors.New("email already exists")

	// Access token errors (invalid, malformed or signed with a disallowed algorithm).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Refresh token lifecycle errors.
	ErrRefreshTokenInvalid = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// The request origin differs from the origin recorded on the refresh token.
	ErrOriginMismatch = errors.New("origin mismatch")
)

// ErrInvalidCurrentPassword is returned by a password change when the
// current password does not match.
var ErrInvalidCurrentPassword = errors.New("current password is incorrect")
