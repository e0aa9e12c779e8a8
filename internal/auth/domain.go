// Package auth resolves the caller identity for every request on two
// independent paths — an API key header or a bearer JWT verified against a
// lazily-cached JWKS — and JIT-provisions a user row the first time an
// identity-provider subject is seen.
package auth

import "errors"

// ErrNoCredentials is returned when a request carries neither an API key
// nor a bearer token.
var ErrNoCredentials = errors.New("no credentials supplied")

// ErrInvalidCredentials is returned when a supplied credential is
// malformed, expired, or fails verification.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity is the resolved caller after either auth path succeeds.
type Identity struct {
	UserID string
	OrgID  string // empty until the user has joined an organization
	Email  string
}
