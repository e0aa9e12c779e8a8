package shared

import "errors"

// Sentinel domain errors. platform/httpx maps these to the HTTP error
// taxonomy; every error returned across a package boundary wraps one of
// these with fmt.Errorf("%w: ...") so errors.Is keeps working through the
// wrapping.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamBadInput  = errors.New("upstream rejected request")
	ErrUpstreamDown      = errors.New("upstream unavailable")
	ErrExtractionInvalid = errors.New("extraction malformed")
)
