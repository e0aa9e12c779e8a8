// Package httpx provides HTTP response utilities for the JSON API surface.
package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kiranaflow/kiranaflow/internal/shared"
)

// FieldError describes one invalid request field, returned in the "errors"
// array of a validation problem response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries a list of field errors and wraps shared.ErrValidation
// so errors.Is classification keeps working through the taxonomy switch
// below.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field error(s)", len(e.Fields))
}

func (e *ValidationError) Unwrap() error { return shared.ErrValidation }

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// RespondError maps a domain error to one of the ten HTTP problem kinds.
// Every handler funnels its error return through this single switch so the
// response shape never drifts between endpoints.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		Problem(w, r, http.StatusBadRequest, "validation failed", verr.Fields)
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, r, http.StatusNotFound, "not found", nil)
	case errors.Is(err, shared.ErrValidation):
		Problem(w, r, http.StatusBadRequest, "validation failed", nil)
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, r, http.StatusUnauthorized, "unauthenticated", nil)
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, r, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, shared.ErrConflict):
		Problem(w, r, http.StatusConflict, "conflict", nil)
	case errors.Is(err, shared.ErrRateLimited):
		Problem(w, r, http.StatusTooManyRequests, "rate limited", nil)
	case errors.Is(err, shared.ErrUpstreamBadInput):
		Problem(w, r, http.StatusBadGateway, "upstream rejected request", nil)
	case errors.Is(err, shared.ErrUpstreamDown):
		Problem(w, r, http.StatusServiceUnavailable, "upstream unavailable", nil)
	case errors.Is(err, shared.ErrExtractionInvalid):
		Problem(w, r, http.StatusInternalServerError, "could not extract an order from the supplied text", nil)
	default:
		Problem(w, r, http.StatusInternalServerError, "internal error", nil)
	}
}
