// Package httpx provides HTTP response utilities for the JSON API surface.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/kiranaflow/kiranaflow/internal/shared"
)

// ProblemBody is the uniform error shape returned by every endpoint:
// {status, message, [errors]}.
type ProblemBody struct {
	Status  int          `json:"status"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// JSON sends a JSON response with the given status code, stamping the
// ambient correlation id on the response so a client can quote it back in a
// support request.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Correlation-Id", shared.CorrelationIDFromContext(r.Context()))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends the uniform {status, message, errors} error body.
func Problem(w http.ResponseWriter, r *http.Request, status int, message string, fields []FieldError) {
	JSON(w, r, status, ProblemBody{
		Status:  status,
		Message: message,
		Errors:  fields,
	})
}

// DecodeJSON decodes a JSON request body into target, rejecting unknown
// fields so a typo in a client payload fails loudly instead of silently
// being dropped.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
