package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranaflow/kiranaflow/internal/shared"
)

// PermissionResolver answers whether the current user holds a permission,
// declared on the consumer side so this package never depends on rbac's
// storage-backed resolution directly; *rbac.Service satisfies it via its
// HasPermission method (EffectivePermissions plus a membership check).
type PermissionResolver interface {
	HasPermission(ctx context.Context, orgID, userID, permission string) (bool, error)
}

// Middleware intercepts every JSON response body and redacts it unless the
// caller holds view_pii. Any error resolving that permission fails closed
// — the response is redacted.
type Middleware struct {
	Permissions PermissionResolver
	Redactor    *Redactor
	Logger      *slog.Logger
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, buf: &bytes.Buffer{}}
		next.ServeHTTP(rec, r)

		body := rec.buf.Bytes()
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		if !isJSON(rec.Header()) || len(body) == 0 {
			w.WriteHeader(rec.status)
			_, _ = w.Write(body)
			return
		}

		if m.bypass(r.Context()) {
			w.WriteHeader(rec.status)
			_, _ = w.Write(body)
			return
		}

		var decoded interface{}
		if err := json.Unmarshal(body, &decoded); err != nil {
			// Not a JSON payload we can safely walk; writing it through
			// unredacted would be unsafe, so on decode failure we fail
			// closed and withhold the body.
			if m.Logger != nil {
				m.Logger.Error("pii: decode failed", slog.Any("error", err))
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		redacted := m.Redactor.Redact(decoded)
		out, err := json.Marshal(redacted)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("pii: re-encode failed", slog.Any("error", err))
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(rec.status)
		_, _ = w.Write(out)
	})
}

// bypass reports whether redaction should be skipped for this request. Any
// failure to resolve the permission — missing context, resolver error —
// keeps redaction on.
func (m Middleware) bypass(ctx context.Context) bool {
	orgID, ok := shared.OrgIDFromContext(ctx)
	if !ok {
		return false
	}
	userID, ok := shared.UserIDFromContext(ctx)
	if !ok {
		// API-key identity: no user row to resolve a role against, so it
		// gets the fixed service permission set for its org rather than
		// being denied outright, mirroring rbac.Middleware.require.
		return hasPermission(shared.APIKeyPermissions(), shared.PermViewPII)
	}
	allowed, err := m.Permissions.HasPermission(ctx, orgID, userID, shared.PermViewPII)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Warn("pii: permission resolution failed, redacting", slog.Any("error", err))
		}
		return false
	}
	return allowed
}

func hasPermission(granted []string, permission string) bool {
	for _, g := range granted {
		if g == permission {
			return true
		}
	}
	return false
}

func isJSON(h http.Header) bool {
	ct := h.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "application/json")
}

// responseRecorder buffers the body so it can be rewritten before the
// client sees it, mirroring the teacher's response-wrapper pattern for
// post-processing responses before they leave the handler chain.
type responseRecorder struct {
	http.ResponseWriter
	buf    *bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	return rr.buf.Write(b)
}
