package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranaflow/kiranaflow/internal/platform/httpx"
	"github.com/kiranaflow/kiranaflow/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. It reads
// the authenticated user id from the ambient context, which internal/auth's
// middleware sets after verifying an API key or bearer JWT — there is no
// session cookie in this surface.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current user has at least one of the required
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require(normalized, hasAnyPermission)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require(normalized, hasAllPermissions)
}

func (m Middleware) require(normalized []string, satisfied func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			orgID, orgOK := shared.OrgIDFromContext(r.Context())
			if !orgOK {
				httpx.RespondError(w, r, shared.ErrForbidden)
				return
			}
			userID, ok := shared.UserIDFromContext(r.Context())
			var granted []string
			if !ok {
				// API-key identity: no user row to resolve a role against,
				// so it gets the fixed service permission set for its org
				// rather than being denied outright.
				granted = shared.APIKeyPermissions()
			} else {
				g, usedFallback, err := m.Service.EffectivePermissions(r.Context(), orgID, userID)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("rbac effective permissions", slog.Any("error", err))
					}
					httpx.RespondError(w, r, shared.ErrForbidden)
					return
				}
				if usedFallback && m.Logger != nil {
					m.Logger.Warn("rbac fallback permission set used",
						slog.String("org_id", orgID), slog.String("user_id", userID))
				}
				granted = g
			}
			if satisfied(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, r, shared.ErrForbidden)
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := toSet(granted)
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := toSet(granted)
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}
