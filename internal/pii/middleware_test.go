package pii

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranaflow/kiranaflow/internal/shared"
)

type stubPermissionResolver struct {
	allowed bool
	err     error
}

func (s stubPermissionResolver) HasPermission(ctx context.Context, orgID, userID, permission string) (bool, error) {
	return s.allowed, s.err
}

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func TestBypassGrantsViewPIIToAPIKeyIdentityWithNoUserID(t *testing.T) {
	m := Middleware{Permissions: stubPermissionResolver{allowed: false}, Redactor: New()}
	ctx := shared.ContextWithOrgID(context.Background(), "org-1")

	assert.True(t, m.bypass(ctx))
}

func TestBypassDeniesWhenOrgIDAbsent(t *testing.T) {
	m := Middleware{Permissions: stubPermissionResolver{allowed: true}, Redactor: New()}

	assert.False(t, m.bypass(context.Background()))
}

func TestBypassDefersToResolverWhenUserIDPresent(t *testing.T) {
	m := Middleware{Permissions: stubPermissionResolver{allowed: true}, Redactor: New()}
	ctx := shared.ContextWithOrgID(context.Background(), "org-1")
	ctx = shared.ContextWithUserID(ctx, "user-1")

	assert.True(t, m.bypass(ctx))
}

func TestBypassFailsClosedOnResolverError(t *testing.T) {
	m := Middleware{Permissions: stubPermissionResolver{err: errors.New("boom")}, Redactor: New()}
	ctx := shared.ContextWithOrgID(context.Background(), "org-1")
	ctx = shared.ContextWithUserID(ctx, "user-1")

	assert.False(t, m.bypass(ctx))
}

func TestWrapLeavesBodyUnredactedForAPIKeyIdentity(t *testing.T) {
	m := Middleware{Permissions: stubPermissionResolver{allowed: false}, Redactor: New()}
	handler := m.Wrap(jsonHandler(`{"customer_name":"Kusum Traders"}`))

	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	req = req.WithContext(shared.ContextWithOrgID(req.Context(), "org-1"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "Kusum Traders")
}

func TestWrapRedactsBodyWhenPermissionDenied(t *testing.T) {
	m := Middleware{Permissions: stubPermissionResolver{allowed: false}, Redactor: New()}
	handler := m.Wrap(jsonHandler(`{"customer_name":"Kusum Traders"}`))

	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	req = req.WithContext(shared.ContextWithUserID(
		shared.ContextWithOrgID(req.Context(), "org-1"), "user-1"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.NotContains(t, rec.Body.String(), "Kusum Traders")
	assert.Contains(t, rec.Body.String(), redacted)
}
