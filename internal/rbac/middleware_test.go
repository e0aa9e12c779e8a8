package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranaflow/kiranaflow/internal/shared"
)

type stubRoleLookup struct {
	role *Role
	err  error
}

func (s *stubRoleLookup) RoleForUser(ctx context.Context, orgID, userID string) (*Role, error) {
	return s.role, s.err
}

func newRequest(orgID, userID string) *http.Request {
	ctx := context.Background()
	if orgID != "" {
		ctx = shared.ContextWithOrgID(ctx, orgID)
	}
	if userID != "" {
		ctx = shared.ContextWithUserID(ctx, userID)
	}
	return httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
}

func TestRequireAnyGrantsServicePermissionsToAPIKeyIdentity(t *testing.T) {
	// An API-key identity carries an OrgID but never a UserID. It must still
	// pass a gate covered by shared.APIKeyPermissions(), without any role
	// lookup taking place.
	m := Middleware{Service: NewService(&stubRoleLookup{err: ErrRoleNotFound})}
	called := false
	handler := m.RequireAny(shared.PermViewOrders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("org_1", ""))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAnyDeniesAPIKeyIdentityForUnlistedPermission(t *testing.T) {
	m := Middleware{Service: NewService(&stubRoleLookup{err: ErrRoleNotFound})}
	handler := m.RequireAny(shared.PermManageBilling)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("org_1", ""))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyDeniesRequestsWithNoOrgAtAll(t *testing.T) {
	m := Middleware{Service: NewService(&stubRoleLookup{})}
	handler := m.RequireAny(shared.PermViewOrders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyUsesUserRolePermissionsWhenUserIDPresent(t *testing.T) {
	m := Middleware{Service: NewService(&stubRoleLookup{role: &Role{Permissions: []string{shared.PermManageBilling}}})}
	called := false
	handler := m.RequireAny(shared.PermManageBilling)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("org_1", "user_1"))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	m := Middleware{Service: NewService(&stubRoleLookup{role: &Role{Permissions: []string{shared.PermViewOrders}}})}
	handler := m.RequireAll(shared.PermViewOrders, shared.PermManageBilling)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("org_1", "user_1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyWithNoPermissionsAlwaysPasses(t *testing.T) {
	m := Middleware{}
	called := false
	handler := m.RequireAny()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
}

func TestEffectivePermissionsFallsBackWhenRoleRowMissing(t *testing.T) {
	svc := NewService(&stubRoleLookup{err: ErrRoleNotFound})
	perms, usedFallback, err := svc.EffectivePermissions(context.Background(), "org_1", "user_1")
	require.NoError(t, err)
	assert.True(t, usedFallback)
	assert.Equal(t, shared.FallbackRolePermissions(), perms)
}

func TestHasPermissionFailsClosedOnLookupError(t *testing.T) {
	svc := NewService(&stubRoleLookup{err: assertError{}})
	ok, err := svc.HasPermission(context.Background(), "org_1", "user_1", shared.PermViewOrders)
	assert.Error(t, err)
	assert.False(t, ok)
}

type assertError struct{}

func (assertError) Error() string { return "lookup failed" }
