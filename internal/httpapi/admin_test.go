package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranaflow/kiranaflow/internal/rbac"
	"github.com/kiranaflow/kiranaflow/internal/shared"
	"github.com/kiranaflow/kiranaflow/internal/storage"
)

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

type fakeAdminStore struct {
	profile *storage.BusinessProfile
	keys    []storage.ApiKey
	users   []storage.User
	roles   []rbac.Role

	revokedID string
	err       error
}

func (f *fakeAdminStore) CreateOrganizationProfile(ctx context.Context, orgID, legalName, gstNumber, currency string, defaultTaxRate float64) (*storage.BusinessProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.profile = &storage.BusinessProfile{OrgID: orgID, LegalName: legalName, GSTNumber: gstNumber, Currency: currency, DefaultTaxRate: defaultTaxRate}
	return f.profile, nil
}

func (f *fakeAdminStore) UpsertApiKey(ctx context.Context, orgID, name, keyHash, keyMask string) (*storage.ApiKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	k := storage.ApiKey{ID: "key_1", OrgID: orgID, Name: name, KeyHash: keyHash, KeyMask: keyMask, IsActive: true, CreatedAt: time.Now()}
	f.keys = append(f.keys, k)
	return &k, nil
}

func (f *fakeAdminStore) ListApiKeys(ctx context.Context, orgID string) ([]storage.ApiKey, error) {
	return f.keys, f.err
}

func (f *fakeAdminStore) RevokeAPIKey(ctx context.Context, orgID, id string) error {
	f.revokedID = id
	return f.err
}

func (f *fakeAdminStore) ListUsers(ctx context.Context, orgID string) ([]storage.User, error) {
	return f.users, f.err
}

func (f *fakeAdminStore) ListRoles(ctx context.Context, orgID string) ([]rbac.Role, error) {
	return f.roles, f.err
}

func newAdminTestHandler(admin *fakeAdminStore) *Handler {
	return &Handler{Admin: admin, validate: validator.New()}
}

func withOrg(r *http.Request, orgID string) *http.Request {
	return r.WithContext(shared.ContextWithOrgID(r.Context(), orgID))
}

func TestHandleCreateAPIKeyReturnsRawKeyOnlyOnCreation(t *testing.T) {
	admin := &fakeAdminStore{}
	h := newAdminTestHandler(admin)
	req := withOrg(httptest.NewRequest(http.MethodPost, "/admin/api-keys", strings.NewReader(`{"name":"billing-bot"}`)), "org-1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.handleCreateAPIKey(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp apiKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RawKey)
	assert.Equal(t, "billing-bot", resp.Name)
	assert.Len(t, admin.keys, 1)
}

func TestHandleListAPIKeysOmitsRawKey(t *testing.T) {
	admin := &fakeAdminStore{keys: []storage.ApiKey{{ID: "key_1", OrgID: "org-1", Name: "billing-bot", KeyMask: "...ab12", IsActive: true}}}
	h := newAdminTestHandler(admin)
	req := withOrg(httptest.NewRequest(http.MethodGet, "/admin/api-keys", nil), "org-1")
	rec := httptest.NewRecorder()

	h.handleListAPIKeys(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "raw_key")
	assert.Contains(t, rec.Body.String(), "...ab12")
}

func TestHandleRevokeAPIKeyScopesToURLParam(t *testing.T) {
	admin := &fakeAdminStore{}
	h := newAdminTestHandler(admin)
	req := withOrg(httptest.NewRequest(http.MethodDelete, "/admin/api-keys/key_1", nil), "org-1")
	req = withURLParam(req, "id", "key_1")
	rec := httptest.NewRecorder()

	h.handleRevokeAPIKey(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "key_1", admin.revokedID)
}

func TestHandleUpsertOrganizationProfileValidatesRequiredFields(t *testing.T) {
	admin := &fakeAdminStore{}
	h := newAdminTestHandler(admin)
	req := withOrg(httptest.NewRequest(http.MethodPut, "/admin/profile", strings.NewReader(`{}`)), "org-1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.handleUpsertOrganizationProfile(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpsertOrganizationProfilePersistsProfile(t *testing.T) {
	admin := &fakeAdminStore{}
	h := newAdminTestHandler(admin)
	body := `{"legal_name":"Sharma Kirana","gst_number":"27AAAAA0000A1Z5","currency":"INR","default_tax_rate":18}`
	req := withOrg(httptest.NewRequest(http.MethodPut, "/admin/profile", strings.NewReader(body)), "org-1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.handleUpsertOrganizationProfile(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, admin.profile)
	assert.Equal(t, "Sharma Kirana", admin.profile.LegalName)
}

func TestHandleListUsersReturnsOrgUsers(t *testing.T) {
	admin := &fakeAdminStore{users: []storage.User{{ID: "u1", OrgID: "org-1", Email: "a@kirana.test", Name: "Asha"}}}
	h := newAdminTestHandler(admin)
	req := withOrg(httptest.NewRequest(http.MethodGet, "/admin/users", nil), "org-1")
	rec := httptest.NewRecorder()

	h.handleListUsers(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a@kirana.test")
}

func TestHandleListRolesReturnsOrgRoles(t *testing.T) {
	admin := &fakeAdminStore{roles: []rbac.Role{{ID: "r1", OrgID: "org-1", Name: "owner", Permissions: []string{shared.PermViewOrders}}}}
	h := newAdminTestHandler(admin)
	req := withOrg(httptest.NewRequest(http.MethodGet, "/admin/roles", nil), "org-1")
	rec := httptest.NewRecorder()

	h.handleListRoles(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "owner")
}
