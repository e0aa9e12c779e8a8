package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kiranaflow/kiranaflow/internal/platform/httpx"
	"github.com/kiranaflow/kiranaflow/internal/shared"
	"github.com/kiranaflow/kiranaflow/internal/storage"
)

// UserStore is the subset of storage.Repository the authenticator needs,
// declared on the consumer side so this package never imports storage
// directly for anything but the Identity-building query path — satisfied
// implicitly by *storage.Repository.
type UserStore interface {
	LookupAPIKey(ctx context.Context, keyHash string) (*storage.ApiKey, error)
	GetUser(ctx context.Context, id string) (*storage.User, error)
	CreateUser(ctx context.Context, id, email, name string) (*storage.User, error)
}

// Authenticator resolves a caller identity from either an API key header
// or a bearer JWT, and JIT-provisions the user row on first sight of a
// verified JWT subject.
type Authenticator struct {
	Users    UserStore
	JWKS     *JWKSCache
	Audience string
	Logger   *slog.Logger
}

const apiKeyHeader = "X-Api-Key"

// Authenticate resolves the caller, rejecting the request with 401 if no
// credential is present or verification fails. On success it stores the
// user id (bearer path only) and org id on the request context. The API
// key path sets org and nothing else; rbac.Middleware grants a fixed
// service permission set to requests with no user id rather than denying
// them outright.
func (a Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.resolve(r)
		if err != nil {
			httpx.RespondError(w, r, shared.ErrUnauthenticated)
			return
		}
		ctx := r.Context()
		if identity.UserID != "" {
			ctx = shared.ContextWithUserID(ctx, identity.UserID)
		}
		if identity.OrgID != "" {
			ctx = shared.ContextWithOrgID(ctx, identity.OrgID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a Authenticator) resolve(r *http.Request) (Identity, error) {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return a.resolveAPIKey(r.Context(), key)
	}
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return a.resolveBearer(r.Context(), strings.TrimPrefix(authz, "Bearer "))
	}
	return Identity{}, ErrNoCredentials
}

// resolveAPIKey sets only the org — the spec's API key path explicitly
// skips the user path, so requests authenticated this way carry no user
// id and are authorized downstream via the fixed API-key permission set.
func (a Authenticator) resolveAPIKey(ctx context.Context, raw string) (Identity, error) {
	key, err := a.Users.LookupAPIKey(ctx, HashAPIKey(raw))
	if err != nil {
		return Identity{}, err
	}
	return Identity{OrgID: key.OrgID}, nil
}

func (a Authenticator) resolveBearer(ctx context.Context, raw string) (Identity, error) {
	token, err := jwt.Parse(raw, a.JWKS.Keyfunc(ctx), jwt.WithAudience(a.Audience), jwt.WithValidMethods([]string{"RS256"}))
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, ErrInvalidCredentials
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	user, err := a.Users.GetUser(ctx, sub)
	if err != nil {
		return Identity{}, err
	}
	if user == nil {
		user, err = a.Users.CreateUser(ctx, sub, email, name)
		if err != nil {
			return Identity{}, err
		}
		if a.Logger != nil {
			a.Logger.Info("jit-provisioned user", slog.String("user_id", sub))
		}
	}
	return Identity{UserID: user.ID, OrgID: user.OrgID, Email: user.Email}, nil
}

// RequireOrg gates routes that need a resolved tenant: a JIT-provisioned
// user who has not yet joined an organization is authenticated but has no
// org, and must be rejected from every org-scoped endpoint.
func RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.OrgIDFromContext(r.Context()); !ok {
			httpx.RespondError(w, r, shared.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
