package rbac

import (
	"context"
	"errors"

	"github.com/kiranaflow/kiranaflow/internal/shared"
)

// RoleLookup resolves the role assigned to a user. internal/storage
// implements this against the users/roles tables; returning
// ErrRoleNotFound distinguishes "row missing" (triggers the fallback) from
// any other error, a real lookup failure (fails closed).
type RoleLookup interface {
	RoleForUser(ctx context.Context, orgID, userID string) (*Role, error)
}

// ErrRoleNotFound is returned by a RoleLookup when the user's role id has no
// matching row — e.g. mid-migration, or a tenant whose default roles were
// never seeded.
var ErrRoleNotFound = errors.New("role not found")

// Service resolves the effective permission set for a user.
type Service struct {
	roles RoleLookup
}

// NewService constructs the RBAC service.
func NewService(roles RoleLookup) *Service {
	return &Service{roles: roles}
}

// EffectivePermissions returns the permissions granted to userID within
// orgID. usedFallback reports whether FallbackRolePermissions was
// substituted because no role row exists, so callers can flag it for
// observability per the migration-affordance design note.
func (s *Service) EffectivePermissions(ctx context.Context, orgID, userID string) (perms []string, usedFallback bool, err error) {
	role, err := s.roles.RoleForUser(ctx, orgID, userID)
	if errors.Is(err, ErrRoleNotFound) {
		return shared.FallbackRolePermissions(), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return role.Permissions, false, nil
}

// HasPermission reports whether userID within orgID holds permission. It
// fails closed: any resolution error denies.
func (s *Service) HasPermission(ctx context.Context, orgID, userID, permission string) (bool, error) {
	perms, _, err := s.EffectivePermissions(ctx, orgID, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}
