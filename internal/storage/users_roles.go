package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kiranaflow/kiranaflow/internal/rbac"
)

// GetUser returns a user by subject id, regardless of org — used right
// after JWT verification, before the org is known.
func (r *Repository) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `SELECT id, org_id, email, name, role_id, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.OrgID, &u.Email, &u.Name, &u.RoleID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser JIT-provisions a user row keyed by the identity provider's
// subject id, with no org assigned yet.
func (r *Repository) CreateUser(ctx context.Context, id, email, name string) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, org_id, email, name, role_id, created_at)
		VALUES ($1, '', $2, $3, '', now())
		RETURNING id, org_id, email, name, role_id, created_at`, id, email, name).
		Scan(&u.ID, &u.OrgID, &u.Email, &u.Name, &u.RoleID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("provision user %s: %w", id, err)
	}
	return &u, nil
}

// ListUsers returns every user belonging to an org, used by the admin user
// directory.
func (r *Repository) ListUsers(ctx context.Context, orgID string) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, org_id, email, name, role_id, created_at FROM users WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.OrgID, &u.Email, &u.Name, &u.RoleID, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListRoles returns every role defined for an org, used by the admin role
// editor.
func (r *Repository) ListRoles(ctx context.Context, orgID string) ([]rbac.Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, org_id, name, permissions, created_at, updated_at FROM roles WHERE org_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var role rbac.Role
		var perms []string
		if err := rows.Scan(&role.ID, &role.OrgID, &role.Name, &perms, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.Permissions = perms
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// RoleForUser implements rbac.RoleLookup against the users/roles tables.
func (r *Repository) RoleForUser(ctx context.Context, orgID, userID string) (*rbac.Role, error) {
	var roleID string
	if err := r.pool.QueryRow(ctx, `SELECT role_id FROM users WHERE id = $1 AND org_id = $2`, userID, orgID).Scan(&roleID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rbac.ErrRoleNotFound
		}
		return nil, err
	}
	if roleID == "" {
		return nil, rbac.ErrRoleNotFound
	}
	var role rbac.Role
	var perms []string
	err := r.pool.QueryRow(ctx, `SELECT id, org_id, name, permissions, created_at, updated_at FROM roles WHERE id = $1 AND org_id = $2`, roleID, orgID).
		Scan(&role.ID, &role.OrgID, &role.Name, &perms, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rbac.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}
