package rbac

import "time"

// Role groups a set of permissions under a name, scoped to one organization
// (e.g. "owner", "staff"). Two orgs can both have a role named "staff" with
// different permission sets.
type Role struct {
	ID          string
	OrgID       string
	Name        string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
