package auth

import (
	"context"
)

// RoleChecker grants permissions from a static permission → roles map,
// typically loaded from configuration. A permission absent from the map is
// denied to everyone; the "*" role grants to any caller, anonymous included.
type RoleChecker struct {
	grants map[string][]string
}

// NewRoleChecker builds a checker over the given grant table.
func NewRoleChecker(grants map[string][]string) *RoleChecker {
	if grants == nil {
		grants = make(map[string][]string)
	}
	return &RoleChecker{grants: grants}
}

// Allowed reports whether the user holds any role granted the permission.
func (c *RoleChecker) Allowed(ctx context.Context, user User, permission string) (bool, error) {
	if permission == "" {
		return true, nil
	}
	roles, known := c.grants[permission]
	if !known {
		return false, nil
	}
	for _, role := range roles {
		if role == "*" {
			return true, nil
		}
		if user.HasRole(role) {
			return true, nil
		}
	}
	return false, nil
}
