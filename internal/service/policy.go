package service

import "github.com/atelierhq/studio-cms-api/internal/models"

// Action names a permission checked against the policy table.
type Action string

const (
	ActionContentWrite          Action = "content:write"
	ActionUsersList             Action = "users:list"
	ActionUsersCreate           Action = "users:create"
	ActionUsersCreatePrivileged Action = "users:create_privileged"
	ActionUsersChangeRole       Action = "users:change_role"
	ActionUsersDelete           Action = "users:delete"
	ActionAuditRead             Action = "audit:read"
	ActionUploadsWrite          Action = "uploads:write"
)

// policy is the single source of truth mapping actions to the roles allowed
// to perform them. Route guards and service checks both consult it so the two
// can never drift apart.
var policy = map[Action][]models.UserRole{
	ActionContentWrite:          {models.RoleSuperAdmin, models.RoleAdmin, models.RoleEditor},
	ActionUsersList:             {models.RoleSuperAdmin, models.RoleAdmin},
	ActionUsersCreate:           {models.RoleSuperAdmin, models.RoleAdmin},
	ActionUsersCreatePrivileged: {models.RoleSuperAdmin},
	ActionUsersChangeRole:       {models.RoleSuperAdmin},
	ActionUsersDelete:           {models.RoleSuperAdmin},
	ActionAuditRead:             {models.RoleSuperAdmin, models.RoleAdmin},
	ActionUploadsWrite:          {models.RoleSuperAdmin, models.RoleAdmin, models.RoleEditor},
}

// Allowed reports whether the role may perform the action. Unknown actions are
// always denied.
func Allowed(action Action, role models.UserRole) bool {
	for _, allowed := range policy[action] {
		if allowed == role {
			return true
		}
	}
	return false
}

// RolesFor returns the roles permitted for an action as plain strings, used to
// configure route-level guards.
func RolesFor(action Action) []string {
	roles := make([]string, 0, len(policy[action]))
	for _, role := range policy[action] {
		roles = append(roles, string(role))
	}
	return roles
}
