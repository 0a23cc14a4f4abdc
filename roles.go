package session

// Permission identifies a capability screens gate on.
type Permission string

const (
	// PermissionAddTransactions allows recording revenue/expense entries
	PermissionAddTransactions Permission = "add_transactions"
	// PermissionDeleteTransactions allows removing recorded entries
	PermissionDeleteTransactions Permission = "delete_transactions"
	// PermissionViewStatistics allows access to the statistics screens
	PermissionViewStatistics Permission = "view_statistics"
	// PermissionManageTeam allows inviting and removing members
	PermissionManageTeam Permission = "manage_team"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleEmployee, RoleAccountant:
		return true
	default:
		return false
	}
}

// Can reports whether the role grants the given permission. An empty role
// grants nothing.
func (r Role) Can(p Permission) bool {
	if !r.IsValid() {
		return false
	}

	switch p {
	case PermissionAddTransactions:
		return true
	case PermissionDeleteTransactions:
		return r == RoleOwner || r == RoleManager
	case PermissionViewStatistics, PermissionManageTeam:
		return r == RoleOwner
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleEmployee:   0,
		RoleAccountant: 1,
		RoleManager:    2,
		RoleOwner:      3,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleEmployee,
		RoleAccountant,
		RoleManager,
		RoleOwner,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
