// Package authz defines the pipeline roles carried in access tokens.
package authz

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	RoleSales      = 10
	RoleOperations = 20
	RoleAudit      = 30
	RoleManagement = 40
	RoleAdmin      = 50
)

var roleNames = map[string]int{
	"sales":      RoleSales,
	"operations": RoleOperations,
	"audit":      RoleAudit,
	"management": RoleManagement,
	"admin":      RoleAdmin,
}

// IsElevated reports whether the role may move deals assigned to others.
func IsElevated(roleID int) bool {
	return roleID == RoleOperations || roleID == RoleManagement || roleID == RoleAdmin
}

func IsReadOnly(roleID int) bool {
	return roleID == RoleAudit
}

// ParseRole accepts a role name ("sales", "admin", ...) or its numeric id.
func ParseRole(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if id, ok := roleNames[s]; ok {
		return id, nil
	}
	if id, err := strconv.Atoi(s); err == nil {
		for _, known := range roleNames {
			if known == id {
				return id, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}
