package auth

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleOwner             Role = "owner"
	RoleAdmin             Role = "admin"
	RoleDepartmentManager Role = "department_manager"
	RoleEmployee          Role = "employee"
)

var Roles = []Role{RoleOwner, RoleAdmin, RoleDepartmentManager, RoleEmployee}

func ParseRole(raw string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, role := range Roles {
		if string(role) == normalized {
			return role, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

func (r Role) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Actor is the caller-supplied identity every guarded entry point receives.
type Actor struct {
	EmployeeID string `json:"employeeId"`
	Role       Role   `json:"role"`
}

// Permissions is empty for an actor carrying an unknown role.
func (a Actor) Permissions() PermissionSet {
	if !a.Role.Valid() {
		return PermissionSet{}
	}
	return DerivePermissions(a.Role)
}

func (a Actor) Can(perm Permission) bool {
	return HasPermission(a.Permissions(), perm)
}

// CanAssignRole reports whether an actor holding set may grant or revoke
// target. Employee management is required, and the owner role can only be
// handled by an actor whose set covers the owner's.
func CanAssignRole(set PermissionSet, target Role) bool {
	if !HasPermission(set, PermManageAllEmployees) {
		return false
	}
	if target == RoleOwner {
		return set.Covers(DerivePermissions(RoleOwner))
	}
	return true
}

// CanGrantInDepartment reports whether a department-scoped actor holding set
// may create an employee with target. The target set must carry no
// employee-management or directory-wide flag and must be covered by set.
func CanGrantInDepartment(set PermissionSet, target Role) bool {
	if !HasPermission(set, PermManageDepartmentEmployees) || !target.Valid() {
		return false
	}
	granted := DerivePermissions(target)
	for _, perm := range []Permission{PermViewAllEmployees, PermManageAllEmployees, PermManageDepartmentEmployees} {
		if granted[perm] {
			return false
		}
	}
	return set.Covers(granted)
}
