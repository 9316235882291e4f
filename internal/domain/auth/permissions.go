package auth

import "fmt"

type Permission string

const (
	PermViewAllEmployees          Permission = "employees.view_all"
	PermManageAllEmployees        Permission = "employees.manage_all"
	PermManageDepartmentEmployees Permission = "employees.manage_department"
	PermViewSalaries              Permission = "salaries.view"
	PermManagePayroll             Permission = "payroll.manage"
	PermViewReports               Permission = "reports.view"
	PermApproveRequestsInitial    Permission = "requests.approve_initial"
	PermApproveRequestsFinal      Permission = "requests.approve_final"
	PermManageWarnings            Permission = "warnings.manage"
	PermViewOrgChart              Permission = "org_chart.view"
)

// AllPermissions is the full flag list in display order.
var AllPermissions = []Permission{
	PermViewAllEmployees,
	PermManageAllEmployees,
	PermManageDepartmentEmployees,
	PermViewSalaries,
	PermManagePayroll,
	PermViewReports,
	PermApproveRequestsInitial,
	PermApproveRequestsFinal,
	PermManageWarnings,
	PermViewOrgChart,
}

// PermissionSet maps a flag to whether it is granted. Absent means denied.
type PermissionSet map[Permission]bool

var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermViewAllEmployees,
		PermManageAllEmployees,
		PermViewReports,
		PermApproveRequestsInitial,
		PermManageWarnings,
		PermViewOrgChart,
	},
	RoleDepartmentManager: {
		PermManageDepartmentEmployees,
		PermApproveRequestsInitial,
		PermViewOrgChart,
	},
	RoleEmployee: {
		PermViewOrgChart,
	},
}

// DerivePermissions returns the permission set granted to role. The result is
// a fresh map the caller may keep. Unknown roles panic: they can only come
// from a conversion that bypassed ParseRole.
func DerivePermissions(role Role) PermissionSet {
	set := make(PermissionSet, len(AllPermissions))
	for _, perm := range AllPermissions {
		set[perm] = false
	}

	if role == RoleOwner {
		for _, perm := range AllPermissions {
			set[perm] = true
		}
		return set
	}

	perms, ok := rolePermissions[role]
	if !ok {
		panic(fmt.Sprintf("auth: no permission rules for role %q", string(role)))
	}
	for _, perm := range perms {
		set[perm] = true
	}
	return set
}

// HasPermission is the single authorization predicate. A nil set, a missing
// key and an explicit false all deny.
func HasPermission(set PermissionSet, perm Permission) bool {
	if set == nil {
		return false
	}
	return set[perm]
}

// List returns the granted flags in AllPermissions order.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s))
	for _, perm := range AllPermissions {
		if HasPermission(s, perm) {
			out = append(out, perm)
		}
	}
	return out
}

// Covers reports whether every flag granted in other is also granted in s.
func (s PermissionSet) Covers(other PermissionSet) bool {
	for perm, granted := range other {
		if granted && !HasPermission(s, perm) {
			return false
		}
	}
	return true
}
