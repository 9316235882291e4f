package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePermissionsDeterministic(t *testing.T) {
	for _, role := range Roles {
		first := DerivePermissions(role)
		second := DerivePermissions(role)
		assert.Equal(t, first, second, "role %s", role)
	}
}

func TestDerivePermissionsReturnsFreshMap(t *testing.T) {
	set := DerivePermissions(RoleEmployee)
	set[PermManagePayroll] = true

	assert.False(t, HasPermission(DerivePermissions(RoleEmployee), PermManagePayroll))
}

func TestOwnerIsSupersetOfEveryRole(t *testing.T) {
	owner := DerivePermissions(RoleOwner)
	for _, perm := range AllPermissions {
		assert.True(t, HasPermission(owner, perm), "owner missing %s", perm)
	}
	for _, role := range Roles {
		assert.True(t, owner.Covers(DerivePermissions(role)), "owner does not cover %s", role)
	}
}

func TestRoleRules(t *testing.T) {
	cases := map[Role][]Permission{
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
	for role, want := range cases {
		assert.Equal(t, want, DerivePermissions(role).List(), "role %s", role)
	}

	admin := DerivePermissions(RoleAdmin)
	assert.False(t, HasPermission(admin, PermManagePayroll))
	assert.False(t, HasPermission(admin, PermViewSalaries))
	assert.False(t, HasPermission(admin, PermApproveRequestsFinal))
}

func TestHasPermissionFailsClosed(t *testing.T) {
	assert.False(t, HasPermission(nil, PermViewOrgChart))
	assert.False(t, HasPermission(PermissionSet{}, PermViewOrgChart))
	assert.False(t, HasPermission(PermissionSet{PermViewOrgChart: false}, PermViewOrgChart))
	assert.True(t, HasPermission(PermissionSet{PermViewOrgChart: true}, PermViewOrgChart))
}

func TestDerivePermissionsUnknownRolePanics(t *testing.T) {
	assert.Panics(t, func() { DerivePermissions(Role("intern")) })
}

func TestActorCanRejectsInvalidRole(t *testing.T) {
	assert.False(t, Actor{EmployeeID: "1", Role: Role("intern")}.Can(PermViewOrgChart))
	assert.True(t, Actor{EmployeeID: "1", Role: RoleEmployee}.Can(PermViewOrgChart))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Department-Manager ")
	require.NoError(t, err)
	assert.Equal(t, RoleDepartmentManager, role)

	_, err = ParseRole("ceo")
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	actor := Actor{EmployeeID: "10001", Role: RoleOwner}
	token, err := GenerateToken("secret", actor, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Actor())

	_, err = ParseToken("other-secret", token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Owner123!")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword(hash, "Owner123!"))
	assert.Error(t, CheckPassword(hash, "wrong"))
	assert.Error(t, CheckPassword("", "Owner123!"))
}

func TestCanAssignRole(t *testing.T) {
	owner := DerivePermissions(RoleOwner)
	admin := DerivePermissions(RoleAdmin)
	manager := DerivePermissions(RoleDepartmentManager)

	assert.True(t, CanAssignRole(owner, RoleOwner))
	assert.True(t, CanAssignRole(admin, RoleDepartmentManager))
	assert.False(t, CanAssignRole(admin, RoleOwner))
	assert.False(t, CanAssignRole(manager, RoleEmployee))
}

func TestCanGrantInDepartment(t *testing.T) {
	manager := DerivePermissions(RoleDepartmentManager)

	assert.True(t, CanGrantInDepartment(manager, RoleEmployee))
	assert.False(t, CanGrantInDepartment(manager, RoleDepartmentManager))
	assert.False(t, CanGrantInDepartment(manager, RoleAdmin))
	assert.False(t, CanGrantInDepartment(manager, RoleOwner))
	assert.False(t, CanGrantInDepartment(manager, Role("intern")))
	assert.False(t, CanGrantInDepartment(DerivePermissions(RoleEmployee), RoleEmployee))
}
