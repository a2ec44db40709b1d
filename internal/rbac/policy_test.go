package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTable(t *testing.T) {
	cases := []struct {
		role  Role
		path  string
		level AccessLevel
	}{
		{RoleAdmin, "/dashboard", AccessFull},
		{RoleOpsManager, "/dashboard", AccessFull},
		{RoleDeploymentEngineer, "/dashboard", AccessFull},

		{RoleAdmin, "/sites", AccessFull},
		{RoleOpsManager, "/sites", AccessAssigned},
		{RoleDeploymentEngineer, "/sites", AccessAssigned},
		{RoleDeploymentEngineer, "/sites/create", AccessAssigned},

		{RoleAdmin, "/approvals-procurement", AccessFull},
		{RoleOpsManager, "/approvals-procurement", AccessFull},
		{RoleDeploymentEngineer, "/approvals-procurement", AccessOwn},
		{RoleOpsManager, "/approvals-procurement/hardware-master", AccessFull},
		{RoleDeploymentEngineer, "/approvals-procurement/hardware-scoping", AccessOwn},

		{RoleAdmin, "/deployment", AccessFull},
		{RoleOpsManager, "/deployment", AccessAssigned},
		{RoleDeploymentEngineer, "/deployment", AccessAssigned},

		{RoleAdmin, "/assets", AccessFull},
		{RoleOpsManager, "/assets/inventory", AccessFull},
		{RoleDeploymentEngineer, "/assets/license-management", AccessAssigned},

		{RoleAdmin, "/platform-configuration", AccessFull},
		{RoleAdmin, "/admin", AccessFull},
	}
	for _, tc := range cases {
		got := Resolve(tc.role, tc.path)
		require.True(t, got.CanAccess, "%s %s", tc.role, tc.path)
		require.Equal(t, tc.level, got.Level, "%s %s", tc.role, tc.path)
	}
}

func TestResolveDeniesPlatformConfigurationForNonAdmins(t *testing.T) {
	for _, role := range []Role{RoleOpsManager, RoleDeploymentEngineer} {
		got := Resolve(role, "/platform-configuration")
		require.False(t, got.CanAccess)
		require.Equal(t, AccessNone, got.Level)
		require.Equal(t, "Admin access required", got.Message)
	}
}

func TestResolvePrefixFallback(t *testing.T) {
	got := Resolve(RoleDeploymentEngineer, "/sites/xyz123/study")
	require.True(t, got.CanAccess)
	require.Equal(t, AccessAssigned, got.Level)

	got = Resolve(RoleDeploymentEngineer, "/approvals-procurement/xyz123")
	require.True(t, got.CanAccess)
	require.Equal(t, AccessOwn, got.Level)

	got = Resolve(RoleAdmin, "/platform-configuration/feature-flags")
	require.True(t, got.CanAccess)
	require.Equal(t, AccessFull, got.Level)
}

func TestResolveDefaultDeny(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleOpsManager, RoleDeploymentEngineer} {
		got := Resolve(role, "/no-such-page")
		require.False(t, got.CanAccess)
		require.Equal(t, AccessNone, got.Level)
		require.Equal(t, "Page not found", got.Message)
	}
}

func TestResolveNoRole(t *testing.T) {
	got := Resolve("", "/dashboard")
	require.False(t, got.CanAccess)
	require.Equal(t, AccessNone, got.Level)
	require.Equal(t, "No role assigned", got.Message)

	got = Resolve("intruder", "/dashboard")
	require.False(t, got.CanAccess)
	require.Equal(t, "No role assigned", got.Message)
}

func TestResolveDeterministic(t *testing.T) {
	first := Resolve(RoleOpsManager, "/approvals-procurement/hardware-approvals")
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Resolve(RoleOpsManager, "/approvals-procurement/hardware-approvals"))
	}
}

func TestResolveNormalizesPath(t *testing.T) {
	require.Equal(t, Resolve(RoleAdmin, "/sites"), Resolve(RoleAdmin, "/sites/"))
	require.Equal(t, Resolve(RoleAdmin, "/sites"), Resolve(RoleAdmin, "sites"))
}

func TestGroupLevel(t *testing.T) {
	require.Equal(t, AccessFull, GroupLevel(RoleOpsManager, "/approvals-procurement"))
	require.Equal(t, AccessOwn, GroupLevel(RoleDeploymentEngineer, "/approvals-procurement"))
	require.Equal(t, AccessNone, GroupLevel(RoleOpsManager, "/platform-configuration"))
}
