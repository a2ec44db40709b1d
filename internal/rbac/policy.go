package rbac

import "strings"

// grant pairs an access level with the message shown alongside it.
type grant struct {
	level   AccessLevel
	message string
}

// resourceGroup maps a top-level resource to its per-role grants.
// Paths are matched against the exact entries first; dynamic sub-paths
// (e.g. /sites/xyz123) fall back to the group prefix.
type resourceGroup struct {
	prefix string
	exact  []string
	grants map[Role]grant
}

// policyTable is the single source of truth for page-level access. Order
// matters only for prefix resolution, where the first matching prefix wins.
var policyTable = []resourceGroup{
	{
		prefix: "/dashboard",
		exact:  []string{"/dashboard"},
		grants: map[Role]grant{
			RoleAdmin:              {level: AccessFull},
			RoleOpsManager:         {level: AccessFull},
			RoleDeploymentEngineer: {level: AccessFull},
		},
	},
	{
		prefix: "/sites",
		exact:  []string{"/sites", "/sites/create"},
		grants: map[Role]grant{
			RoleAdmin:              {level: AccessFull},
			RoleOpsManager:         {level: AccessAssigned, message: "Viewing assigned sites only"},
			RoleDeploymentEngineer: {level: AccessAssigned, message: "Viewing assigned sites only"},
		},
	},
	{
		prefix: "/approvals-procurement",
		exact: []string{
			"/approvals-procurement",
			"/approvals-procurement/hardware-approvals",
			"/approvals-procurement/hardware-scoping",
			"/approvals-procurement/hardware-master",
		},
		grants: map[Role]grant{
			RoleAdmin:              {level: AccessFull},
			RoleOpsManager:         {level: AccessFull, message: "Full access to approvals"},
			RoleDeploymentEngineer: {level: AccessOwn, message: "Viewing own submissions and related approvals only"},
		},
	},
	{
		prefix: "/deployment",
		exact:  []string{"/deployment"},
		grants: map[Role]grant{
			RoleAdmin:              {level: AccessFull},
			RoleOpsManager:         {level: AccessAssigned, message: "Viewing assigned deployments only"},
			RoleDeploymentEngineer: {level: AccessAssigned, message: "Viewing assigned deployments only"},
		},
	},
	{
		prefix: "/assets",
		exact:  []string{"/assets", "/assets/inventory", "/assets/license-management"},
		grants: map[Role]grant{
			RoleAdmin:              {level: AccessFull},
			RoleOpsManager:         {level: AccessFull, message: "Full access to all assets"},
			RoleDeploymentEngineer: {level: AccessAssigned, message: "Viewing assigned site assets only"},
		},
	},
	{
		prefix: "/platform-configuration",
		exact:  []string{"/platform-configuration", "/platform-configuration/admin", "/admin"},
		grants: map[Role]grant{
			RoleAdmin: {level: AccessFull},
		},
		// non-admin denial carries its own message, see resolveGroup
	},
}

// Resolve evaluates page access for a role and a normalized resource path.
// It is deterministic and never fails: unknown roles and paths map to a
// deny descriptor rather than an error.
func Resolve(role Role, path string) AccessDescriptor {
	if role == "" || !role.Valid() {
		return AccessDescriptor{CanAccess: false, Level: AccessNone, Message: "No role assigned"}
	}

	path = normalizePath(path)

	for _, group := range policyTable {
		for _, exact := range group.exact {
			if path == exact {
				return resolveGroup(group, role)
			}
		}
	}

	for _, group := range policyTable {
		if strings.HasPrefix(path, group.prefix+"/") || path == group.prefix {
			return resolveGroup(group, role)
		}
	}

	return AccessDescriptor{CanAccess: false, Level: AccessNone, Message: "Page not found"}
}

// GroupLevel returns the access level a role holds on a resource group
// prefix, AccessNone when the group is unknown. Services use this to gate
// actions (e.g. only roles with full approvals access may review).
func GroupLevel(role Role, prefix string) AccessLevel {
	return Resolve(role, prefix).Level
}

func resolveGroup(group resourceGroup, role Role) AccessDescriptor {
	g, ok := group.grants[role]
	if !ok {
		message := "Access denied"
		if group.prefix == "/platform-configuration" {
			message = "Admin access required"
		}
		return AccessDescriptor{CanAccess: false, Level: AccessNone, Message: message}
	}
	return AccessDescriptor{CanAccess: true, Level: g.level, Message: g.message}
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
