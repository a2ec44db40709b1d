package rbac

// Role identifies a user's function within the deployment workflow.
type Role string

const (
	// RoleAdmin manages sites, users and platform configuration.
	RoleAdmin Role = "admin"
	// RoleOpsManager reviews scoping submissions and owns approvals.
	RoleOpsManager Role = "ops_manager"
	// RoleDeploymentEngineer conducts site studies and submits scoping.
	RoleDeploymentEngineer Role = "deployment_engineer"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOpsManager, RoleDeploymentEngineer:
		return true
	}
	return false
}

// AccessLevel describes the visibility tier granted for a resource.
type AccessLevel string

const (
	// AccessFull grants unrestricted access to the resource group.
	AccessFull AccessLevel = "full"
	// AccessAssigned restricts visibility to records assigned to the user.
	AccessAssigned AccessLevel = "assigned"
	// AccessOwn restricts visibility to records the user created.
	AccessOwn AccessLevel = "own"
	// AccessNone denies access entirely.
	AccessNone AccessLevel = "none"
)

// AccessDescriptor is the result of evaluating a (role, path) pair.
// It is computed on demand and never persisted.
type AccessDescriptor struct {
	CanAccess bool        `json:"canAccess"`
	Level     AccessLevel `json:"accessLevel"`
	Message   string      `json:"message,omitempty"`
}
