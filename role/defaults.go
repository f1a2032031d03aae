package role

import "github.com/xraph/bastion/permission"

// Builtin returns the default role matrix. The chain is not a strict
// superset: admin does not hold workflow:approve, which manager does.
func Builtin() []Definition {
	return []Definition{
		{
			Name:        SuperAdmin,
			Description: "Unrestricted access including backups and the audit log",
			Rank:        50,
			Permissions: allOf(permission.Builtin()),
		},
		{
			Name:        Admin,
			Description: "Administers users, integrations and system settings",
			Rank:        40,
			Permissions: []permission.Permission{
				permission.WorkflowRead,
				permission.WorkflowCreate,
				permission.WorkflowUpdate,
				permission.WorkflowDelete,
				permission.WorkflowExecute,
				permission.IntegrationRead,
				permission.IntegrationCreate,
				permission.IntegrationUpdate,
				permission.IntegrationDelete,
				permission.AnalyticsRead,
				permission.AnalyticsExport,
				permission.BillingRead,
				permission.BillingManage,
				permission.UserRead,
				permission.UserCreate,
				permission.UserUpdate,
				permission.UserDelete,
				permission.UserRoleAssign,
				permission.SystemConfig,
			},
		},
		{
			Name:        Manager,
			Description: "Runs and approves workflows for a team",
			Rank:        30,
			Permissions: []permission.Permission{
				permission.WorkflowRead,
				permission.WorkflowCreate,
				permission.WorkflowUpdate,
				permission.WorkflowExecute,
				permission.WorkflowApprove,
				permission.IntegrationRead,
				permission.IntegrationUpdate,
				permission.AnalyticsRead,
				permission.AnalyticsExport,
				permission.BillingRead,
				permission.UserRead,
			},
		},
		{
			Name:        User,
			Description: "Builds and runs workflows",
			Rank:        20,
			Permissions: []permission.Permission{
				permission.WorkflowRead,
				permission.WorkflowCreate,
				permission.WorkflowExecute,
				permission.IntegrationRead,
				permission.AnalyticsRead,
			},
		},
		{
			Name:        Viewer,
			Description: "Read-only access",
			Rank:        10,
			Permissions: []permission.Permission{
				permission.WorkflowRead,
				permission.IntegrationRead,
				permission.AnalyticsRead,
			},
		},
	}
}

// DefaultRegistry builds the registry from the builtin catalog and matrix.
// It panics if the builtin tables disagree, which is a programming error.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry(permission.DefaultCatalog(), Builtin()...)
	if err != nil {
		panic(err)
	}
	return reg
}

func allOf(defs []permission.Definition) []permission.Permission {
	out := make([]permission.Permission, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}
