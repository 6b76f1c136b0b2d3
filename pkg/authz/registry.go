package authz

const (
	RolePlatformAdmin = "platform-admin"
	RoleTenantAdmin   = "tenant-admin"
	RoleOperator      = "operator"
	RoleAuditor       = "auditor"
	RoleAnonymous     = "anonymous"
)

const (
	ActionExecute = "execute"
	ActionRead    = "read"
	ActionReview  = "review"
	ActionAdmin   = "admin"
)

const DomainGlobal = "global"

const (
	ObjectTasks           = "execution.tasks"
	ObjectAuditLog        = "execution.audit-log"
	ObjectPlatformTenants = "platform.tenants"
)
