package shared

// Permission names guarding the administrative surface. Catalog seeds must
// keep these in sync with the permissions table.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"
	PermPermissionsEdit = "permissions.edit"

	PermGrantsView    = "grants.view"
	PermGrantsEdit    = "grants.edit"
	PermGrantsApprove = "grants.approve"

	PermContentView   = "content.view"
	PermContentManage = "content.manage"

	PermMenusView   = "menus.view"
	PermMenusManage = "menus.manage"

	PermAuditView = "audit.view"
)

// CoreScopes lists all permissions guarding the administrative surface.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermPermissionsEdit,
		PermGrantsView,
		PermGrantsEdit,
		PermGrantsApprove,
		PermContentView,
		PermContentManage,
		PermMenusView,
		PermMenusManage,
		PermAuditView,
	}
}
