package shared

// Core platform permission codes, <resource>:<action> convention.
const (
	PermUsersView = "users:view"
	PermUsersEdit = "users:edit"

	PermRolesView = "roles:view"
	PermRolesEdit = "roles:edit"

	PermResourcesView = "resources:view"
	PermResourcesEdit = "resources:edit"

	PermPermissionsView = "permissions:view"
)

// CoreScopes lists all permission codes of the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermResourcesView,
		PermResourcesEdit,
		PermPermissionsView,
	}
}
