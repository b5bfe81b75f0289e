package rbac

import "context"

// Repository defines read-only access to the role, permission, and menu
// tables. This subsystem never mutates them.
type Repository interface {
	// GetRole retrieves a role definition, capabilities included
	GetRole(ctx context.Context, roleID, orgID int64) (Role, error)

	// HasActivePermission reports whether an active role-permission row links
	// the role to an active permission with the given name
	HasActivePermission(ctx context.Context, roleID, orgID int64, permissionName string) (bool, error)

	// ListGrantedPermissionNames returns the names of active permissions
	// granted to the role
	ListGrantedPermissionNames(ctx context.Context, roleID, orgID int64) ([]string, error)

	// ListAllPermissionNames returns the names of all active permissions
	ListAllPermissionNames(ctx context.Context) ([]string, error)

	// ListGrantedMenus returns menus gated by at least one permission the
	// role holds
	ListGrantedMenus(ctx context.Context, roleID, orgID int64) ([]Menu, error)

	// ListAllMenus returns every menu
	ListAllMenus(ctx context.Context) ([]Menu, error)
}
