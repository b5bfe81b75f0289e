// Package rbac resolves role-based permissions and the permission-gated
// navigation menu tree.
package rbac

import "errors"

// ErrRoleNotFound indicates the role does not exist in the given organization
var ErrRoleNotFound = errors.New("role not found")

// Capability is a role-level flag resolved once at role-definition time.
// Permission logic checks capabilities instead of hardcoded role ids.
type Capability string

const (
	// CapAllPermissions grants every permission without a lookup
	CapAllPermissions Capability = "all_permissions"

	// CapManageRoles marks roles allowed to administer role definitions
	CapManageRoles Capability = "manage_roles"
)

// Role has an id, an organization scope, and a set of capabilities
type Role struct {
	ID           int64
	OrgID        int64
	Name         string
	Capabilities []Capability
}

// HasCapability reports whether the role carries the given capability
func (r Role) HasCapability(c Capability) bool {
	for _, have := range r.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Permission is a named grantable action
type Permission struct {
	ID     int64
	Name   string
	Active bool
}

// RolePermission associates a permission to a role within an organization
type RolePermission struct {
	RoleID       int64
	OrgID        int64
	PermissionID int64
	Active       bool
}

// Menu is a navigational entry. Menus form a two-level structure: top-level
// entries have no parent, sub-menus reference a top-level parent. Visibility
// is gated by the attached permissions.
type Menu struct {
	ID           int64
	ParentID     *int64
	Name         string
	Route        string
	Icon         string
	DisplayOrder int
	// PermissionIDs gate visibility; holding any one of them is enough
	PermissionIDs []int64
}

// MenuNode is a menu with its visible children attached
type MenuNode struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Route        string     `json:"route,omitempty"`
	Icon         string     `json:"icon,omitempty"`
	DisplayOrder int        `json:"display_order"`
	Children     []MenuNode `json:"children,omitempty"`
}
