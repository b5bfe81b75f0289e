package rbac

import (
	"context"
	"sort"
	"sync"
)

type roleKey struct {
	roleID int64
	orgID  int64
}

// InMemRepository implements Repository using in-memory storage. Intended
// for tests and single-instance development setups.
type InMemRepository struct {
	mu              sync.RWMutex
	roles           map[roleKey]Role
	permissions     map[int64]Permission
	rolePermissions []RolePermission
	menus           []Menu
}

// NewInMemRepository creates a new in-memory rbac repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		roles:       make(map[roleKey]Role),
		permissions: make(map[int64]Permission),
	}
}

// AddRole seeds a role definition. Test helper.
func (r *InMemRepository) AddRole(role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[roleKey{role.ID, role.OrgID}] = role
}

// AddPermission seeds a permission. Test helper.
func (r *InMemRepository) AddPermission(p Permission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permissions[p.ID] = p
}

// GrantPermission seeds a role-permission association. Test helper.
func (r *InMemRepository) GrantPermission(rp RolePermission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolePermissions = append(r.rolePermissions, rp)
}

// AddMenu seeds a menu entry. Test helper.
func (r *InMemRepository) AddMenu(m Menu) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.menus = append(r.menus, m)
}

// GetRole retrieves a role definition
func (r *InMemRepository) GetRole(ctx context.Context, roleID, orgID int64) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[roleKey{roleID, orgID}]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

// HasActivePermission checks for an active grant of an active permission
func (r *InMemRepository) HasActivePermission(ctx context.Context, roleID, orgID int64, permissionName string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rp := range r.rolePermissions {
		if rp.RoleID != roleID || rp.OrgID != orgID || !rp.Active {
			continue
		}
		perm, ok := r.permissions[rp.PermissionID]
		if ok && perm.Active && perm.Name == permissionName {
			return true, nil
		}
	}
	return false, nil
}

// ListGrantedPermissionNames returns active permission names granted to the role
func (r *InMemRepository) ListGrantedPermissionNames(ctx context.Context, roleID, orgID int64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, rp := range r.rolePermissions {
		if rp.RoleID != roleID || rp.OrgID != orgID || !rp.Active {
			continue
		}
		perm, ok := r.permissions[rp.PermissionID]
		if ok && perm.Active {
			names = append(names, perm.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListAllPermissionNames returns the names of all active permissions
func (r *InMemRepository) ListAllPermissionNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, perm := range r.permissions {
		if perm.Active {
			names = append(names, perm.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// grantedPermissionIDs collects active permission ids granted to the role.
// Caller must hold the read lock.
func (r *InMemRepository) grantedPermissionIDs(roleID, orgID int64) map[int64]bool {
	granted := make(map[int64]bool)
	for _, rp := range r.rolePermissions {
		if rp.RoleID != roleID || rp.OrgID != orgID || !rp.Active {
			continue
		}
		perm, ok := r.permissions[rp.PermissionID]
		if ok && perm.Active {
			granted[rp.PermissionID] = true
		}
	}
	return granted
}

// ListGrantedMenus returns menus gated by at least one held permission
func (r *InMemRepository) ListGrantedMenus(ctx context.Context, roleID, orgID int64) ([]Menu, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	granted := r.grantedPermissionIDs(roleID, orgID)

	var visible []Menu
	for _, m := range r.menus {
		for _, pid := range m.PermissionIDs {
			if granted[pid] {
				visible = append(visible, m)
				break
			}
		}
	}
	return visible, nil
}

// ListAllMenus returns every menu
func (r *InMemRepository) ListAllMenus(ctx context.Context) ([]Menu, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	menus := make([]Menu, len(r.menus))
	copy(menus, r.menus)
	return menus, nil
}
