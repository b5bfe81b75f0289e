package rbac

import (
	"context"
	"fmt"
	"sort"
)

// Service is the permission resolver
type Service struct {
	repo Repository
}

// NewService creates a new permission resolver
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// HasPermission reports whether the role holds the named permission within
// the organization. Roles carrying CapAllPermissions short-circuit true
// without a permission lookup.
func (s *Service) HasPermission(ctx context.Context, roleID, orgID int64, permissionName string) (bool, error) {
	role, err := s.repo.GetRole(ctx, roleID, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve role: %w", err)
	}

	if role.HasCapability(CapAllPermissions) {
		return true, nil
	}

	return s.repo.HasActivePermission(ctx, roleID, orgID, permissionName)
}

// PermissionsForRole returns the permission names held by the role
func (s *Service) PermissionsForRole(ctx context.Context, roleID, orgID int64) ([]string, error) {
	role, err := s.repo.GetRole(ctx, roleID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role: %w", err)
	}

	if role.HasCapability(CapAllPermissions) {
		return s.repo.ListAllPermissionNames(ctx)
	}

	return s.repo.ListGrantedPermissionNames(ctx, roleID, orgID)
}

// MenusForRole builds the two-level menu tree visible to the role. A
// sub-menu appears only nested under its parent, and only when the parent is
// itself visible. Ordering is by display order, parents before children.
func (s *Service) MenusForRole(ctx context.Context, roleID, orgID int64) ([]MenuNode, error) {
	role, err := s.repo.GetRole(ctx, roleID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role: %w", err)
	}

	var menus []Menu
	if role.HasCapability(CapAllPermissions) {
		menus, err = s.repo.ListAllMenus(ctx)
	} else {
		menus, err = s.repo.ListGrantedMenus(ctx, roleID, orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load menus: %w", err)
	}

	return buildMenuTree(menus), nil
}

// buildMenuTree nests children under their parents and sorts both levels by
// display order. Children whose parent is not visible are dropped.
func buildMenuTree(menus []Menu) []MenuNode {
	var parents []MenuNode
	parentIndex := make(map[int64]int)

	for _, m := range menus {
		if m.ParentID != nil {
			continue
		}
		parentIndex[m.ID] = len(parents)
		parents = append(parents, MenuNode{
			ID:           m.ID,
			Name:         m.Name,
			Route:        m.Route,
			Icon:         m.Icon,
			DisplayOrder: m.DisplayOrder,
		})
	}

	for _, m := range menus {
		if m.ParentID == nil {
			continue
		}
		idx, ok := parentIndex[*m.ParentID]
		if !ok {
			continue
		}
		parents[idx].Children = append(parents[idx].Children, MenuNode{
			ID:           m.ID,
			Name:         m.Name,
			Route:        m.Route,
			Icon:         m.Icon,
			DisplayOrder: m.DisplayOrder,
		})
	}

	sort.SliceStable(parents, func(i, j int) bool {
		return parents[i].DisplayOrder < parents[j].DisplayOrder
	})
	for i := range parents {
		children := parents[i].Children
		sort.SliceStable(children, func(a, b int) bool {
			return children[a].DisplayOrder < children[b].DisplayOrder
		})
	}

	return parents
}
