package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func setupResolver(t *testing.T) (*Service, *InMemRepository) {
	t.Helper()
	repo := NewInMemRepository()
	return NewService(repo), repo
}

func TestService_HasPermission(t *testing.T) {
	ctx := context.Background()
	svc, repo := setupResolver(t)

	repo.AddRole(Role{ID: 2, OrgID: 1, Name: "operator"})
	repo.AddPermission(Permission{ID: 10, Name: "orders.read", Active: true})
	repo.AddPermission(Permission{ID: 11, Name: "orders.write", Active: true})
	repo.GrantPermission(RolePermission{RoleID: 2, OrgID: 1, PermissionID: 10, Active: true})

	allowed, err := svc.HasPermission(ctx, 2, 1, "orders.read")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.HasPermission(ctx, 2, 1, "orders.write")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestService_HasPermission_InactiveGrantDenied(t *testing.T) {
	ctx := context.Background()
	svc, repo := setupResolver(t)

	repo.AddRole(Role{ID: 2, OrgID: 1, Name: "operator"})
	repo.AddPermission(Permission{ID: 10, Name: "orders.read", Active: true})
	repo.AddPermission(Permission{ID: 11, Name: "orders.write", Active: false})
	repo.GrantPermission(RolePermission{RoleID: 2, OrgID: 1, PermissionID: 10, Active: false})
	repo.GrantPermission(RolePermission{RoleID: 2, OrgID: 1, PermissionID: 11, Active: true})

	// Inactive grant
	allowed, err := svc.HasPermission(ctx, 2, 1, "orders.read")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Active grant of an inactive permission
	allowed, err = svc.HasPermission(ctx, 2, 1, "orders.write")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestService_SuperAdminCapability(t *testing.T) {
	ctx := context.Background()
	svc, repo := setupResolver(t)

	repo.AddRole(Role{ID: 1, OrgID: 1, Name: "admin", Capabilities: []Capability{CapAllPermissions}})
	repo.AddPermission(Permission{ID: 10, Name: "orders.read", Active: true})
	repo.AddPermission(Permission{ID: 11, Name: "orders.write", Active: true})

	// No explicit grants, but the capability short-circuits everything
	allowed, err := svc.HasPermission(ctx, 1, 1, "orders.write")
	require.NoError(t, err)
	assert.True(t, allowed)

	perms, err := svc.PermissionsForRole(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders.read", "orders.write"}, perms)
}

func TestService_UnknownRole(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupResolver(t)

	_, err := svc.HasPermission(ctx, 99, 1, "orders.read")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestService_MenusForRole_TreeShape(t *testing.T) {
	ctx := context.Background()
	svc, repo := setupResolver(t)

	repo.AddRole(Role{ID: 2, OrgID: 1, Name: "operator"})
	repo.AddPermission(Permission{ID: 10, Name: "orders.read", Active: true})
	repo.GrantPermission(RolePermission{RoleID: 2, OrgID: 1, PermissionID: 10, Active: true})

	repo.AddMenu(Menu{ID: 1, Name: "Orders", Route: "/orders", DisplayOrder: 2, PermissionIDs: []int64{10}})
	repo.AddMenu(Menu{ID: 2, Name: "Dashboard", Route: "/", DisplayOrder: 1, PermissionIDs: []int64{10}})
	repo.AddMenu(Menu{ID: 3, ParentID: int64Ptr(1), Name: "Pending", Route: "/orders/pending", DisplayOrder: 2, PermissionIDs: []int64{10}})
	repo.AddMenu(Menu{ID: 4, ParentID: int64Ptr(1), Name: "Archive", Route: "/orders/archive", DisplayOrder: 1, PermissionIDs: []int64{10}})

	tree, err := svc.MenusForRole(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, tree, 2)

	// Parents sorted by display order
	assert.Equal(t, "Dashboard", tree[0].Name)
	assert.Equal(t, "Orders", tree[1].Name)
	assert.Empty(t, tree[0].Children)

	// Children nested under their parent and sorted too
	require.Len(t, tree[1].Children, 2)
	assert.Equal(t, "Archive", tree[1].Children[0].Name)
	assert.Equal(t, "Pending", tree[1].Children[1].Name)
}

func TestService_MenusForRole_HiddenParentHidesChildren(t *testing.T) {
	ctx := context.Background()
	svc, repo := setupResolver(t)

	repo.AddRole(Role{ID: 2, OrgID: 1, Name: "operator"})
	repo.AddPermission(Permission{ID: 10, Name: "orders.read", Active: true})
	repo.AddPermission(Permission{ID: 20, Name: "admin.read", Active: true})
	repo.GrantPermission(RolePermission{RoleID: 2, OrgID: 1, PermissionID: 10, Active: true})

	// The child is gated by a held permission but its parent is not
	repo.AddMenu(Menu{ID: 1, Name: "Admin", Route: "/admin", DisplayOrder: 1, PermissionIDs: []int64{20}})
	repo.AddMenu(Menu{ID: 2, ParentID: int64Ptr(1), Name: "Users", Route: "/admin/users", DisplayOrder: 1, PermissionIDs: []int64{10}})

	tree, err := svc.MenusForRole(ctx, 2, 1)
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestService_MenusForRole_NoPermissions(t *testing.T) {
	ctx := context.Background()
	svc, repo := setupResolver(t)

	repo.AddRole(Role{ID: 3, OrgID: 1, Name: "intern"})
	repo.AddPermission(Permission{ID: 10, Name: "orders.read", Active: true})
	repo.AddMenu(Menu{ID: 1, Name: "Orders", Route: "/orders", DisplayOrder: 1, PermissionIDs: []int64{10}})

	tree, err := svc.MenusForRole(ctx, 3, 1)
	require.NoError(t, err)
	assert.Empty(t, tree)
}
