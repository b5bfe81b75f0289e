package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository backed by PostgreSQL. All
// queries are reads; this subsystem treats the rbac tables as read-only.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL rbac repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetRole retrieves a role definition with its capabilities
func (r *PostgresRepository) GetRole(ctx context.Context, roleID, orgID int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, org_id, name FROM roles WHERE id = $1 AND org_id = $2`,
		roleID, orgID).Scan(&role.ID, &role.OrgID, &role.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("failed to query role: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT capability FROM role_capabilities WHERE role_id = $1 AND org_id = $2`,
		roleID, orgID)
	if err != nil {
		return Role{}, fmt.Errorf("failed to query role capabilities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return Role{}, fmt.Errorf("failed to scan role capability: %w", err)
		}
		role.Capabilities = append(role.Capabilities, Capability(c))
	}
	return role, rows.Err()
}

// HasActivePermission checks for an active grant of an active permission
func (r *PostgresRepository) HasActivePermission(ctx context.Context, roleID, orgID int64, permissionName string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1
			FROM role_permissions rp
			JOIN permissions p ON p.id = rp.permission_id
			WHERE rp.role_id = $1 AND rp.org_id = $2
			  AND rp.active AND p.active AND p.name = $3
		)`,
		roleID, orgID, permissionName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query role permission: %w", err)
	}
	return exists, nil
}

// ListGrantedPermissionNames returns active permission names granted to the role
func (r *PostgresRepository) ListGrantedPermissionNames(ctx context.Context, roleID, orgID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.name
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = $1 AND rp.org_id = $2 AND rp.active AND p.active
		 ORDER BY p.name`,
		roleID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query granted permissions: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

// ListAllPermissionNames returns the names of all active permissions
func (r *PostgresRepository) ListAllPermissionNames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name FROM permissions WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

const menuColumns = `m.id, m.parent_id, m.name, COALESCE(m.route, ''),
	COALESCE(m.icon, ''), m.display_order`

// ListGrantedMenus returns menus gated by at least one held permission
func (r *PostgresRepository) ListGrantedMenus(ctx context.Context, roleID, orgID int64) ([]Menu, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT `+menuColumns+`
		 FROM menus m
		 JOIN menu_permissions mp ON mp.menu_id = m.id
		 JOIN role_permissions rp ON rp.permission_id = mp.permission_id
		 JOIN permissions p ON p.id = mp.permission_id
		 WHERE rp.role_id = $1 AND rp.org_id = $2 AND rp.active AND p.active
		 ORDER BY m.display_order`,
		roleID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query granted menus: %w", err)
	}
	defer rows.Close()

	return scanMenus(rows)
}

// ListAllMenus returns every menu
func (r *PostgresRepository) ListAllMenus(ctx context.Context) ([]Menu, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+menuColumns+` FROM menus m ORDER BY m.display_order`)
	if err != nil {
		return nil, fmt.Errorf("failed to query menus: %w", err)
	}
	defer rows.Close()

	return scanMenus(rows)
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanMenus(rows pgx.Rows) ([]Menu, error) {
	var menus []Menu
	for rows.Next() {
		var m Menu
		if err := rows.Scan(&m.ID, &m.ParentID, &m.Name, &m.Route, &m.Icon, &m.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan menu: %w", err)
		}
		menus = append(menus, m)
	}
	return menus, rows.Err()
}
