package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/analytics-hub/authhub/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the catalogs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permissionColumns = `id, name, module, action, resource, parent_id, is_active, created_at, updated_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Module, &p.Action, &p.Resource, &p.ParentID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListPermissions returns all permissions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetPermissionByName fetches a single permission by its unique name.
func (r *Repository) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	return scanPermission(r.pool.QueryRow(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE lower(name) = lower($1)`, name))
}

// CreatePermission upserts a permission by name.
func (r *Repository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	return scanPermission(r.pool.QueryRow(ctx, `
INSERT INTO permissions (name, module, action, resource, parent_id, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO UPDATE SET module = EXCLUDED.module, action = EXCLUDED.action,
	resource = EXCLUDED.resource, parent_id = EXCLUDED.parent_id, updated_at = NOW()
RETURNING `+permissionColumns,
		p.Name, p.Module, p.Action, p.Resource, p.ParentID, p.IsActive))
}

const roleColumns = `id, name, description, level, is_active, is_system, is_default, permissions_cache, cache_version, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.IsActive,
		&role.IsSystem, &role.IsDefault, &role.PermissionsCache, &role.CacheVersion,
		&role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// ListRoles returns all roles ordered by level then name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY level, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// GetRoleByName fetches a role by name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE lower(name) = lower($1)`, name))
}

// DefaultRoles returns roles auto-assigned to new users.
func (r *Repository) DefaultRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_default AND is_active ORDER BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// CreateRole inserts a new role with an empty permission set.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `
INSERT INTO roles (name, description, level, is_active, is_system, is_default, permissions_cache, cache_version)
VALUES ($1, $2, $3, $4, $5, $6, '{}', 1)
RETURNING `+roleColumns,
		role.Name, role.Description, role.Level, role.IsActive, role.IsSystem, role.IsDefault))
}

// UpdateRole updates mutable role attributes.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `
UPDATE roles SET name = $2, description = $3, level = $4, is_active = $5, is_default = $6, updated_at = NOW()
WHERE id = $1
RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, role.Level, role.IsActive, role.IsDefault))
}

// DeleteRole removes a role, reporting the number of rows deleted.
func (r *Repository) DeleteRole(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1 AND NOT is_system`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RolePermissions lists the permissions attached to a role via the join table.
func (r *Repository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
SELECT p.id, p.name, p.module, p.action, p.resource, p.parent_id, p.is_active, p.created_at, p.updated_at
FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
WHERE rp.role_id = $1
ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// RoleHasPermission checks the join table directly, bypassing the cache.
func (r *Repository) RoleHasPermission(ctx context.Context, roleID int64, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM role_permissions rp
	JOIN permissions p ON p.id = rp.permission_id
	WHERE rp.role_id = $1 AND lower(p.name) = lower($2) AND p.is_active
)`, roleID, name).Scan(&exists)
	return exists, err
}

// ReplaceRolePermissions swaps the role's permission set and refreshes the
// materialized cache in the same transaction.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (Role, error) {
	var updated Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, id := range permissionIDs {
			if _, err := tx.Exec(ctx, `
INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, id); err != nil {
				return err
			}
		}
		var err error
		updated, err = refreshCacheTx(ctx, tx, roleID)
		return err
	})
	return updated, err
}

// AttachPermission adds one permission to a role and refreshes the cache
// atomically.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID int64) (Role, error) {
	var updated Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, permissionID); err != nil {
			return err
		}
		var err error
		updated, err = refreshCacheTx(ctx, tx, roleID)
		return err
	})
	return updated, err
}

// DetachPermission removes one permission from a role and refreshes the cache
// atomically.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID int64) (Role, error) {
	var updated Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID); err != nil {
			return err
		}
		var err error
		updated, err = refreshCacheTx(ctx, tx, roleID)
		return err
	})
	return updated, err
}

// RefreshCache recomputes the materialized permission set outside of a
// mutation, for repair after manual data fixes.
func (r *Repository) RefreshCache(ctx context.Context, roleID int64) (Role, error) {
	var updated Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		updated, err = refreshCacheTx(ctx, tx, roleID)
		return err
	})
	return updated, err
}

func refreshCacheTx(ctx context.Context, tx pgx.Tx, roleID int64) (Role, error) {
	return scanRole(tx.QueryRow(ctx, `
UPDATE roles SET
	permissions_cache = COALESCE((
		SELECT array_agg(p.name ORDER BY p.name)
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = roles.id AND p.is_active
	), '{}'),
	cache_version = cache_version + 1,
	updated_at = NOW()
WHERE id = $1
RETURNING `+roleColumns, roleID))
}
