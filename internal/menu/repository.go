package menu

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists menu entries and their role restrictions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const menuColumns = `id, parent_id, title, slug, COALESCE(icon, ''), COALESCE(route, ''),
	sort_order, is_active, created_at, updated_at`

func scanMenu(row pgx.Row) (Menu, error) {
	var m Menu
	err := row.Scan(
		&m.ID, &m.ParentID, &m.Title, &m.Slug, &m.Icon, &m.Route,
		&m.SortOrder, &m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

// List returns all active menu entries.
func (r *Repository) List(ctx context.Context) ([]Menu, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+menuColumns+` FROM menus WHERE is_active ORDER BY sort_order, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Menu
	for rows.Next() {
		m, err := scanMenu(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get fetches a menu entry by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Menu, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+menuColumns+` FROM menus WHERE id = $1`, id)
	return scanMenu(row)
}

// Create inserts a menu entry.
func (r *Repository) Create(ctx context.Context, m Menu) (Menu, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO menus (parent_id, title, slug, icon, route, sort_order, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING `+menuColumns,
		m.ParentID, m.Title, m.Slug, m.Icon, m.Route, m.SortOrder, m.IsActive,
	)
	return scanMenu(row)
}

// Update rewrites a menu entry's mutable fields.
func (r *Repository) Update(ctx context.Context, m Menu) (Menu, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE menus
		SET parent_id = $2, title = $3, slug = $4, icon = $5, route = $6, sort_order = $7, is_active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+menuColumns,
		m.ID, m.ParentID, m.Title, m.Slug, m.Icon, m.Route, m.SortOrder, m.IsActive,
	)
	return scanMenu(row)
}

// Delete removes a menu entry; children move to the top level on next read.
func (r *Repository) Delete(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM menus WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RestrictionsForMenu lists the role restrictions on one menu entry.
func (r *Repository) RestrictionsForMenu(ctx context.Context, menuID int64) ([]MenuRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT mr.id, mr.menu_id, mr.role_id, ro.name, mr.is_visible, mr.show_in_navigation,
			mr.is_granted, mr.is_active, mr.expires_at, mr.is_temporary,
			mr.requires_approval, mr.approval_status, mr.risk_level,
			mr.granted_by, mr.granted_at, mr.revoked_by, mr.revoked_at, mr.revocation_reason
		FROM menu_roles mr
		JOIN roles ro ON ro.id = mr.role_id
		WHERE mr.menu_id = $1
		ORDER BY ro.name`, menuID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMenuRoles(rows)
}

// AllRestrictions returns every restriction row, keyed for tree filtering in
// one round trip.
func (r *Repository) AllRestrictions(ctx context.Context) (map[int64][]MenuRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT menu_id, role_id, is_visible, show_in_navigation,
			is_granted, is_active, expires_at, requires_approval, approval_status, revoked_at
		FROM menu_roles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64][]MenuRole{}
	for rows.Next() {
		var mr MenuRole
		if err := rows.Scan(&mr.MenuID, &mr.RoleID, &mr.IsVisible, &mr.ShowInNavigation,
			&mr.IsGranted, &mr.IsActive, &mr.ExpiresAt, &mr.RequiresApproval, &mr.ApprovalStatus, &mr.RevokedAt); err != nil {
			return nil, err
		}
		out[mr.MenuID] = append(out[mr.MenuID], mr)
	}
	return out, rows.Err()
}

// AddRestriction restricts a menu entry to a role. Restricting again after
// a revocation reopens the existing row and clears the revocation stamp.
func (r *Repository) AddRestriction(ctx context.Context, restriction MenuRole) (MenuRole, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO menu_roles (menu_id, role_id, is_visible, show_in_navigation,
			is_granted, is_active, expires_at, is_temporary,
			requires_approval, approval_status, risk_level, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, TRUE, TRUE, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (menu_id, role_id) DO UPDATE SET
			is_visible = EXCLUDED.is_visible,
			show_in_navigation = EXCLUDED.show_in_navigation,
			is_granted = TRUE, is_active = TRUE,
			expires_at = EXCLUDED.expires_at, is_temporary = EXCLUDED.is_temporary,
			requires_approval = EXCLUDED.requires_approval,
			approval_status = EXCLUDED.approval_status, risk_level = EXCLUDED.risk_level,
			granted_by = EXCLUDED.granted_by, granted_at = NOW(),
			revoked_by = NULL, revoked_at = NULL, revocation_reason = ''
		RETURNING id, menu_id, role_id, is_visible, show_in_navigation,
			is_granted, is_active, expires_at, is_temporary,
			requires_approval, approval_status, risk_level,
			granted_by, granted_at, revoked_by, revoked_at, revocation_reason`,
		restriction.MenuID, restriction.RoleID, restriction.IsVisible, restriction.ShowInNavigation,
		restriction.ExpiresAt, restriction.IsTemporary,
		restriction.RequiresApproval, restriction.ApprovalStatus, restriction.RiskLevel, restriction.GrantedBy,
	)
	var mr MenuRole
	err := row.Scan(&mr.ID, &mr.MenuID, &mr.RoleID, &mr.IsVisible, &mr.ShowInNavigation,
		&mr.IsGranted, &mr.IsActive, &mr.ExpiresAt, &mr.IsTemporary,
		&mr.RequiresApproval, &mr.ApprovalStatus, &mr.RiskLevel,
		&mr.GrantedBy, &mr.GrantedAt, &mr.RevokedBy, &mr.RevokedAt, &mr.RevocationReason)
	return mr, err
}

// RevokeRestriction stamps revocation metadata and lifts a role restriction.
// The row stays behind for audit; cleanup jobs own physical deletion.
func (r *Repository) RevokeRestriction(ctx context.Context, menuID, roleID, actorID int64, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE menu_roles
		SET is_active = FALSE, revoked_by = $3, revoked_at = $4
		WHERE menu_id = $1 AND role_id = $2 AND revoked_at IS NULL`,
		menuID, roleID, actorID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectMenuRoles(rows pgx.Rows) ([]MenuRole, error) {
	var out []MenuRole
	for rows.Next() {
		var mr MenuRole
		if err := rows.Scan(&mr.ID, &mr.MenuID, &mr.RoleID, &mr.RoleName, &mr.IsVisible, &mr.ShowInNavigation,
			&mr.IsGranted, &mr.IsActive, &mr.ExpiresAt, &mr.IsTemporary,
			&mr.RequiresApproval, &mr.ApprovalStatus, &mr.RiskLevel,
			&mr.GrantedBy, &mr.GrantedAt, &mr.RevokedBy, &mr.RevokedAt, &mr.RevocationReason); err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	return out, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
