package content

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists content items and their role scopes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const contentColumns = `id, title, slug, type, COALESCE(description, ''), COALESCE(embed_url, ''),
	is_active, created_by, view_count, last_viewed_at, created_at, updated_at`

func scanContent(row pgx.Row) (Content, error) {
	var c Content
	err := row.Scan(
		&c.ID, &c.Title, &c.Slug, &c.Type, &c.Description, &c.EmbedURL,
		&c.IsActive, &c.CreatedBy, &c.ViewCount, &c.LastViewedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// List returns all active content items ordered by title.
func (r *Repository) List(ctx context.Context) ([]Content, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+contentColumns+` FROM contents WHERE is_active ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get fetches a content item by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Content, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = $1`, id)
	return scanContent(row)
}

// GetBySlug fetches a content item by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (Content, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM contents WHERE slug = $1`, slug)
	return scanContent(row)
}

// Create inserts a content item.
func (r *Repository) Create(ctx context.Context, c Content) (Content, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO contents (title, slug, type, description, embed_url, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING `+contentColumns,
		c.Title, c.Slug, c.Type, c.Description, c.EmbedURL, c.IsActive, c.CreatedBy,
	)
	return scanContent(row)
}

// Update rewrites a content item's mutable fields.
func (r *Repository) Update(ctx context.Context, c Content) (Content, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE contents
		SET title = $2, slug = $3, type = $4, description = $5, embed_url = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING `+contentColumns,
		c.ID, c.Title, c.Slug, c.Type, c.Description, c.EmbedURL, c.IsActive,
	)
	return scanContent(row)
}

// Delete removes a content item and its role scopes.
func (r *Repository) Delete(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contents WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const scopeColumns = `cr.id, cr.content_id, cr.role_id, ro.name,
	cr.can_view, cr.can_edit, cr.can_delete, cr.can_publish, cr.can_comment, cr.can_share,
	cr.is_granted, cr.is_active, cr.expires_at, cr.is_temporary,
	cr.requires_approval, cr.approval_status, cr.risk_level,
	cr.granted_by, cr.granted_at, cr.revoked_by, cr.revoked_at, cr.revocation_reason`

func scanScope(row pgx.Row) (ContentRole, error) {
	var cr ContentRole
	err := row.Scan(&cr.ID, &cr.ContentID, &cr.RoleID, &cr.RoleName,
		&cr.Caps.View, &cr.Caps.Edit, &cr.Caps.Delete, &cr.Caps.Publish, &cr.Caps.Comment, &cr.Caps.Share,
		&cr.IsGranted, &cr.IsActive, &cr.ExpiresAt, &cr.IsTemporary,
		&cr.RequiresApproval, &cr.ApprovalStatus, &cr.RiskLevel,
		&cr.GrantedBy, &cr.GrantedAt, &cr.RevokedBy, &cr.RevokedAt, &cr.RevocationReason)
	return cr, err
}

// RolesForContent lists the role scopes of one content item.
func (r *Repository) RolesForContent(ctx context.Context, contentID int64) ([]ContentRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scopeColumns+`
		FROM content_roles cr
		JOIN roles ro ON ro.id = cr.role_id
		WHERE cr.content_id = $1
		ORDER BY ro.name`, contentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContentRole
	for rows.Next() {
		cr, err := scanScope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// ScopesForRoles returns the role scopes any of the given roles hold on the
// content item.
func (r *Repository) ScopesForRoles(ctx context.Context, contentID int64, roleIDs []int64) ([]ContentRole, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+scopeColumns+`
		FROM content_roles cr
		JOIN roles ro ON ro.id = cr.role_id
		WHERE cr.content_id = $1 AND cr.role_id = ANY($2) AND ro.is_active`,
		contentID, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContentRole
	for rows.Next() {
		cr, err := scanScope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// UpsertScope grants or adjusts a role's capabilities on a content item.
// Regranting after a revocation reopens the existing row and clears the
// revocation stamp.
func (r *Repository) UpsertScope(ctx context.Context, scope ContentRole) (ContentRole, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO content_roles (content_id, role_id,
			can_view, can_edit, can_delete, can_publish, can_comment, can_share,
			is_granted, is_active, expires_at, is_temporary,
			requires_approval, approval_status, risk_level, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, TRUE, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (content_id, role_id)
		DO UPDATE SET can_view = EXCLUDED.can_view, can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete, can_publish = EXCLUDED.can_publish,
			can_comment = EXCLUDED.can_comment, can_share = EXCLUDED.can_share,
			is_granted = TRUE, is_active = TRUE,
			expires_at = EXCLUDED.expires_at, is_temporary = EXCLUDED.is_temporary,
			requires_approval = EXCLUDED.requires_approval,
			approval_status = EXCLUDED.approval_status, risk_level = EXCLUDED.risk_level,
			granted_by = EXCLUDED.granted_by, granted_at = NOW(),
			revoked_by = NULL, revoked_at = NULL, revocation_reason = ''
		RETURNING id, content_id, role_id,
			can_view, can_edit, can_delete, can_publish, can_comment, can_share,
			is_granted, is_active, expires_at, is_temporary,
			requires_approval, approval_status, risk_level,
			granted_by, granted_at, revoked_by, revoked_at, revocation_reason`,
		scope.ContentID, scope.RoleID, scope.Caps.View, scope.Caps.Edit,
		scope.Caps.Delete, scope.Caps.Publish, scope.Caps.Comment, scope.Caps.Share,
		scope.ExpiresAt, scope.IsTemporary,
		scope.RequiresApproval, scope.ApprovalStatus, scope.RiskLevel, scope.GrantedBy,
	)
	var cr ContentRole
	err := row.Scan(&cr.ID, &cr.ContentID, &cr.RoleID,
		&cr.Caps.View, &cr.Caps.Edit, &cr.Caps.Delete, &cr.Caps.Publish, &cr.Caps.Comment, &cr.Caps.Share,
		&cr.IsGranted, &cr.IsActive, &cr.ExpiresAt, &cr.IsTemporary,
		&cr.RequiresApproval, &cr.ApprovalStatus, &cr.RiskLevel,
		&cr.GrantedBy, &cr.GrantedAt, &cr.RevokedBy, &cr.RevokedAt, &cr.RevocationReason)
	return cr, err
}

// RevokeScope stamps revocation metadata and withdraws a role's scope. The
// row stays behind for audit; cleanup jobs own physical deletion.
func (r *Repository) RevokeScope(ctx context.Context, contentID, roleID, actorID int64, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE content_roles
		SET is_active = FALSE, revoked_by = $3, revoked_at = $4
		WHERE content_id = $1 AND role_id = $2 AND revoked_at IS NULL`,
		contentID, roleID, actorID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RecordView bumps the view counters for usage reporting.
func (r *Repository) RecordView(ctx context.Context, contentID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contents SET view_count = view_count + 1, last_viewed_at = $2 WHERE id = $1`,
		contentID, at)
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
