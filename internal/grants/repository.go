package grants

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Repository provides PostgreSQL backed persistence for assignments and
// direct permission grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assignmentColumns = `a.id, a.user_id, a.role_id, r.name, a.is_active, a.assigned_at, a.expires_at,
a.assigned_by, a.reason, a.revoked_by, a.revoked_at, a.revocation_reason, a.created_at, a.updated_at`

func scanAssignment(row pgx.Row) (RoleAssignment, error) {
	var a RoleAssignment
	err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &a.RoleName, &a.IsActive, &a.AssignedAt, &a.ExpiresAt,
		&a.AssignedBy, &a.Reason, &a.RevokedBy, &a.RevokedAt, &a.RevocationReason, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// AssignmentsForUser returns all assignment rows for a user, newest first.
// Effectiveness filtering happens in the caller; expired rows are data, not
// garbage.
func (r *Repository) AssignmentsForUser(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+assignmentColumns+`
FROM role_assignments a
JOIN roles r ON r.id = a.role_id
WHERE a.user_id = $1
ORDER BY a.assigned_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// FindAssignment returns the most recent assignment row for a user/role pair,
// or nil when none exists.
func (r *Repository) FindAssignment(ctx context.Context, userID, roleID int64) (*RoleAssignment, error) {
	a, err := scanAssignment(r.pool.QueryRow(ctx, `
SELECT `+assignmentColumns+`
FROM role_assignments a
JOIN roles r ON r.id = a.role_id
WHERE a.user_id = $1 AND a.role_id = $2
ORDER BY a.assigned_at DESC
LIMIT 1`, userID, roleID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// InsertAssignment persists a new role assignment.
func (r *Repository) InsertAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO role_assignments (user_id, role_id, is_active, assigned_at, expires_at, assigned_by, reason)
VALUES ($1, $2, TRUE, COALESCE($3, NOW()), $4, $5, $6)
RETURNING id`, a.UserID, a.RoleID, a.AssignedAt, a.ExpiresAt, a.AssignedBy, a.Reason).Scan(&id)
	if err != nil {
		return RoleAssignment{}, err
	}
	return scanAssignment(r.pool.QueryRow(ctx, `
SELECT `+assignmentColumns+`
FROM role_assignments a JOIN roles r ON r.id = a.role_id WHERE a.id = $1`, id))
}

// RevokeAssignment stamps revocation metadata. A second revoke leaves the
// original stamps in place.
func (r *Repository) RevokeAssignment(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
UPDATE role_assignments
SET is_active = FALSE, revoked_by = $2, revoked_at = $3, revocation_reason = $4, updated_at = NOW()
WHERE id = $1 AND revoked_at IS NULL`, id, actorID, at, reason)
	return err
}

const grantColumns = `g.id, g.user_id, g.permission_id, p.name, g.granted, g.is_active, g.expires_at,
g.is_temporary, g.overrides_role, g.overridden_role_id, g.requires_approval, g.approval_status,
g.approved_by, g.approved_at, g.rejection_reason, g.revoked_by, g.revoked_at, g.revocation_reason,
g.risk_level, g.granted_by, g.granted_at, g.reason, g.usage_count, g.first_used_at, g.last_used_at,
g.created_at, g.updated_at`

func scanGrant(row pgx.Row) (UserPermission, error) {
	var g UserPermission
	err := row.Scan(&g.ID, &g.UserID, &g.PermissionID, &g.PermissionName, &g.Granted, &g.IsActive, &g.ExpiresAt,
		&g.IsTemporary, &g.OverridesRole, &g.OverriddenRoleID, &g.RequiresApproval, &g.ApprovalStatus,
		&g.ApprovedBy, &g.ApprovedAt, &g.RejectionReason, &g.RevokedBy, &g.RevokedAt, &g.RevocationReason,
		&g.RiskLevel, &g.GrantedBy, &g.GrantedAt, &g.Reason, &g.UsageCount, &g.FirstUsedAt, &g.LastUsedAt,
		&g.CreatedAt, &g.UpdatedAt)
	return g, err
}

// PermissionsForUser returns all direct grant rows for a user.
func (r *Repository) PermissionsForUser(ctx context.Context, userID int64) ([]UserPermission, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+grantColumns+`
FROM user_permissions g
JOIN permissions p ON p.id = g.permission_id
WHERE g.user_id = $1
ORDER BY g.granted_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []UserPermission
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, g)
	}
	return perms, rows.Err()
}

// FindGrant fetches a direct grant by ID.
func (r *Repository) FindGrant(ctx context.Context, id int64) (UserPermission, error) {
	return scanGrant(r.pool.QueryRow(ctx, `
SELECT `+grantColumns+`
FROM user_permissions g
JOIN permissions p ON p.id = g.permission_id
WHERE g.id = $1`, id))
}

// FindGrantForPermission returns the most recent direct grant row for a
// user/permission pair, or nil when none exists.
func (r *Repository) FindGrantForPermission(ctx context.Context, userID, permissionID int64) (*UserPermission, error) {
	g, err := scanGrant(r.pool.QueryRow(ctx, `
SELECT `+grantColumns+`
FROM user_permissions g
JOIN permissions p ON p.id = g.permission_id
WHERE g.user_id = $1 AND g.permission_id = $2
ORDER BY g.granted_at DESC
LIMIT 1`, userID, permissionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

// InsertGrant persists a new direct grant row.
func (r *Repository) InsertGrant(ctx context.Context, g UserPermission) (UserPermission, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO user_permissions (user_id, permission_id, granted, is_active, expires_at, is_temporary,
	overrides_role, overridden_role_id, requires_approval, approval_status, risk_level,
	granted_by, granted_at, reason)
VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()), $13)
RETURNING id`,
		g.UserID, g.PermissionID, g.Granted, g.ExpiresAt, g.IsTemporary,
		g.OverridesRole, g.OverriddenRoleID, g.RequiresApproval, string(g.ApprovalStatus), string(g.RiskLevel),
		g.GrantedBy, g.GrantedAt, g.Reason).Scan(&id)
	if err != nil {
		return UserPermission{}, err
	}
	return r.FindGrant(ctx, id)
}

// ApproveGrant transitions a pending grant to approved.
func (r *Repository) ApproveGrant(ctx context.Context, id, actorID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
UPDATE user_permissions
SET approval_status = 'approved', approved_by = $2, approved_at = $3, updated_at = NOW()
WHERE id = $1`, id, actorID, at)
	return err
}

// RejectGrant transitions a pending grant to rejected and deactivates it.
func (r *Repository) RejectGrant(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
UPDATE user_permissions
SET approval_status = 'rejected', is_active = FALSE, approved_by = $2, approved_at = $3,
	rejection_reason = $4, updated_at = NOW()
WHERE id = $1`, id, actorID, at, reason)
	return err
}

// RevokeGrant stamps revocation metadata and withdraws the grant.
func (r *Repository) RevokeGrant(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
UPDATE user_permissions
SET granted = FALSE, is_active = FALSE, revoked_by = $2, revoked_at = $3, revocation_reason = $4, updated_at = NOW()
WHERE id = $1 AND revoked_at IS NULL`, id, actorID, at, reason)
	return err
}

// ExtendGrant pushes the expiry forward without touching any other flag.
func (r *Repository) ExtendGrant(ctx context.Context, id int64, newExpiry time.Time) error {
	_, err := r.pool.Exec(ctx, `
UPDATE user_permissions SET expires_at = $2, updated_at = NOW() WHERE id = $1`, id, newExpiry)
	return err
}

// RecordUsage bumps the usage counters of a direct grant.
func (r *Repository) RecordUsage(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
UPDATE user_permissions
SET usage_count = usage_count + 1,
	first_used_at = COALESCE(first_used_at, NOW()),
	last_used_at = NOW()
WHERE id = $1`, id)
	return err
}

// SweepExpired deactivates rows whose expiry passed before the cutoff.
// Effectiveness checks already exclude them; the sweep is hygiene so reports
// and listings stop carrying long-dead rows as nominally active.
func (r *Repository) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE user_permissions SET is_active = FALSE, updated_at = NOW()
WHERE is_active AND expires_at IS NOT NULL AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	swept := tag.RowsAffected()
	tag, err = r.pool.Exec(ctx, `
UPDATE role_assignments SET is_active = FALSE, updated_at = NOW()
WHERE is_active AND expires_at IS NOT NULL AND expires_at < $1`, cutoff)
	if err != nil {
		return swept, err
	}
	return swept + tag.RowsAffected(), nil
}

// UserIDsWithAssignments lists users holding at least one active assignment,
// used by the menu cache warmup job.
func (r *Repository) UserIDsWithAssignments(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT user_id FROM role_assignments WHERE is_active AND revoked_at IS NULL ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
