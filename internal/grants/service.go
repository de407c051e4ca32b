package grants

import (
	"context"
	"strconv"
	"time"

	"github.com/analytics-hub/authhub/internal/catalog"
	"github.com/analytics-hub/authhub/internal/shared"
)

// RepositoryPort defines data access methods for grants.
type RepositoryPort interface {
	AssignmentsForUser(ctx context.Context, userID int64) ([]RoleAssignment, error)
	FindAssignment(ctx context.Context, userID, roleID int64) (*RoleAssignment, error)
	InsertAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error)
	RevokeAssignment(ctx context.Context, id, actorID int64, reason string, at time.Time) error

	PermissionsForUser(ctx context.Context, userID int64) ([]UserPermission, error)
	FindGrant(ctx context.Context, id int64) (UserPermission, error)
	FindGrantForPermission(ctx context.Context, userID, permissionID int64) (*UserPermission, error)
	InsertGrant(ctx context.Context, g UserPermission) (UserPermission, error)
	ApproveGrant(ctx context.Context, id, actorID int64, at time.Time) error
	RejectGrant(ctx context.Context, id, actorID int64, reason string, at time.Time) error
	RevokeGrant(ctx context.Context, id, actorID int64, reason string, at time.Time) error
	ExtendGrant(ctx context.Context, id int64, newExpiry time.Time) error
	RecordUsage(ctx context.Context, id int64) error
}

// Directory resolves catalog entries referenced by grants.
type Directory interface {
	GetRole(ctx context.Context, id int64) (catalog.Role, error)
	PermissionByName(ctx context.Context, name string) (catalog.Permission, error)
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator bumps the derived authorization caches after writes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Notifier delivers review requests for grants that land pending.
type Notifier interface {
	GrantPending(ctx context.Context, grant UserPermission)
}

// Service orchestrates the grant lifecycle.
type Service struct {
	repo      RepositoryPort
	directory Directory
	audit     Auditor
	inval     Invalidator
	notifier  Notifier
	clock     func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, directory Directory, audit Auditor, inval Invalidator, notifier Notifier) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		audit:     audit,
		inval:     inval,
		notifier:  notifier,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// AssignmentsForUser returns all assignment rows for a user.
func (s *Service) AssignmentsForUser(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	return s.repo.AssignmentsForUser(ctx, userID)
}

// PermissionsForUser returns all direct grant rows for a user.
func (s *Service) PermissionsForUser(ctx context.Context, userID int64) ([]UserPermission, error) {
	return s.repo.PermissionsForUser(ctx, userID)
}

// AssignRole grants a role to a user. A second assignment while an effective
// one exists is a conflict.
func (s *Service) AssignRole(ctx context.Context, userID, roleID, actorID int64, reason string, expiresAt *time.Time) (RoleAssignment, error) {
	role, err := s.directory.GetRole(ctx, roleID)
	if err != nil {
		return RoleAssignment{}, err
	}
	now := s.clock()
	existing, err := s.repo.FindAssignment(ctx, userID, roleID)
	if err != nil {
		return RoleAssignment{}, err
	}
	if existing != nil && existing.Effective(now) {
		return RoleAssignment{}, shared.ErrGrantAlreadyExists
	}
	assignment, err := s.repo.InsertAssignment(ctx, RoleAssignment{
		UserID:     userID,
		RoleID:     roleID,
		AssignedAt: now,
		ExpiresAt:  expiresAt,
		AssignedBy: actorID,
		Reason:     reason,
	})
	if err != nil {
		return RoleAssignment{}, err
	}
	s.record(ctx, actorID, "role.assign", "role_assignment", assignment.ID, map[string]any{
		"user_id": userID, "role": role.Name,
	})
	return assignment, s.invalidate(ctx)
}

// RevokeRole withdraws a role from a user. Revoking an already-revoked
// assignment is a no-op success; revoking one that never existed is an error.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID, actorID int64, reason string) error {
	assignment, err := s.repo.FindAssignment(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if assignment == nil {
		return shared.ErrGrantNotFound
	}
	if assignment.RevokedAt != nil {
		return nil
	}
	if err := s.repo.RevokeAssignment(ctx, assignment.ID, actorID, reason, s.clock()); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.revoke", "role_assignment", assignment.ID, map[string]any{
		"user_id": userID, "role_id": roleID, "reason": reason,
	})
	return s.invalidate(ctx)
}

// GrantPermission records a direct allow (opts.Granted true) or explicit deny
// (opts.Granted false) of a permission for a user.
func (s *Service) GrantPermission(ctx context.Context, userID int64, permissionName string, actorID int64, opts GrantOptions) (UserPermission, error) {
	perm, err := s.directory.PermissionByName(ctx, permissionName)
	if err != nil {
		return UserPermission{}, err
	}
	now := s.clock()
	existing, err := s.repo.FindGrantForPermission(ctx, userID, perm.ID)
	if err != nil {
		return UserPermission{}, err
	}
	if existing != nil && existing.Effective(now) {
		return UserPermission{}, shared.ErrGrantAlreadyExists
	}
	status := ApprovalApproved
	if opts.RequiresApproval {
		status = ApprovalPending
	}
	risk := opts.RiskLevel
	if risk == "" {
		risk = RiskLow
	}
	grant, err := s.repo.InsertGrant(ctx, UserPermission{
		UserID:           userID,
		PermissionID:     perm.ID,
		Granted:          opts.Granted,
		ExpiresAt:        opts.ExpiresAt,
		IsTemporary:      opts.IsTemporary,
		OverridesRole:    opts.OverridesRole,
		OverriddenRoleID: opts.OverriddenRoleID,
		RequiresApproval: opts.RequiresApproval,
		ApprovalStatus:   status,
		RiskLevel:        risk,
		GrantedBy:        actorID,
		GrantedAt:        now,
		Reason:           opts.Reason,
	})
	if err != nil {
		return UserPermission{}, err
	}
	action := "permission.grant"
	if !opts.Granted {
		action = "permission.deny"
	}
	s.record(ctx, actorID, action, "user_permission", grant.ID, map[string]any{
		"user_id": userID, "permission": perm.Name, "risk": string(risk),
	})
	if status == ApprovalPending && s.notifier != nil {
		s.notifier.GrantPending(ctx, grant)
	}
	return grant, s.invalidate(ctx)
}

// RevokePermission withdraws the user's direct grant for the named
// permission. Idempotent on already-revoked rows.
func (s *Service) RevokePermission(ctx context.Context, userID int64, permissionName string, actorID int64, reason string) error {
	perm, err := s.directory.PermissionByName(ctx, permissionName)
	if err != nil {
		return err
	}
	grant, err := s.repo.FindGrantForPermission(ctx, userID, perm.ID)
	if err != nil {
		return err
	}
	if grant == nil {
		return shared.ErrGrantNotFound
	}
	return s.revoke(ctx, *grant, actorID, reason)
}

// RevokeGrant withdraws a direct grant by ID. Idempotent on already-revoked
// rows.
func (s *Service) RevokeGrant(ctx context.Context, grantID, actorID int64, reason string) error {
	grant, err := s.findGrant(ctx, grantID)
	if err != nil {
		return err
	}
	return s.revoke(ctx, grant, actorID, reason)
}

func (s *Service) revoke(ctx context.Context, grant UserPermission, actorID int64, reason string) error {
	if grant.RevokedAt != nil {
		return nil
	}
	if err := s.repo.RevokeGrant(ctx, grant.ID, actorID, reason, s.clock()); err != nil {
		return err
	}
	s.record(ctx, actorID, "permission.revoke", "user_permission", grant.ID, map[string]any{
		"user_id": grant.UserID, "permission": grant.PermissionName, "reason": reason,
	})
	return s.invalidate(ctx)
}

// Approve transitions a pending grant to active. Approving an
// already-approved grant is a no-op success.
func (s *Service) Approve(ctx context.Context, grantID, actorID int64) (UserPermission, error) {
	grant, err := s.findGrant(ctx, grantID)
	if err != nil {
		return UserPermission{}, err
	}
	now := s.clock()
	switch grant.State(now) {
	case StatePending:
	case StateActive:
		return grant, nil
	default:
		return UserPermission{}, shared.ErrGrantNotActive
	}
	if err := s.repo.ApproveGrant(ctx, grantID, actorID, now); err != nil {
		return UserPermission{}, err
	}
	s.record(ctx, actorID, "permission.approve", "user_permission", grantID, map[string]any{
		"user_id": grant.UserID, "permission": grant.PermissionName,
	})
	if err := s.invalidate(ctx); err != nil {
		return UserPermission{}, err
	}
	return s.findGrant(ctx, grantID)
}

// Reject transitions a pending grant to rejected, a terminal state.
func (s *Service) Reject(ctx context.Context, grantID, actorID int64, reason string) (UserPermission, error) {
	grant, err := s.findGrant(ctx, grantID)
	if err != nil {
		return UserPermission{}, err
	}
	now := s.clock()
	switch grant.State(now) {
	case StatePending:
	case StateRejected:
		return grant, nil
	default:
		return UserPermission{}, shared.ErrGrantNotActive
	}
	if err := s.repo.RejectGrant(ctx, grantID, actorID, reason, now); err != nil {
		return UserPermission{}, err
	}
	s.record(ctx, actorID, "permission.reject", "user_permission", grantID, map[string]any{
		"user_id": grant.UserID, "permission": grant.PermissionName, "reason": reason,
	})
	if err := s.invalidate(ctx); err != nil {
		return UserPermission{}, err
	}
	return s.findGrant(ctx, grantID)
}

// Extend pushes a grant's expiry forward. Permitted only while the grant is
// pending or active; terminal and already-expired grants cannot be revived.
func (s *Service) Extend(ctx context.Context, grantID int64, newExpiry time.Time, actorID int64) (UserPermission, error) {
	grant, err := s.findGrant(ctx, grantID)
	if err != nil {
		return UserPermission{}, err
	}
	now := s.clock()
	switch grant.State(now) {
	case StatePending, StateActive:
	default:
		return UserPermission{}, shared.ErrGrantNotActive
	}
	if !newExpiry.After(now) {
		return UserPermission{}, shared.ErrGrantNotActive
	}
	if err := s.repo.ExtendGrant(ctx, grantID, newExpiry); err != nil {
		return UserPermission{}, err
	}
	s.record(ctx, actorID, "permission.extend", "user_permission", grantID, map[string]any{
		"user_id": grant.UserID, "permission": grant.PermissionName, "expires_at": newExpiry,
	})
	if err := s.invalidate(ctx); err != nil {
		return UserPermission{}, err
	}
	return s.findGrant(ctx, grantID)
}

// RecordUsage bumps usage counters; failures only affect statistics.
func (s *Service) RecordUsage(ctx context.Context, grantID int64) error {
	return s.repo.RecordUsage(ctx, grantID)
}

func (s *Service) findGrant(ctx context.Context, id int64) (UserPermission, error) {
	grant, err := s.repo.FindGrant(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return UserPermission{}, shared.ErrGrantNotFound
		}
		return UserPermission{}, err
	}
	return grant, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func (s *Service) invalidate(ctx context.Context) error {
	if s.inval == nil {
		return nil
	}
	return s.inval.Bump(ctx)
}
