package content

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/analytics-hub/authhub/internal/grants"
	"github.com/analytics-hub/authhub/internal/shared"
)

// RepositoryPort defines data access methods for content.
type RepositoryPort interface {
	List(ctx context.Context) ([]Content, error)
	Get(ctx context.Context, id int64) (Content, error)
	GetBySlug(ctx context.Context, slug string) (Content, error)
	Create(ctx context.Context, c Content) (Content, error)
	Update(ctx context.Context, c Content) (Content, error)
	Delete(ctx context.Context, id int64) (int64, error)

	RolesForContent(ctx context.Context, contentID int64) ([]ContentRole, error)
	ScopesForRoles(ctx context.Context, contentID int64, roleIDs []int64) ([]ContentRole, error)
	UpsertScope(ctx context.Context, scope ContentRole) (ContentRole, error)
	RevokeScope(ctx context.Context, contentID, roleID, actorID int64, at time.Time) (int64, error)
	RecordView(ctx context.Context, contentID int64, at time.Time) error
}

// Authorizer answers module-level permission checks.
type Authorizer interface {
	UserHasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}

// RoleSource lists a user's role assignments.
type RoleSource interface {
	AssignmentsForUser(ctx context.Context, userID int64) ([]grants.RoleAssignment, error)
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service enforces content access. Content is deny-by-default: a user sees
// an item only when the module permission AND a role scope both allow it.
type Service struct {
	repo  RepositoryPort
	authz Authorizer
	roles RoleSource
	audit Auditor
	clock func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, authz Authorizer, roles RoleSource, audit Auditor) *Service {
	return &Service{
		repo:  repo,
		authz: authz,
		roles: roles,
		audit: audit,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// Get fetches a content item.
func (s *Service) Get(ctx context.Context, id int64) (Content, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return Content{}, shared.ErrNotFound
		}
		return Content{}, err
	}
	return c, nil
}

// CanAccess reports whether the user may exercise the capability on the
// content item. Both gates must pass; neither alone suffices.
func (s *Service) CanAccess(ctx context.Context, userID, contentID int64, capability Capability) (bool, error) {
	modulePerm := shared.PermContentManage
	if capability == CapView || capability == CapComment {
		modulePerm = shared.PermContentView
	}
	ok, err := s.authz.UserHasPermission(ctx, userID, modulePerm)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	c, err := s.Get(ctx, contentID)
	if err != nil {
		return false, err
	}
	if capability == CapView && !c.IsActive {
		return false, nil
	}

	roleIDs, err := s.effectiveRoleIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	scopes, err := s.repo.ScopesForRoles(ctx, contentID, roleIDs)
	if err != nil {
		return false, err
	}
	now := s.clock()
	for _, scope := range scopes {
		if scope.Effective(now) && scope.Allows(capability) {
			return true, nil
		}
	}
	return false, nil
}

// View resolves access and, when allowed, returns the item with its counters
// bumped. A denial surfaces as ErrNotFound so probing cannot distinguish
// hidden items from missing ones.
func (s *Service) View(ctx context.Context, userID, contentID int64) (Content, error) {
	ok, err := s.CanAccess(ctx, userID, contentID, CapView)
	if err != nil {
		return Content{}, err
	}
	if !ok {
		return Content{}, shared.ErrNotFound
	}
	c, err := s.Get(ctx, contentID)
	if err != nil {
		return Content{}, err
	}
	// Counter failures only affect statistics.
	_ = s.repo.RecordView(ctx, contentID, s.clock())
	return c, nil
}

// VisibleContent lists the active items the user can view.
func (s *Service) VisibleContent(ctx context.Context, userID int64) ([]Content, error) {
	ok, err := s.authz.UserHasPermission(ctx, userID, shared.PermContentView)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	roleIDs, err := s.effectiveRoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	visible := make([]Content, 0, len(items))
	for _, c := range items {
		scopes, err := s.repo.ScopesForRoles(ctx, c.ID, roleIDs)
		if err != nil {
			return nil, err
		}
		for _, scope := range scopes {
			if scope.Effective(now) && scope.Caps.View {
				visible = append(visible, c)
				break
			}
		}
	}
	return visible, nil
}

// Create inserts a content item.
func (s *Service) Create(ctx context.Context, c Content, actorID int64) (Content, error) {
	c.Title = strings.TrimSpace(c.Title)
	c.Slug = strings.TrimSpace(strings.ToLower(c.Slug))
	c.CreatedBy = actorID
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return Content{}, err
	}
	s.record(ctx, actorID, "content.create", created.ID, map[string]any{"slug": created.Slug})
	return created, nil
}

// Update rewrites a content item.
func (s *Service) Update(ctx context.Context, c Content, actorID int64) (Content, error) {
	c.Title = strings.TrimSpace(c.Title)
	c.Slug = strings.TrimSpace(strings.ToLower(c.Slug))
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		if isNoRows(err) {
			return Content{}, shared.ErrNotFound
		}
		return Content{}, err
	}
	s.record(ctx, actorID, "content.update", updated.ID, map[string]any{"slug": updated.Slug})
	return updated, nil
}

// Delete removes a content item.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	rows, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrNotFound
	}
	s.record(ctx, actorID, "content.delete", id, nil)
	return nil
}

// RolesForContent lists the role scopes on an item.
func (s *Service) RolesForContent(ctx context.Context, contentID int64) ([]ContentRole, error) {
	return s.repo.RolesForContent(ctx, contentID)
}

// GrantRole scopes a role onto a content item, replacing any previous
// capabilities for that role. A nil expiry grants indefinitely; regranting
// after a revocation reopens the scope.
func (s *Service) GrantRole(ctx context.Context, contentID, roleID int64, caps Capabilities, expiresAt *time.Time, actorID int64) (ContentRole, error) {
	if _, err := s.Get(ctx, contentID); err != nil {
		return ContentRole{}, err
	}
	scope, err := s.repo.UpsertScope(ctx, ContentRole{
		ContentID:      contentID,
		RoleID:         roleID,
		Caps:           caps,
		IsGranted:      true,
		IsActive:       true,
		ExpiresAt:      expiresAt,
		IsTemporary:    expiresAt != nil,
		ApprovalStatus: grants.ApprovalApproved,
		RiskLevel:      grants.RiskLow,
		GrantedBy:      actorID,
	})
	if err != nil {
		return ContentRole{}, err
	}
	s.record(ctx, actorID, "content.grant_role", contentID, map[string]any{
		"role_id": roleID, "caps": caps, "expires_at": expiresAt,
	})
	return scope, nil
}

// RevokeRole withdraws a role's scope from a content item. The row is
// stamped, not deleted; revoking an already-revoked scope is ErrNotFound.
func (s *Service) RevokeRole(ctx context.Context, contentID, roleID, actorID int64) error {
	rows, err := s.repo.RevokeScope(ctx, contentID, roleID, actorID, s.clock())
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrNotFound
	}
	s.record(ctx, actorID, "content.revoke_role", contentID, map[string]any{"role_id": roleID})
	return nil
}

func (s *Service) effectiveRoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	assignments, err := s.roles.AssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	ids := make([]int64, 0, len(assignments))
	for _, a := range assignments {
		if a.Effective(now) {
			ids = append(ids, a.RoleID)
		}
	}
	return ids, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "content",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
