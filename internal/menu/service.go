package menu

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/analytics-hub/authhub/internal/authz"
	"github.com/analytics-hub/authhub/internal/grants"
	"github.com/analytics-hub/authhub/internal/shared"
)

// RepositoryPort defines data access methods for menus.
type RepositoryPort interface {
	List(ctx context.Context) ([]Menu, error)
	Get(ctx context.Context, id int64) (Menu, error)
	Create(ctx context.Context, m Menu) (Menu, error)
	Update(ctx context.Context, m Menu) (Menu, error)
	Delete(ctx context.Context, id int64) (int64, error)

	RestrictionsForMenu(ctx context.Context, menuID int64) ([]MenuRole, error)
	AllRestrictions(ctx context.Context) (map[int64][]MenuRole, error)
	AddRestriction(ctx context.Context, restriction MenuRole) (MenuRole, error)
	RevokeRestriction(ctx context.Context, menuID, roleID, actorID int64, at time.Time) (int64, error)
}

// RoleSource lists a user's role assignments.
type RoleSource interface {
	AssignmentsForUser(ctx context.Context, userID int64) ([]grants.RoleAssignment, error)
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service resolves per-user navigation. Menus are allow-by-default; only
// entries with restriction rows require a matching role. Trees are cached
// under the shared authorization version so any role or grant write
// invalidates them.
type Service struct {
	repo  RepositoryPort
	roles RoleSource
	cache *authz.Cache
	audit Auditor
	group singleflight.Group
	clock func() time.Time
}

// NewService builds a Service instance. Cache may be nil.
func NewService(repo RepositoryPort, roles RoleSource, cache *authz.Cache, audit Auditor) *Service {
	return &Service{
		repo:  repo,
		roles: roles,
		cache: cache,
		audit: audit,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// TreeForUser returns the navigation tree the user may see.
func (s *Service) TreeForUser(ctx context.Context, userID int64) ([]Node, error) {
	if s.cache == nil {
		return s.buildTree(ctx, userID)
	}
	key, err := s.cache.BuildKey(ctx, "menu", "tree", strconv.FormatInt(userID, 10))
	if err != nil {
		return nil, err
	}
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		var nodes []Node
		err := s.cache.FetchJSON(ctx, key, &nodes, func(ctx context.Context) (interface{}, error) {
			return s.buildTree(ctx, userID)
		})
		return nodes, err
	})
	if err != nil {
		return nil, err
	}
	nodes, _ := result.([]Node)
	return nodes, nil
}

func (s *Service) buildTree(ctx context.Context, userID int64) ([]Node, error) {
	menus, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	restrictions, err := s.repo.AllRestrictions(ctx)
	if err != nil {
		return nil, err
	}
	roleIDs, err := s.effectiveRoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	roleSet := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		roleSet[id] = struct{}{}
	}
	now := s.clock()
	visible := make([]Menu, 0, len(menus))
	for _, m := range menus {
		if inNavigation(effectiveRestrictions(restrictions[m.ID], now), roleSet) {
			visible = append(visible, m)
		}
	}
	return BuildTree(visible), nil
}

// CanAccessMenu reports whether the user may see one menu entry.
func (s *Service) CanAccessMenu(ctx context.Context, userID, menuID int64) (bool, error) {
	m, err := s.Get(ctx, menuID)
	if err != nil {
		return false, err
	}
	if !m.IsActive {
		return false, nil
	}
	rows, err := s.repo.RestrictionsForMenu(ctx, menuID)
	if err != nil {
		return false, err
	}
	restrictions := effectiveRestrictions(rows, s.clock())
	if len(restrictions) == 0 {
		return true, nil
	}
	roleIDs, err := s.effectiveRoleIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	roleSet := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		roleSet[id] = struct{}{}
	}
	for _, r := range restrictions {
		if !r.IsVisible {
			continue
		}
		if _, ok := roleSet[r.RoleID]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Get fetches a menu entry.
func (s *Service) Get(ctx context.Context, id int64) (Menu, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return Menu{}, shared.ErrNotFound
		}
		return Menu{}, err
	}
	return m, nil
}

// List returns every active menu entry, unfiltered, for administration.
func (s *Service) List(ctx context.Context) ([]Menu, error) {
	return s.repo.List(ctx)
}

// Create inserts a menu entry.
func (s *Service) Create(ctx context.Context, m Menu, actorID int64) (Menu, error) {
	m.Title = strings.TrimSpace(m.Title)
	m.Slug = strings.TrimSpace(strings.ToLower(m.Slug))
	created, err := s.repo.Create(ctx, m)
	if err != nil {
		return Menu{}, err
	}
	s.record(ctx, actorID, "menu.create", created.ID, map[string]any{"slug": created.Slug})
	return created, s.invalidate(ctx)
}

// Update rewrites a menu entry.
func (s *Service) Update(ctx context.Context, m Menu, actorID int64) (Menu, error) {
	m.Title = strings.TrimSpace(m.Title)
	m.Slug = strings.TrimSpace(strings.ToLower(m.Slug))
	updated, err := s.repo.Update(ctx, m)
	if err != nil {
		if isNoRows(err) {
			return Menu{}, shared.ErrNotFound
		}
		return Menu{}, err
	}
	s.record(ctx, actorID, "menu.update", updated.ID, map[string]any{"slug": updated.Slug})
	return updated, s.invalidate(ctx)
}

// Delete removes a menu entry.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	rows, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrNotFound
	}
	s.record(ctx, actorID, "menu.delete", id, nil)
	return s.invalidate(ctx)
}

// RestrictionsForMenu lists a menu entry's role restrictions.
func (s *Service) RestrictionsForMenu(ctx context.Context, menuID int64) ([]MenuRole, error) {
	return s.repo.RestrictionsForMenu(ctx, menuID)
}

// Restrict limits a menu entry to a role. The first effective restriction
// flips the entry from public to restricted; restricting an already-revoked
// pair reopens the row.
func (s *Service) Restrict(ctx context.Context, restriction MenuRole, actorID int64) (MenuRole, error) {
	if _, err := s.Get(ctx, restriction.MenuID); err != nil {
		return MenuRole{}, err
	}
	restriction.IsGranted = true
	restriction.IsActive = true
	restriction.IsTemporary = restriction.ExpiresAt != nil
	if restriction.ApprovalStatus == "" {
		restriction.ApprovalStatus = grants.ApprovalApproved
	}
	if restriction.RiskLevel == "" {
		restriction.RiskLevel = grants.RiskLow
	}
	restriction.GrantedBy = actorID
	mr, err := s.repo.AddRestriction(ctx, restriction)
	if err != nil {
		return MenuRole{}, err
	}
	s.record(ctx, actorID, "menu.restrict", restriction.MenuID, map[string]any{
		"role_id": restriction.RoleID, "visible": restriction.IsVisible, "navigation": restriction.ShowInNavigation,
	})
	return mr, s.invalidate(ctx)
}

// Unrestrict lifts a role restriction by stamping the row revoked. Once the
// last effective restriction lapses the entry is public again.
func (s *Service) Unrestrict(ctx context.Context, menuID, roleID, actorID int64) error {
	rows, err := s.repo.RevokeRestriction(ctx, menuID, roleID, actorID, s.clock())
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrNotFound
	}
	s.record(ctx, actorID, "menu.unrestrict", menuID, map[string]any{"role_id": roleID})
	return s.invalidate(ctx)
}

// WarmTrees precomputes navigation trees for the given users. Used by the
// background warmup job after invalidations.
func (s *Service) WarmTrees(ctx context.Context, userIDs []int64) error {
	for _, id := range userIDs {
		if _, err := s.TreeForUser(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// effectiveRestrictions drops rows that are revoked, expired, withdrawn or
// still awaiting review. Only the survivors restrict an entry; a menu whose
// rows have all lapsed is public again.
func effectiveRestrictions(restrictions []MenuRole, now time.Time) []MenuRole {
	out := restrictions[:0:0]
	for _, r := range restrictions {
		if r.Effective(now) {
			out = append(out, r)
		}
	}
	return out
}

// inNavigation decides tree membership: public entries always render, and a
// restricted entry renders only for roles whose row is both visible and
// flagged for navigation.
func inNavigation(restrictions []MenuRole, roleSet map[int64]struct{}) bool {
	if len(restrictions) == 0 {
		return true
	}
	for _, r := range restrictions {
		if !r.IsVisible || !r.ShowInNavigation {
			continue
		}
		if _, ok := roleSet[r.RoleID]; ok {
			return true
		}
	}
	return false
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
		Entity:   "menu",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func (s *Service) invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Bump(ctx)
}
