package content

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/analytics-hub/authhub/internal/authz"
	"github.com/analytics-hub/authhub/internal/grants"
	"github.com/analytics-hub/authhub/internal/shared"
)

type stubContentRepo struct {
	items  map[int64]*Content
	scopes []ContentRole
	nextID int64
}

func newStubContentRepo() *stubContentRepo {
	return &stubContentRepo{items: map[int64]*Content{}, nextID: 1}
}

func (r *stubContentRepo) List(context.Context) ([]Content, error) {
	var out []Content
	for _, c := range r.items {
		if c.IsActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *stubContentRepo) Get(_ context.Context, id int64) (Content, error) {
	c, ok := r.items[id]
	if !ok {
		return Content{}, pgx.ErrNoRows
	}
	return *c, nil
}

func (r *stubContentRepo) GetBySlug(_ context.Context, slug string) (Content, error) {
	for _, c := range r.items {
		if c.Slug == slug {
			return *c, nil
		}
	}
	return Content{}, pgx.ErrNoRows
}

func (r *stubContentRepo) Create(_ context.Context, c Content) (Content, error) {
	c.ID = r.nextID
	r.nextID++
	r.items[c.ID] = &c
	return c, nil
}

func (r *stubContentRepo) Update(_ context.Context, c Content) (Content, error) {
	if _, ok := r.items[c.ID]; !ok {
		return Content{}, pgx.ErrNoRows
	}
	r.items[c.ID] = &c
	return c, nil
}

func (r *stubContentRepo) Delete(_ context.Context, id int64) (int64, error) {
	if _, ok := r.items[id]; !ok {
		return 0, nil
	}
	delete(r.items, id)
	return 1, nil
}

func (r *stubContentRepo) RolesForContent(_ context.Context, contentID int64) ([]ContentRole, error) {
	var out []ContentRole
	for _, s := range r.scopes {
		if s.ContentID == contentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubContentRepo) ScopesForRoles(_ context.Context, contentID int64, roleIDs []int64) ([]ContentRole, error) {
	var out []ContentRole
	for _, s := range r.scopes {
		if s.ContentID != contentID {
			continue
		}
		for _, id := range roleIDs {
			if s.RoleID == id {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (r *stubContentRepo) UpsertScope(_ context.Context, scope ContentRole) (ContentRole, error) {
	for i, s := range r.scopes {
		if s.ContentID == scope.ContentID && s.RoleID == scope.RoleID {
			scope.ID = s.ID
			r.scopes[i] = scope
			return scope, nil
		}
	}
	scope.ID = r.nextID
	r.nextID++
	r.scopes = append(r.scopes, scope)
	return scope, nil
}

func (r *stubContentRepo) RevokeScope(_ context.Context, contentID, roleID, actorID int64, at time.Time) (int64, error) {
	for i, s := range r.scopes {
		if s.ContentID == contentID && s.RoleID == roleID && s.RevokedAt == nil {
			r.scopes[i].IsActive = false
			r.scopes[i].RevokedBy = &actorID
			r.scopes[i].RevokedAt = &at
			return 1, nil
		}
	}
	return 0, nil
}

func (r *stubContentRepo) RecordView(_ context.Context, contentID int64, at time.Time) error {
	c := r.items[contentID]
	c.ViewCount++
	c.LastViewedAt = &at
	return nil
}

type stubAuthorizer struct{ perms map[string]bool }

func (a *stubAuthorizer) UserHasPermission(_ context.Context, _ int64, permission string) (bool, error) {
	return a.perms[permission], nil
}

type stubRoleSource struct{ roleIDs []int64 }

func (s *stubRoleSource) AssignmentsForUser(_ context.Context, userID int64) ([]grants.RoleAssignment, error) {
	var out []grants.RoleAssignment
	for i, id := range s.roleIDs {
		out = append(out, grants.RoleAssignment{
			ID:         int64(i + 1),
			UserID:     userID,
			RoleID:     id,
			IsActive:   true,
			AssignedAt: time.Now().UTC().Add(-time.Hour),
		})
	}
	return out, nil
}

func newContentService(repo *stubContentRepo, perms map[string]bool, roleIDs []int64) *Service {
	return NewService(repo, &stubAuthorizer{perms: perms}, &stubRoleSource{roleIDs: roleIDs}, nil)
}

func seedDashboard(repo *stubContentRepo, canView, canEdit bool) Content {
	c, _ := repo.Create(context.Background(), Content{Title: "Revenue", Slug: "revenue", Type: "dashboard", IsActive: true})
	repo.scopes = append(repo.scopes, effectiveScope(c.ID, 7, Capabilities{View: canView, Edit: canEdit}))
	return c
}

func effectiveScope(contentID, roleID int64, caps Capabilities) ContentRole {
	return ContentRole{
		ID: 99, ContentID: contentID, RoleID: roleID, Caps: caps,
		IsGranted: true, IsActive: true,
		ApprovalStatus: grants.ApprovalApproved,
		GrantedAt:      time.Now().UTC().Add(-time.Hour),
	}
}

func TestCanAccessViewButNotEdit(t *testing.T) {
	repo := newStubContentRepo()
	c := seedDashboard(repo, true, false)
	svc := newContentService(repo, map[string]bool{
		shared.PermContentView:   true,
		shared.PermContentManage: true,
	}, []int64{7})
	ctx := context.Background()

	ok, err := svc.CanAccess(ctx, 42, c.ID, CapView)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanAccess(ctx, 42, c.ID, CapEdit)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCanAccessRequiresModulePermission(t *testing.T) {
	repo := newStubContentRepo()
	c := seedDashboard(repo, true, true)
	// Role scope present, module gate missing.
	svc := newContentService(repo, map[string]bool{}, []int64{7})

	ok, err := svc.CanAccess(context.Background(), 42, c.ID, CapView)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCanAccessDeniedWithoutScope(t *testing.T) {
	repo := newStubContentRepo()
	c, _ := repo.Create(context.Background(), Content{Title: "Costs", Slug: "costs", Type: "dashboard", IsActive: true})
	svc := newContentService(repo, map[string]bool{shared.PermContentView: true}, []int64{7})

	ok, err := svc.CanAccess(context.Background(), 42, c.ID, CapView)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCanAccessInactiveContentHidden(t *testing.T) {
	repo := newStubContentRepo()
	c := seedDashboard(repo, true, false)
	repo.items[c.ID].IsActive = false
	svc := newContentService(repo, map[string]bool{shared.PermContentView: true}, []int64{7})

	ok, err := svc.CanAccess(context.Background(), 42, c.ID, CapView)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestViewBumpsCounters(t *testing.T) {
	repo := newStubContentRepo()
	c := seedDashboard(repo, true, false)
	svc := newContentService(repo, map[string]bool{shared.PermContentView: true}, []int64{7})

	got, err := svc.View(context.Background(), 42, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)
	require.Equal(t, int64(1), repo.items[c.ID].ViewCount)
	require.NotNil(t, repo.items[c.ID].LastViewedAt)
}

func TestViewDenialLooksLikeNotFound(t *testing.T) {
	repo := newStubContentRepo()
	c := seedDashboard(repo, false, false)
	svc := newContentService(repo, map[string]bool{shared.PermContentView: true}, []int64{7})

	_, err := svc.View(context.Background(), 42, c.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Zero(t, repo.items[c.ID].ViewCount)
}

func TestVisibleContentFiltersByScope(t *testing.T) {
	repo := newStubContentRepo()
	visible := seedDashboard(repo, true, false)
	_, _ = repo.Create(context.Background(), Content{Title: "Hidden", Slug: "hidden", Type: "dashboard", IsActive: true})
	svc := newContentService(repo, map[string]bool{shared.PermContentView: true}, []int64{7})

	items, err := svc.VisibleContent(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, visible.ID, items[0].ID)
}

func TestGrantRoleReplacesCapabilities(t *testing.T) {
	repo := newStubContentRepo()
	c := seedDashboard(repo, true, false)
	svc := newContentService(repo, map[string]bool{
		shared.PermContentView:   true,
		shared.PermContentManage: true,
	}, []int64{7})
	ctx := context.Background()

	_, err := svc.GrantRole(ctx, c.ID, 7, Capabilities{View: true, Edit: true, Publish: true}, nil, 1)
	require.NoError(t, err)

	ok, err := svc.CanAccess(ctx, 42, c.ID, CapEdit)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDefaultPolicyIsDeny(t *testing.T) {
	require.Equal(t, authz.PolicyDeny, DefaultPolicy)
}

func TestCapabilityGatesBeyondEdit(t *testing.T) {
	repo := newStubContentRepo()
	c, _ := repo.Create(context.Background(), Content{Title: "Board", Slug: "board", Type: "dashboard", IsActive: true})
	repo.scopes = append(repo.scopes, effectiveScope(c.ID, 7, Capabilities{View: true, Comment: true, Share: true}))
	svc := newContentService(repo, map[string]bool{
		shared.PermContentView:   true,
		shared.PermContentManage: true,
	}, []int64{7})
	ctx := context.Background()

	for capability, want := range map[Capability]bool{
		CapView:    true,
		CapComment: true,
		CapShare:   true,
		CapEdit:    false,
		CapDelete:  false,
		CapPublish: false,
	} {
		ok, err := svc.CanAccess(ctx, 42, c.ID, capability)
		require.NoError(t, err)
		require.Equal(t, want, ok, "capability %s", capability)
	}
}

func TestRevokeRoleScope(t *testing.T) {
	repo := newStubContentRepo()
	c := seedDashboard(repo, true, false)
	svc := newContentService(repo, map[string]bool{shared.PermContentView: true}, []int64{7})
	ctx := context.Background()

	require.NoError(t, svc.RevokeRole(ctx, c.ID, 7, 1))

	ok, err := svc.CanAccess(ctx, 42, c.ID, CapView)
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, svc.RevokeRole(ctx, c.ID, 7, 1), shared.ErrNotFound)
}

func TestRevokeRoleStampsInsteadOfDeleting(t *testing.T) {
	repo := newStubContentRepo()
	c := seedDashboard(repo, true, false)
	svc := newContentService(repo, map[string]bool{shared.PermContentView: true}, []int64{7})

	require.NoError(t, svc.RevokeRole(context.Background(), c.ID, 7, 5))

	require.Len(t, repo.scopes, 1)
	row := repo.scopes[0]
	require.False(t, row.IsActive)
	require.NotNil(t, row.RevokedAt)
	require.NotNil(t, row.RevokedBy)
	require.Equal(t, int64(5), *row.RevokedBy)
}

func TestExpiredScopeConveysNothing(t *testing.T) {
	repo := newStubContentRepo()
	c, _ := repo.Create(context.Background(), Content{Title: "Temp", Slug: "temp", Type: "dashboard", IsActive: true})
	past := time.Now().UTC().Add(-time.Minute)
	scope := effectiveScope(c.ID, 7, Capabilities{View: true})
	scope.ExpiresAt = &past
	scope.IsTemporary = true
	repo.scopes = append(repo.scopes, scope)
	svc := newContentService(repo, map[string]bool{shared.PermContentView: true}, []int64{7})
	ctx := context.Background()

	ok, err := svc.CanAccess(ctx, 42, c.ID, CapView)
	require.NoError(t, err)
	require.False(t, ok)

	// The row still exists; only its window has closed.
	items, err := svc.VisibleContent(ctx, 42)
	require.NoError(t, err)
	require.Empty(t, items)
	require.Len(t, repo.scopes, 1)
}

func TestPendingScopeConveysNothing(t *testing.T) {
	repo := newStubContentRepo()
	c, _ := repo.Create(context.Background(), Content{Title: "Review", Slug: "review", Type: "dashboard", IsActive: true})
	scope := effectiveScope(c.ID, 7, Capabilities{View: true, Edit: true})
	scope.RequiresApproval = true
	scope.ApprovalStatus = grants.ApprovalPending
	repo.scopes = append(repo.scopes, scope)
	svc := newContentService(repo, map[string]bool{
		shared.PermContentView:   true,
		shared.PermContentManage: true,
	}, []int64{7})

	for _, capability := range []Capability{CapView, CapEdit} {
		ok, err := svc.CanAccess(context.Background(), 42, c.ID, capability)
		require.NoError(t, err)
		require.False(t, ok, "capability %s", capability)
	}
}

func TestRegrantReopensRevokedScope(t *testing.T) {
	repo := newStubContentRepo()
	c := seedDashboard(repo, true, false)
	svc := newContentService(repo, map[string]bool{shared.PermContentView: true}, []int64{7})
	ctx := context.Background()

	require.NoError(t, svc.RevokeRole(ctx, c.ID, 7, 1))

	_, err := svc.GrantRole(ctx, c.ID, 7, Capabilities{View: true}, nil, 1)
	require.NoError(t, err)

	ok, err := svc.CanAccess(ctx, 42, c.ID, CapView)
	require.NoError(t, err)
	require.True(t, ok)
}
