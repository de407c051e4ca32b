package menu

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/analytics-hub/authhub/internal/authz"
	"github.com/analytics-hub/authhub/internal/grants"
	"github.com/analytics-hub/authhub/internal/shared"
)

type stubMenuRepo struct {
	menus        map[int64]*Menu
	restrictions map[int64][]MenuRole
	nextID       int64
	listCalls    int
}

func newStubMenuRepo() *stubMenuRepo {
	return &stubMenuRepo{menus: map[int64]*Menu{}, restrictions: map[int64][]MenuRole{}, nextID: 1}
}

func (r *stubMenuRepo) List(context.Context) ([]Menu, error) {
	r.listCalls++
	var out []Menu
	for _, m := range r.menus {
		if m.IsActive {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *stubMenuRepo) Get(_ context.Context, id int64) (Menu, error) {
	m, ok := r.menus[id]
	if !ok {
		return Menu{}, pgx.ErrNoRows
	}
	return *m, nil
}

func (r *stubMenuRepo) Create(_ context.Context, m Menu) (Menu, error) {
	m.ID = r.nextID
	r.nextID++
	r.menus[m.ID] = &m
	return m, nil
}

func (r *stubMenuRepo) Update(_ context.Context, m Menu) (Menu, error) {
	if _, ok := r.menus[m.ID]; !ok {
		return Menu{}, pgx.ErrNoRows
	}
	r.menus[m.ID] = &m
	return m, nil
}

func (r *stubMenuRepo) Delete(_ context.Context, id int64) (int64, error) {
	if _, ok := r.menus[id]; !ok {
		return 0, nil
	}
	delete(r.menus, id)
	return 1, nil
}

func (r *stubMenuRepo) RestrictionsForMenu(_ context.Context, menuID int64) ([]MenuRole, error) {
	return append([]MenuRole(nil), r.restrictions[menuID]...), nil
}

func (r *stubMenuRepo) AllRestrictions(context.Context) (map[int64][]MenuRole, error) {
	out := map[int64][]MenuRole{}
	for k, v := range r.restrictions {
		out[k] = append([]MenuRole(nil), v...)
	}
	return out, nil
}

func (r *stubMenuRepo) AddRestriction(_ context.Context, restriction MenuRole) (MenuRole, error) {
	for i, existing := range r.restrictions[restriction.MenuID] {
		if existing.RoleID == restriction.RoleID {
			r.restrictions[restriction.MenuID][i] = restriction
			return restriction, nil
		}
	}
	r.restrictions[restriction.MenuID] = append(r.restrictions[restriction.MenuID], restriction)
	return restriction, nil
}

func (r *stubMenuRepo) RevokeRestriction(_ context.Context, menuID, roleID, actorID int64, at time.Time) (int64, error) {
	for i, existing := range r.restrictions[menuID] {
		if existing.RoleID == roleID && existing.RevokedAt == nil {
			r.restrictions[menuID][i].IsActive = false
			r.restrictions[menuID][i].RevokedBy = &actorID
			r.restrictions[menuID][i].RevokedAt = &at
			return 1, nil
		}
	}
	return 0, nil
}

type stubMenuRoles struct{ roleIDs []int64 }

func (s *stubMenuRoles) AssignmentsForUser(_ context.Context, userID int64) ([]grants.RoleAssignment, error) {
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

func seedMenus(repo *stubMenuRepo) (reports Menu, admin Menu, adminUsers Menu) {
	ctx := context.Background()
	reports, _ = repo.Create(ctx, Menu{Title: "Reports", Slug: "reports", SortOrder: 1, IsActive: true})
	admin, _ = repo.Create(ctx, Menu{Title: "Administration", Slug: "admin", SortOrder: 2, IsActive: true})
	adminUsers, _ = repo.Create(ctx, Menu{ParentID: &admin.ID, Title: "Users", Slug: "admin-users", SortOrder: 1, IsActive: true})
	// Administration is restricted to role 9.
	repo.restrictions[admin.ID] = []MenuRole{effectiveRestriction(admin.ID, 9)}
	repo.restrictions[adminUsers.ID] = []MenuRole{effectiveRestriction(adminUsers.ID, 9)}
	return reports, admin, adminUsers
}

func effectiveRestriction(menuID, roleID int64) MenuRole {
	return MenuRole{
		MenuID: menuID, RoleID: roleID,
		IsVisible: true, ShowInNavigation: true,
		IsGranted: true, IsActive: true,
		ApprovalStatus: grants.ApprovalApproved,
		GrantedAt:      time.Now().UTC().Add(-time.Hour),
	}
}

func TestTreeDefaultAllow(t *testing.T) {
	repo := newStubMenuRepo()
	reports, _, _ := seedMenus(repo)
	svc := NewService(repo, &stubMenuRoles{roleIDs: []int64{7}}, nil, nil)

	nodes, err := svc.TreeForUser(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, reports.ID, nodes[0].Menu.ID)
}

func TestTreeRestrictedVisibleToRole(t *testing.T) {
	repo := newStubMenuRepo()
	_, admin, adminUsers := seedMenus(repo)
	svc := NewService(repo, &stubMenuRoles{roleIDs: []int64{9}}, nil, nil)

	nodes, err := svc.TreeForUser(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	var adminNode *Node
	for i := range nodes {
		if nodes[i].Menu.ID == admin.ID {
			adminNode = &nodes[i]
		}
	}
	require.NotNil(t, adminNode)
	require.Len(t, adminNode.Children, 1)
	require.Equal(t, adminUsers.ID, adminNode.Children[0].Menu.ID)
}

func TestCanAccessMenuDefaultAllow(t *testing.T) {
	repo := newStubMenuRepo()
	reports, admin, _ := seedMenus(repo)
	svc := NewService(repo, &stubMenuRoles{roleIDs: []int64{7}}, nil, nil)
	ctx := context.Background()

	ok, err := svc.CanAccessMenu(ctx, 42, reports.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanAccessMenu(ctx, 42, admin.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCanAccessMenuUnknownID(t *testing.T) {
	svc := NewService(newStubMenuRepo(), &stubMenuRoles{}, nil, nil)

	_, err := svc.CanAccessMenu(context.Background(), 42, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRestrictionFlipsEntryToRestricted(t *testing.T) {
	repo := newStubMenuRepo()
	reports, _, _ := seedMenus(repo)
	svc := NewService(repo, &stubMenuRoles{roleIDs: []int64{7}}, nil, nil)
	ctx := context.Background()

	_, err := svc.Restrict(ctx, MenuRole{MenuID: reports.ID, RoleID: 9, IsVisible: true, ShowInNavigation: true}, 1)
	require.NoError(t, err)

	ok, err := svc.CanAccessMenu(ctx, 42, reports.ID)
	require.NoError(t, err)
	require.False(t, ok)

	// Lifting the last restriction makes the entry public again.
	require.NoError(t, svc.Unrestrict(ctx, reports.ID, 9, 1))
	ok, err = svc.CanAccessMenu(ctx, 42, reports.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDefaultPolicyIsAllow(t *testing.T) {
	require.Equal(t, authz.PolicyAllow, DefaultPolicy)
}

func TestHiddenRestrictionDeniesAccess(t *testing.T) {
	repo := newStubMenuRepo()
	_, admin, _ := seedMenus(repo)
	hidden := effectiveRestriction(admin.ID, 9)
	hidden.IsVisible = false
	hidden.ShowInNavigation = false
	repo.restrictions[admin.ID] = []MenuRole{hidden}
	svc := NewService(repo, &stubMenuRoles{roleIDs: []int64{9}}, nil, nil)

	ok, err := svc.CanAccessMenu(context.Background(), 42, admin.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeepLinkEntryAccessibleButOffTree(t *testing.T) {
	repo := newStubMenuRepo()
	reports, _, _ := seedMenus(repo)
	svc := NewService(repo, &stubMenuRoles{roleIDs: []int64{9}}, nil, nil)
	ctx := context.Background()

	// Visible but kept out of navigation: reachable by direct link only.
	_, err := svc.Restrict(ctx, MenuRole{MenuID: reports.ID, RoleID: 9, IsVisible: true, ShowInNavigation: false}, 1)
	require.NoError(t, err)

	ok, err := svc.CanAccessMenu(ctx, 42, reports.ID)
	require.NoError(t, err)
	require.True(t, ok)

	nodes, err := svc.TreeForUser(ctx, 42)
	require.NoError(t, err)
	for _, n := range nodes {
		require.NotEqual(t, reports.ID, n.Menu.ID)
	}
}

func TestExpiredRestrictionLapsesToPublic(t *testing.T) {
	repo := newStubMenuRepo()
	_, admin, _ := seedMenus(repo)
	past := time.Now().UTC().Add(-time.Minute)
	lapsed := effectiveRestriction(admin.ID, 9)
	lapsed.ExpiresAt = &past
	lapsed.IsTemporary = true
	repo.restrictions[admin.ID] = []MenuRole{lapsed}
	// No roles at all: with the only restriction lapsed the entry is public.
	svc := NewService(repo, &stubMenuRoles{}, nil, nil)

	ok, err := svc.CanAccessMenu(context.Background(), 42, admin.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPendingRestrictionConveysNothing(t *testing.T) {
	repo := newStubMenuRepo()
	_, admin, adminUsers := seedMenus(repo)
	pending := effectiveRestriction(admin.ID, 9)
	pending.RequiresApproval = true
	pending.ApprovalStatus = grants.ApprovalPending
	repo.restrictions[admin.ID] = []MenuRole{pending}
	delete(repo.restrictions, adminUsers.ID)
	svc := NewService(repo, &stubMenuRoles{roleIDs: []int64{9}}, nil, nil)

	// The role's row is not yet approved, so it restricts nothing and the
	// entry stays public.
	ok, err := svc.CanAccessMenu(context.Background(), 42, admin.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnrestrictStampsInsteadOfDeleting(t *testing.T) {
	repo := newStubMenuRepo()
	reports, _, _ := seedMenus(repo)
	svc := NewService(repo, &stubMenuRoles{roleIDs: []int64{7}}, nil, nil)
	ctx := context.Background()

	_, err := svc.Restrict(ctx, MenuRole{MenuID: reports.ID, RoleID: 9, IsVisible: true, ShowInNavigation: true}, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Unrestrict(ctx, reports.ID, 9, 5))

	require.Len(t, repo.restrictions[reports.ID], 1)
	row := repo.restrictions[reports.ID][0]
	require.False(t, row.IsActive)
	require.NotNil(t, row.RevokedAt)
	require.NotNil(t, row.RevokedBy)
	require.Equal(t, int64(5), *row.RevokedBy)

	// Revoking the same pair again is a not-found, matching grant semantics.
	require.ErrorIs(t, svc.Unrestrict(ctx, reports.ID, 9, 5), shared.ErrNotFound)
}

func TestTreeCachedUntilBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := authz.NewCache(client, time.Minute)

	repo := newStubMenuRepo()
	seedMenus(repo)
	svc := NewService(repo, &stubMenuRoles{roleIDs: []int64{7}}, cache, nil)
	ctx := context.Background()

	_, err := svc.TreeForUser(ctx, 42)
	require.NoError(t, err)
	_, err = svc.TreeForUser(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)

	require.NoError(t, cache.Bump(ctx))

	_, err = svc.TreeForUser(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, 2, repo.listCalls)
}
