package authz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/analytics-hub/authhub/internal/catalog"
	"github.com/analytics-hub/authhub/internal/grants"
	"github.com/analytics-hub/authhub/internal/shared"
)

type stubCatalog struct {
	perms map[string]catalog.Permission
	roles map[int64]catalog.Role
}

func (c *stubCatalog) PermissionByName(_ context.Context, name string) (catalog.Permission, error) {
	p, ok := c.perms[name]
	if !ok {
		return catalog.Permission{}, shared.ErrUnknownPermission
	}
	return p, nil
}

func (c *stubCatalog) GetRole(_ context.Context, id int64) (catalog.Role, error) {
	r, ok := c.roles[id]
	if !ok {
		return catalog.Role{}, shared.ErrUnknownRole
	}
	return r, nil
}

func (c *stubCatalog) RoleByName(_ context.Context, name string) (catalog.Role, error) {
	for _, r := range c.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return catalog.Role{}, shared.ErrUnknownRole
}

func (c *stubCatalog) HasPermission(_ context.Context, roleID int64, name string) (bool, error) {
	r, ok := c.roles[roleID]
	if !ok {
		return false, shared.ErrUnknownRole
	}
	for _, p := range r.PermissionsCache {
		if strings.EqualFold(p, name) {
			return true, nil
		}
	}
	return false, nil
}

type stubGrants struct {
	assignments []grants.RoleAssignment
	perms       []grants.UserPermission
	usage       map[int64]int
}

func (g *stubGrants) AssignmentsForUser(_ context.Context, userID int64) ([]grants.RoleAssignment, error) {
	var out []grants.RoleAssignment
	for _, a := range g.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (g *stubGrants) PermissionsForUser(_ context.Context, userID int64) ([]grants.UserPermission, error) {
	var out []grants.UserPermission
	for _, p := range g.perms {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *stubGrants) RecordUsage(_ context.Context, grantID int64) error {
	if g.usage == nil {
		g.usage = map[int64]int{}
	}
	g.usage[grantID]++
	return nil
}

const testUser int64 = 42

func fixedResolver(cat *stubCatalog, gr *stubGrants) *Resolver {
	r := NewResolver(cat, gr)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return at }
	return r
}

func baseCatalog() *stubCatalog {
	return &stubCatalog{
		perms: map[string]catalog.Permission{
			"reports.view":   {ID: 1, Name: "reports.view"},
			"reports.export": {ID: 2, Name: "reports.export"},
			"users.edit":     {ID: 3, Name: "users.edit"},
		},
		roles: map[int64]catalog.Role{
			7: {ID: 7, Name: "analyst", IsActive: true, PermissionsCache: []string{"reports.export", "reports.view"}},
			8: {ID: 8, Name: "dormant", IsActive: false, PermissionsCache: []string{"users.edit"}},
		},
	}
}

func activeAssignment(roleID int64) grants.RoleAssignment {
	return grants.RoleAssignment{
		ID:         1,
		UserID:     testUser,
		RoleID:     roleID,
		IsActive:   true,
		AssignedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func activeGrant(id, permID int64, granted bool) grants.UserPermission {
	return grants.UserPermission{
		ID:             id,
		UserID:         testUser,
		PermissionID:   permID,
		Granted:        granted,
		IsActive:       true,
		ApprovalStatus: grants.ApprovalApproved,
		GrantedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAuthorizeDenyBeatsRoleGrant(t *testing.T) {
	gr := &stubGrants{
		assignments: []grants.RoleAssignment{activeAssignment(7)},
		perms:       []grants.UserPermission{activeGrant(10, 1, false)},
	}
	r := fixedResolver(baseCatalog(), gr)

	decision, err := r.Authorize(context.Background(), testUser, "reports.view")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonExplicitDeny, decision.Reason)
	require.NotNil(t, decision.GrantID)
	require.Equal(t, int64(10), *decision.GrantID)
	// Denials never count as usage.
	require.Zero(t, gr.usage[10])
}

func TestAuthorizeDirectGrantWithoutRole(t *testing.T) {
	gr := &stubGrants{perms: []grants.UserPermission{activeGrant(11, 3, true)}}
	r := fixedResolver(baseCatalog(), gr)

	decision, err := r.Authorize(context.Background(), testUser, "users.edit")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, ReasonDirectGrant, decision.Reason)
	require.Equal(t, 1, gr.usage[11])
}

func TestAuthorizeRoleGrant(t *testing.T) {
	gr := &stubGrants{assignments: []grants.RoleAssignment{activeAssignment(7)}}
	r := fixedResolver(baseCatalog(), gr)

	decision, err := r.Authorize(context.Background(), testUser, "reports.view")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, ReasonRoleGrant, decision.Reason)
	require.NotNil(t, decision.RoleID)
	require.Equal(t, int64(7), *decision.RoleID)
	require.Equal(t, "analyst", decision.RoleName)
}

func TestAuthorizeNoGrant(t *testing.T) {
	r := fixedResolver(baseCatalog(), &stubGrants{})

	decision, err := r.Authorize(context.Background(), testUser, "users.edit")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNoGrant, decision.Reason)
}

func TestAuthorizeUnknownPermission(t *testing.T) {
	r := fixedResolver(baseCatalog(), &stubGrants{})

	decision, err := r.Authorize(context.Background(), testUser, "ghost.permission")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonUnknownPermission, decision.Reason)
}

func TestAuthorizePendingGrantIgnored(t *testing.T) {
	pending := activeGrant(12, 3, true)
	pending.RequiresApproval = true
	pending.ApprovalStatus = grants.ApprovalPending
	r := fixedResolver(baseCatalog(), &stubGrants{perms: []grants.UserPermission{pending}})

	decision, err := r.Authorize(context.Background(), testUser, "users.edit")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNoGrant, decision.Reason)
}

func TestAuthorizeExpiredGrantIgnored(t *testing.T) {
	expired := activeGrant(13, 3, true)
	past := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	expired.ExpiresAt = &past
	r := fixedResolver(baseCatalog(), &stubGrants{perms: []grants.UserPermission{expired}})

	decision, err := r.Authorize(context.Background(), testUser, "users.edit")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNoGrant, decision.Reason)
}

func TestAuthorizeExpiredDenialStopsBlocking(t *testing.T) {
	denial := activeGrant(14, 1, false)
	past := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	denial.ExpiresAt = &past
	gr := &stubGrants{
		assignments: []grants.RoleAssignment{activeAssignment(7)},
		perms:       []grants.UserPermission{denial},
	}
	r := fixedResolver(baseCatalog(), gr)

	decision, err := r.Authorize(context.Background(), testUser, "reports.view")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, ReasonRoleGrant, decision.Reason)
}

func TestAuthorizeRevokedAssignmentIgnored(t *testing.T) {
	revoked := activeAssignment(7)
	at := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	revoked.RevokedAt = &at
	revoked.IsActive = false
	r := fixedResolver(baseCatalog(), &stubGrants{assignments: []grants.RoleAssignment{revoked}})

	decision, err := r.Authorize(context.Background(), testUser, "reports.view")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNoGrant, decision.Reason)
}

func TestAuthorizeExpiredAssignmentIgnored(t *testing.T) {
	expired := activeAssignment(7)
	past := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	expired.ExpiresAt = &past
	r := fixedResolver(baseCatalog(), &stubGrants{assignments: []grants.RoleAssignment{expired}})

	decision, err := r.Authorize(context.Background(), testUser, "reports.view")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
}

func TestAuthorizeInactiveRoleIgnored(t *testing.T) {
	assignment := activeAssignment(8)
	r := fixedResolver(baseCatalog(), &stubGrants{assignments: []grants.RoleAssignment{assignment}})

	decision, err := r.Authorize(context.Background(), testUser, "users.edit")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonNoGrant, decision.Reason)
}

func TestAuthorizeLatestDirectRecordWins(t *testing.T) {
	older := activeGrant(20, 1, true)
	newer := activeGrant(21, 1, false)
	gr := &stubGrants{perms: []grants.UserPermission{older, newer}}
	r := fixedResolver(baseCatalog(), gr)

	decision, err := r.Authorize(context.Background(), testUser, "reports.view")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonExplicitDeny, decision.Reason)
}

func TestAuthorizeNormalizesName(t *testing.T) {
	gr := &stubGrants{assignments: []grants.RoleAssignment{activeAssignment(7)}}
	r := fixedResolver(baseCatalog(), gr)

	decision, err := r.Authorize(context.Background(), testUser, "  Reports.View ")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, "reports.view", decision.Permission)
}

func TestEffectivePermissionsUnionMinusDenials(t *testing.T) {
	gr := &stubGrants{
		assignments: []grants.RoleAssignment{activeAssignment(7)},
		perms: []grants.UserPermission{
			activeGrant(30, 3, true),  // direct users.edit
			activeGrant(31, 2, false), // deny reports.export
		},
	}
	gr.perms[0].PermissionName = "users.edit"
	gr.perms[1].PermissionName = "reports.export"
	r := fixedResolver(baseCatalog(), gr)

	perms, err := r.EffectivePermissions(context.Background(), testUser)
	require.NoError(t, err)
	require.Equal(t, []string{"reports.view", "users.edit"}, perms)
}

func TestEffectivePermissionsEmptyWithoutGrants(t *testing.T) {
	r := fixedResolver(baseCatalog(), &stubGrants{})

	perms, err := r.EffectivePermissions(context.Background(), testUser)
	require.NoError(t, err)
	require.Empty(t, perms)
}
