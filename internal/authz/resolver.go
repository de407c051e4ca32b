package authz

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/analytics-hub/authhub/internal/catalog"
	"github.com/analytics-hub/authhub/internal/grants"
	"github.com/analytics-hub/authhub/internal/shared"
)

// CatalogReader exposes the catalog lookups the resolver needs.
type CatalogReader interface {
	PermissionByName(ctx context.Context, name string) (catalog.Permission, error)
	GetRole(ctx context.Context, id int64) (catalog.Role, error)
	RoleByName(ctx context.Context, name string) (catalog.Role, error)
	HasPermission(ctx context.Context, roleID int64, name string) (bool, error)
}

// GrantReader exposes the per-user grant lookups the resolver needs.
type GrantReader interface {
	AssignmentsForUser(ctx context.Context, userID int64) ([]grants.RoleAssignment, error)
	PermissionsForUser(ctx context.Context, userID int64) ([]grants.UserPermission, error)
	RecordUsage(ctx context.Context, grantID int64) error
}

// Resolver answers "may user U exercise permission P" with a full Decision.
// Precedence is fixed: explicit denial, then direct grant, then role grant,
// then no grant.
type Resolver struct {
	catalog CatalogReader
	grants  GrantReader
	clock   func() time.Time
}

// NewResolver builds a Resolver instance.
func NewResolver(cat CatalogReader, gr GrantReader) *Resolver {
	return &Resolver{
		catalog: cat,
		grants:  gr,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Authorize resolves one permission for one user. The returned error is
// non-nil only when the question could not be answered; a denial is a
// Decision with Allowed false.
func (r *Resolver) Authorize(ctx context.Context, userID int64, permission string) (Decision, error) {
	name := strings.ToLower(strings.TrimSpace(permission))
	decision := Decision{Permission: name, Reason: ReasonNoGrant}
	if name == "" {
		decision.Reason = ReasonUnknownPermission
		return decision, nil
	}

	perm, err := r.catalog.PermissionByName(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrUnknownPermission) {
			decision.Reason = ReasonUnknownPermission
			return decision, nil
		}
		return Decision{}, err
	}
	decision.PermissionID = perm.ID

	now := r.clock()
	direct, err := r.effectiveDirect(ctx, userID, perm.ID, now)
	if err != nil {
		return Decision{}, err
	}
	if direct != nil {
		decision.GrantID = &direct.ID
		decision.OverrodeRole = direct.OverridesRole
		if !direct.Granted {
			decision.Reason = ReasonExplicitDeny
			return decision, nil
		}
		decision.Allowed = true
		decision.Reason = ReasonDirectGrant
		// Usage counters are statistics; a failed bump never fails the
		// decision.
		_ = r.grants.RecordUsage(ctx, direct.ID)
		return decision, nil
	}

	roleID, roleName, err := r.roleGranting(ctx, userID, name, now)
	if err != nil {
		return Decision{}, err
	}
	if roleID != 0 {
		decision.Allowed = true
		decision.Reason = ReasonRoleGrant
		decision.RoleID = &roleID
		decision.RoleName = roleName
		return decision, nil
	}
	return decision, nil
}

// effectiveDirect returns the latest effective direct record for the
// permission, or nil when none applies.
func (r *Resolver) effectiveDirect(ctx context.Context, userID, permissionID int64, now time.Time) (*grants.UserPermission, error) {
	records, err := r.grants.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var latest *grants.UserPermission
	for i := range records {
		g := records[i]
		if g.PermissionID != permissionID || !g.Effective(now) {
			continue
		}
		if latest == nil || g.ID > latest.ID {
			latest = &records[i]
		}
	}
	return latest, nil
}

// roleGranting returns the first effective, active role carrying the
// permission.
func (r *Resolver) roleGranting(ctx context.Context, userID int64, name string, now time.Time) (int64, string, error) {
	assignments, err := r.grants.AssignmentsForUser(ctx, userID)
	if err != nil {
		return 0, "", err
	}
	for _, a := range assignments {
		if !a.Effective(now) {
			continue
		}
		role, err := r.catalog.GetRole(ctx, a.RoleID)
		if err != nil {
			if errors.Is(err, shared.ErrUnknownRole) {
				continue
			}
			return 0, "", err
		}
		if !role.IsActive {
			continue
		}
		ok, err := r.catalog.HasPermission(ctx, a.RoleID, name)
		if err != nil {
			return 0, "", err
		}
		if ok {
			return role.ID, role.Name, nil
		}
	}
	return 0, "", nil
}

// EffectivePermissions computes the user's full allowed set: the union of
// every effective role's permissions plus direct grants, minus explicit
// denials.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	now := r.clock()
	allowed := map[string]struct{}{}

	assignments, err := r.grants.AssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if !a.Effective(now) {
			continue
		}
		role, err := r.catalog.GetRole(ctx, a.RoleID)
		if err != nil {
			if errors.Is(err, shared.ErrUnknownRole) {
				continue
			}
			return nil, err
		}
		if !role.IsActive {
			continue
		}
		for _, name := range role.PermissionsCache {
			allowed[strings.ToLower(name)] = struct{}{}
		}
	}

	records, err := r.grants.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Latest effective record per permission wins.
	latest := map[int64]grants.UserPermission{}
	for _, g := range records {
		if !g.Effective(now) {
			continue
		}
		if cur, ok := latest[g.PermissionID]; !ok || g.ID > cur.ID {
			latest[g.PermissionID] = g
		}
	}
	for _, g := range latest {
		name := strings.ToLower(g.PermissionName)
		if g.Granted {
			allowed[name] = struct{}{}
		} else {
			delete(allowed, name)
		}
	}

	out := make([]string, 0, len(allowed))
	for name := range allowed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
