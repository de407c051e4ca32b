package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/analytics-hub/authhub/internal/grants"
	"github.com/analytics-hub/authhub/internal/shared"
)

func testMiddleware(gr *stubGrants) Middleware {
	resolver := fixedResolver(baseCatalog(), gr)
	return Middleware{Service: NewService(resolver, nil, nil)}
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, actor *int64) *httptest.ResponseRecorder {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(context.Background(), *actor))
	}
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	return rec
}

func TestRequireAnyAllowsPermittedUser(t *testing.T) {
	mw := testMiddleware(&stubGrants{assignments: []grants.RoleAssignment{activeAssignment(7)}})
	actor := testUser

	rec := serve(t, mw.RequireAny("reports.view"), &actor)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAnyDeniesWithForbidden(t *testing.T) {
	mw := testMiddleware(&stubGrants{})
	actor := testUser

	rec := serve(t, mw.RequireAny("reports.view"), &actor)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyWithoutActorIsUnauthorized(t *testing.T) {
	mw := testMiddleware(&stubGrants{})

	rec := serve(t, mw.RequireAny("reports.view"), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAnyHonoursExplicitDeny(t *testing.T) {
	denial := activeGrant(50, 1, false)
	denial.PermissionName = "reports.view"
	mw := testMiddleware(&stubGrants{
		assignments: []grants.RoleAssignment{activeAssignment(7)},
		perms:       []grants.UserPermission{denial},
	})
	actor := testUser

	rec := serve(t, mw.RequireAny("reports.view"), &actor)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	mw := testMiddleware(&stubGrants{assignments: []grants.RoleAssignment{activeAssignment(7)}})
	actor := testUser

	rec := serve(t, mw.RequireAll("reports.view", "reports.export"), &actor)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, mw.RequireAll("reports.view", "users.edit"), &actor)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyEmptyListPassesThrough(t *testing.T) {
	mw := testMiddleware(&stubGrants{})

	rec := serve(t, mw.RequireAny(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
