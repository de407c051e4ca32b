package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/analytics-hub/authhub/internal/audit"
	"github.com/analytics-hub/authhub/internal/auth"
	"github.com/analytics-hub/authhub/internal/authz"
	"github.com/analytics-hub/authhub/internal/catalog"
	"github.com/analytics-hub/authhub/internal/content"
	"github.com/analytics-hub/authhub/internal/grants"
	"github.com/analytics-hub/authhub/internal/menu"
	"github.com/analytics-hub/authhub/internal/observability"
	"github.com/analytics-hub/authhub/internal/shared"
	"github.com/analytics-hub/authhub/internal/users"
	"github.com/analytics-hub/authhub/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RolesHandler       *catalog.RolesHandler
	PermissionsHandler *catalog.PermissionsHandler
	GrantsHandler      *grants.Handler
	ContentHandler     *content.Handler
	MenuHandler        *menu.Handler
	AuditHandler       *audit.Handler
	AuthzHandler       *authz.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with hub defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.GrantsHandler != nil {
		r.Route("/grants", params.GrantsHandler.MountRoutes)
	}
	if params.ContentHandler != nil {
		r.Route("/content", params.ContentHandler.MountRoutes)
	}
	if params.MenuHandler != nil {
		r.Route("/menus", params.MenuHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.AuthzHandler != nil {
		r.Route("/authz", params.AuthzHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
