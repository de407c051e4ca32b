package grants

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/analytics-hub/authhub/internal/platform/httpx"
	"github.com/analytics-hub/authhub/internal/shared"
)

// Handler manages assignment and direct grant endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	validator  *validator.Validate
	requireAny shared.Guard
	requireAll shared.Guard
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, requireAny, requireAll shared.Guard) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		validator:  validator.New(),
		requireAny: requireAny,
		requireAll: requireAll,
	}
}

// MountRoutes registers grant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAny(shared.PermGrantsView))
		r.Get("/users/{userID}/assignments", h.listAssignments)
		r.Get("/users/{userID}/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAll(shared.PermGrantsEdit))
		r.Post("/users/{userID}/assignments", h.assignRole)
		r.Delete("/users/{userID}/assignments/{roleID}", h.revokeRole)
		r.Post("/users/{userID}/permissions", h.grantPermission)
		r.Delete("/users/{userID}/permissions/{permission}", h.revokePermission)
		r.Post("/{grantID}/revoke", h.revokeGrant)
		r.Post("/{grantID}/extend", h.extendGrant)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAll(shared.PermGrantsApprove))
		r.Post("/{grantID}/approve", h.approveGrant)
		r.Post("/{grantID}/reject", h.rejectGrant)
	})
}

type assignmentResponse struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	RoleID    int64      `json:"role_id"`
	RoleName  string     `json:"role_name"`
	Effective bool       `json:"effective"`
	AssignedAt time.Time `json:"assigned_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

type grantResponse struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	Permission     string     `json:"permission"`
	Granted        bool       `json:"granted"`
	State          State      `json:"state"`
	Effective      bool       `json:"effective"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsTemporary    bool       `json:"is_temporary"`
	OverridesRole  bool       `json:"overrides_role"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	RiskLevel      RiskLevel  `json:"risk_level"`
	UsageCount     int64      `json:"usage_count"`
}

func toGrantResponse(g UserPermission, now time.Time) grantResponse {
	return grantResponse{
		ID:             g.ID,
		UserID:         g.UserID,
		Permission:     g.PermissionName,
		Granted:        g.Granted,
		State:          g.State(now),
		Effective:      g.Effective(now),
		ExpiresAt:      g.ExpiresAt,
		IsTemporary:    g.IsTemporary,
		OverridesRole:  g.OverridesRole,
		ApprovalStatus: g.ApprovalStatus,
		RiskLevel:      g.RiskLevel,
		UsageCount:     g.UsageCount,
	}
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	assignments, err := h.service.AssignmentsForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	now := time.Now().UTC()
	out := make([]assignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, assignmentResponse{
			ID:         a.ID,
			UserID:     a.UserID,
			RoleID:     a.RoleID,
			RoleName:   a.RoleName,
			Effective:  a.Effective(now),
			AssignedAt: a.AssignedAt,
			ExpiresAt:  a.ExpiresAt,
			RevokedAt:  a.RevokedAt,
			Reason:     a.Reason,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	perms, err := h.service.PermissionsForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list user permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	now := time.Now().UTC()
	out := make([]grantResponse, 0, len(perms))
	for _, g := range perms {
		out = append(out, toGrantResponse(g, now))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type assignRoleRequest struct {
	RoleID    int64      `json:"role_id" validate:"required,gt=0"`
	Reason    string     `json:"reason" validate:"max=255"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	assignment, err := h.service.AssignRole(r.Context(), userID, req.RoleID, actorID, req.Reason, req.ExpiresAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignmentResponse{
		ID:         assignment.ID,
		UserID:     assignment.UserID,
		RoleID:     assignment.RoleID,
		RoleName:   assignment.RoleName,
		Effective:  assignment.Effective(time.Now().UTC()),
		AssignedAt: assignment.AssignedAt,
		ExpiresAt:  assignment.ExpiresAt,
		Reason:     assignment.Reason,
	})
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req reasonRequest
	_ = httpx.DecodeJSON(r, &req)
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.RevokeRole(r.Context(), userID, roleID, actorID, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantPermissionRequest struct {
	Permission       string     `json:"permission" validate:"required,min=3,max=128"`
	Granted          *bool      `json:"granted" validate:"required"`
	ExpiresAt        *time.Time `json:"expires_at"`
	IsTemporary      bool       `json:"is_temporary"`
	OverridesRole    bool       `json:"overrides_role"`
	OverriddenRoleID *int64     `json:"overridden_role_id"`
	RequiresApproval bool       `json:"requires_approval"`
	RiskLevel        string     `json:"risk_level" validate:"omitempty,oneof=low medium high critical"`
	Reason           string     `json:"reason" validate:"max=255"`
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req grantPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	grant, err := h.service.GrantPermission(r.Context(), userID, req.Permission, actorID, GrantOptions{
		Granted:          *req.Granted,
		ExpiresAt:        req.ExpiresAt,
		IsTemporary:      req.IsTemporary,
		OverridesRole:    req.OverridesRole,
		OverriddenRoleID: req.OverriddenRoleID,
		RequiresApproval: req.RequiresApproval,
		RiskLevel:        RiskLevel(req.RiskLevel),
		Reason:           req.Reason,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toGrantResponse(grant, time.Now().UTC()))
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	permission := chi.URLParam(r, "permission")
	var req reasonRequest
	_ = httpx.DecodeJSON(r, &req)
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.RevokePermission(r.Context(), userID, permission, actorID, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approveGrant(w http.ResponseWriter, r *http.Request) {
	grantID, ok := pathID(w, r, "grantID")
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	grant, err := h.service.Approve(r.Context(), grantID, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGrantResponse(grant, time.Now().UTC()))
}

func (h *Handler) rejectGrant(w http.ResponseWriter, r *http.Request) {
	grantID, ok := pathID(w, r, "grantID")
	if !ok {
		return
	}
	var req reasonRequest
	_ = httpx.DecodeJSON(r, &req)
	actorID, _ := shared.ActorFromContext(r.Context())
	grant, err := h.service.Reject(r.Context(), grantID, actorID, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGrantResponse(grant, time.Now().UTC()))
}

func (h *Handler) revokeGrant(w http.ResponseWriter, r *http.Request) {
	grantID, ok := pathID(w, r, "grantID")
	if !ok {
		return
	}
	var req reasonRequest
	_ = httpx.DecodeJSON(r, &req)
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.RevokeGrant(r.Context(), grantID, actorID, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type extendRequest struct {
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

func (h *Handler) extendGrant(w http.ResponseWriter, r *http.Request) {
	grantID, ok := pathID(w, r, "grantID")
	if !ok {
		return
	}
	var req extendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	grant, err := h.service.Extend(r.Context(), grantID, req.ExpiresAt, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGrantResponse(grant, time.Now().UTC()))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", name)
		return 0, false
	}
	return id, true
}
