package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/analytics-hub/authhub/internal/platform/httpx"
	"github.com/analytics-hub/authhub/internal/shared"
)

// RolesHandler manages role administration endpoints.
type RolesHandler struct {
	logger     *slog.Logger
	service    *Service
	validator  *validator.Validate
	requireAny shared.Guard
	requireAll shared.Guard
}

// NewRolesHandler builds a RolesHandler instance.
func NewRolesHandler(logger *slog.Logger, service *Service, requireAny, requireAll shared.Guard) *RolesHandler {
	return &RolesHandler{
		logger:     logger,
		service:    service,
		validator:  validator.New(),
		requireAny: requireAny,
		requireAll: requireAll,
	}
}

// MountRoutes registers role routes.
func (h *RolesHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAny(shared.PermRolesView))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
		r.Get("/{roleID}/permissions", h.listRolePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAll(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Put("/{roleID}", h.updateRole)
		r.Delete("/{roleID}", h.deleteRole)
		r.Put("/{roleID}/permissions", h.setRolePermissions)
		r.Post("/{roleID}/permissions/refresh", h.refreshCache)
	})
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
	Level       int    `json:"level" validate:"gte=0,lte=1000"`
	IsActive    *bool  `json:"is_active"`
	IsDefault   bool   `json:"is_default"`
}

type roleResponse struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Level        int      `json:"level"`
	IsActive     bool     `json:"is_active"`
	IsSystem     bool     `json:"is_system"`
	IsDefault    bool     `json:"is_default"`
	Permissions  []string `json:"permissions"`
	CacheVersion int64    `json:"cache_version"`
}

func toRoleResponse(role Role) roleResponse {
	perms := role.PermissionsCache
	if perms == nil {
		perms = []string{}
	}
	return roleResponse{
		ID:           role.ID,
		Name:         role.Name,
		Description:  role.Description,
		Level:        role.Level,
		IsActive:     role.IsActive,
		IsSystem:     role.IsSystem,
		IsDefault:    role.IsDefault,
		Permissions:  perms,
		CacheVersion: role.CacheVersion,
	}
}

func (h *RolesHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *RolesHandler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *RolesHandler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	role, err := h.service.CreateRole(r.Context(), Role{
		Name:        req.Name,
		Description: req.Description,
		Level:       req.Level,
		IsActive:    active,
		IsDefault:   req.IsDefault,
	}, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *RolesHandler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	role, err := h.service.UpdateRole(r.Context(), Role{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Level:       req.Level,
		IsActive:    active,
		IsDefault:   req.IsDefault,
	}, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *RolesHandler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteRole(r.Context(), id, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RolesHandler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	perms, err := h.service.RolePermissions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponses(perms))
}

type setPermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required"`
}

func (h *RolesHandler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req setPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	role, err := h.service.SetRolePermissions(r.Context(), id, req.PermissionIDs, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *RolesHandler) refreshCache(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.RefreshCache(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *RolesHandler) roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role ID", "")
		return 0, false
	}
	return id, true
}

// PermissionsHandler manages the permission catalog endpoints.
type PermissionsHandler struct {
	logger     *slog.Logger
	service    *Service
	validator  *validator.Validate
	requireAny shared.Guard
	requireAll shared.Guard
}

// NewPermissionsHandler builds a PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, requireAny, requireAll shared.Guard) *PermissionsHandler {
	return &PermissionsHandler{
		logger:     logger,
		service:    service,
		validator:  validator.New(),
		requireAny: requireAny,
		requireAll: requireAll,
	}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAny(shared.PermPermissionsView))
		r.Get("/", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAll(shared.PermPermissionsEdit))
		r.Post("/", h.ensurePermission)
	})
}

type permissionRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=128"`
	Module   string `json:"module" validate:"max=64"`
	Action   string `json:"action" validate:"max=64"`
	Resource string `json:"resource" validate:"max=128"`
	ParentID *int64 `json:"parent_id"`
}

type permissionResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Module   string `json:"module"`
	Action   string `json:"action"`
	Resource string `json:"resource,omitempty"`
	ParentID *int64 `json:"parent_id,omitempty"`
	IsActive bool   `json:"is_active"`
}

func toPermissionResponses(perms []Permission) []permissionResponse {
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{
			ID:       p.ID,
			Name:     p.Name,
			Module:   p.Module,
			Action:   p.Action,
			Resource: p.Resource,
			ParentID: p.ParentID,
			IsActive: p.IsActive,
		})
	}
	return out
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponses(perms))
}

func (h *PermissionsHandler) ensurePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.EnsurePermission(r.Context(), Permission{
		Name:     req.Name,
		Module:   req.Module,
		Action:   req.Action,
		Resource: req.Resource,
		ParentID: req.ParentID,
		IsActive: true,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{
		ID:       perm.ID,
		Name:     perm.Name,
		Module:   perm.Module,
		Action:   perm.Action,
		Resource: perm.Resource,
		ParentID: perm.ParentID,
		IsActive: perm.IsActive,
	})
}
