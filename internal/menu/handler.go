package menu

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

// Handler manages menu endpoints.
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

// MountRoutes registers menu routes. The tree endpoint serves any signed-in
// user; administration sits behind the menus permissions.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/tree", h.tree)
	r.Group(func(r chi.Router) {
		r.Use(h.requireAny(shared.PermMenusView))
		r.Get("/", h.list)
		r.Get("/{menuID}/roles", h.listRestrictions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAll(shared.PermMenusManage))
		r.Post("/", h.create)
		r.Put("/{menuID}", h.update)
		r.Delete("/{menuID}", h.delete)
		r.Put("/{menuID}/roles/{roleID}", h.restrict)
		r.Delete("/{menuID}/roles/{roleID}", h.unrestrict)
	})
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	nodes, err := h.service.TreeForUser(r.Context(), actorID)
	if err != nil {
		h.logger.Error("menu tree", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nodes)
}

type menuResponse struct {
	ID        int64  `json:"id"`
	ParentID  *int64 `json:"parent_id,omitempty"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Icon      string `json:"icon,omitempty"`
	Route     string `json:"route,omitempty"`
	SortOrder int    `json:"sort_order"`
	IsActive  bool   `json:"is_active"`
}

func toMenuResponse(m Menu) menuResponse {
	return menuResponse{
		ID:        m.ID,
		ParentID:  m.ParentID,
		Title:     m.Title,
		Slug:      m.Slug,
		Icon:      m.Icon,
		Route:     m.Route,
		SortOrder: m.SortOrder,
		IsActive:  m.IsActive,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	menus, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list menus", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]menuResponse, 0, len(menus))
	for _, m := range menus {
		out = append(out, toMenuResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type menuRequest struct {
	ParentID  *int64 `json:"parent_id" validate:"omitempty,gt=0"`
	Title     string `json:"title" validate:"required,min=2,max=120"`
	Slug      string `json:"slug" validate:"required,min=2,max=120"`
	Icon      string `json:"icon" validate:"max=64"`
	Route     string `json:"route" validate:"max=255"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
	IsActive  *bool  `json:"is_active"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (menuRequest, bool) {
	var req menuRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	created, err := h.service.Create(r.Context(), Menu{
		ParentID:  req.ParentID,
		Title:     req.Title,
		Slug:      req.Slug,
		Icon:      req.Icon,
		Route:     req.Route,
		SortOrder: req.SortOrder,
		IsActive:  active,
	}, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMenuResponse(created))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	menuID, ok := h.pathID(w, r, "menuID")
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	updated, err := h.service.Update(r.Context(), Menu{
		ID:        menuID,
		ParentID:  req.ParentID,
		Title:     req.Title,
		Slug:      req.Slug,
		Icon:      req.Icon,
		Route:     req.Route,
		SortOrder: req.SortOrder,
		IsActive:  active,
	}, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMenuResponse(updated))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	menuID, ok := h.pathID(w, r, "menuID")
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), menuID, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRestrictions(w http.ResponseWriter, r *http.Request) {
	menuID, ok := h.pathID(w, r, "menuID")
	if !ok {
		return
	}
	restrictions, err := h.service.RestrictionsForMenu(r.Context(), menuID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type restrictionResponse struct {
		RoleID           int64      `json:"role_id"`
		RoleName         string     `json:"role_name,omitempty"`
		IsVisible        bool       `json:"is_visible"`
		ShowInNavigation bool       `json:"show_in_navigation"`
		ExpiresAt        *time.Time `json:"expires_at,omitempty"`
		RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	}
	out := make([]restrictionResponse, 0, len(restrictions))
	for _, mr := range restrictions {
		out = append(out, restrictionResponse{
			RoleID:           mr.RoleID,
			RoleName:         mr.RoleName,
			IsVisible:        mr.IsVisible,
			ShowInNavigation: mr.ShowInNavigation,
			ExpiresAt:        mr.ExpiresAt,
			RevokedAt:        mr.RevokedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type restrictRequest struct {
	IsVisible        *bool      `json:"is_visible"`
	ShowInNavigation *bool      `json:"show_in_navigation"`
	ExpiresAt        *time.Time `json:"expires_at"`
}

func (h *Handler) restrict(w http.ResponseWriter, r *http.Request) {
	menuID, ok := h.pathID(w, r, "menuID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	// Both flags default to true; a body is only needed to opt out, e.g. a
	// deep-link entry that is reachable but hidden from navigation.
	req := restrictRequest{}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
	}
	restriction := MenuRole{MenuID: menuID, RoleID: roleID, IsVisible: true, ShowInNavigation: true, ExpiresAt: req.ExpiresAt}
	if req.IsVisible != nil {
		restriction.IsVisible = *req.IsVisible
	}
	if req.ShowInNavigation != nil {
		restriction.ShowInNavigation = *req.ShowInNavigation
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	mr, err := h.service.Restrict(r.Context(), restriction, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"menu_id":            mr.MenuID,
		"role_id":            mr.RoleID,
		"is_visible":         mr.IsVisible,
		"show_in_navigation": mr.ShowInNavigation,
	})
}

func (h *Handler) unrestrict(w http.ResponseWriter, r *http.Request) {
	menuID, ok := h.pathID(w, r, "menuID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Unrestrict(r.Context(), menuID, roleID, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", name)
		return 0, false
	}
	return id, true
}
