package content

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

// Handler manages content endpoints.
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

// MountRoutes registers content routes. Listing and viewing re-check access
// per item inside the service; the guard here only covers the module gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAny(shared.PermContentView))
		r.Get("/", h.list)
		r.Get("/{contentID}", h.view)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAll(shared.PermContentManage))
		r.Post("/", h.create)
		r.Put("/{contentID}", h.update)
		r.Delete("/{contentID}", h.delete)
		r.Get("/{contentID}/roles", h.listRoles)
		r.Put("/{contentID}/roles/{roleID}", h.grantRole)
		r.Delete("/{contentID}/roles/{roleID}", h.revokeRole)
	})
}

type contentResponse struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Type         string     `json:"type"`
	Description  string     `json:"description,omitempty"`
	EmbedURL     string     `json:"embed_url,omitempty"`
	IsActive     bool       `json:"is_active"`
	ViewCount    int64      `json:"view_count"`
	LastViewedAt *time.Time `json:"last_viewed_at,omitempty"`
}

func toContentResponse(c Content) contentResponse {
	return contentResponse{
		ID:           c.ID,
		Title:        c.Title,
		Slug:         c.Slug,
		Type:         c.Type,
		Description:  c.Description,
		EmbedURL:     c.EmbedURL,
		IsActive:     c.IsActive,
		ViewCount:    c.ViewCount,
		LastViewedAt: c.LastViewedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.ActorFromContext(r.Context())
	items, err := h.service.VisibleContent(r.Context(), actorID)
	if err != nil {
		h.logger.Error("list content", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]contentResponse, 0, len(items))
	for _, c := range items {
		out = append(out, toContentResponse(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	contentID, ok := h.pathID(w, r, "contentID")
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	c, err := h.service.View(r.Context(), actorID, contentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toContentResponse(c))
}

type contentRequest struct {
	Title       string `json:"title" validate:"required,min=2,max=200"`
	Slug        string `json:"slug" validate:"required,min=2,max=200"`
	Type        string `json:"type" validate:"required,oneof=dashboard report embed"`
	Description string `json:"description" validate:"max=2000"`
	EmbedURL    string `json:"embed_url" validate:"omitempty,url,max=2000"`
	IsActive    *bool  `json:"is_active"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (contentRequest, bool) {
	var req contentRequest
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
	created, err := h.service.Create(r.Context(), Content{
		Title:       req.Title,
		Slug:        req.Slug,
		Type:        req.Type,
		Description: req.Description,
		EmbedURL:    req.EmbedURL,
		IsActive:    active,
	}, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toContentResponse(created))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	contentID, ok := h.pathID(w, r, "contentID")
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
	updated, err := h.service.Update(r.Context(), Content{
		ID:          contentID,
		Title:       req.Title,
		Slug:        req.Slug,
		Type:        req.Type,
		Description: req.Description,
		EmbedURL:    req.EmbedURL,
		IsActive:    active,
	}, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toContentResponse(updated))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	contentID, ok := h.pathID(w, r, "contentID")
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), contentID, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scopeResponse struct {
	RoleID    int64        `json:"role_id"`
	RoleName  string       `json:"role_name,omitempty"`
	Caps      Capabilities `json:"capabilities"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	GrantedAt time.Time    `json:"granted_at"`
	RevokedAt *time.Time   `json:"revoked_at,omitempty"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	contentID, ok := h.pathID(w, r, "contentID")
	if !ok {
		return
	}
	scopes, err := h.service.RolesForContent(r.Context(), contentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]scopeResponse, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, scopeResponse{
			RoleID:    s.RoleID,
			RoleName:  s.RoleName,
			Caps:      s.Caps,
			ExpiresAt: s.ExpiresAt,
			GrantedAt: s.GrantedAt,
			RevokedAt: s.RevokedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type scopeRequest struct {
	Capabilities
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) grantRole(w http.ResponseWriter, r *http.Request) {
	contentID, ok := h.pathID(w, r, "contentID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req scopeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	scope, err := h.service.GrantRole(r.Context(), contentID, roleID, req.Capabilities, req.ExpiresAt, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, scopeResponse{
		RoleID:    scope.RoleID,
		Caps:      scope.Caps,
		ExpiresAt: scope.ExpiresAt,
		GrantedAt: scope.GrantedAt,
	})
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	contentID, ok := h.pathID(w, r, "contentID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.RevokeRole(r.Context(), contentID, roleID, actorID); err != nil {
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
