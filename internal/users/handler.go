package users

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/platform/httpx"
	"github.com/smartq/launchpad/internal/rbac"
)

// Handler manages user administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: rbac}
}

// MountRoutes registers user admin routes behind the admin-only gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(h.rbac.Require("/platform-configuration"))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/{userID}/deactivate", h.deactivate)
		r.Post("/{userID}/roles", h.grantRole)
		r.Delete("/{userID}/roles/{role}", h.revokeRole)
	})
}

type createUserRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Name     string   `json:"name" validate:"required"`
	Password string   `json:"password" validate:"required,min=8"`
	Roles    []string `json:"roles" validate:"required,min=1,dive,oneof=admin ops_manager deployment_engineer"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	roles := make([]rbac.Role, 0, len(req.Roles))
	for _, role := range req.Roles {
		roles = append(roles, rbac.Role(role))
	}
	u, err := h.service.Create(r.Context(), actor, CreateInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Roles:    roles,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.Created(w, "User created", u)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	out, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Users retrieved", out)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), actor, id); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "User deactivated", nil)
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin ops_manager deployment_engineer"`
}

func (h *Handler) grantRole(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	if err := h.service.GrantRole(r.Context(), actor, id, rbac.Role(req.Role)); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Role granted", nil)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.RevokeRole(r.Context(), actor, id, rbac.Role(chi.URLParam(r, "role"))); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Role revoked", nil)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (rbac.Actor, uuid.UUID, bool) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return rbac.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user id must be a UUID")
		return rbac.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
	case errors.Is(err, ErrDuplicateEmail):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "email already registered")
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin access required")
	case errors.Is(err, ErrInvalidRole):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "unknown role")
	default:
		h.logger.Error("user admin request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
