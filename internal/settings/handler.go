package settings

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/smartq/launchpad/internal/platform/httpx"
	"github.com/smartq/launchpad/internal/rbac"
)

// Handler manages platform configuration endpoints.
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

// MountRoutes registers settings routes. All of them sit behind the
// admin-only platform configuration gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/platform-settings", func(r chi.Router) {
		r.Use(h.rbac.Require("/platform-configuration"))
		r.Get("/", h.list)
		r.Get("/{key}", h.get)
		r.Put("/{key}", h.update)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Settings retrieved", out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	setting, err := h.service.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Setting retrieved", setting)
}

type updateRequest struct {
	Value string `json:"value" validate:"required"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	setting, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "key"), req.Value)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Setting updated", setting)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "setting not found")
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin access required")
	case errors.Is(err, ErrInvalidValue):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("settings request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
