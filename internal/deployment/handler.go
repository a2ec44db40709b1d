package deployment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/platform/httpx"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/sites"
)

// Handler manages deployment endpoints.
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

// MountRoutes registers deployment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/deployment", func(r chi.Router) {
		r.Use(h.rbac.Require("/deployment"))
		r.Get("/site/{siteID}", h.getBySite)
		r.Post("/site/{siteID}/schedule", h.schedule)
		r.Post("/{deploymentID}/start", h.start)
		r.Put("/{deploymentID}/checklist/{itemID}", h.updateItem)
		r.Post("/{deploymentID}/complete", h.complete)
		r.Post("/{deploymentID}/go-live", h.goLive)
	})
}

func (h *Handler) getBySite(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	siteID, err := uuid.Parse(chi.URLParam(r, "siteID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "site id must be a UUID")
		return
	}
	d, items, err := h.service.Get(r.Context(), actor, siteID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Deployment retrieved", map[string]any{"deployment": d, "checklist": items})
}

type scheduleRequest struct {
	EngineerID   string    `json:"engineer_id" validate:"required"`
	ScheduledFor time.Time `json:"scheduled_for" validate:"required"`
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	siteID, err := uuid.Parse(chi.URLParam(r, "siteID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "site id must be a UUID")
		return
	}
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	d, err := h.service.Schedule(r.Context(), actor, siteID, req.EngineerID, req.ScheduledFor)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.Created(w, "Deployment scheduled", d)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Deployment started", h.service.Start)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Deployment completed", h.service.Complete)
}

func (h *Handler) goLive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Site is live", h.service.GoLive)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, message string,
	run func(context.Context, rbac.Actor, uuid.UUID) (Deployment, error)) {

	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "deploymentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "deployment id must be a UUID")
		return
	}
	d, err := run(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, message, d)
}

type itemRequest struct {
	Status ItemStatus `json:"status" validate:"required,oneof=pending in_progress completed failed"`
	Note   string     `json:"note"`
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	deploymentID, err := uuid.Parse(chi.URLParam(r, "deploymentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "deployment id must be a UUID")
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be a UUID")
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.UpdateChecklistItem(r.Context(), actor, deploymentID, itemID, req.Status, req.Note)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Checklist item updated", item)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, sites.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "deployment not found")
	case errors.Is(err, ErrInvalidState), errors.Is(err, sites.ErrInvalidStage):
		httpx.Problem(w, http.StatusConflict, "Conflict", "transition is not valid for the current status")
	case errors.Is(err, ErrChecklistIncomplete):
		httpx.Problem(w, http.StatusConflict, "Conflict", "checklist items still open")
	case errors.Is(err, ErrAlreadyScheduled):
		httpx.Problem(w, http.StatusConflict, "Conflict", "site already has an active deployment")
	default:
		h.logger.Error("deployment request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
