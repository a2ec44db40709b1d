package sites

import (
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/platform/httpx"
	"github.com/smartq/launchpad/internal/rbac"
)

// Handler manages site endpoints.
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

// MountRoutes registers site routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sites", func(r chi.Router) {
		r.Use(h.rbac.Require("/sites"))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{siteID}", h.get)
		r.Put("/{siteID}", h.update)
		r.Post("/{siteID}/assign", h.assign)
		r.Post("/{siteID}/stage", h.advanceStage)
		r.Post("/{siteID}/study", h.submitStudy)
		r.Post("/{siteID}/study/complete", h.completeStudy)
		r.Get("/{siteID}/study", h.getStudy)
	})
}

type createRequest struct {
	Name         string     `json:"name" validate:"required"`
	Organization string     `json:"organization" validate:"required"`
	UnitCode     string     `json:"unit_code" validate:"required"`
	Sector       string     `json:"sector"`
	Location     string     `json:"location"`
	Postcode     string     `json:"postcode"`
	Region       string     `json:"region"`
	Country      string     `json:"country"`
	GoLiveDate   *time.Time `json:"go_live_date"`
	Priority     Priority   `json:"priority" validate:"omitempty,oneof=low medium high"`
	Notes        string     `json:"notes"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	site, err := h.service.Create(r.Context(), actor, CreateInput{
		Name:         req.Name,
		Organization: req.Organization,
		UnitCode:     req.UnitCode,
		Sector:       req.Sector,
		Location:     req.Location,
		Postcode:     req.Postcode,
		Region:       req.Region,
		Country:      req.Country,
		GoLiveDate:   req.GoLiveDate,
		Priority:     req.Priority,
		Notes:        req.Notes,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.Created(w, "Site created", site)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	sites, err := h.service.List(r.Context(), actor, Filter{Stage: Stage(r.URL.Query().Get("stage"))})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Sites retrieved", sites)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	site, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Site retrieved", site)
}

type updateRequest struct {
	Name         *string    `json:"name"`
	Organization *string    `json:"organization"`
	Sector       *string    `json:"sector"`
	Location     *string    `json:"location"`
	Postcode     *string    `json:"postcode"`
	Region       *string    `json:"region"`
	Country      *string    `json:"country"`
	GoLiveDate   *time.Time `json:"go_live_date"`
	Priority     *Priority  `json:"priority"`
	Notes        *string    `json:"notes"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	site, err := h.service.Update(r.Context(), actor, id, UpdateInput(req))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Site updated", site)
}

type assignRequest struct {
	OpsManagerID *string `json:"assigned_ops_manager_id"`
	EngineerID   *string `json:"assigned_deployment_engineer_id"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	site, err := h.service.Assign(r.Context(), actor, id, req.OpsManagerID, req.EngineerID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Site assignment updated", site)
}

type stageRequest struct {
	Stage Stage `json:"stage" validate:"required"`
}

func (h *Handler) advanceStage(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req stageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	site, err := h.service.AdvanceStage(r.Context(), actor, id, req.Stage)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Site stage updated", site)
}

type studyRequest struct {
	Findings string `json:"findings"`
}

func (h *Handler) submitStudy(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req studyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	study, err := h.service.SubmitStudy(r.Context(), actor, id, req.Findings)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.Created(w, "Site study submitted", study)
}

func (h *Handler) completeStudy(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req studyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	study, err := h.service.CompleteStudy(r.Context(), actor, id, req.Findings)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Site study completed", study)
}

func (h *Handler) getStudy(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	study, err := h.service.Study(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Site study retrieved", study)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (rbac.Actor, uuid.UUID, bool) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return rbac.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "siteID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "site id must be a UUID")
		return rbac.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "site not found")
	case errors.Is(err, ErrInvalidStage):
		httpx.Problem(w, http.StatusConflict, "Conflict", "stage transition is not permitted")
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "you are not permitted to perform this action")
	case errors.Is(err, ErrDuplicateUnitCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "unit code already in use")
	default:
		h.logger.Error("site request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
