package approval

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

// Handler manages scoping approval endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		rbac:     rbac,
	}
}

// MountRoutes registers approval routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/scoping-approvals", func(r chi.Router) {
		r.Use(h.rbac.Require("/approvals-procurement"))
		r.Get("/", h.list)
		r.Get("/pending", h.pending)
		r.Get("/history", h.history)
		r.Get("/{approvalID}", h.get)
		r.Get("/{approvalID}/actions", h.actions)
		r.Post("/{approvalID}/approve", h.approve)
		r.Post("/{approvalID}/reject", h.reject)
		r.Post("/{approvalID}/request-changes", h.requestChanges)
	})
	r.Route("/site/{siteID}/scoping", func(r chi.Router) {
		r.Use(h.rbac.Require("/approvals-procurement"))
		r.Post("/submit", h.submit)
		r.Post("/resubmit", h.resubmit)
	})
}

type scopingDataRequest struct {
	SelectedSoftware []lineItemRequest `json:"selected_software" validate:"dive"`
	SelectedHardware []lineItemRequest `json:"selected_hardware" validate:"dive"`
}

type lineItemRequest struct {
	ID       string `json:"id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type costBreakdownRequest struct {
	HardwareCost        float64 `json:"hardware_cost" validate:"gte=0"`
	SoftwareSetupCost   float64 `json:"software_setup_cost" validate:"gte=0"`
	InstallationCost    float64 `json:"installation_cost" validate:"gte=0"`
	ContingencyCost     float64 `json:"contingency_cost" validate:"gte=0"`
	TotalCapex          float64 `json:"total_capex" validate:"gte=0"`
	MonthlySoftwareFees float64 `json:"monthly_software_fees" validate:"gte=0"`
	MaintenanceCost     float64 `json:"maintenance_cost" validate:"gte=0"`
	TotalMonthlyOpex    float64 `json:"total_monthly_opex" validate:"gte=0"`
	TotalInvestment     float64 `json:"total_investment" validate:"gte=0"`
}

func (s scopingDataRequest) toDomain() ScopingData {
	data := ScopingData{
		SelectedSoftware: make([]LineItem, 0, len(s.SelectedSoftware)),
		SelectedHardware: make([]LineItem, 0, len(s.SelectedHardware)),
	}
	for _, it := range s.SelectedSoftware {
		data.SelectedSoftware = append(data.SelectedSoftware, LineItem{ID: it.ID, Quantity: it.Quantity})
	}
	for _, it := range s.SelectedHardware {
		data.SelectedHardware = append(data.SelectedHardware, LineItem{ID: it.ID, Quantity: it.Quantity})
	}
	return data
}

func (c costBreakdownRequest) toDomain() CostBreakdown {
	return CostBreakdown(c)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	f := Filter{Status: Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("site_id"); raw != "" {
		siteID, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "site_id must be a UUID")
			return
		}
		f.SiteID = siteID
	}
	records, err := h.service.List(r.Context(), actor, f)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.OK(w, "Scoping approvals retrieved", records)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	records, err := h.service.Pending(r.Context(), actor)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.OK(w, "Pending approvals retrieved", records)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	records, err := h.service.HistoryFor(r.Context(), actor)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.OK(w, "Approval history retrieved", records)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "approvalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "approval id must be a UUID")
		return
	}
	rec, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.OK(w, "Scoping approval retrieved", rec)
}

func (h *Handler) actions(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "approvalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "approval id must be a UUID")
		return
	}
	log, err := h.service.Actions(r.Context(), actor, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.OK(w, "Approval actions retrieved", log)
}

type reviewRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"rejection_reason"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.reviewEndpoint(w, r, "Scoping approved", func(actor rbac.Actor, id uuid.UUID, req reviewRequest) (ScopingApproval, error) {
		return h.service.Approve(r.Context(), actor, id, req.Comment)
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.reviewEndpoint(w, r, "Scoping rejected", func(actor rbac.Actor, id uuid.UUID, req reviewRequest) (ScopingApproval, error) {
		return h.service.Reject(r.Context(), actor, id, req.Comment, req.Reason)
	})
}

func (h *Handler) requestChanges(w http.ResponseWriter, r *http.Request) {
	h.reviewEndpoint(w, r, "Changes requested", func(actor rbac.Actor, id uuid.UUID, req reviewRequest) (ScopingApproval, error) {
		return h.service.RequestChanges(r.Context(), actor, id, req.Comment)
	})
}

func (h *Handler) reviewEndpoint(w http.ResponseWriter, r *http.Request, message string,
	run func(rbac.Actor, uuid.UUID, reviewRequest) (ScopingApproval, error)) {

	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "approvalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "approval id must be a UUID")
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	rec, err := run(actor, id, req)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.OK(w, message, rec)
}

type submitRequest struct {
	SiteName     string               `json:"site_name" validate:"required"`
	EngineerName string               `json:"deployment_engineer_name" validate:"required"`
	Scoping      scopingDataRequest   `json:"scoping_data" validate:"required"`
	Costs        costBreakdownRequest `json:"cost_breakdown" validate:"required"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
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
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.Submit(r.Context(), actor, SubmitInput{
		SiteID:       siteID,
		SiteName:     req.SiteName,
		EngineerName: req.EngineerName,
		Scoping:      req.Scoping.toDomain(),
		Costs:        req.Costs.toDomain(),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.Created(w, "Scoping submitted for approval", rec)
}

type resubmitRequest struct {
	PreviousApprovalID string               `json:"previous_approval_id" validate:"required,uuid"`
	Scoping            scopingDataRequest   `json:"scoping_data" validate:"required"`
	Costs              costBreakdownRequest `json:"cost_breakdown" validate:"required"`
}

func (h *Handler) resubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req resubmitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	prevID, err := uuid.Parse(req.PreviousApprovalID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "previous_approval_id must be a UUID")
		return
	}
	rec, err := h.service.Resubmit(r.Context(), actor, ResubmitInput{
		PreviousApprovalID: prevID,
		Scoping:            req.Scoping.toDomain(),
		Costs:              req.Costs.toDomain(),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.Created(w, "Scoping resubmitted for approval", rec)
}

// respondErr maps workflow errors onto problem responses. Unknown errors
// are logged and hidden behind a generic 500.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "scoping approval not found")
	case errors.Is(err, ErrEmptyComment):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "review comment is required")
	case errors.Is(err, ErrUnauthorizedActor):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "you are not permitted to perform this action")
	case errors.Is(err, ErrTerminalState):
		httpx.Problem(w, http.StatusConflict, "Conflict", "approval request has already been resolved")
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Conflict", "transition is not valid for the current status")
	case errors.Is(err, ErrPendingExists):
		httpx.Problem(w, http.StatusConflict, "Conflict", "site already has a pending scoping submission")
	default:
		h.logger.Error("approval request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
