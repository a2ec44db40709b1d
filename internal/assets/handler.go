package assets

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/smartq/launchpad/internal/platform/httpx"
	"github.com/smartq/launchpad/internal/rbac"
)

// Handler manages asset and license endpoints.
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

// MountRoutes registers asset routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/assets", func(r chi.Router) {
		r.Use(h.rbac.Require("/assets"))
		r.Get("/inventory", h.listAssets)
		r.Post("/inventory", h.createAsset)
		r.Post("/inventory/{assetID}/deploy", h.deployAsset)
		r.Put("/inventory/{assetID}/status", h.updateAssetStatus)
		r.Get("/licenses", h.listLicenses)
		r.Post("/licenses", h.createLicense)
		r.Get("/licenses/expiring", h.expiringLicenses)
	})
}

type createAssetRequest struct {
	Type         string `json:"type" validate:"required"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number" validate:"required"`
}

func (h *Handler) createAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req createAssetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	a, err := h.service.CreateAsset(r.Context(), actor, CreateAssetInput(req))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.Created(w, "Asset registered", a)
}

func (h *Handler) listAssets(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	f := AssetFilter{Status: AssetStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("site_id"); raw != "" {
		siteID, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "site_id must be a UUID")
			return
		}
		f.SiteID = siteID
	}
	out, err := h.service.ListAssets(r.Context(), actor, f)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Assets retrieved", out)
}

type deployAssetRequest struct {
	SiteID string `json:"site_id" validate:"required,uuid"`
}

func (h *Handler) deployAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	assetID, err := uuid.Parse(chi.URLParam(r, "assetID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset id must be a UUID")
		return
	}
	var req deployAssetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	siteID, _ := uuid.Parse(req.SiteID)
	a, err := h.service.DeployAsset(r.Context(), actor, assetID, siteID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Asset deployed", a)
}

type assetStatusRequest struct {
	Status AssetStatus `json:"status" validate:"required,oneof=available deployed maintenance retired"`
}

func (h *Handler) updateAssetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	assetID, err := uuid.Parse(chi.URLParam(r, "assetID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asset id must be a UUID")
		return
	}
	var req assetStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	a, err := h.service.UpdateAssetStatus(r.Context(), actor, assetID, req.Status)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Asset status updated", a)
}

type createLicenseRequest struct {
	AssetID    *string     `json:"asset_id" validate:"omitempty,uuid"`
	LicenseKey string      `json:"license_key" validate:"required"`
	Type       LicenseType `json:"type" validate:"required,oneof=hardware software service"`
	Vendor     string      `json:"vendor" validate:"required"`
	Cost       float64     `json:"cost" validate:"gte=0"`
	StartDate  time.Time   `json:"start_date" validate:"required"`
	ExpiryDate *time.Time  `json:"expiry_date"`
}

func (h *Handler) createLicense(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req createLicenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	in := CreateLicenseInput{
		LicenseKey: req.LicenseKey,
		Type:       req.Type,
		Vendor:     req.Vendor,
		Cost:       req.Cost,
		StartDate:  req.StartDate,
		ExpiryDate: req.ExpiryDate,
	}
	if req.AssetID != nil {
		assetID, _ := uuid.Parse(*req.AssetID)
		in.AssetID = &assetID
	}
	l, err := h.service.CreateLicense(r.Context(), actor, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.Created(w, "License registered", l)
}

func (h *Handler) listLicenses(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListLicenses(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Licenses retrieved", out)
}

func (h *Handler) expiringLicenses(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "days must be a positive integer")
			return
		}
		days = parsed
	}
	out, err := h.service.ExpiringLicenses(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.OK(w, "Expiring licenses retrieved", out)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "asset not found")
	case errors.Is(err, ErrDuplicateSerial):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "serial number already registered")
	case errors.Is(err, ErrNotDeployable):
		httpx.Problem(w, http.StatusConflict, "Conflict", "asset is not available for deployment")
	default:
		h.logger.Error("asset request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
