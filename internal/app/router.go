package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/smartq/launchpad/internal/approval"
	"github.com/smartq/launchpad/internal/assets"
	"github.com/smartq/launchpad/internal/auth"
	"github.com/smartq/launchpad/internal/dashboard"
	"github.com/smartq/launchpad/internal/deployment"
	"github.com/smartq/launchpad/internal/observability"
	"github.com/smartq/launchpad/internal/settings"
	"github.com/smartq/launchpad/internal/shared"
	"github.com/smartq/launchpad/internal/sites"
	"github.com/smartq/launchpad/internal/users"
	"github.com/smartq/launchpad/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Metrics        *observability.Metrics

	AuthHandler       *auth.Handler
	UsersHandler      *users.Handler
	SitesHandler      *sites.Handler
	ApprovalHandler   *approval.Handler
	DeploymentHandler *deployment.Handler
	AssetsHandler     *assets.Handler
	SettingsHandler   *settings.Handler
	DashboardHandler  *dashboard.Handler
	JobsHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with Launchpad defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.AuthHandler.MountRoutes(r)
	if params.UsersHandler != nil {
		params.UsersHandler.MountRoutes(r)
	}
	if params.SitesHandler != nil {
		params.SitesHandler.MountRoutes(r)
	}
	if params.ApprovalHandler != nil {
		params.ApprovalHandler.MountRoutes(r)
	}
	if params.DeploymentHandler != nil {
		params.DeploymentHandler.MountRoutes(r)
	}
	if params.AssetsHandler != nil {
		params.AssetsHandler.MountRoutes(r)
	}
	if params.SettingsHandler != nil {
		params.SettingsHandler.MountRoutes(r)
	}
	if params.DashboardHandler != nil {
		params.DashboardHandler.MountRoutes(r)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
