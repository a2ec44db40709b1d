package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/smartq/launchpad/internal/app"
	"github.com/smartq/launchpad/internal/approval"
	"github.com/smartq/launchpad/internal/assets"
	"github.com/smartq/launchpad/internal/auth"
	"github.com/smartq/launchpad/internal/dashboard"
	"github.com/smartq/launchpad/internal/deployment"
	"github.com/smartq/launchpad/internal/observability"
	"github.com/smartq/launchpad/internal/platform/cache"
	"github.com/smartq/launchpad/internal/platform/db"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/settings"
	"github.com/smartq/launchpad/internal/shared"
	"github.com/smartq/launchpad/internal/sites"
	"github.com/smartq/launchpad/internal/users"
	"github.com/smartq/launchpad/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "launchpad_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	rbacMiddleware := rbac.Middleware{Logger: logger}
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	mailClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	notifier := &jobs.ApprovalNotifier{Mailer: mailClient, OpsInbox: cfg.OpsInbox}

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	authService := auth.NewService(usersService)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	settingsRepo := settings.NewRepository(dbpool)
	settingsCache := settings.NewCache(redisClient, 10*time.Minute)
	settingsService := settings.NewService(settingsRepo, settingsCache, logger)
	settingsService.SetDefaultResponseTime(cfg.ApprovalResponseTime)
	settingsHandler := settings.NewHandler(logger, settingsService, rbacMiddleware)

	sitesRepo := sites.NewRepository(dbpool)
	sitesService := sites.NewService(sitesRepo, auditLogger, logger)
	sitesHandler := sites.NewHandler(logger, sitesService, rbacMiddleware)

	approvalRepo := approval.NewRepository(dbpool)
	approvalService := approval.NewService(approvalRepo, settingsService, notifier, auditLogger, logger)
	approvalHandler := approval.NewHandler(logger, approvalService, rbacMiddleware)

	deploymentRepo := deployment.NewRepository(dbpool)
	deploymentService := deployment.NewService(deploymentRepo, sitesService, auditLogger, logger)
	deploymentHandler := deployment.NewHandler(logger, deploymentService, rbacMiddleware)

	assetsRepo := assets.NewRepository(dbpool)
	assetsService := assets.NewService(assetsRepo, sitesService, auditLogger, logger)
	assetsHandler := assets.NewHandler(logger, assetsService, rbacMiddleware)

	dashboardService := dashboard.NewService(approvalService, sitesService, assetsService)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		Metrics:           metrics,
		AuthHandler:       authHandler,
		UsersHandler:      usersHandler,
		SitesHandler:      sitesHandler,
		ApprovalHandler:   approvalHandler,
		DeploymentHandler: deploymentHandler,
		AssetsHandler:     assetsHandler,
		SettingsHandler:   settingsHandler,
		DashboardHandler:  dashboardHandler,
		JobsHandler:       jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
