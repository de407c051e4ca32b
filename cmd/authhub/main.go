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

	"github.com/analytics-hub/authhub/internal/app"
	"github.com/analytics-hub/authhub/internal/audit"
	"github.com/analytics-hub/authhub/internal/auth"
	"github.com/analytics-hub/authhub/internal/authz"
	"github.com/analytics-hub/authhub/internal/catalog"
	"github.com/analytics-hub/authhub/internal/content"
	"github.com/analytics-hub/authhub/internal/grants"
	"github.com/analytics-hub/authhub/internal/menu"
	"github.com/analytics-hub/authhub/internal/observability"
	"github.com/analytics-hub/authhub/internal/platform/cache"
	"github.com/analytics-hub/authhub/internal/platform/db"
	"github.com/analytics-hub/authhub/internal/shared"
	"github.com/analytics-hub/authhub/internal/users"
	"github.com/analytics-hub/authhub/jobs"
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

	sessionManager := shared.NewSessionManager(redisClient, "authhub_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager()
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	authzCache := authz.NewCache(redisClient, cfg.AuthzCacheTTL)
	if err := authzCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("subscribe cache invalidation", slog.Any("error", err))
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	grantNotifier := jobs.NewGrantNotifier(jobClient, cfg.GrantReviewersEmail, logger)

	catalogRepo := catalog.NewRepository(dbpool)
	grantsRepo := grants.NewRepository(dbpool)

	catalogService := catalog.NewService(catalogRepo, auditLogger, authzCache)
	resolver := authz.NewResolver(catalogService, grantsRepo)
	authzService := authz.NewService(resolver, authzCache, metrics)
	guard := authz.Middleware{Service: authzService, Logger: logger}
	grantsService := grants.NewService(grantsRepo, catalogService, auditLogger, authzService, grantNotifier)

	usersRepo := users.NewRepository(dbpool)
	assignDefault := users.Assigner(func(ctx context.Context, userID, roleID, actorID int64, reason string) error {
		_, err := grantsService.AssignRole(ctx, userID, roleID, actorID, reason, nil)
		return err
	})
	usersService := users.NewService(usersRepo, catalogService, assignDefault, auditLogger)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)

	contentRepo := content.NewRepository(dbpool)
	contentService := content.NewService(contentRepo, authzService, grantsService, auditLogger)

	menuRepo := menu.NewRepository(dbpool)
	menuService := menu.NewService(menuRepo, grantsService, authzCache, auditLogger)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager, csrfManager),
		UsersHandler:       users.NewHandler(logger, usersService, guard.RequireAny, guard.RequireAll),
		RolesHandler:       catalog.NewRolesHandler(logger, catalogService, guard.RequireAny, guard.RequireAll),
		PermissionsHandler: catalog.NewPermissionsHandler(logger, catalogService, guard.RequireAny, guard.RequireAll),
		GrantsHandler:      grants.NewHandler(logger, grantsService, guard.RequireAny, guard.RequireAll),
		ContentHandler:     content.NewHandler(logger, contentService, guard.RequireAny, guard.RequireAll),
		MenuHandler:        menu.NewHandler(logger, menuService, guard.RequireAny, guard.RequireAll),
		AuditHandler:       audit.NewHandler(logger, auditService, guard.RequireAny),
		AuthzHandler:       authz.NewHandler(logger, authzService, guard.RequireAny),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
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
