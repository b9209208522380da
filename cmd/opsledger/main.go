package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/opsledger/opsledger/internal/app"
	"github.com/opsledger/opsledger/internal/audit"
	"github.com/opsledger/opsledger/internal/authz"
	authzhttp "github.com/opsledger/opsledger/internal/authz/http"
	"github.com/opsledger/opsledger/internal/observability"
	"github.com/opsledger/opsledger/internal/overrides"
	"github.com/opsledger/opsledger/internal/permissions"
	"github.com/opsledger/opsledger/internal/platform/cache"
	"github.com/opsledger/opsledger/internal/platform/db"
	"github.com/opsledger/opsledger/internal/roles"
	"github.com/opsledger/opsledger/internal/tenancy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	recorder := audit.NewAsynqRecorder(asynqClient, logger)

	metrics := observability.NewMetrics()

	registry := permissions.NewRegistry(permissions.NewRepository(pool, logger))
	rolesRepo := roles.NewRepository(pool, logger)
	permCache := authz.NewPermissionCache(redisClient, rolesLoader{rolesRepo}, cfg.PermissionCacheTTL)
	rolesService := roles.NewService(rolesRepo, registry, recorder, permCache, logger)
	overridesService := overrides.NewService(overrides.NewRepository(pool), registry, recorder)
	auditService := audit.NewService(audit.NewRepository(pool))

	checker := authz.NewChecker(registry, permCache, overridesService, recorder, metrics, logger)

	handler := authzhttp.NewHandler(logger, checker, rolesService, overridesService, auditService)
	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthzHandler: handler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("authorization service listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
}

// rolesLoader adapts *roles.Repository to the loader port the cache expects.
type rolesLoader struct {
	repo *roles.Repository
}

func (l rolesLoader) PermissionsOf(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) ([]string, error) {
	return l.repo.UserPermissionNames(ctx, scope, userID)
}
