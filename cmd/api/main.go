package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/token-manager/internal/api/http"
	"github.com/spec-kit/token-manager/internal/api/http/handlers"
	"github.com/spec-kit/token-manager/internal/auth"
	"github.com/spec-kit/token-manager/internal/config"
	"github.com/spec-kit/token-manager/internal/events"
	"github.com/spec-kit/token-manager/internal/observability"
	"github.com/spec-kit/token-manager/internal/persistence"
	"github.com/spec-kit/token-manager/internal/repository"
	"github.com/spec-kit/token-manager/internal/service"
	"github.com/spec-kit/token-manager/internal/validation"
	"github.com/spec-kit/token-manager/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.Pool != nil {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	tokenRepo := repository.NewTokenRepository(pg.Pool)
	userRepo := repository.NewUserRepository(pg.Pool)
	authStore := auth.NewRedisStore(redis.Client)

	probeClient := validation.NewHTTPClient(cfg.Validation.ProbeTimeout())
	tokenService := service.NewTokenService(service.TokenDependencies{
		TokenRepo:       tokenRepo,
		Prober:          validation.NewProber(probeClient, logger),
		Fetcher:         validation.NewBalanceFetcher(probeClient, cfg.Validation.BillingPortalBaseURL, logger),
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
		ProbesPerSecond: cfg.Validation.BatchProbesPerSecond,
	})
	statsService := service.NewStatisticsService(tokenRepo)
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:    userRepo,
		Attempts:    authStore,
		Revocations: authStore,
		Logger:      logger,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, authStore, logger)

	if pg.Pool != nil {
		if err := authService.SeedAdmin(ctx, cfg.Admin); err != nil {
			logger.Fatal("failed to seed admin account", zap.Error(err))
		}
	}

	notifier := worker.StartNotificationWorker(dispatcher, cfg.Notification, logger)
	reconciler := worker.NewReconcileWorker(tokenService, cfg.Validation.RefreshInterval(), logger)
	go reconciler.Run(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Tokens:         handlers.NewTokensHandler(tokenService, statsService),
		Editors:        handlers.NewEditorHandler(),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	notifier.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
