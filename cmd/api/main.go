package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/protocol-recon/backend/internal/api/handlers"
	"github.com/protocol-recon/backend/internal/cache/redis"
	"github.com/protocol-recon/backend/internal/delta"
	"github.com/protocol-recon/backend/internal/events"
	"github.com/protocol-recon/backend/internal/ingestion"
	"github.com/protocol-recon/backend/internal/locking"
	"github.com/protocol-recon/backend/internal/metrics"
	"github.com/protocol-recon/backend/internal/middleware/ratelimit"
	"github.com/protocol-recon/backend/internal/middleware/security"
	"github.com/protocol-recon/backend/internal/middleware/validation"
	"github.com/protocol-recon/backend/internal/reconcile"
	"github.com/protocol-recon/backend/internal/storage/models"
	"github.com/protocol-recon/backend/internal/storage/sqlite"
	"github.com/protocol-recon/backend/pkg/config"
	appLogger "github.com/protocol-recon/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting protocol reconciliation API server")

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	deps := map[string]handlers.Pinger{"sqlite": sqliteClient}

	var locker locking.Locker = locking.NewLocal(time.Duration(cfg.Redis.LockWaitSeconds) * time.Second)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		locker = locking.NewRedis(redisClient, locking.RedisConfig{
			TTL:  time.Duration(cfg.Redis.LockTTLSeconds) * time.Second,
			Wait: time.Duration(cfg.Redis.LockWaitSeconds) * time.Second,
		})
		deps["redis"] = redisClient
		appLogger.Info("Using Redis ingestion lock", zap.String("host", cfg.Redis.Host))
	}

	metrics.Init()
	observer := metrics.Observer{}

	groups := disciplineGroups(cfg.Reconcile.Groups)
	hub := events.NewHub(32)

	reconcileEngine := reconcile.NewEngine(sqliteClient, reconcile.Config{
		Groups:            groups,
		PendingFormula:    reconcile.PendingFormula(cfg.Reconcile.PendingFormula),
		MaxPageSize:       cfg.Reconcile.MaxPageSize,
		MaxUnmatchedLimit: cfg.Reconcile.MaxUnmatchedLimit,
	}, observer)
	deltaEngine := delta.NewEngine(sqliteClient, groups, observer)

	adapter := ingestion.NewAdapter(ingestion.AdapterConfig{
		PrimarySheet:   cfg.Ingestion.PrimarySheet,
		SecondarySheet: cfg.Ingestion.SecondarySheet,
		HeaderScanRows: cfg.Ingestion.HeaderScanRows,
	})
	processor := ingestion.NewProcessor(adapter, sqliteClient, locker, hub, ingestion.ProcessorConfig{
		Keep:               cfg.Retention.Keep,
		HardResetPrimary:   cfg.Ingestion.HardResetPrimary,
		HardResetSecondary: cfg.Ingestion.HardResetSecondary,
	}).WithObserver(observer)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  security.CORSOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET, POST, DELETE, OPTIONS",
		ExposeHeaders: security.ExposedHeaders,
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	validationCfg := validation.Config{
		MaxUploadBytes: cfg.Ingestion.MaxUploadBytes,
		Logger:         appLogger.GetLogger(),
	}
	app.Use(validation.Middleware(validationCfg))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.UploadsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Get("/metrics", metrics.MetricsHandler())

	handlers.Register(app.Group("/api/v1"), handlers.Handlers{
		Reconcile: handlers.NewReconcileHandler(reconcileEngine),
		Changes:   handlers.NewChangesHandler(deltaEngine),
		Uploads:   handlers.NewUploadHandler(processor, sqliteClient),
		WebSocket: handlers.NewWebSocketHandler(hub),
		Health:    handlers.NewHealthHandler(deps),
	}, limiter.Middleware(), validation.Upload(validationCfg))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func disciplineGroups(cfg []config.GroupConfig) []models.DisciplineGroup {
	groups := make([]models.DisciplineGroup, 0, len(cfg))
	for _, g := range cfg {
		groups = append(groups, models.DisciplineGroup{
			Key:         g.Key,
			Label:       g.Label,
			Disciplines: g.Disciplines,
		})
	}
	return groups
}

