package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/deaconkarim/deacon-insights/internal/api"
	"github.com/deaconkarim/deacon-insights/internal/cache"
	"github.com/deaconkarim/deacon-insights/internal/config"
	"github.com/deaconkarim/deacon-insights/internal/database"
	"github.com/deaconkarim/deacon-insights/internal/eventbus"
	"github.com/deaconkarim/deacon-insights/internal/scheduler"
	"github.com/deaconkarim/deacon-insights/internal/secrets"
	"github.com/deaconkarim/deacon-insights/internal/services"
	"github.com/deaconkarim/deacon-insights/internal/store"
	"github.com/deaconkarim/deacon-insights/internal/textgen"
)

const day = 24 * time.Hour

func main() {
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.Provide(
			config.Load,
			initLogger,
			newVaultClient,
			initDatabase,
			newCacheStore,
			newResultCache,
			newRecordStore,
			newTextGenClient,
			services.NewMonitoringService,
			newNarrator,
			newInsightsService,
			newPublisher,
			newDigestScheduler,
			newHandlers,
			api.NewRouter,
		),
		fx.Invoke(applyVaultSecrets, registerHealthChecks, startServer, startScheduler),
		fx.StopTimeout(30*time.Second),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start deacon insights: %v", err)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down deacon insights...")
	if err := app.Stop(context.Background()); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Shutdown complete")
}

// applyVaultSecrets overlays vault secrets onto the config. It runs as the first
// invoke, before the database and text generation client are constructed.
func applyVaultSecrets(cfg *config.Config, vault *secrets.VaultClient, logger *zap.Logger) {
	if vault == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	values, err := vault.LoadSecrets(ctx, cfg.Vault.SecretPath)
	if err != nil {
		logger.Warn("Failed to load secrets from Vault, using config", zap.Error(err))
		return
	}
	cfg.ApplySecrets(values)
	logger.Info("Applied secrets from Vault", zap.Int("count", len(values)))
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var logLevel zap.AtomicLevel
	switch cfg.Log.Level {
	case "debug":
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		logLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		logLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = logLevel
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	return zapConfig.Build()
}

func newVaultClient(cfg *config.Config, logger *zap.Logger) (*secrets.VaultClient, error) {
	if cfg.Vault.URL == "" {
		return nil, nil
	}
	return secrets.NewVaultClient(cfg.Vault.URL, cfg.Vault.Token, logger)
}

func initDatabase(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func newCacheStore(lc fx.Lifecycle, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (cache.Store, error) {
	logger.Info("Initializing result cache store", zap.String("backend", cfg.Cache.Backend))

	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryStore(cfg.Cache.MaxBytes), nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		redisStore, err := cache.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return redisStore.Client().Close()
			},
		})
		return redisStore, nil
	case "database", "":
		return cache.NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Cache.Backend)
	}
}

func newResultCache(backing cache.Store, cfg *config.Config, logger *zap.Logger) *cache.ResultCache {
	return cache.NewResultCache(backing, cache.Options{
		Prefix:        cfg.Cache.Prefix,
		TTL:           cfg.Cache.TTL,
		HighWaterMark: cfg.Cache.HighWaterMark,
		EvictCount:    cfg.Cache.EvictCount,
	}, logger)
}

func newRecordStore(db *gorm.DB, logger *zap.Logger) services.RecordStore {
	return store.NewGormRecordStore(db, logger)
}

func newTextGenClient(cfg *config.Config, logger *zap.Logger) *textgen.Client {
	return textgen.NewClient(textgen.Config{
		Enabled:           cfg.TextGen.Enabled,
		BaseURL:           cfg.TextGen.BaseURL,
		APIKey:            cfg.TextGen.APIKey,
		Model:             cfg.TextGen.Model,
		MaxTokens:         cfg.TextGen.MaxTokens,
		Timeout:           cfg.TextGen.Timeout,
		RequestsPerSecond: cfg.TextGen.RequestsPerSecond,
		Burst:             cfg.TextGen.Burst,
	}, logger)
}

func newNarrator(client *textgen.Client, monitoring *services.MonitoringService, logger *zap.Logger) *services.Narrator {
	if !client.Enabled() {
		logger.Info("Text generation disabled, narration uses fallback wording")
		return services.NewNarrator(nil, monitoring, logger)
	}
	return services.NewNarrator(client, monitoring, logger)
}

func newInsightsService(
	records services.RecordStore,
	resultCache *cache.ResultCache,
	narrator *services.Narrator,
	monitoring *services.MonitoringService,
	cfg *config.Config,
	logger *zap.Logger,
) *services.InsightsService {
	return services.NewInsightsService(records, resultCache, narrator, monitoring, services.InsightsOptions{
		AtRiskLookback:    time.Duration(cfg.Insights.AtRiskLookbackDays) * day,
		ProfileURLBase:    cfg.Insights.ProfileURLBase,
		AttendanceHistory: time.Duration(cfg.Insights.AttendanceHistoryDays) * day,
		UpcomingHorizon:   time.Duration(cfg.Insights.UpcomingHorizonDays) * day,
	}, logger)
}

func newPublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) eventbus.Publisher {
	if cfg.Redis.Addr == "" {
		logger.Info("Redis not configured, digests will only be logged")
		return eventbus.NewLogPublisher(logger)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return eventbus.NewRedisPublisher(client, logger)
}

func newDigestScheduler(
	insights *services.InsightsService,
	publisher eventbus.Publisher,
	monitoring *services.MonitoringService,
	cfg *config.Config,
	logger *zap.Logger,
) (*scheduler.DigestScheduler, error) {
	return scheduler.NewDigestScheduler(insights, publisher, monitoring, scheduler.Options{
		Schedule:      cfg.Digest.Schedule,
		Organizations: cfg.Digest.Organizations,
		Topic:         cfg.Digest.Topic,
	}, logger)
}

func newHandlers(insights *services.InsightsService, logger *zap.Logger) *api.Handlers {
	return api.NewHandlers(insights, logger)
}

func registerHealthChecks(
	monitoring *services.MonitoringService,
	db *gorm.DB,
	backing cache.Store,
	resultCache *cache.ResultCache,
	client *textgen.Client,
	vault *secrets.VaultClient,
) {
	monitoring.RegisterHealthCheck("database", services.HealthCheck{
		Critical: true,
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	monitoring.RegisterHealthCheck("cache", services.HealthCheck{
		Check: func(ctx context.Context) error {
			_, err := backing.Keys(ctx, resultCache.Prefix())
			return err
		},
	})

	if vault != nil {
		monitoring.RegisterHealthCheck("vault", services.HealthCheck{Check: vault.HealthCheck})
	}

	// sqlite is auto-migrated and has no schema_migrations table
	if db.Dialector.Name() != "sqlite" {
		applied, err := database.GetMigrationStatus(db)
		if err != nil {
			monitoring.UpdateComponentStatus("migrations", services.StatusDegraded, err.Error(), nil)
		} else {
			monitoring.UpdateComponentStatus("migrations", services.StatusHealthy, "applied",
				map[string]interface{}{"count": len(applied)})
		}
	}

	if client.Enabled() {
		monitoring.UpdateComponentStatus("textgen", services.StatusHealthy, "enabled", nil)
	} else {
		monitoring.UpdateComponentStatus("textgen", services.StatusHealthy, "disabled, using fallback narration", nil)
	}
}

func startServer(lc fx.Lifecycle, router *gin.Engine, cfg *config.Config, logger *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("Failed to start HTTP server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}

func startScheduler(lc fx.Lifecycle, digests *scheduler.DigestScheduler, cfg *config.Config, logger *zap.Logger) {
	if !cfg.Digest.Enabled {
		logger.Info("Weekly digest scheduler disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return digests.Start()
		},
		OnStop: func(ctx context.Context) error {
			return digests.Stop(ctx)
		},
	})
}
