package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	itsmapp "github.com/reddomeuk/redscan-application-sub002/internal/application/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/auth"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/cache"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/config"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/event"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/logger"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/persistence"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/scheduler"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/storage"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/telemetry"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/ticketing"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/handler"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/middleware"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/router"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			ITSM Sync API
//	@version		1.0
//	@description	Bi-directional ticket synchronisation with ServiceNow and Jira
//	@BasePath		/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = baseLog.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	log := telemetry.Bridge(baseLog, loggerProvider, serviceName, zapcore.InfoLevel)

	log.Info("Starting ITSM sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServer,
		ApplicationName: serviceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if cfg.Telemetry.ProfilingEnabled {
		tracerProvider.EnableSpanProfiles()
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if db.Driver() == persistence.DriverSQLite {
		// Postgres schemas are owned by cmd/migrate
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate sqlite schema", zap.Error(err))
		}
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        cfg.Database.Driver,
	}, log); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// Repositories
	connRepo := persistence.NewGormConnectionRepository(db.DB)
	mappingRepo := persistence.NewGormFieldMappingRepository(db.DB)
	auditRepo := persistence.NewGormAuditLogRepository(db.DB)
	eventRepo := persistence.NewGormSyncEventRepository(db.DB)
	queueRepo := persistence.NewGormSyncQueueRepository(db.DB)
	ticketRepo := persistence.NewGormTicketStateRepository(db.DB)
	policyRepo := persistence.NewGormConflictPolicyRepository(db.DB)
	uow := persistence.NewGormUnitOfWork(db.DB)

	// Metrics
	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:         meterProvider.Meter("itsm-sync"),
		Logger:        log,
		QueueProvider: telemetry.NewGormQueueDepthProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}
	syncMetrics.StartPeriodicCollection(ctx)

	// Event stream: recorded sync events reach SSE clients either directly
	// from the bus or, with Redis, through pub/sub so every replica sees them
	eventBus := event.NewInMemoryEventBus(log)
	hub := event.NewStreamHub(log)

	var redisClient *redis.Client
	var relay *event.RedisRelay
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, streaming sync events in process", zap.Error(err))
		}
	}
	if redisClient != nil {
		relay = event.NewRedisRelay(redisClient, event.WithRelayLogger(log))
		eventBus.Subscribe(relay)
		go func() {
			if err := relay.Subscribe(ctx, hub.Broadcast); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Sync event relay stopped", zap.Error(err))
			}
		}()
	} else {
		eventBus.Subscribe(hub)
	}
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Audit archive
	var archiver itsmapp.AuditArchiver
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3AuditArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize audit archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Warn("Audit archive bucket check failed", zap.Error(err))
		}
		archiver = archive
	}

	// Platform adapters and application services
	registry := ticketing.NewDefaultRegistry(cfg.Adapter.Timeout, ticketing.NewEnvCredentialResolver(), log)

	logService := itsmapp.NewLogService(itsmapp.LogServiceConfig{
		AuditRepo: auditRepo,
		EventRepo: eventRepo,
		Publisher: eventBus,
		Archiver:  archiver,
		Logger:    log,
	})
	mappingService := itsmapp.NewFieldMappingService(mappingRepo, auditRepo, ticketing.NewTemplateProvider(), log)
	connectionService := itsmapp.NewConnectionService(connRepo, auditRepo, registry, log)
	policyService := itsmapp.NewConflictPolicyService(policyRepo, log)
	queueService := itsmapp.NewSyncQueueService(itsmapp.SyncQueueServiceConfig{
		UnitOfWork:         uow,
		QueueRepo:          queueRepo,
		ConnRepo:           connRepo,
		TicketRepo:         ticketRepo,
		Resolver:           mappingService,
		Adapters:           registry,
		Publisher:          logService,
		Metrics:            syncMetrics,
		Logger:             log,
		DefaultMaxAttempts: cfg.Sync.MaxAttempts,
	})
	webhookService := itsmapp.NewWebhookService(itsmapp.WebhookServiceConfig{
		UnitOfWork:   uow,
		Normalizers:  registry,
		ConnRepo:     connRepo,
		PolicyRepo:   policyRepo,
		Acknowledger: queueService,
		Publisher:    logService,
		Metrics:      syncMetrics,
		Logger:       log,
	})

	// Outbound queue processor
	lockFactory := cache.NewKeyLockFactory(cfg.Redis, cache.WithLogger(log))
	locks, err := lockFactory.CreateLock()
	if err != nil {
		log.Fatal("Failed to create delivery lock", zap.Error(err))
	}
	defer func() {
		_ = locks.Close()
	}()

	var processor *scheduler.SyncQueueProcessor
	if cfg.Sync.ProcessorEnabled {
		processor = scheduler.NewSyncQueueProcessor(queueRepo, queueService, locks, scheduler.SyncQueueProcessorConfig{
			Workers:         cfg.Sync.Workers,
			BatchSize:       cfg.Sync.BatchSize,
			PollInterval:    cfg.Sync.PollInterval,
			DeliveryTimeout: cfg.Sync.DeliveryTimeout,
			StaleAfter:      cfg.Sync.StaleAfter,
			LockTTL:         cfg.Sync.LockTTL,
		}, log)
		if err := processor.Start(ctx); err != nil {
			log.Fatal("Failed to start sync queue processor", zap.Error(err))
		}
	} else {
		log.Info("Sync queue processor disabled")
	}

	// Webhook throttling
	var limiter *middleware.RateLimiter
	if cfg.Webhook.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.Webhook.RateLimitRPS, cfg.Webhook.RateLimitBurst)
		go sweepLimiter(ctx, limiter, time.Minute)
	}

	checks := map[string]handler.HealthCheck{
		"database": db.Ping,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine := router.NewEngine(router.EngineConfig{
		ServiceName:      serviceName,
		TrustedProxies:   cfg.HTTP.TrustedProxies,
		CORS:             cors,
		MaxBodySize:      cfg.HTTP.MaxBodySize,
		TracingEnabled:   cfg.Telemetry.Enabled,
		ProfilingEnabled: cfg.Telemetry.ProfilingEnabled,
		MeterProvider:    meterProvider,
		Gatherer:         syncMetrics.Registry(),
		Tokens:           auth.NewJWTService(cfg.JWT),
		Webhooks: router.WebhookLimits{
			MaxBodySize: cfg.Webhook.MaxBodySize,
			Limiter:     limiter,
		},
		Logger: log,
	}, router.Handlers{
		Connections:   handler.NewConnectionHandler(connectionService),
		FieldMappings: handler.NewFieldMappingHandler(mappingService),
		Queue:         handler.NewQueueHandler(queueService),
		Logs:          handler.NewLogHandler(logService, hub, log),
		Routing:       handler.NewRoutingHandler(policyService),
		Webhooks: handler.NewWebhookHandler(webhookService, handler.WebhookHandlerConfig{
			Secrets: map[itsm.Platform]string{
				itsm.PlatformServiceNow: cfg.Webhook.ServiceNowSecret,
				itsm.PlatformJira:       cfg.Webhook.JiraSecret,
			},
			Acknowledge: cfg.Webhook.Acknowledge,
		}),
		System: handler.NewSystemHandler(cfg.App.Name, version, checks),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if processor != nil {
		if err := processor.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping sync queue processor", zap.Error(err))
		}
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}
	cancel()
	if relay != nil {
		_ = relay.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	syncMetrics.Stop()

	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		baseLog.Error("Error shutting down log exporter", zap.Error(err))
	}

	log.Info("Server exited")
}

// sweepLimiter drops idle webhook rate limit buckets
func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
