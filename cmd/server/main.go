package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appbilling "github.com/promptlab/backend/internal/application/billing"
	"github.com/promptlab/backend/internal/application/credential"
	"github.com/promptlab/backend/internal/application/execution"
	identityapp "github.com/promptlab/backend/internal/application/identity"
	appprompt "github.com/promptlab/backend/internal/application/prompt"
	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/infrastructure/auth"
	stripebilling "github.com/promptlab/backend/internal/infrastructure/billing"
	"github.com/promptlab/backend/internal/infrastructure/cache"
	"github.com/promptlab/backend/internal/infrastructure/config"
	"github.com/promptlab/backend/internal/infrastructure/crypto"
	"github.com/promptlab/backend/internal/infrastructure/event"
	"github.com/promptlab/backend/internal/infrastructure/llm"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"github.com/promptlab/backend/internal/infrastructure/persistence"
	"github.com/promptlab/backend/internal/infrastructure/persistence/tenant"
	"github.com/promptlab/backend/internal/infrastructure/queue"
	"github.com/promptlab/backend/internal/infrastructure/scheduler"
	"github.com/promptlab/backend/internal/infrastructure/telemetry"
	"github.com/promptlab/backend/internal/interfaces/http/handler"
	"github.com/promptlab/backend/internal/interfaces/http/middleware"
	"github.com/promptlab/backend/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//	@title			PromptLab API
//	@version		1.0
//	@description	Multi-tenant prompt management, execution and usage metering
//	@BasePath		/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

const (
	invalidationChannel = "promptlab:capabilities:invalidate"
	eventDedupeTTL      = 24 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting PromptLab",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", telemetry.ServiceVersion),
	)

	lp, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("logger provider: %w", err)
	}
	log = lp.Bridge(log)

	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}

	profiler, err := telemetry.NewProfiler(cfg.Profiling, log)
	if err != nil {
		return fmt.Errorf("profiler: %w", err)
	}
	if profiler.IsEnabled() && cfg.Profiling.SpanProfiles {
		tp.EnableSpanProfiles()
	}

	gdb, err := persistence.Open(&cfg.Database, log)
	if err != nil {
		return err
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:            true,
			DBSystem:           dbSystem(cfg.Database.Driver),
			WithQueryVariables: !cfg.IsProduction(),
		}, log)
		if err := plugin.Register(gdb); err != nil {
			return fmt.Errorf("db tracing: %w", err)
		}
	}
	if cfg.Database.Driver == "sqlite" {
		// sqlite is for development; postgres schemas are migrated by cmd/migrate
		if err := persistence.AutoMigrate(gdb); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	db, err := tenant.New(gdb, log)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	metrics := telemetry.NewMetrics()

	// Repositories
	tenants := persistence.NewTenantRepository(db)
	users := persistence.NewUserRepository(db)
	memberships := persistence.NewMembershipRepository(db)
	projects := persistence.NewProjectRepository(db)
	prompts := persistence.NewPromptRepository(db)
	versions := persistence.NewVersionRepository(db)
	testCases := persistence.NewTestCaseRepository(db)
	runs := persistence.NewRunRepository(db)
	feedback := persistence.NewFeedbackRepository(db)
	usage := persistence.NewUsageEventRepository(db)
	failures := persistence.NewMeteringFailureRepository(db)
	credentials := persistence.NewCredentialRepository(db)
	meterSubs := persistence.NewMeterSubscriptionRepository(db)

	// Entitlements and metering
	var capCache *cache.CapabilityCache
	var resolverCache appbilling.CapabilityCache
	if cfg.Entitlement.CacheTTL > 0 {
		var broadcaster cache.Broadcaster
		if redisClient != nil {
			broadcaster = cache.NewRedisBroadcaster(redisClient, invalidationChannel, log)
		}
		capCache = cache.NewCapabilityCache(cfg.Entitlement.CacheTTL, broadcaster, log)
		resolverCache = capCache
	}
	resolver := appbilling.NewCapabilityResolver(tenants, usage, cfg.Plans, resolverCache)
	entitlements := appbilling.NewEntitlementService(resolver, metrics, log)
	metering := appbilling.NewMeteringService(usage, failures, resolver, metrics, log)

	var reporter billing.UsageReporter
	if cfg.Stripe.Enabled {
		reporter = stripebilling.NewStripeUsageReporter(cfg.Stripe, log)
	}
	exports := appbilling.NewUsageExportService(meterSubs, usage, reporter, metrics, log)

	idempotency := cache.NewIdempotencyStore(redisClient, log)
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.NewIdempotentHandler(appbilling.NewRunCreatedHandler(metering), idempotency, eventDedupeTTL, log))

	var jobs queue.Queue
	switch cfg.Queue.Driver {
	case "redis":
		jobs = queue.NewRedisQueue(redisClient, cfg.Queue.Key)
	default:
		jobs = queue.NewMemoryQueue(cfg.Queue.Buffer)
	}

	// Application services
	jwt := auth.NewJWTService(cfg.JWT)
	var revoker auth.TokenRevoker = auth.NewInMemoryTokenRevoker()
	if redisClient != nil {
		revoker = auth.NewRedisTokenRevoker(redisClient)
	}

	sealKey, err := sealKey(cfg, log)
	if err != nil {
		return err
	}
	credentialService := credential.NewCredentialService(credentials, crypto.NewSealer(sealKey), log)

	renderer := appprompt.NewPlaceholderRenderer()
	authService := identityapp.NewAuthService(db, tenants, users, memberships, projects, jwt, revoker, log)
	tenantService := identityapp.NewTenantService(tenants, cfg.Plans, resolver, log)
	promptService := appprompt.NewPromptService(db, projects, prompts, versions, testCases, log)
	runService := appprompt.NewRunService(versions, testCases, runs, feedback, entitlements, renderer, bus, jobs, log)

	// Background execution
	clients := llm.NewRegistry(llm.NewEchoClient())
	executor := execution.NewRunExecutor(runs, versions, testCases, renderer, clients, credentialService, metering,
		execution.ExecutorConfig{RequireCredentials: cfg.Credentials.Require}, log)
	dispatcher := execution.NewDispatcher(runs, tenants, executor, metrics, log)
	pool := queue.NewWorkerPool(jobs, dispatcher.JobHandler(), queue.PoolConfig{
		Concurrency: cfg.Queue.Concurrency,
		JobTimeout:  cfg.Queue.JobTimeout,
	}, log)
	pool.Start(ctx)

	reconcile := scheduler.NewPeriodicTask("metering_reconcile", cfg.Metering.ReconcileInterval, 0,
		func(ctx context.Context) error {
			_, err := metering.Reconcile(ctx, cfg.Metering.ReconcileBatch)
			return err
		}, log)
	reconcile.Start(ctx)

	var exportTask *scheduler.PeriodicTask
	if reporter != nil {
		exportTask = scheduler.NewPeriodicTask("usage_export", cfg.Stripe.ReportInterval, cfg.Stripe.ReportInterval/2,
			func(ctx context.Context) error {
				_, err := exports.Export(ctx)
				return err
			}, log)
		exportTask.Start(ctx)
	}

	if capCache != nil {
		go func() {
			if err := capCache.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("Capability invalidation listener stopped", zap.Error(err))
			}
		}()
	}

	// HTTP
	checks := map[string]handler.Pinger{
		"database": handler.PingFunc(func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	engine := router.NewEngine(router.EngineConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		HTTP:        cfg.HTTP,
		Auth:        middleware.AuthConfig{JWT: jwt, Revoker: revoker, Logger: log},
		Logger:      log,
		Metrics:     metrics,
	}, router.Handlers{
		Auth:        handler.NewAuthHandler(authService),
		Tenant:      handler.NewTenantHandler(tenantService),
		Prompt:      handler.NewPromptHandler(promptService),
		Run:         handler.NewRunHandler(runService),
		Credential:  handler.NewCredentialHandler(credentialService),
		Entitlement: handler.NewEntitlementHandler(entitlements),
		System:      handler.NewSystemHandler(telemetry.ServiceVersion, checks),
		Billing:     handler.NewBillingHandler(exports),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           engine,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// stop intake first, then drain workers, then release what they use
	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := pool.Stop(shutdownCtx); err != nil && !errors.Is(err, queue.ErrPoolNotRunning) {
		errs = append(errs, fmt.Errorf("worker pool: %w", err))
	}
	if err := reconcile.Stop(shutdownCtx); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		errs = append(errs, fmt.Errorf("reconcile task: %w", err))
	}
	if exportTask != nil {
		if err := exportTask.Stop(shutdownCtx); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			errs = append(errs, fmt.Errorf("usage export task: %w", err))
		}
	}
	_ = jobs.Close()
	bus.Stop()
	_ = idempotency.Close()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	if err := profiler.Stop(); err != nil {
		errs = append(errs, err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := persistence.Close(gdb); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}
	if err := lp.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sealKey returns the configured credential key. Outside production a missing key is
// replaced by a random one, so stored credentials do not survive a restart.
func sealKey(cfg *config.Config, log *zap.Logger) ([32]byte, error) {
	key, err := cfg.Credentials.SealKey()
	if err == nil {
		return key, nil
	}
	if cfg.IsProduction() {
		return key, err
	}
	log.Warn("No valid credentials.key, using an ephemeral key", zap.Error(err))
	if _, err := rand.Read(key[:]); err != nil {
		return key, err
	}
	return key, nil
}

func dbSystem(driver string) string {
	if driver == "sqlite" {
		return "sqlite"
	}
	return "postgresql"
}
