package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	droplet "github.com/goliatone/go-droplet"
	"github.com/goliatone/go-droplet/adapters/gocommand"
	"github.com/goliatone/go-droplet/adapters/gojob"
	"github.com/goliatone/go-droplet/adapters/gologger"
	"github.com/goliatone/go-droplet/adapters/prommetrics"
	"github.com/goliatone/go-droplet/auth"
	"github.com/goliatone/go-droplet/fluid"
	"github.com/goliatone/go-droplet/httpapi"
	"github.com/goliatone/go-droplet/ingress"
	dropletmigrations "github.com/goliatone/go-droplet/migrations"
	"github.com/goliatone/go-droplet/ratelimit"
	"github.com/goliatone/go-droplet/security"
	sqlstore "github.com/goliatone/go-droplet/store/sql"
	syncpkg "github.com/goliatone/go-droplet/sync"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultHTTPAddr  = ":8080"
	defaultSQLiteDSN = "file:droplet.db?cache=shared&_foreign_keys=on"

	activityRetentionInterval = 24 * time.Hour
	activityRetentionTTL      = 90 * 24 * time.Hour
	activityRetentionRowCap   = 50_000
)

func main() {
	// .env is a development convenience; deployed processes carry real env.
	_ = godotenv.Load()
	ctx := context.Background()

	_, logger := gologger.Resolve("droplet", nil, nil)

	cfg := droplet.DefaultConfig()
	cfg.ServiceName = getEnv("DROPLET_SERVICE_NAME", cfg.ServiceName)
	cfg.BaseURL = getEnv("DROPLET_BASE_URL", "")
	cfg.FluidDomainSuffix = getEnv("DROPLET_FLUID_DOMAIN_SUFFIX", cfg.FluidDomainSuffix)
	cfg.Webhook.Secret = getEnv("DROPLET_WEBHOOK_SECRET", "")

	encryptionKey := getEnv("DROPLET_ENCRYPTION_KEY", "")
	if encryptionKey == "" {
		logger.Error("DROPLET_ENCRYPTION_KEY is required")
		os.Exit(1)
	}
	secrets, err := security.NewAppKeySecretProviderFromString(encryptionKey)
	if err != nil {
		fatal(logger, "build secret provider", err)
	}

	client, err := openDatabase(ctx,
		getEnv("DROPLET_DB_DRIVER", "sqlite3"),
		getEnv("DROPLET_DB_DSN", defaultSQLiteDSN),
	)
	if err != nil {
		fatal(logger, "open database", err)
	}
	defer client.Close()
	logger.Info("database ready")

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		fatal(logger, "build repositories", err)
	}

	policy, err := buildRateLimitPolicy(factory)
	if err != nil {
		fatal(logger, "build rate-limit policy", err)
	}

	platform := fluid.NewClient(fluid.Config{
		DomainSuffix: cfg.FluidDomainSuffix,
		RateLimit:    policy,
		Logger:       logger,
	})

	jobs := gojob.NewMemoryQueue(1024)

	svc, err := droplet.NewService(cfg,
		droplet.WithLogger(logger),
		droplet.WithMetricsRecorder(prommetrics.Recorder{}),
		droplet.WithSecretProvider(secrets),
		droplet.WithPersistenceClient(client),
		droplet.WithRepositoryFactory(factory),
		droplet.WithTokenExchanger(fluid.NewExchangeClient(platform)),
		droplet.WithSubscriptionRegistrar(fluid.NewRegistrar(platform)),
		droplet.WithTaskRunner(gojob.QueueTaskRunner{Enqueuer: jobs}),
		droplet.WithRateLimitPolicy(policy),
	)
	if err != nil {
		fatal(logger, "build droplet service", err)
	}

	syncer := syncpkg.NewOrchestrator(svc, platform)
	syncer.Logger = logger

	dispatcher := ingress.NewDispatcher(svc)
	dispatcher.Logger = logger
	if cfg.Webhook.Secret != "" {
		dispatcher.Verifier = ingress.NewFluidWebhookVerifier(cfg.Webhook.Secret)
	}

	commandAdapter := gocommand.NewRegistryAdapter(nil)
	if err := commandAdapter.AddQueueResolver("queue", jobqueuecommand.NewRegistry()); err != nil {
		fatal(logger, "add queue resolver", err)
	}
	subs, err := gocommand.MountDroplet(commandAdapter, gocommand.Wiring{
		Mutator:       svc,
		Syncer:        syncer,
		Installations: svc,
		Dashboards:    svc,
		Activity:      svc,
		Deliveries:    svc,
	})
	if err != nil {
		fatal(logger, "mount command handlers", err)
	}
	defer gocommand.Unsubscribe(subs)
	if err := commandAdapter.Initialize(); err != nil {
		fatal(logger, "initialize command registry", err)
	}

	pruner, ok := factory.ActivityStore().(gojob.ActivityPruner)
	if !ok {
		fatal(logger, "wire activity retention", fmt.Errorf("activity store does not prune"))
	}

	worker := gojob.NewWorker(jobs, gojob.RetryPolicy{
		MaxAttempts:     5,
		MaxDelay:        5 * time.Minute,
		DeadLetterOnMax: true,
	}, logger)
	worker.Handle(gojob.JobIDBootstrap, gojob.BootstrapHandler(svc))
	worker.Handle(gojob.JobIDCompanySync, gojob.CompanySyncHandler(syncer))
	worker.Handle(gojob.JobIDActivityRetention, gojob.ActivityRetentionHandler(pruner))
	worker.AddHook(gojob.LoggingHook{Log: logger})
	worker.AddHook(prommetrics.WorkerHook{})

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Service:     svc,
		Webhooks:    dispatcher,
		Guard:       auth.NewGuard(svc, logger),
		Syncer:      syncer,
		WebhookPath: cfg.Webhook.Path,
		Metrics:     promhttp.Handler(),
		Health: func(ctx context.Context) error {
			return factory.DB().PingContext(ctx)
		},
		Logger: logger,
	})
	if err != nil {
		fatal(logger, "build http server", err)
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	go func() {
		if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("queue worker stopped", "error", err)
		}
	}()
	go scheduleActivityRetention(workerCtx, jobs, logger)

	addr := getEnv("DROPLET_HTTP_ADDR", defaultHTTPAddr)
	go func() {
		logger.Info("http server starting", "addr", addr, "service", cfg.ServiceName)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	stopWorker()
	logger.Info("shutdown complete")
}

// openDatabase opens the configured driver, registers the droplet's embedded
// migrations for the matching dialect, and applies them.
func openDatabase(ctx context.Context, driver string, dsn string) (*persistence.Client, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql":
		driver = "postgres"
	case "sqlite", "sqlite3":
		driver = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	pcfg := persistenceConfig{driver: driver, server: dsn}
	var client *persistence.Client
	if driver == "postgres" {
		client, err = persistence.New(pcfg, sqlDB, pgdialect.New())
	} else {
		client, err = persistence.New(pcfg, sqlDB, sqlitedialect.New())
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("new persistence client: %w", err)
	}

	target := dropletmigrations.DialectSQLite
	if driver == "postgres" {
		target = dropletmigrations.DialectPostgres
	}
	_, err = dropletmigrations.Register(ctx, func(_ context.Context, dialect string, fsys fs.FS) error {
		if dialect != target {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, dropletmigrations.WithValidationTargets(target))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return client, nil
}

// buildRateLimitPolicy backs the adaptive policy with the SQL state store so
// throttle posture survives restarts, cached to keep the per-call read hot.
func buildRateLimitPolicy(factory *sqlstore.RepositoryFactory) (*ratelimit.AdaptivePolicy, error) {
	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = 30 * time.Second
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("new rate-limit cache: %w", err)
	}
	store, err := sqlstore.NewCachedRateLimitStateStore(factory.RateLimitStateStore(), cacheService)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewAdaptivePolicy(store), nil
}

func scheduleActivityRetention(ctx context.Context, enqueuer queue.Enqueuer, logger glog.Logger) {
	policy := sqlstore.ActivityRetentionPolicy{
		TTL:    activityRetentionTTL,
		RowCap: activityRetentionRowCap,
	}
	ticker := time.NewTicker(activityRetentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := enqueuer.Enqueue(ctx, gojob.ActivityRetentionMessage(policy)); err != nil {
				logger.Warn("enqueue activity retention", "error", err)
			}
		}
	}
}

func fatal(logger glog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func getEnv(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// persistenceConfig satisfies go-persistence-bun's config contract from the
// binary's env values.
type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool {
	return false
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-droplet"
}
