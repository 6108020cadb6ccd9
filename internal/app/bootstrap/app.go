// Package bootstrap wires configuration into the running application.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-concierge/internal/api/router"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/convctx"
	"github.com/wolfman30/clinic-concierge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-concierge/internal/http/middleware"
	"github.com/wolfman30/clinic-concierge/internal/jobs"
	"github.com/wolfman30/clinic-concierge/internal/messaging"
	"github.com/wolfman30/clinic-concierge/internal/messaging/compliance"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/internal/reporting"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// App is the assembled service.
type App struct {
	Handler http.Handler
	Engine  *conversation.Engine
	Jobs    *jobs.Runner
	Webhook *messaging.WebhookHandler

	cfg     *appconfig.Config
	logger  *logging.Logger
	backend convctx.Backend
	pool    *pgxpool.Pool
	sqlDB   *sql.DB
	redis   *redis.Client
}

// New builds every component from cfg. Missing Postgres or Redis degrade to
// in-memory implementations; a broken clinic settings file is fatal.
func New(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{cfg: cfg, logger: logger}

	pool, sqlDB, err := ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	app.pool, app.sqlDB = pool, sqlDB
	store := BuildStore(pool, logger)

	app.redis = BuildRedisClient(ctx, cfg, logger, true)
	settings, settingsStore, err := BuildSettings(cfg, app.redis)
	if err != nil {
		app.Close()
		return nil, err
	}
	s, err := settings.Settings(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("bootstrap: load clinic settings: %w", err)
	}

	app.backend = convctx.SelectBackend(ctx, app.redis, logger)
	contexts := convctx.New(app.backend, logger, convctx.WithTTL(cfg.ContextTTL))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.NewEngineMetrics(registry)
	messagingMetrics := metrics.NewMessagingMetrics(registry)

	telnyx, err := BuildTelnyxClient(cfg, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("bootstrap: telnyx client: %w", err)
	}
	sender, provider := BuildSender(cfg, telnyx, logger)
	logger.Info("outbound transport selected", "provider", provider)

	quiet, err := compliance.ParseQuietHours(cfg.QuietHoursStart, cfg.QuietHoursEnd, s.Location())
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("bootstrap: quiet hours: %w", err)
	}
	machine := statemachine.New(logger)
	app.Jobs, err = jobs.New(jobs.Config{
		Store:      store,
		Contexts:   contexts,
		Settings:   settings,
		Sender:     sender,
		Machine:    machine,
		QuietHours: quiet,
		Metrics:    messagingMetrics,
		Logger:     logger,
		Interval:   cfg.JobsInterval,
		StaleAfter: cfg.ConversationWindow,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("bootstrap: jobs: %w", err)
	}

	app.Engine, err = BuildEngine(ctx, cfg, EngineDeps{
		Store:         store,
		Contexts:      contexts,
		Settings:      settings,
		Sender:        sender,
		Cancellations: app.Jobs,
		Metrics:       engineMetrics,
	}, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	var verifier interface {
		VerifyWebhookSignature(timestamp, signature string, payload []byte) error
	}
	if telnyx != nil && cfg.TelnyxWebhookSecret != "" {
		verifier = telnyx
	} else {
		logger.Warn("telnyx webhook signature verification disabled")
	}
	app.Webhook = messaging.NewWebhookHandler(messaging.WebhookConfig{
		Verifier: verifier,
		Process:  app.Engine.Process,
		Sender:   sender,
		Logger:   logger,
		Observer: messagingMetrics,
	})

	app.Handler = router.New(app.routerConfig(store, settings, settingsStore, registry))
	return app, nil
}

func (a *App) routerConfig(store storage.Store, settings clinic.Provider, settingsStore *clinic.Store, registry *prometheus.Registry) *router.Config {
	adminCfg := handlers.AdminConfig{
		Store:    store,
		Settings: settings,
		Resolver: a.Engine,
		Logger:   a.logger,
	}
	if a.sqlDB != nil {
		adminCfg.Reports = reporting.NewRepository(a.sqlDB)
	}
	rc := &router.Config{
		Logger:          a.logger,
		TelnyxWebhook:   a.Webhook.HandleMessages,
		Admin:           handlers.NewAdminHandler(adminCfg),
		AdminAuthSecret: a.cfg.AdminJWTSecret,
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	if settingsStore != nil {
		rc.ClinicHandler = clinic.NewHandler(settingsStore, a.logger)
	}
	if a.cfg.SimulateEnabled {
		rc.Simulate = handlers.NewSimulateHandler(a.Engine, a.logger)
		rc.SimulateLimiter = httpmiddleware.NewRateLimiter(a.cfg.SimulateRPS, 5)
		a.logger.Warn("simulation endpoint enabled")
	}
	return rc
}

// Start launches the background workers. They stop when ctx is done.
func (a *App) Start(ctx context.Context) {
	if mem, ok := a.backend.(*convctx.MemoryBackend); ok {
		mem.StartSweeper(ctx, a.cfg.ContextSweepInterval)
	}
	if a.cfg.JobsEnabled {
		go a.Jobs.Run(ctx)
		a.logger.Info("background jobs started", "interval", a.cfg.JobsInterval.String())
	}
}

// Close waits for in-flight webhook turns and releases connections.
func (a *App) Close() {
	if a.Webhook != nil {
		a.Webhook.Wait()
	}
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
