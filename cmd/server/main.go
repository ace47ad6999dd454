package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/coinsight-go/internal/analysis"
	"github.com/irfndi/coinsight-go/internal/api"
	"github.com/irfndi/coinsight-go/internal/api/handlers"
	"github.com/irfndi/coinsight-go/internal/assets"
	"github.com/irfndi/coinsight-go/internal/config"
	"github.com/irfndi/coinsight-go/internal/database"
	"github.com/irfndi/coinsight-go/internal/identity"
	"github.com/irfndi/coinsight-go/internal/logging"
	"github.com/irfndi/coinsight-go/internal/metrics"
	"github.com/irfndi/coinsight-go/internal/middleware"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/observability"
	"github.com/irfndi/coinsight-go/internal/payments"
	"github.com/irfndi/coinsight-go/internal/session"
	"github.com/irfndi/coinsight-go/internal/share"
	"github.com/irfndi/coinsight-go/internal/telemetry"
)

const (
	serviceName          = "coinsight-go"
	limiterPruneInterval = 5 * time.Minute
	sessionPruneInterval = time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTelemetry(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown telemetry: %v\n", err)
		}
	}()

	if err := observability.InitSentry(cfg.Sentry, cfg.Telemetry.ServiceVersion, cfg.Environment); err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		observability.Flush(flushCtx)
	}()

	stdLogger := newStandardLogger(cfg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stdLogger.Shutdown(shutdownCtx)
	}()
	logger := logging.NewLogrus(cfg.LogLevel)
	registry := metrics.NewRegistry()

	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	redis, err := database.NewRedisConnection(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redis.Close()

	catalog, err := assets.DefaultCatalog()
	if err != nil {
		return fmt.Errorf("failed to load asset catalog: %w", err)
	}

	pool := database.NewTracedPool(db.Pool, stdLogger)
	users := database.NewUserRepository(pool, redis.Client, logger)
	settings := database.NewSettingsRepository(pool)
	history := database.NewHistoryRepository(pool)
	usage := database.NewUsageRepository(pool)

	identitySvc := identity.NewService(users, database.NewTokenStore(redis.Client), cfg.Security, cfg.OAuth, logger, registry)
	paymentsSvc := payments.NewService(
		payments.NewPlanTable(cfg.Payments),
		users,
		payments.NewCheckoutClient(cfg.Payments, logger),
		cfg.Payments,
		logger,
		registry,
	)

	var telegram share.MessageSender
	if cfg.Telegram.BotToken != "" {
		sender, err := share.NewTelegramSender(cfg.Telegram.BotToken, logger)
		if err != nil {
			return fmt.Errorf("failed to create telegram sender: %w", err)
		}
		telegram = sender
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, telegram sharing disabled")
	}

	deps := analysis.WorkflowDeps{
		Catalog: catalog,
		Builder: analysis.NewSynthesizer(newSignalProvider(cfg.Analysis, catalog)),
		Guard:   analysis.NewPlanGuard(paymentsSvc, usage, registry),
		Logger:  logger,
		Options: []analysis.SequencerOption{
			analysis.WithPacer(analysis.RandomPacer(cfg.Analysis.StageDelayMin, cfg.Analysis.StageDelayMax)),
			analysis.WithMetrics(registry),
			analysis.WithTracer(telemetry.NewBusinessTracer(telemetry.GetAnalysisTracer())),
		},
	}
	if cfg.Analysis.PersistHistory {
		deps.History = history
	}
	manager := session.NewManager(deps)
	defer manager.Close()
	sessions, unwire := wireSessions(identitySvc, manager, registry)
	defer unwire()
	go pruneSessions(ctx, sessions, sessionPruneInterval)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.AuthRequestsPerSecond, cfg.RateLimit.AuthBurst)
	go pruneLimiter(ctx, limiter, limiterPruneInterval)

	router := gin.New()
	if observability.Enabled(cfg.Sentry) {
		router.Use(observability.Middleware())
	}
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestTelemetry(stdLogger, registry))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	api.SetupRoutes(router, api.Handlers{
		Health: handlers.NewHealthHandler(map[string]handlers.HealthChecker{
			"database": db,
			"redis":    redis,
		}, cfg.Telemetry.ServiceVersion),
		Auth:     handlers.NewAuthHandler(identitySvc),
		Analysis: handlers.NewAnalysisHandler(manager, catalog, users, telegram),
		Stream:   handlers.NewStreamHandler(manager, cfg.Server.AllowedOrigins, logger),
		Account:  handlers.NewAccountHandler(users, settings, history, usage, paymentsSvc, cfg.Analysis.HistoryLimit),
		Billing:  handlers.NewBillingHandler(paymentsSvc),
	}, api.Guards{
		Auth:        middleware.NewAuthMiddleware(identitySvc),
		AuthLimiter: limiter,
		Metrics:     gin.WrapH(registry.Handler()),
		OpsKey:      cfg.Server.MetricsKey,
	})

	srv := newHTTPServer(cfg.Server.Port, router)

	errCh := make(chan error, 1)
	go func() {
		stdLogger.LogStartup(serviceName, cfg.Telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	stdLogger.LogShutdown(serviceName, "signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

func telemetryConfig(cfg *config.Config) telemetry.TelemetryConfig {
	tc := telemetry.DefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.OTLPEndpoint
	tc.Environment = cfg.Environment
	if cfg.Telemetry.ServiceName != "" {
		tc.ServiceName = cfg.Telemetry.ServiceName
	}
	if cfg.Telemetry.ServiceVersion != "" {
		tc.ServiceVersion = cfg.Telemetry.ServiceVersion
	}
	return *tc
}

// newStandardLogger exports over OTLP when telemetry has a collector, and
// writes JSON to stdout otherwise.
func newStandardLogger(cfg *config.Config) *logging.StandardLogger {
	if !cfg.Telemetry.Enabled || cfg.Telemetry.OTLPEndpoint == "" {
		return logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	}
	return logging.NewStandardOTLPLogger(logging.OTLPConfig{
		Enabled:        true,
		Endpoint:       otlpHost(cfg.Telemetry.OTLPEndpoint),
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
}

// otlpHost reduces a collector URL to the host:port the log exporter wants.
func otlpHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

// newSignalProvider picks the synthesizer's provider. Config validation has
// already rejected unknown names.
func newSignalProvider(cfg config.AnalysisConfig, catalog *assets.Catalog) analysis.SignalProvider {
	if cfg.Provider == analysis.ProviderIndicator {
		return analysis.NewIndicatorProvider(analysis.NewSyntheticCandles(catalog), cfg.CandleCount)
	}
	return analysis.NewRandomProvider(catalog)
}

// newHTTPServer applies the security timeouts. WriteTimeout does not apply
// to hijacked WebSocket connections.
func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}
}

// authEventSource is the subscription side of identity.Service.
type authEventSource interface {
	Subscribe(fn func(models.AuthEvent, models.Session)) func()
}

// wireSessions routes identity events through a session context. The
// manager and the active-session gauge observe the context, so expiry
// pruning reaches them the same way a sign-out does.
func wireSessions(source authEventSource, manager *session.Manager, registry *metrics.Registry) (*session.Context, func()) {
	sessions := session.NewContext()
	stops := []func(){
		sessions.Subscribe(manager.HandleAuthEvent),
		sessions.Subscribe(func(models.AuthEvent, models.Session) {
			if registry != nil {
				registry.SetActiveSessions(sessions.Count())
			}
		}),
		source.Subscribe(sessions.Apply),
	}
	return sessions, func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
}

func pruneSessions(ctx context.Context, sessions *session.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := sessions.Prune(now); n > 0 {
				logrus.WithField("expired", n).Debug("Signed out expired sessions")
			}
		}
	}
}

func pruneLimiter(ctx context.Context, limiter *middleware.IPRateLimiter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Prune(); n > 0 {
				logrus.WithField("removed", n).Debug("Pruned idle rate limiter entries")
			}
		}
	}
}
