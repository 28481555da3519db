package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agendafacil/internal/caching"
	"agendafacil/internal/config"
	"agendafacil/internal/handlers"
	"agendafacil/internal/jobs/background"
	"agendafacil/internal/middleware"
	"agendafacil/internal/repositories"
	"agendafacil/internal/services"
	"agendafacil/pkg/database"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "agendafacil",
		Short:   "Agenda Fácil payment reconciliation service",
		Version: version,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve gateway webhooks and run background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return a.serve(ctx)
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Re-drive pending payments once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.jobs.RunPendingSweep(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := a.jobs.DeactivateExpiredSubscriptions(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d applied=%d failed=%d\n", report.Scanned, report.Applied, report.Failed)
			return nil
		},
	}
}

type app struct {
	cfg              *config.Config
	logger           *zap.Logger
	health           *handlers.HealthHandlers
	orderRepo        repositories.OrderRepository
	subscriptionRepo repositories.SubscriptionRepository
	audit            services.AuditLogsService
	events           services.PaymentEventService
	jobs             *background.JobScheduler
	closers          []func()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	redisClient := caching.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	a.closers = append(a.closers, func() { _ = redisClient.Close() })

	var archive services.EventArchive
	optional := map[string]handlers.Pinger{
		"redis": handlers.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
	}
	if cfg.Minio.Endpoint != "" {
		archive, err = services.NewMinioEventArchive(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL, cfg.Minio.Bucket)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize event archive: %w", err)
		}
		if err := archive.EnsureBucketExists(ctx); err != nil {
			logger.Warn("event archive bucket unavailable", zap.String("bucket", cfg.Minio.Bucket), zap.Error(err))
		}
		optional["storage"] = archive
	} else {
		logger.Info("MINIO_ENDPOINT not set, callback archiving disabled")
	}

	// Create repositories
	a.orderRepo = repositories.NewOrderRepo(pool)
	a.subscriptionRepo = repositories.NewSubscriptionRepo(pool)
	credentialRepo := repositories.NewCredentialRepo(pool)
	a.audit = services.NewAuditLogsService(repositories.NewAuditLogsRepo(pool))

	// Create services
	notifications := services.NewNotificationService(redisClient)
	gateway := services.NewMercadoPagoGateway(cfg.Gateway.BaseURL, cfg.Gateway.Timeout.Duration, &http.Client{})
	a.events = services.NewPaymentEventService(
		services.NewEventClassifier(a.orderRepo, a.subscriptionRepo),
		services.NewCredentialService(credentialRepo),
		gateway,
		services.NewOrderReconciler(a.orderRepo, notifications, logger),
		services.NewSubscriptionReconciler(a.subscriptionRepo, notifications, services.SubscriptionPolicy{
			Plan:       cfg.Subscription.Plan,
			PeriodDays: cfg.Subscription.PeriodDays,
		}, logger),
		caching.NewRedisEventLock(redisClient, 30*time.Second, logger),
		archive,
		logger,
	)

	a.jobs, err = background.NewJobScheduler(a.events, a.orderRepo, a.subscriptionRepo, background.SweepOptions{
		Interval:   cfg.Sweep.Interval.Duration,
		PendingAge: cfg.Sweep.PendingAge.Duration,
		BatchSize:  cfg.Sweep.BatchSize,
	}, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	a.health = handlers.NewHealthHandlers(version, map[string]handlers.Pinger{
		"database": pool,
	}, optional)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) router() (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	e.Use(middleware.VersionHeader(version))

	// Health endpoints (no auth required)
	e.GET("/health", a.health.HealthCheck)
	e.GET("/health/ready", a.health.ReadinessCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Gateway callbacks
	webhookHandlers := handlers.NewWebhookHandlers(a.events, a.logger)
	e.POST("/webhooks/mercadopago", webhookHandlers.MercadoPagoWebhook)
	legacy := middleware.LegacyRoute("/webhooks/mercadopago")
	e.POST("/api/webhook-mercadopago", webhookHandlers.MercadoPagoWebhook, legacy)
	e.POST("/api/mp-webhook-subscription", webhookHandlers.MercadoPagoWebhook, legacy)

	// Operator routes
	operatorAuth, stopAuth, err := middleware.OperatorAuth(a.cfg.Operator.JWTSecret, a.cfg.Operator.JWKSURL, a.logger)
	if err != nil {
		a.logger.Warn("operator routes disabled", zap.Error(err))
		return e, nil
	}
	a.closers = append(a.closers, stopAuth)

	reviewHandlers := handlers.NewReviewHandlers(a.orderRepo, a.subscriptionRepo, a.events, a.logger)
	jobHandlers := handlers.NewJobHandlers(a.jobs, a.logger)
	auditHandlers := handlers.NewAuditLogsHandlers(a.audit, a.logger)
	auditMiddleware := middleware.NewAuditMiddleware(a.audit, a.logger)

	ops := e.Group("/v1/ops")
	ops.Use(operatorAuth, middleware.RequireOperator, auditMiddleware.AuditOperatorActions())
	ops.GET("/review/movements", reviewHandlers.ListMovements)
	ops.GET("/review/subscription-payments", reviewHandlers.ListSubscriptionPayments)
	ops.POST("/reconcile/:externalId", reviewHandlers.Reconcile)
	ops.GET("/jobs", jobHandlers.Status)
	ops.POST("/jobs/sweep", jobHandlers.RunSweep)
	ops.GET("/audit", auditHandlers.ListAuditLogs)

	return e, nil
}

func (a *app) serve(ctx context.Context) error {
	e, err := a.router()
	if err != nil {
		return err
	}

	a.jobs.Start()
	defer func() {
		if err := a.jobs.Stop(); err != nil {
			a.logger.Warn("failed to stop scheduler", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", a.cfg.Port)
		a.logger.Info("agendafacil server starting", zap.String("version", version), zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.logger.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
