package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/atelier-orders/internal/domain/catalog"
	"github.com/xenking/atelier-orders/internal/domain/order"
	"github.com/xenking/atelier-orders/internal/handler"
	"github.com/xenking/atelier-orders/internal/storage/postgres"
	"github.com/xenking/atelier-orders/pkg/health"
	"github.com/xenking/atelier-orders/pkg/httpmiddleware"
)

// Start loads configuration and runs the API server until ctx is cancelled.
// It is the entrypoint handed to app.Run by cmd/api-server.
func Start(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	return Run(ctx, lg, m, cfg)
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health probes.
	monitor := health.NewMonitor()
	monitor.Register("postgres", health.Readiness, 5*time.Second, health.DatabasePing(pool))
	monitor.Register("goroutines", health.Liveness, time.Second, health.GoroutineCeiling(10000))
	monitor.Register("gc-pause", health.Liveness, time.Second, health.GCPauseCeiling(500*time.Millisecond))
	monitor.Start(ctx, 10*time.Second)
	monitor.SetReady(true)

	// Storage.
	catalogRepo := postgres.NewCatalogRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	ledger := postgres.NewStockLedger(pool)

	// Domain services.
	catalogService := catalog.NewService(catalogRepo)
	orderService := order.NewService(catalogRepo, orderRepo, ledger)

	// Router: health endpoints + API routes on one server.
	h := handler.New(orderService, catalogService)
	root := chi.NewRouter()
	root.Get("/livez", monitor.LiveHandler)
	root.Get("/readyz", monitor.ReadyHandler)
	root.Mount("/api", h.Routes())

	instrumented := otelhttp.NewHandler(root, "atelier-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		monitor.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		monitor.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
