package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/recycle-market/internal/broker"
	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/cart"
	"github.com/xenking/recycle-market/internal/domain/fulfillment"
	"github.com/xenking/recycle-market/internal/domain/notification"
	"github.com/xenking/recycle-market/internal/domain/rewards"
	"github.com/xenking/recycle-market/internal/handler"
	"github.com/xenking/recycle-market/internal/storage"
	"github.com/xenking/recycle-market/internal/storage/postgres"
	"github.com/xenking/recycle-market/internal/storage/redis"
	"github.com/xenking/recycle-market/pkg/health"
	"github.com/xenking/recycle-market/pkg/httpmiddleware"
)

// serviceName labels HTTP telemetry.
const serviceName = "recycle-api"

// Run creates all dependencies, starts the HTTP server and the background
// workers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	settings, err := cfg.Settings()
	if err != nil {
		return errors.Wrap(err, "settings")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	store := postgres.NewStore(pool)

	// Redis for carts.
	rdb, err := redis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = rdb.Close() }()
	carts := redis.NewCartStore(rdb, cfg.Cart.TTL)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(store.Ping))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second), health.Thresholds(5, 1))
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()

	// Domain services.
	fulfillmentSvc, err := fulfillment.NewService(store, store.Orders(), carts, store.Addresses(), store.Couriers(),
		fulfillment.Config{
			DeliveryFee: settings.DeliveryFee,
			Policy:      settings.Policy,
			TxAttempts:  cfg.Fulfillment.TxAttempts,
		},
		fulfillment.WithTracerProvider(m.TracerProvider()),
		fulfillment.WithMeterProvider(m.MeterProvider()),
		fulfillment.WithLogger(lg.Named("fulfillment")),
	)
	if err != nil {
		return errors.Wrap(err, "create fulfillment service")
	}
	rewardsSvc := rewards.NewService(store, store.Ledger(), settings.RedeemRate, storage.RetryPolicy{
		Attempts: cfg.Fulfillment.TxAttempts,
	})

	publisher, closePublisher, err := newPublisher(lg, settings.Brokers, cfg.Notify.Topic)
	if err != nil {
		return errors.Wrap(err, "create notification publisher")
	}
	defer closePublisher()
	relay := notification.NewRelay(store.Notifications(), publisher, lg.Named("relay"), notification.RelayConfig{
		PollInterval:   cfg.Notify.PollInterval,
		PublishTimeout: cfg.Notify.PublishTimeout,
		BatchSize:      cfg.Notify.BatchSize,
	})
	reconciler := rewards.NewReconciler(store, store.Ledger(), lg.Named("reconciler"), cfg.Rewards.ReconcileWorkers)

	// HTTP handlers.
	h := handler.New(handler.Deps{
		Fulfillment:   fulfillmentSvc,
		Carts:         cart.NewService(carts, store.Catalog(), settings.BuyerMarkup),
		Rewards:       rewardsSvc,
		Notifications: store.Notifications(),
		Catalog:       store.Catalog(),
		Tokens:        auth.NewTokenVerifier([]byte(cfg.JWTSecret)),
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: newRouter(ctx, routerDeps{
			Logger:         zctx.From(ctx),
			TracerProvider: m.TracerProvider(),
			MeterProvider:  m.MeterProvider(),
			Health:         healthSvc,
			API:            h,
			CORS:           cfg.CORS,
			RateLimit:      cfg.RateLimit,
		}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(gctx)
	})
	if cfg.Rewards.ReconcileInterval > 0 {
		g.Go(func() error {
			return reconciler.Loop(gctx, cfg.Rewards.ReconcileInterval)
		})
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// newPublisher returns the Kafka publisher when brokers are configured and
// the log publisher otherwise.
func newPublisher(lg *zap.Logger, brokers []string, topic string) (notification.Publisher, func(), error) {
	if len(brokers) == 0 {
		lg.Info("No Kafka brokers configured, logging notifications")
		return broker.NewLogPublisher(lg.Named("notifications")), func() {}, nil
	}
	p, err := broker.NewKafkaPublisher(brokers, topic)
	if err != nil {
		return nil, nil, err
	}
	lg.Info("Publishing notifications to Kafka", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return p, func() {
		if err := p.Close(); err != nil {
			lg.Warn("Close Kafka publisher", zap.Error(err))
		}
	}, nil
}

type routerDeps struct {
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Health         *health.Health
	API            *handler.Handler
	CORS           CORSConfig
	RateLimit      RateLimitConfig
}

// newRouter assembles health endpoints and the API under /api behind the
// shared middleware chain. Middlewares are registered on the chi router so
// they observe the matched route pattern.
func newRouter(ctx context.Context, d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		cors.Handler(cors.Options{
			AllowedOrigins:   d.CORS.Origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", handler.SessionHeader, handler.IdempotencyKeyHeader, httpmiddleware.RequestIDHeader},
			ExposedHeaders:   []string{"Location", "Retry-After", httpmiddleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: d.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(d.Logger),
		httpmiddleware.Instrument(serviceName, d.TracerProvider, d.MeterProvider),
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	d.Health.Routes(r)
	r.Mount("/api", d.API.Router(
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     d.RateLimit.Max,
			Window:  d.RateLimit.Window,
			KeyFunc: handler.RateLimitKey,
		}),
	))
	return r
}
