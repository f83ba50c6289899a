package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/shopfront/internal/checkout"
	"github.com/xenking/shopfront/internal/domain/auth"
	"github.com/xenking/shopfront/internal/domain/cart"
	"github.com/xenking/shopfront/internal/handler"
	"github.com/xenking/shopfront/internal/outbox"
	"github.com/xenking/shopfront/internal/storage/postgres"
	"github.com/xenking/shopfront/internal/storage/redisstore"
	"github.com/xenking/shopfront/pkg/health"
	"github.com/xenking/shopfront/pkg/httpmiddleware"
)

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

	if err := postgres.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	supportsLoyalty, err := postgres.SupportsLoyalty(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "probe loyalty schema")
	}
	if !supportsLoyalty {
		lg.Warn("Loyalty balances are not available, accrual and redemption are disabled")
	}

	// Redis session store.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	promoRepo := postgres.NewPromoRepository(pool)
	loyaltyRepo := postgres.NewLoyaltyRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)

	// Domain services.
	checkoutSvc, err := checkout.NewService(promoRepo, promoRepo, loyaltyRepo, postgres.NewTxManager(pool), checkout.Options{
		SupportsLoyalty: supportsLoyalty,
		MeterProvider:   m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	// HTTP handlers.
	h := handler.NewHandler(handler.Config{
		SessionCookie: cfg.Session.Cookie,
		SessionTTL:    cfg.Session.TTL,
		SecureCookie:  cfg.Session.Secure,
		UserHeader:    cfg.Identity.Header,
		AdminCORS: httpmiddleware.CORSConfig{
			Origins:      cfg.Admin.CORSOrigins,
			AllowHeaders: []string{"Content-Type", handler.APIKeyHeader},
			MaxAge:       86400,
		},
	}, handler.Deps{
		Checkout: checkoutSvc,
		Carts:    cart.NewStore(productRepo),
		Sessions: redisstore.NewSessionStore(rdb, cfg.Session.TTL),
		Orders:   orderRepo,
		Ledger:   loyaltyRepo,
		Promos:   promoRepo,
		Stock:    productRepo,
		Plans:    loyaltyRepo,
		Keys:     auth.NewAuthenticator(apikeyRepo, []byte(cfg.Admin.APIKeyPepper)),
	})

	// Router: health endpoints + storefront and admin routes on one server.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Mount(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.HeaderOrClientIP(cfg.Identity.Header),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Routes(),
			httpmiddleware.Instrument("shopfront", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Outbox publisher: order events reach Kafka after commit.
	publisherDone := make(chan struct{})
	if len(cfg.Outbox.Brokers) > 0 {
		writer := outbox.NewKafkaWriter(cfg.Outbox.Brokers, cfg.Outbox.Topic)
		publisher, err := outbox.NewPublisher(outboxRepo, writer, outbox.Config{
			Interval:  cfg.Outbox.Interval,
			BatchSize: cfg.Outbox.BatchSize,
		}, m.MeterProvider())
		if err != nil {
			return errors.Wrap(err, "create outbox publisher")
		}
		go func() {
			defer close(publisherDone)
			defer func() { _ = writer.Close() }()
			lg.Info("Outbox publisher started",
				zap.Strings("brokers", cfg.Outbox.Brokers),
				zap.String("topic", cfg.Outbox.Topic),
			)
			if err := publisher.Run(zctx.Base(ctx, lg.Named("outbox"))); err != nil {
				lg.Error("Outbox publisher stopped", zap.Error(err))
			}
		}()
	} else {
		lg.Info("Outbox publishing disabled, no brokers configured")
		close(publisherDone)
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	<-publisherDone
	return nil
}
