package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/teacheasy/internal/domain/address"
	"github.com/xenking/teacheasy/internal/domain/auth"
	"github.com/xenking/teacheasy/internal/domain/cart"
	"github.com/xenking/teacheasy/internal/domain/category"
	"github.com/xenking/teacheasy/internal/domain/checkout"
	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/domain/order"
	"github.com/xenking/teacheasy/internal/domain/payment"
	"github.com/xenking/teacheasy/internal/domain/product"
	"github.com/xenking/teacheasy/internal/domain/sequence"
	"github.com/xenking/teacheasy/internal/domain/wishlist"
	"github.com/xenking/teacheasy/internal/events"
	"github.com/xenking/teacheasy/internal/handler"
	"github.com/xenking/teacheasy/internal/storage/postgres"
	"github.com/xenking/teacheasy/pkg/health"
	"github.com/xenking/teacheasy/pkg/httpmiddleware"
)

// maxLiveHeap fails liveness so the orchestrator restarts a leaking process.
const maxLiveHeap = 2 << 30

// notifier receives order and payment lifecycle events.
type notifier interface {
	order.Notifier
	payment.Notifier
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

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, postgres.Ping(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("heap", time.Second, health.HeapLimitCheck(maxLiveHeap))

	// Lifecycle events go to Kafka when brokers are configured.
	var publisher notifier = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			ClientID:     cfg.Kafka.ClientID,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		})
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		publisher = pub
		healthSvc.AddReadinessCheck("kafka", 5*time.Second, events.BrokerCheck(cfg.Kafka.Brokers), health.Optional())
	} else {
		lg.Info("Kafka brokers not configured, lifecycle events are dropped")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	categoryRepo := postgres.NewCategoryRepository(pool)
	addressRepo := postgres.NewAddressRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	wishlistRepo := postgres.NewWishlistRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	counter := postgres.NewSequenceCounter(pool)

	// Domain services.
	couponSvc := coupon.NewService(couponRepo)
	cartSvc := cart.NewService(cartRepo, productRepo, couponSvc, cfg.Store.CartLimits())
	addressSvc := address.NewService(addressRepo)
	orderSvc := order.NewService(orderRepo, sequence.NewGenerator(counter, sequence.ScopeOrder),
		publisher, cfg.Store.MaxReturnDays)
	paymentSvc := payment.NewService(paymentRepo, sequence.NewGenerator(counter, sequence.ScopePayment), publisher)

	checkoutSvc, err := checkout.NewService(checkout.Deps{
		Carts:     cartSvc,
		Addresses: addressSvc,
		Coupons:   couponSvc,
		Payments:  paymentSvc,
		Orders:    orderSvc,
	}, cfg.Store.PricingPolicy(), cfg.Store.Currency, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	// HTTP handlers.
	h := handler.New(
		handler.Config{
			ImageBaseURL: cfg.ImageBaseURL,
			APIKeyPepper: []byte(cfg.APIKeyPepper),
		},
		handler.Services{
			Products:   product.NewService(productRepo),
			Categories: category.NewService(categoryRepo, productRepo),
			Carts:      cartSvc,
			Wishlist:   wishlist.NewService(wishlistRepo, productRepo, cartSvc),
			Addresses:  addressSvc,
			Coupons:    couponSvc,
			Orders:     orderSvc,
			Payments:   paymentSvc,
			Checkout:   checkoutSvc,
		},
		auth.NewTokens([]byte(cfg.JWTSecret), cfg.JWTTTL),
		apikeyRepo,
	)

	// Router: API routes plus health endpoints on one server.
	r := h.Routes()
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	routeFinder := httpmiddleware.MakeRouteFinder(r)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(lg),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{
					"Content-Type", "Authorization",
					handler.APIKeyHeader, httpmiddleware.RequestIDHeader,
				},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Rules: []httpmiddleware.RateLimitRule{{
					Name:   "coupon",
					Max:    cfg.RateLimit.CouponMax,
					Window: cfg.RateLimit.CouponWindow,
					Match:  httpmiddleware.MatchRoute(http.MethodPost, "/api/cart/coupons", "/api/checkout"),
				}},
				Skip: isProbe,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("teacheasy-api", routeFinder, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
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
	return nil
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}
