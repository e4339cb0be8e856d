package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/cache"
	"github.com/fairyhunter13/scalable-commerce-system/internal/config"
	"github.com/fairyhunter13/scalable-commerce-system/internal/event"
	"github.com/fairyhunter13/scalable-commerce-system/internal/gateway"
	"github.com/fairyhunter13/scalable-commerce-system/internal/handler"
	"github.com/fairyhunter13/scalable-commerce-system/internal/outbox"
	"github.com/fairyhunter13/scalable-commerce-system/internal/ranking"
	"github.com/fairyhunter13/scalable-commerce-system/internal/repository"
	"github.com/fairyhunter13/scalable-commerce-system/internal/service"
	"github.com/fairyhunter13/scalable-commerce-system/internal/stream"
	"github.com/fairyhunter13/scalable-commerce-system/internal/validator"
	"github.com/fairyhunter13/scalable-commerce-system/migrations"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// productDetailTTL bounds staleness of the catalog read-through cache.
// Entries for changed products are evicted on order events anyway.
const productDetailTTL = time.Minute

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	// Create context for startup
	ctx := context.Background()

	// Initialize database pool with retry, then apply schema migrations
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(ctx, pool, migrations.FS); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	// Redis is optional at startup: purchases never touch it, catalog reads
	// fall through to the database and ranking reads degrade to snapshots.
	redisClient := cache.NewLazyClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).
			Msg("redis unreachable, catalog cache and live rankings degraded")
	}
	kv := cache.NewKVCache(redisClient)
	zset := cache.NewSortedSetStore(redisClient)

	// Streaming-bus producer for the outbox relay
	producer, err := stream.NewProducer(cfg.Kafka.BrokerList())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stream producer")
	}

	// In-process event bus. Workers get their own context so in-flight
	// after-commit handlers can finish during the shutdown drain.
	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()
	bus := event.NewBus(cfg.Event.Workers, cfg.Event.QueueSize, log.Logger)
	bus.Start(busCtx)

	// Repositories
	userRepo := repository.NewUserRepository(pool)
	brandRepo := repository.NewBrandRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	likeRepo := repository.NewLikeRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	claimRepo := repository.NewClaimRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)
	snapshotRepo := repository.NewSnapshotRepository(pool)

	// Payment gateway client: circuit breaker, bulkhead, per-path retries
	gw := gateway.NewClient(gateway.Config{
		BaseURL:          cfg.Payment.BaseURL,
		Timeout:          time.Duration(cfg.Payment.Timeout) * time.Second,
		Bulkhead:         cfg.Payment.Bulkhead,
		FailureThreshold: cfg.Payment.FailureThreshold,
		Window:           cfg.Payment.Window,
		OpenDuration:     time.Duration(cfg.Payment.OpenDuration) * time.Second,
	})

	// Services (layered architecture)
	orderSvc := service.NewOrderService(pool, bus, userRepo, productRepo, couponRepo, orderRepo, paymentRepo, gw, cfg.Payment.CallbackURL)
	productSvc := service.NewProductService(pool, bus, productRepo, brandRepo, userRepo, kv, productDetailTTL)
	likeSvc := service.NewLikeService(pool, bus, userRepo, productRepo, likeRepo)
	couponSvc := service.NewCouponService(pool, couponRepo, claimRepo, userRepo)
	rankingSvc := service.NewRankingService(zset, snapshotRepo, productRepo, brandRepo)

	// Event wiring: the outbox bridge persists routable events inside the
	// producing transaction; everything else runs after commit.
	outbox.NewBridge(outboxRepo).Register(bus)
	bus.Subscribe(event.TypeOrderCreated, orderSvc.InitiatePayment)
	bus.Subscribe(event.TypePaymentCompleted, orderSvc.CompleteOrder)
	bus.Subscribe(event.TypePaymentFailed, orderSvc.CancelOrder)
	bus.Subscribe(event.TypeOrderCreated, productSvc.InvalidateOnOrder)
	bus.Subscribe(event.TypeOrderCanceled, productSvc.InvalidateOnOrder)

	// Background loops: outbox relay and payment recovery
	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()
	var loops sync.WaitGroup

	relay := outbox.NewRelay(pool, outboxRepo, producer,
		cfg.Relay.BatchSize, time.Duration(cfg.Relay.PollInterval)*time.Second, cfg.Relay.AdvisoryLock)
	loops.Add(1)
	go func() {
		defer loops.Done()
		relay.Run(loopCtx)
	}()

	recovery := service.NewPaymentRecovery(orderRepo, userRepo, gw, bus,
		time.Duration(cfg.Recovery.Interval)*time.Second)
	loops.Add(1)
	go func() {
		defer loops.Done()
		recovery.Run(loopCtx)
	}()

	// Cron jobs, all in UTC because ranking day boundaries are UTC dates
	carryOver := ranking.NewCarryOver(zset, cfg.Ranking.CarryOverWeight, time.Duration(cfg.Ranking.TTLHours)*time.Hour)
	snapshotWriter := ranking.NewSnapshotWriter(zset, productRepo, brandRepo, snapshotRepo, cfg.Ranking.SnapshotTopK)

	crons := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	mustSchedule(crons, "0 0 * * *", "ranking carry-over", func() {
		if err := carryOver.Run(loopCtx); err != nil {
			log.Error().Err(err).Msg("carry-over run failed")
		}
	})
	mustSchedule(crons, cfg.Ranking.SnapshotCron, "ranking snapshot", func() {
		if err := snapshotWriter.Run(loopCtx); err != nil {
			log.Error().Err(err).Msg("snapshot run failed")
		}
	})
	mustSchedule(crons, cfg.Ranking.LikeSyncCron, "like-count sync", func() {
		if err := likeSvc.SyncLikeCounts(loopCtx); err != nil {
			log.Error().Err(err).Msg("like-count sync failed")
		}
	})
	crons.Start()

	// Catch up the carry-over if the process was down at midnight. The
	// day marker makes a second run for the same date a no-op.
	go func() {
		if err := carryOver.Run(loopCtx); err != nil {
			log.Warn().Err(err).Msg("startup carry-over failed")
		}
	}()

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Scalable Commerce System",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    1 * 1024 * 1024,   // 1MB body limit (explicit, prevents large payloads)
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Initialize validator with the custom notblank and cardtype rules
	validate := validator.New()

	// Handlers
	orderHandler := handler.NewOrderHandler(orderSvc, validate)
	productHandler := handler.NewProductHandler(productSvc)
	likeHandler := handler.NewLikeHandler(likeSvc)
	rankingHandler := handler.NewRankingHandler(rankingSvc)
	couponHandler := handler.NewCouponHandler(couponSvc)
	claimHandler := handler.NewClaimHandler(couponSvc, validate)
	paymentHandler := handler.NewPaymentHandler(bus, validate)
	healthHandler := handler.NewHealthHandler(pool, handler.PingerFunc(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}))

	app.Get("/health", healthHandler.Check)

	// Order routes
	app.Post("/api/orders", orderHandler.PlaceOrder)
	app.Get("/api/orders/:id", orderHandler.GetOrder)

	// Catalog and like routes
	app.Get("/api/products", productHandler.ListProducts)
	app.Get("/api/products/:id", productHandler.GetProduct)
	app.Post("/api/products/:id/likes", likeHandler.Like)
	app.Delete("/api/products/:id/likes", likeHandler.Unlike)

	// Ranking routes
	app.Get("/api/rankings", rankingHandler.GetRankings)

	// Coupon routes
	app.Get("/api/coupons/:code", couponHandler.GetCoupon)
	app.Post("/api/coupons/claim", claimHandler.ClaimCoupon)

	// Payment gateway callback
	app.Post("/api/payments/callback", paymentHandler.Callback)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Stop the producers of bus work before draining the bus so nothing
	// publishes into a closed queue: crons first, then relay and recovery.
	log.Info().Msg("stopping background jobs...")
	select {
	case <-crons.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("cron jobs still running at shutdown deadline")
	}
	stopLoops()
	loops.Wait()

	log.Info().Msg("draining event bus...")
	bus.Stop()
	busCancel()

	producer.Close()
	if err := redisClient.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing redis client")
	}

	// Close database pool AFTER everything that uses it
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("database connections closed")
	log.Info().Msg("server stopped")
}

// mustSchedule registers a cron job or aborts startup: a bad schedule is a
// configuration error, not something to discover at midnight.
func mustSchedule(c *cron.Cron, spec, name string, job func()) {
	if _, err := c.AddFunc(spec, job); err != nil {
		log.Fatal().Err(err).Str("job", name).Str("schedule", spec).Msg("invalid cron schedule")
	}
}

// cronLogger adapts zerolog to the cron scheduler's logger interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
