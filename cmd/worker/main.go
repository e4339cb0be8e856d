package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-commerce-system/internal/cache"
	"github.com/fairyhunter13/scalable-commerce-system/internal/config"
	"github.com/fairyhunter13/scalable-commerce-system/internal/event"
	"github.com/fairyhunter13/scalable-commerce-system/internal/ranking"
	"github.com/fairyhunter13/scalable-commerce-system/internal/repository"
	"github.com/fairyhunter13/scalable-commerce-system/internal/stream"
	"github.com/fairyhunter13/scalable-commerce-system/pkg/database"
)

// The worker is the consumer half of the ranking pipeline: it folds the
// events relayed to the streaming bus into the per-day Redis sorted sets.
// Schema migrations are owned by the API binary; the worker assumes them.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	initLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database pool with retry (idempotency ledger and product prices)
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Unlike the API, the worker is useless without Redis: fail fast.
	redisClient, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	consumer, err := stream.NewConsumer(cfg.Kafka.BrokerList(), cfg.Kafka.GroupID,
		event.TopicOrderEvents, event.TopicLikeEvents, event.TopicProductEvents)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stream consumer")
	}

	scorer := ranking.NewScorer(
		consumer,
		repository.NewLedgerRepository(pool),
		repository.NewProductRepository(pool),
		cache.NewSortedSetStore(redisClient),
		time.Duration(cfg.Ranking.TTLHours)*time.Hour,
	)

	// Cancel the run context on SIGINT/SIGTERM; the scorer finishes the
	// batch in flight and returns.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	log.Info().Str("group_id", cfg.Kafka.GroupID).Msg("starting ranking worker")
	runErr := scorer.Run(ctx)

	consumer.Close()
	if err := redisClient.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing redis client")
	}
	pool.Close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatal().Err(runErr).Msg("scorer stopped with error")
	}
	log.Info().Msg("worker stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
