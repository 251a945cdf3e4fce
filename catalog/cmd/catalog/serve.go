package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/storefront-systems/storefront-stack/catalog/internal/config"
	"github.com/storefront-systems/storefront-stack/catalog/internal/consumer"
	"github.com/storefront-systems/storefront-stack/catalog/internal/dispatch"
	"github.com/storefront-systems/storefront-stack/catalog/internal/dlq"
	"github.com/storefront-systems/storefront-stack/catalog/internal/handlers"
	"github.com/storefront-systems/storefront-stack/catalog/internal/idempotency"
	"github.com/storefront-systems/storefront-stack/catalog/internal/inventory"
	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
	"github.com/storefront-systems/storefront-stack/catalog/internal/outbox"
	"github.com/storefront-systems/storefront-stack/catalog/internal/repository"
	"github.com/storefront-systems/storefront-stack/catalog/internal/search"
	"github.com/storefront-systems/storefront-stack/common/logging"
	"github.com/storefront-systems/storefront-stack/common/messaging/nats"
)

var runMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog worker service",
	Long: `Starts the outbox relay, the change-envelope consumer and the
metrics endpoint, and blocks until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&runMigrations, "migrate", false, "run database migrations before starting")
	rootCmd.AddCommand(serveCmd)
}

// relayPublisher adapts the JetStream client to the relay's publisher.
type relayPublisher struct {
	js *nats.JetStreamClient
}

func (p relayPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.js.PublishSync(ctx, subject, data)
	return err
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(parseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("catalog"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runMigrations {
		m, err := migrate.New("file://"+migrationsPath, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to initialize migrations: %w", err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		m.Close()
		logger.InfoContext(ctx, "database migrations completed")
	}

	// PostgreSQL
	pool, err := repository.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	guard := idempotency.NewRedisGuard(redisClient, cfg.Consumer.DedupTTL)

	// NATS JetStream
	natsCfg := nats.DefaultConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.Name = "catalog"

	js, err := nats.NewJetStreamClient(natsCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	defer js.Close()

	if _, err := js.CreateOrUpdateStream(ctx, nats.CatalogEventsStream); err != nil {
		return fmt.Errorf("failed to ensure events stream: %w", err)
	}

	deadLetters, err := dlq.NewJetStreamQueue(ctx, js, logger)
	if err != nil {
		return fmt.Errorf("failed to ensure dead-letter stream: %w", err)
	}

	// OpenSearch
	osClient, err := search.NewOpenSearchClient(search.Config{
		URL:      cfg.OpenSearch.URL,
		Username: cfg.OpenSearch.Username,
		Password: cfg.OpenSearch.Password,
		Insecure: cfg.OpenSearch.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}

	indexer := search.NewProductIndexer(osClient)
	if err := indexer.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to ensure product index: %w", err)
	}

	// Handler registry
	counter := inventory.NewPostgresCounter(pool)

	registry := dispatch.NewRegistry()
	searchHandler := handlers.NewSearchIndexHandler(indexer, logger)
	cacheHandler := handlers.NewCouponCacheHandler(redisClient, logger)
	rollbackHandler := handlers.NewRollbackHandler(counter, guard, logger)

	for eventType, h := range map[models.EventType]dispatch.Handler{
		models.EventProductCreated:              searchHandler,
		models.EventProductUpdated:              searchHandler,
		models.EventProductDeleted:              searchHandler,
		models.EventCouponCreated:               cacheHandler,
		models.EventCouponDeleted:               cacheHandler,
		models.EventInventoryCreatedRollbackSKU: rollbackHandler,
	} {
		if err := registry.Register(eventType, h); err != nil {
			return fmt.Errorf("failed to register handler: %w", err)
		}
	}

	dispatcher := dispatch.New(dispatch.Config{
		Registry:       registry,
		Guard:          guard,
		DLQ:            deadLetters,
		HandlerTimeout: cfg.Consumer.HandlerTimeout,
		Logger:         logger,
	})

	// Consumer
	cons := consumer.New(js, dispatcher, deadLetters, consumer.Config{
		Name:       cfg.Consumer.Name,
		RetryDelay: cfg.Consumer.RetryDelay,
		MaxDeliver: cfg.Consumer.MaxDeliver,
	}, logger)

	if err := cons.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer cons.Stop()

	// Outbox relay
	relay := outbox.NewRelay(pool, relayPublisher{js: js}, outbox.RelayConfig{
		BatchSize: cfg.Relay.BatchSize,
		Interval:  cfg.Relay.Interval,
		Database:  cfg.Database.Name,
	}, logger)

	go relay.Run(ctx)

	// HTTP: metrics and health only; the service's API is the message bus.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.InfoContext(ctx, "catalog service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "http server error", logging.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.InfoContext(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "http shutdown failed", logging.Error(err))
	}

	logger.InfoContext(context.Background(), "stopped")
	return nil
}
