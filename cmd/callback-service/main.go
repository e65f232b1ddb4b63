package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/videoauto/mps-callback/internal/artifact"
	"github.com/videoauto/mps-callback/internal/callback/dispatch"
	"github.com/videoauto/mps-callback/internal/callback/enrich"
	"github.com/videoauto/mps-callback/internal/callback/event"
	"github.com/videoauto/mps-callback/internal/callback/handler"
	"github.com/videoauto/mps-callback/internal/callback/router"
	"github.com/videoauto/mps-callback/internal/callback/storage"
	"github.com/videoauto/mps-callback/internal/config"
	"github.com/videoauto/mps-callback/internal/events"
	"github.com/videoauto/mps-callback/internal/objectstore"
	"github.com/videoauto/mps-callback/internal/translate"
	"github.com/videoauto/mps-callback/shared/logger"
	"github.com/videoauto/mps-callback/shared/postgresql"
	"github.com/videoauto/mps-callback/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("CALLBACK_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/callback-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting callback service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	// Initialize the optional outcome-event feed
	var feed *events.Feed
	var rabbitPublisher *rabbitmq.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitPublisher, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitPublisher.Close()
		feed = events.NewFeed(rabbitPublisher, appLogger.Logger)

		appLogger.Info("RabbitMQ connection established")
	}

	// Result store gateway with its per-operation retry policy
	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger, storage.DefaultRetryPolicy)

	// Enrichment pipeline pieces
	fetcher := artifact.NewFetcher(&artifact.Config{
		Timeout: cfg.Artifact.RequestTimeout,
		MaxSize: cfg.Artifact.MaxSizeBytes,
	}, appLogger.Logger)

	translator := translate.NewClient(&translate.Config{
		Endpoint:       cfg.Translator.Endpoint,
		APIKey:         cfg.Translator.APIKey,
		Model:          cfg.Translator.Model,
		Timeout:        cfg.Translator.RequestTimeout,
		TargetLanguage: cfg.Translator.TargetLanguage,
	}, appLogger.Logger)

	publisher := objectstore.NewClient(&objectstore.Config{
		BaseURL:   cfg.ObjectStorage.BaseURL,
		AuthToken: cfg.ObjectStorage.AuthToken,
		Timeout:   cfg.ObjectStorage.RequestTimeout,
	}, appLogger.Logger)

	runner := enrich.NewRunner(fetcher, translator, publisher, store, appLogger.Logger)

	// Dispatcher context outlives server shutdown so in-flight tasks can
	// finish their writes during the drain window.
	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()

	dispatcher := dispatch.New(&dispatch.Config{
		Logger:         appLogger.Logger,
		Runner:         runner,
		Concurrency:    cfg.Enrichment.Concurrency,
		MaxAttempts:    cfg.Enrichment.MaxAttempts,
		RetryBaseDelay: cfg.Enrichment.RetryBaseDelay,
		Events:         eventSink(feed),
	})
	dispatcher.Start(dispatcherCtx)

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, store, dispatcher, feed)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Callback service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Stop accepting requests first, then drain the enrichment queue.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	drainTimeout := cfg.Enrichment.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()

	if err := dispatcher.Drain(drainCtx); err != nil {
		appLogger.Error("Dispatcher drain incomplete",
			slog.Any("error", err),
		)
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// eventSink converts a possibly-nil Feed into a dispatch.EventSink without
// producing a typed-nil interface.
func eventSink(feed *events.Feed) dispatch.EventSink {
	if feed == nil {
		return nil
	}
	return feed
}

// recordSink converts a possibly-nil Feed into a handler.RecordSink without
// producing a typed-nil interface.
func recordSink(feed *events.Feed) handler.RecordSink {
	if feed == nil {
		return nil
	}
	return feed
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ outcome-event publisher
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Publisher, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewPublisher(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, store *storage.Storage, dispatcher *dispatch.Dispatcher, feed *events.Feed) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:     logger,
		Normalizer: event.NewNormalizer(cfg.Artifact.BaseURL),
		Store:      store,
		Dispatcher: dispatcher,
		Events:     recordSink(feed),
	}

	return router.SetupRouter(handlerDeps)
}
