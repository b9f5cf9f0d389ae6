/**
 * @description
 * This is the main entry point for the payout-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the Stripe client, the RabbitMQ producer, the repository, the
 * batch orchestrator, the cron scheduler, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for the batch run lock.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/stripeclient: Client for the Stripe API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 * - pkg/heartbeat: Client for the scheduler health monitor.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/consulto/payout-service/internal/api"
	"github.com/consulto/payout-service/internal/app"
	"github.com/consulto/payout-service/internal/config"
	"github.com/consulto/payout-service/internal/store"
	"github.com/consulto/payout-service/pkg/heartbeat"
	rmrabbit "github.com/consulto/payout-service/pkg/rabbitmq"
	"github.com/consulto/payout-service/pkg/stripeclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}
	if strings.TrimSpace(cfg.StripeSecretKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"stripe secret key must be configured\" env=STRIPE_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.SchedulerWebhookSecret) == "" {
		log.Println("level=warn component=bootstrap msg=\"scheduler webhook secret not configured; signature auth disabled\" env=SCHEDULER_WEBHOOK_SECRET")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	log.Printf("level=info component=bootstrap msg=\"starting payout-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Align pool sizing with the other platform services.
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for payout notifications. The engine
	// must keep moving money even when the broker is down, so a failed
	// connection degrades to a logging fallback instead of aborting boot.
	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the Stripe client.
	stripeClient := stripeclient.NewClient(cfg.StripeAPIBaseURL, cfg.StripeSecretKey)

	// The batch run lock is advisory. Without Redis, overlapping runs are
	// still safe thanks to transfer idempotency, so a missing or unreachable
	// Redis only costs duplicate-work protection.
	var runLock app.RunLock = app.NoopRunLock{}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; batch run lock disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; batch run lock disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; batch run lock disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				runLock = app.NewRedisRunLock(redisClient, cfg.RedisRunLockKey)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Wire the core application components.
	notifier := app.NewNotificationDispatcher(producer, cfg.PayoutEventExchange, logger)
	executor := app.NewExecutor(repository, stripeClient, notifier, logger)
	failures := app.NewFailureHandler(repository, notifier, cfg.MaxRetryCount, logger)
	heartbeatClient := heartbeat.NewClient(cfg.HeartbeatURL)
	orchestrator := app.NewOrchestrator(repository, executor, failures, runLock, heartbeatClient, logger, cfg)

	// Initialize the API handlers and router.
	handlers := api.NewPayoutHandlers(orchestrator, cfg.SchedulerWebhookSecret, cfg.InternalAPIKey)
	router := api.PayoutRoutes(handlers)

	// Start the cron scheduler for periodic payout runs.
	scheduler := app.NewScheduler(orchestrator, logger, cfg)
	scheduler.Start()

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	// Stop accepting new cron runs and wait for an in-flight run to finish.
	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
		log.Println("level=warn component=bootstrap msg=\"timed out waiting for in-flight payout run\"")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
