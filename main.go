package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"settlement-svc/cache"
	"settlement-svc/circuitbreaker"
	"settlement-svc/config"
	"settlement-svc/database"
	healthgrpc "settlement-svc/grpc"
	"settlement-svc/handlers"
	"settlement-svc/kafka"
	"settlement-svc/middleware"
	"settlement-svc/repository"
	"settlement-svc/settlement"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize database
	db, err := database.InitDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Initialize Redis cache
	redisClient, err := cache.InitRedis(cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Settlement engine
	calculator, err := settlement.NewCalculator(cfg.CommissionRates)
	if err != nil {
		logger.Fatal("Invalid commission rates", zap.Error(err))
	}
	verifier, err := settlement.NewVerifier(cfg.WebhookSecret)
	if err != nil {
		logger.Fatal("Invalid webhook secret", zap.Error(err))
	}

	store := repository.NewPostgresStore(db, logger)
	summaryCache := cache.NewSummaryCache(redisClient, cfg.Redis.SummaryTTL, logger)
	breaker := circuitbreaker.NewCircuitBreaker("kafka-settlement", 5, 30*time.Second, logger)
	publisher := kafka.NewSettlementPublisher(producer, cfg.Kafka.SettlementTopic, breaker, logger)
	recorder := middleware.PrometheusRecorder{}

	engine := settlement.NewEngine(store, calculator, settlement.EngineConfig{
		Location:      cfg.PayoutLocation,
		Apportionment: cfg.Apportionment,
		Publisher:     publisher,
		Cache:         summaryCache,
		Observer:      recorder,
	}, logger)
	dispatcher := settlement.NewDispatcher(verifier, engine, store, recorder, logger)

	// Optional replay of webhook bodies from Kafka
	ctx, cancel := context.WithCancel(context.Background())
	var consumer sarama.Consumer
	if cfg.Kafka.ReplayEnabled {
		consumer, err = kafka.InitConsumer(cfg.Kafka.Brokers, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
		}
		go func() {
			if err := kafka.StartReplayConsumer(ctx, consumer, cfg.Kafka.ReplayTopic, dispatcher, logger); err != nil {
				logger.Error("Kafka consumer error", zap.Error(err))
			}
		}()
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// Metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler())

	// Gateway webhooks
	webhookHandler := handlers.NewWebhookHandler(dispatcher, logger)
	router.POST("/webhooks/razorpay", webhookHandler.Razorpay)

	// Authenticated read endpoints
	payoutHandler := handlers.NewPayoutHandler(store, summaryCache, cfg.PayoutLocation, logger)
	refundHandler := handlers.NewRefundHandler(store, cfg.PayoutLocation, logger)
	authed := router.Group("/", middleware.JWTAuth([]byte(cfg.JWTSecret)))
	authed.GET("/payouts/summaries/:recipient_id", payoutHandler.GetSummaries)
	authed.GET("/payouts/summaries/:recipient_id/trend", payoutHandler.GetTrend)
	authed.POST("/refunds/quote", refundHandler.Quote)

	// Start REST server
	restSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Settlement Service REST API started", zap.String("port", cfg.HTTPPort))

	// Start gRPC health server
	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}
	healthServer := healthgrpc.NewHealthServer(cfg.ServiceName, logger)
	go func() {
		if err := healthServer.Serve(grpcListener); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()
	healthServer.SetServing(true)

	gracefulShutdown(restSrv, healthServer, cancel, consumer, producer, db, redisClient, shutdownTracing, logger)
}

// gracefulShutdown handles SIGINT/SIGTERM and shuts down all services gracefully
func gracefulShutdown(
	restSrv *http.Server,
	healthServer *healthgrpc.HealthServer,
	stopConsumer context.CancelFunc,
	consumer sarama.Consumer,
	producer sarama.SyncProducer,
	db *sql.DB,
	redisClient *redis.Client,
	shutdownTracing func(),
	logger *zap.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received. Exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop accepting webhooks first so in-flight settlements can finish
	if err := restSrv.Shutdown(ctx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("REST server stopped gracefully")
	}

	healthServer.GracefulStop()
	logger.Info("gRPC server stopped gracefully")

	stopConsumer()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("Failed to close Kafka consumer", zap.Error(err))
		}
	}
	if err := producer.Close(); err != nil {
		logger.Error("Failed to close Kafka producer", zap.Error(err))
	} else {
		logger.Info("Kafka producer closed gracefully")
	}

	// Close database
	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	} else {
		logger.Info("Database connection closed gracefully")
	}

	// Close Redis cache
	if err := redisClient.Close(); err != nil {
		logger.Error("Failed to close Redis cache", zap.Error(err))
	} else {
		logger.Info("Redis cache closed gracefully")
	}

	// Shutdown tracing
	shutdownTracing()
	logger.Info("Settlement Service exited gracefully")
}
