package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/api/handlers"
	"github.com/Naimur404/5str-backend-go/internal/api/middleware"
	"github.com/Naimur404/5str-backend-go/internal/api/routes"
	"github.com/Naimur404/5str-backend-go/internal/domain/analytics"
	"github.com/Naimur404/5str-backend-go/internal/domain/catalog"
	"github.com/Naimur404/5str-backend-go/internal/domain/events"
	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/Naimur404/5str-backend-go/internal/domain/recommendation"
	"github.com/Naimur404/5str-backend-go/internal/domain/scoring"
	"github.com/Naimur404/5str-backend-go/internal/infrastructure/cache"
	"github.com/Naimur404/5str-backend-go/internal/infrastructure/persistence/postgres/connection"
	"github.com/Naimur404/5str-backend-go/internal/infrastructure/persistence/postgres/migrations"
	"github.com/Naimur404/5str-backend-go/internal/infrastructure/scheduler"
	"github.com/Naimur404/5str-backend-go/pkg/broker"
	"github.com/Naimur404/5str-backend-go/pkg/config"
	"github.com/Naimur404/5str-backend-go/pkg/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Configuration loaded successfully")
	log.Info("Server mode: " + cfg.Server.Mode)

	// Set up Gin
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	gin.DefaultWriter = os.Stdout

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.NewMetricsMiddleware().CollectMetrics())
	corsConfig := cors.Config{
		AllowOrigins: cfg.CORS.AllowedOrigins,
		AllowMethods: cfg.CORS.AllowedMethods,
		AllowHeaders: append(cfg.CORS.AllowedHeaders,
			"Accept-Encoding",
			"Content-Encoding",
			"Content-Type",
		),
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Encoding",
			"Content-Type",
		},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// Connect to database
	db, err := connection.NewDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if err := migrations.AutoMigrate(db, log.Logger); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize Redis
	redisConfig := cache.NewConfigFromEnv(cfg)
	redisClient, err := cache.NewRedisClient(redisConfig)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize logrus logger for the task broker
	brokerLogger := logrus.New()
	brokerLogger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Server.Mode == "production" {
		brokerLogger.SetLevel(logrus.InfoLevel)
	} else {
		brokerLogger.SetLevel(logrus.DebugLevel)
	}

	// Initialize the task queue
	redisURL := fmt.Sprintf("redis://:%s@%s:%d/%d",
		cfg.Redis.Password, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.DB)
	taskQueue, err := broker.NewRedisTaskQueue(redisURL, 24*time.Hour, brokerLogger)
	if err != nil {
		log.Fatal("Failed to connect task queue", zap.Error(err))
	}
	defer taskQueue.Close()

	// Initialize repositories
	interactionRepo := interaction.NewRepository(db)
	catalogRepo := catalog.NewRepository(db)
	scoringRepo := scoring.NewRepository(db)
	analyticsRepo := analytics.NewRepository(db)

	// Initialize the scoring engine and services
	engine := scoring.NewEngine()
	interactionService := interaction.NewService(
		interactionRepo, catalogRepo, redisClient, taskQueue, cfg.Jobs, log.Logger)
	recommendationService := recommendation.NewService(
		interactionRepo, catalogRepo, scoringRepo, engine, redisClient, log.Logger)

	// Initialize background jobs
	similarityJob := scoring.NewSimilarityJob(engine, scoringRepo, interactionRepo, catalogRepo, log.Logger)
	trendingJob := scoring.NewTrendingJob(engine, scoringRepo, interactionRepo, redisClient, log.Logger)
	reportJob := analytics.NewReportJob(analyticsRepo, interactionRepo, scoringRepo, log.Logger)

	// Wire the queue worker
	worker := broker.NewWorker(taskQueue, cfg.Jobs.RetryBackoff, brokerLogger)
	interaction.NewTaskHandlers(interactionService, log.Logger).Register(worker)
	recommendation.NewTaskHandlers(recommendationService, log.Logger).Register(worker)
	worker.Register(broker.TaskComputeSimilarity, similarityJob.Handle, nil)
	worker.Register(broker.TaskComputeTrending, trendingJob.Handle, nil)
	worker.Register(broker.TaskAnalyticsReport, reportJob.Handle, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Start(ctx, cfg.Jobs.WorkerCount); err != nil {
		log.Fatal("Failed to start task worker", zap.Error(err))
	}
	defer worker.Stop()

	// Start the periodic scheduler
	jobScheduler := scheduler.NewScheduler(taskQueue, interactionRepo, log)
	jobScheduler.Start(ctx)
	log.Info("Job scheduler started successfully")

	// Log cross-node personalization events for visibility
	go func() {
		err := redisClient.SubscribeToProfileEvents(ctx, func(event *events.ProfileEvent) error {
			log.Debug("Personalization event received",
				zap.String("event_type", event.EventType),
				zap.String("user_id", event.UserID.String()))
			return nil
		})
		if err != nil && ctx.Err() == nil {
			log.Error("Profile event subscription ended", zap.Error(err))
		}
	}()

	// Initialize handlers
	interactionHandler := handlers.NewInteractionHandler(interactionService)
	recommendationHandler := handlers.NewRecommendationHandler(recommendationService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsRepo)

	// Register routes
	routes.SetupHealthRoutes(router, db, redisClient)
	routes.NewInteractionRoutes(interactionHandler).RegisterRoutes(router)
	routes.NewRecommendationRoutes(recommendationHandler, analyticsHandler).RegisterRoutes(router)
	log.Info("Routes registered")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		log.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}

	log.Info("Server stopped")
}
