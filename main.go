// Package main provides the main entry point for the Postlane email dispatch system
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/postlane/postlane/app/adapters"
	"github.com/postlane/postlane/app/handlers"
	"github.com/postlane/postlane/app/middleware"
	"github.com/postlane/postlane/app/router"
	"github.com/postlane/postlane/app/scheduler"
	"github.com/postlane/postlane/app/services"
	businessflow "github.com/postlane/postlane/business_flow"
	"github.com/postlane/postlane/config"
	_ "github.com/postlane/postlane/docs"
	"github.com/postlane/postlane/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Postlane application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Initialize repositories
	tenantRepo := repository.NewTenantRepository(db)
	jobRepo := repository.NewEmailJobRepository(db)
	dedupRepo := repository.NewTriggerDedupRepository(db)
	flowRepo := repository.NewFlowRepository(db)
	audienceRepo := repository.NewAudienceRepository(db)
	memberRepo := repository.NewMemberRecordRepository(db)
	syncRepo := repository.NewSyncJobRepository(db)
	sentRepo := repository.NewSentEmailRepository(db)

	// Initialize token service
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// One shared limiter serializes every sink call across dispatch and sync.
	limiter := services.NewSinkRateLimiter(cfg.Sink.MinInterval)
	sink := services.NewResendClient(&cfg.Sink)

	// Initialize the worker pipeline
	metrics := scheduler.NewDispatchMetrics()
	dispatcher := scheduler.NewCampaignDispatcher(
		tenantRepo,
		dedupRepo,
		flowRepo,
		sentRepo,
		sink,
		limiter,
		cfg.Sink.CleanupDelay,
		log.Default(),
	)
	processor := scheduler.NewQueueProcessor(jobRepo, dispatcher, cfg.Worker, cfg.Logging, metrics)
	stopWorker := processor.Start(context.Background())
	stopFuncs = append(stopFuncs, stopWorker)

	tracker := scheduler.NewProgressTracker(syncRepo, rc, cfg.Cache.RedisPrefix, cfg.Cache.DefaultTTL, log.Default())

	// The member source is optional; without it bulk sync endpoints answer
	// SOURCE_NOT_CONFIGURED.
	var syncRunner businessflow.SyncRunner
	if cfg.Source.BaseURL != "" {
		source := services.NewMembershipClient(&cfg.Source)
		syncRunner = scheduler.NewBulkSyncStreamer(
			source,
			sink,
			limiter,
			memberRepo,
			audienceRepo,
			tracker,
			metrics,
			cfg.Source,
			log.Default(),
		)
	} else {
		log.Println("Member source not configured; bulk sync disabled")
	}

	// Initialize flows
	authFlow := businessflow.NewAuthFlow(tenantRepo, tokenService, log.Default())
	dispatchFlow := businessflow.NewDispatchFlow(
		jobRepo,
		tenantRepo,
		flowRepo,
		adapters.NewQueueRunnerAdapter(processor),
		db,
		log.Default(),
	)
	syncFlow := businessflow.NewSyncFlow(
		syncRepo,
		audienceRepo,
		tenantRepo,
		sink,
		limiter,
		syncRunner,
		tracker,
		log.Default(),
	)
	audienceFlow := businessflow.NewAudienceFlow(audienceRepo, memberRepo, sentRepo)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authFlow)
	dispatchHandler := handlers.NewDispatchHandler(dispatchFlow)
	syncHandler := handlers.NewSyncHandler(syncFlow)
	audienceHandler := handlers.NewAudienceHandler(audienceFlow)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Initialize router
	appRouter := router.NewFiberRouter(
		cfg,
		authHandler,
		dispatchHandler,
		syncHandler,
		audienceHandler,
		authMiddleware,
	)

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
