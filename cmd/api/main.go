package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	_ "backoffice/api/swagger" // swagger docs
	"backoffice/internal/bubble"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/handler"
	"backoffice/internal/logger"
	"backoffice/internal/middleware"
	"backoffice/internal/migration"
	"backoffice/internal/progress"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Solar Back-office API
// @version         1.0
// @description     Mirrors the legacy Bubble app, runs the payment verification queue and repairs invoice data.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	activityLog, err := logger.NewActivityLog(cfg.Log.ActivityFile)
	if err != nil {
		log.Fatalf("Failed to open activity log: %v", err)
	}
	// job output lands in both the process log and the activity file
	jobLogger := logger.Tee(appLogger, activityLog)
	defer func() { _ = appLogger.Sync(); _ = activityLog.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Database connection failed", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		appLogger.Fatal("Failed to get sql.DB", zap.Error(err))
	}
	appLogger.Info("Connected to PostgreSQL successfully.")

	migrator, err := migration.New(sqlDB, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to prepare migrations", zap.Error(err))
	}
	if err := migrator.Up(); err != nil {
		appLogger.Fatal("Migrations failed", zap.Error(err))
	}

	// Set up dependencies (Repository -> Service -> Handler)
	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	submittedRepo := repository.NewSubmittedPaymentRepository(db)
	sedaRepo := repository.NewSedaRepository(db)
	refRepo := repository.NewReferenceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	runRepo := repository.NewSyncRunRepository(db)
	statsRepo := repository.NewStatisticsRepository(db)
	schemaRepo := repository.NewSchemaRepository(sqlx.NewDb(sqlDB, "postgres"), db)
	txManager := repository.NewTransactionManager(db)

	store, err := newStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open file store", zap.Error(err))
	}
	bubbleClient := bubble.NewClient(cfg.Bubble.BaseURL, cfg.Bubble.APIToken, cfg.Bubble.Timeout,
		bubble.WithPageSize(cfg.Bubble.PageSize),
		bubble.WithLogger(jobLogger),
	)

	loc := cfg.Location()
	statusService := service.NewInvoiceStatusService(invoiceRepo, paymentRepo, submittedRepo, sedaRepo, auditRepo, txManager, jobLogger)
	auditService := service.NewAuditService(auditRepo)
	paymentService := service.NewPaymentService(paymentRepo, submittedRepo, invoiceRepo, auditRepo, statusService, auditService,
		service.NewReceiptAnalyzer(cfg.Receipt), txManager, loc, jobLogger)
	invoiceService := service.NewInvoiceService(invoiceRepo, paymentRepo, submittedRepo, sedaRepo, refRepo, auditRepo, statusService, txManager, appLogger)
	linkRepair := service.NewLinkRepairService(sedaRepo, invoiceRepo, jobLogger)
	fileService := service.NewFileMigrationService(recordRepo, store, cfg.App.PublicBaseURL, cfg.Files.LegacyHosts, cfg.Files.DownloadTimeout, jobLogger)
	syncService := service.NewSyncService(bubbleClient, recordRepo, runRepo, linkRepair, fileService, jobLogger)
	dashboardService := service.NewDashboardService(statsRepo, submittedRepo, paymentRepo, runRepo, loc)
	schemaService := service.NewSchemaDocService(schemaRepo)

	// Progress fan-out: websocket/SSE hub, optionally shared across instances through redis
	hub := progress.NewHub(appLogger)
	go hub.Run(ctx)
	var publisher progress.Publisher = hub
	if cfg.Redis.Enabled {
		client, err := progress.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			appLogger.Fatal("Redis connection failed", zap.Error(err))
		}
		defer client.Close()
		relay := progress.NewRedisRelay(client, cfg.Redis.Channel, hub, appLogger)
		go func() {
			if err := relay.Run(ctx); err != nil {
				appLogger.Error("Redis relay stopped", zap.Error(err))
			}
		}()
		publisher = relay
	}
	tracker := progress.NewTracker(runRepo, publisher, jobLogger)
	jobs := handler.NewJobRunner(ctx, tracker, appLogger)
	auth := middleware.NewAuth(cfg.JWT.Secret)

	// Initialize Handlers
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, statusService, auditService, auth, jobs)
	paymentHandler := handler.NewPaymentHandler(paymentService, auth, jobs)
	syncHandler := handler.NewSyncHandler(syncService, linkRepair, fileService, runRepo, hub, auth, jobs, cfg.Log.ActivityFile, loc)
	schemaHandler := handler.NewSchemaHandler(schemaService, auth)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, auth)
	auditHandler := handler.NewAuditHandler(auditService, auth)
	fileHandler := handler.NewFileHandler(store)
	progressHandler := handler.NewProgressHandler(hub, auth, appLogger)

	// Set up Gin Router
	router := gin.New()
	router.Use(logger.Recovery(appLogger), logger.GinMiddleware(appLogger))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	// API Routing
	api := router.Group("")
	progressHandler.RegisterRoutes(api)
	fileHandler.RegisterRoutes(api)
	invoiceHandler.RegisterRoutes(api)
	paymentHandler.RegisterRoutes(api)
	syncHandler.RegisterRoutes(api)
	schemaHandler.RegisterRoutes(api)
	dashboardHandler.RegisterRoutes(api)
	auditHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		appLogger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Server shutdown failed", zap.Error(err))
	}
	jobs.Wait()
	if err := migrator.Close(); err != nil {
		appLogger.Warn("Failed to close migrator", zap.Error(err))
	}
}

func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Files.Driver == "s3" {
		return storage.NewS3Store(ctx, cfg.S3, storage.WithS3Logger(log))
	}
	return storage.NewLocalStore(cfg.Files.RootDir, log)
}
