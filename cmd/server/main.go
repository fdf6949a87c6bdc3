package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fileshare-gateway/internal/auth"
	"github.com/fileshare-gateway/internal/config"
	"github.com/fileshare-gateway/internal/directory"
	"github.com/fileshare-gateway/internal/lock"
	"github.com/fileshare-gateway/internal/middleware"
	"github.com/fileshare-gateway/internal/notify"
	"github.com/fileshare-gateway/internal/sharing"
	"github.com/fileshare-gateway/internal/storage"
	"github.com/fileshare-gateway/internal/watermark"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})

	driver, dsn := databaseTarget(cfg)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Infof("Connected to %s database", driver)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	var locker lock.Locker = lock.NewMemoryLocker()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warnf("Redis unavailable, falling back to in-process locks: %v", err)
	} else {
		locker = lock.NewRedisLocker(rdb, "fileshare:lock:")
		logger.Info("Connected to Redis")
	}

	ctx := context.Background()

	repo := sharing.NewRepository(db, driver)
	if err := repo.Initialize(ctx); err != nil {
		logger.Fatalf("Failed to initialize sharing schema: %v", err)
	}

	dir := directory.NewService(db, driver, cfg.Sharing.AllowPublicFiles)
	if err := dir.Initialize(ctx); err != nil {
		logger.Fatalf("Failed to initialize directory schema: %v", err)
	}

	storageService, err := storage.NewService(cfg)
	if err != nil {
		logger.Fatalf("Failed to create storage service: %v", err)
	}
	if err := storageService.EnsureBuckets(ctx); err != nil {
		logger.Warnf("Bucket check failed: %v", err)
	}
	logger.Info("Storage service initialized")

	mailer := notify.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username,
		cfg.SMTP.Password, cfg.SMTP.From)

	clock := sharing.RealClock{}
	sharingService := sharing.NewService(repo, dir, mailer, locker, clock, logger,
		cfg.Sharing.PortalURL)
	sweeper := sharing.NewSweeper(repo, clock, logger)
	renderer := watermark.NewRenderer(cfg.Watermark.MaxPages, cfg.Watermark.MaxBytes)
	authService := auth.NewService(dir, cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)

	// The sweeper itself holds no timer; the host schedules it.
	sweepStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Sharing.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepStop:
				return
			case <-ticker.C:
				if err := sweeper.Sweep(context.Background()); err != nil {
					logger.WithError(err).Error("expiry sweep failed")
				}
			}
		}
	}()
	if err := sweeper.Sweep(ctx); err != nil {
		logger.WithError(err).Error("startup expiry sweep failed")
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	router.POST("/api/auth/login", handleLogin(authService))

	shareGroup := router.Group("/api/shares")
	{
		shareGroup.POST("", handleSaveShare(sharingService))
		shareGroup.GET("/:id", handleGetShare(sharingService))
		shareGroup.POST("/:id/submit", handleSubmitShare(sharingService))
		shareGroup.POST("/:id/cancel", handleCancelShare(sharingService))
	}
	router.GET("/api/files", handleListSharableFiles(sharingService))

	viewGroup := router.Group("/api")
	viewGroup.Use(middleware.AuthMiddleware(authService))
	{
		viewGroup.POST("/views/:itemID", handleRecordView(sharingService))
		viewGroup.GET("/render", handleRender(sharingService, storageService, renderer))
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:           addr,
		Handler:        router,
		ReadTimeout:    5 * time.Minute,
		WriteTimeout:   5 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	close(sweepStop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func databaseTarget(cfg *config.Config) (driver, dsn string) {
	if cfg.Database.Type == "postgres" {
		return "postgres", cfg.Database.Postgres.DSN()
	}
	return "sqlite3", cfg.Database.SQLite.Path
}
