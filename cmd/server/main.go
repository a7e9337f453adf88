// Package main runs the classroom polling server with WebSocket fan-out and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/archive"
	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/internal/session"
	"github.com/classpulse/backend/internal/snapshot"
	"github.com/classpulse/backend/internal/store"
	"github.com/classpulse/backend/pkg/database"
	"github.com/classpulse/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	// Archive database is optional; without DATABASE_URL the server runs
	// fully in-memory.
	var archiveRepo *archive.Repository
	if cfg.Database.URL != "" {
		ctx := context.Background()
		pool, err := database.NewPostgresPool(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		archiveRepo = archive.NewRepository(pool, logger)
	}

	st := store.New(logger)

	var sink session.ArchiveSink
	if archiveRepo != nil {
		sink = archiveRepo
	}
	sessions := session.NewManager(st, sink, logger)

	hub := realtime.NewHub(logger)
	orch := realtime.NewOrchestrator(st, sessions, hub, cfg.Poll, logger)

	snapshotHandler := snapshot.NewHandler(st, archiveRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Read-only snapshots
	api := router.Group("/api")
	{
		api.GET("/poll/state", snapshotHandler.PollState)
		api.GET("/poll/results", snapshotHandler.AllResults)
		api.GET("/students", snapshotHandler.Students)
		api.GET("/sessions/archive", snapshotHandler.ArchivedSessions)
	}

	// WebSocket
	router.GET("/ws", realtime.ServeWs(hub, orch, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
