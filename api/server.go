package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"portsweep/config"
	_ "portsweep/docs"
	"portsweep/logging"
	"portsweep/scanner"
)

const shutdownTimeout = 10 * time.Second

// RouterOptions configures the middleware chain built by NewRouter.
type RouterOptions struct {
	// APIKey enables bearer authentication on /api/v1 when non-empty.
	APIKey string
	// RateLimiter is applied to /api/v1 when set.
	RateLimiter gin.HandlerFunc
	Logger      *slog.Logger
}

// NewRouter wires the scan handlers, health check and Swagger UI.
func NewRouter(server *Server, opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestIDMiddleware(), RequestLoggingMiddleware(logger), SecurityHeadersMiddleware())

	router.GET("/healthz", server.healthHandler)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	if opts.APIKey != "" {
		v1.Use(AuthMiddleware(opts.APIKey, logger))
	}
	if opts.RateLimiter != nil {
		v1.Use(opts.RateLimiter)
	}
	server.RegisterRoutes(v1)
	return router
}

// Run initializes dependencies and serves the API until ctx is cancelled.
// A nil logger uses the shared process logger.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.Logger()
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	store := NewRedisStore(redisClient)

	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	pool, err := StartWorkers(workerCtx, store, scanner.NewTCPProber(nil), cfg.Workers, logger)
	if err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	server := NewServer(store, ScanDefaults{
		Timeout:        cfg.DefaultTimeout,
		Concurrency:    cfg.DefaultConcurrency,
		MaxConcurrency: cfg.MaxConcurrency,
	}, logger)
	router := NewRouter(server, RouterOptions{
		APIKey:      cfg.APIKey,
		RateLimiter: RateLimitMiddleware(redisClient, cfg.RateLimit, cfg.RateWindow, logger),
		Logger:      logger,
	})
	if cfg.APIKey == "" {
		logger.Warn("API_KEY is empty, authentication disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting portsweep API server", "addr", cfg.ListenAddr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stopWorkers()
		pool.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	// In-flight scans are interrupted and requeued by their workers.
	stopWorkers()
	pool.Wait()
	logger.Info("API server stopped")
	return nil
}
