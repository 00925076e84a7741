package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricing-service/internal/audit"
	"pricing-service/internal/config"
	"pricing-service/internal/credentials"
	"pricing-service/internal/database"
	"pricing-service/internal/handlers"
	"pricing-service/internal/identity"
	"pricing-service/internal/provision"
	"pricing-service/internal/ratelimit"
	"pricing-service/internal/session"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting pricing service")

	// Load .env if present, then configuration
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if cfg.DevAuthBypass {
		logger.Warn("DEV_AUTH_BYPASS is enabled; every request carries the mock identity")
	}

	// Initialize database
	ctx := context.Background()
	repo, err := database.NewRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	// Rate limiter: in-process by default, shared Redis backend when
	// REDIS_URL is configured.
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.RateLimitMaxAttempts, cfg.RateLimitWindow, logger)
		if err != nil {
			logger.Fatal("Failed to initialize shared rate limiter", zap.Error(err))
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
		logger.Info("Using shared rate limiter", zap.String("backend", "redis"))
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitMaxAttempts, cfg.RateLimitWindow)
		logger.Info("Using in-process rate limiter; attempt windows are per instance")
	}

	auditLog := audit.NewZapLog(logger)

	// Auth core
	parser := identity.NewParser(cfg.DevAuthBypass, logger)
	sessions := session.NewService(
		cfg.SessionSigningSecret,
		cfg.TokenIssuer,
		cfg.AccessTokenExpiry,
		cfg.RefreshTokenExpiry,
		cfg.RememberMeExpiry,
		cfg.ClockSkewTolerance,
	)
	creds := credentials.NewStore(repo, auditLog, logger, cfg.BcryptCost, cfg.MaxLoginFailures, cfg.LockoutDuration)
	provisioner := provision.NewProvisioner(repo, auditLog, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(limiter, creds, sessions, auditLog, logger)
	roleHandler := handlers.NewRoleHandler(repo, auditLog, logger)

	router := SetupRouter(authHandler, roleHandler, parser, provisioner, sessions, logger)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
