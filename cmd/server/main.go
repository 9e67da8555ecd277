package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jihoonkang/account-api/internal/config"
	"github.com/jihoonkang/account-api/internal/handler"
	"github.com/jihoonkang/account-api/internal/lock"
	"github.com/jihoonkang/account-api/internal/middleware"
	"github.com/jihoonkang/account-api/internal/repository"
	"github.com/jihoonkang/account-api/internal/service"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialise logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		os.Exit(1)
	}

	db, err := connectDB(cfg)
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	locker, err := newAccountLocker(cfg, logger)
	if err != nil {
		logger.Error("failed to connect to redis", zap.Error(err))
		os.Exit(1)
	}

	validate := validator.New()

	ownerRepo := repository.NewOwnerRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	accountService := service.NewAccountService(db, ownerRepo, accountRepo, logger)
	transactionService := service.NewTransactionService(db, ownerRepo, accountRepo, transactionRepo, logger)

	accountHandler := handler.NewAccountHandler(accountService, validate, logger)
	transactionHandler := handler.NewTransactionHandler(transactionService, locker, validate, logger)

	router := mux.NewRouter()
	accountHandler.RegisterRoutes(router)
	transactionHandler.RegisterRoutes(router)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	}
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.RateLimit(limiter))

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}

func newLogger() (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	return zapCfg.Build()
}

// connectDB establishes a connection to the Postgres database
func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// newAccountLocker builds the Redis-backed per-account lock, or a no-op one
// when no Redis address is configured.
func newAccountLocker(cfg *config.Config, logger *zap.Logger) (lock.AccountLocker, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("no redis address configured, account locking disabled")
		return lock.NoopLocker{}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return lock.NewRedisAccountLock(
		client,
		time.Duration(cfg.LockTTLSeconds)*time.Second,
		time.Duration(cfg.LockWaitSeconds)*time.Second,
		logger,
	), nil
}
