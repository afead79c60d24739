package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mehmetcc/lms/internal/auth"
	"github.com/mehmetcc/lms/internal/config"
	"github.com/mehmetcc/lms/internal/database"
	"github.com/mehmetcc/lms/internal/housekeeping"
	"github.com/mehmetcc/lms/internal/metrics"
	"github.com/mehmetcc/lms/internal/ratelimit"
	"github.com/mehmetcc/lms/internal/server"
	"github.com/mehmetcc/lms/internal/student"
	"github.com/mehmetcc/lms/internal/token"
	"github.com/mehmetcc/lms/internal/user"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// init logger
	logger, err := newLogger()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.LoadConfig(logger)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// storage: postgres when configured, in-memory fixtures otherwise
	var (
		db       *sql.DB
		users    user.CredentialStore
		students student.StudentRepo
	)
	if cfg.DbConfig.DSN != "" {
		db, err = database.Init(ctx, cfg.DbConfig)
		if err != nil {
			logger.Fatal("failed to initialize database", zap.Error(err))
		}

		if err := database.Migrate(ctx, db, logger); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		users = user.NewPostgresStore(db, logger)
		students = student.NewStudentRepo(db, logger)
	} else {
		if cfg.AppConfig.IsProduction() {
			logger.Fatal("failed to initialize database", zap.Error(database.ErrMissingDSN))
		}
		logger.Warn("POSTGRES_DSN not set, using in-memory stores")
		users = user.NewMemoryStore()
		students = student.NewMemoryRepo(student.DevRoster()...)
	}

	// shared rate limit counters
	var rdb *redis.Client
	if cfg.RedisConfig.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, rate limits fail open until it recovers", zap.Error(err))
		}
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())

	tokens, err := token.NewTokenService(logger, cfg.JWTConfig)
	if err != nil {
		logger.Fatal("failed to initialize token service", zap.Error(err))
	}
	authService, err := auth.NewAuthenticationService(users, tokens, cfg.JWTConfig, logger)
	if err != nil {
		logger.Fatal("failed to initialize auth service", zap.Error(err))
	}

	globalLimiter := ratelimit.Options{
		Name:    "global",
		Limit:   cfg.RateLimitConfig.MaxRequests,
		Window:  cfg.RateLimitConfig.Window,
		Message: ratelimit.GlobalMessage,
	}
	authLimiter := ratelimit.Options{
		Name:    "auth",
		Limit:   cfg.RateLimitConfig.AuthMaxRequests,
		Window:  cfg.RateLimitConfig.Window,
		Message: ratelimit.AuthMessage,
	}
	if rdb != nil {
		globalLimiter.Redis = rdb
		authLimiter.Redis = rdb
	}

	purger, err := housekeeping.NewPurger(users, cfg.HousekeepingConfig.ResetPurgeSchedule, logger, m)
	if err != nil {
		logger.Fatal("failed to schedule reset token purge", zap.Error(err))
	}
	purger.Start()

	router := server.NewRouter(server.Deps{
		Logger:         logger,
		AppConfig:      cfg.AppConfig,
		Metrics:        m,
		Middleware:     auth.NewMiddleware(tokens, logger, m),
		AuthHandler:    auth.NewAuthenticationHandler(authService, logger, m, cfg.AppConfig.BodyLimit),
		StudentHandler: student.NewStudentHandler(students, logger),
		GlobalLimiter:  ratelimit.NewLimiter(globalLimiter, logger, m),
		AuthLimiter:    ratelimit.NewLimiter(authLimiter, logger, m),
		Version:        version,
		StartedAt:      time.Now(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.AppConfig.Port,
		Handler:      router,
		ReadTimeout:  cfg.AppConfig.ReadTimeout,
		WriteTimeout: cfg.AppConfig.WriteTimeout,
		IdleTimeout:  cfg.AppConfig.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("application started",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.AppConfig.Env),
			zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server stopped unexpectedly", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppConfig.ShutdownTimeout)
	defer cancel()

	select {
	case <-purger.Stop().Done():
	case <-shutdownCtx.Done():
	}

	err = srv.Shutdown(shutdownCtx)
	if db != nil {
		err = multierr.Append(err, db.Close())
	}
	if rdb != nil {
		err = multierr.Append(err, rdb.Close())
	}
	if err != nil {
		logger.Error("unclean shutdown", zap.Error(err))
		return
	}
	logger.Info("application stopped")
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == config.EnvProduction {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
