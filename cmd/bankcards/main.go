package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/bankcards-api/internal/config"
	"github.com/boddenberg/bankcards-api/internal/domain"
	"github.com/boddenberg/bankcards-api/internal/handler"
	"github.com/boddenberg/bankcards-api/internal/infra/cache"
	"github.com/boddenberg/bankcards-api/internal/infra/memory"
	"github.com/boddenberg/bankcards-api/internal/infra/observability"
	"github.com/boddenberg/bankcards-api/internal/infra/postgres"
	"github.com/boddenberg/bankcards-api/internal/infra/resilience"
	"github.com/boddenberg/bankcards-api/internal/port"
	"github.com/boddenberg/bankcards-api/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "bankcards-api"

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, serviceName)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.String("card_expiry_schedule", cfg.CardExpirySchedule),
		zap.Bool("trust_proxy_headers", cfg.TrustProxyHeaders),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	store, closeStore, err := openStore(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	healthChecks := []handler.HealthCheck{{Name: cfg.StoreBackend, Ping: store.Ping}}

	// --- Cache ---
	var principals port.Cache[domain.Principal]
	switch cfg.CacheBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		rc := cache.NewRedis[domain.Principal](rdb, "bankcards:principal:", cfg.CacheTTL, logger)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		principals = rc
		healthChecks = append(healthChecks, handler.HealthCheck{Name: "redis", Ping: rc.Ping})
		logger.Info("using redis principal cache", zap.String("addr", cfg.RedisAddr))
	default:
		mc := cache.New[domain.Principal](cfg.CacheTTL)
		defer mc.Close()
		principals = mc
	}

	// --- Services ---
	cardSvc := service.NewCardService(store, metrics, logger)
	userSvc := service.NewUserService(store, principals, logger)
	authSvc := service.NewAuthService(store, principals, cfg.JWTSecret, cfg.JWTAccessTTL, metrics, logger)

	if cfg.AdminName != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return err
		}
	}

	// --- Jobs ---
	expiry := service.NewCardExpiryJob(store, metrics, logger)
	if _, err := expiry.RunOnce(ctx); err != nil {
		logger.Warn("initial card expiry run failed", zap.Error(err))
	}
	if err := expiry.Start(cfg.CardExpirySchedule); err != nil {
		return err
	}

	// --- Router ---
	var authLimiter *handler.RateLimiter
	if cfg.AuthRateLimitRPS > 0 {
		authLimiter = handler.NewRateLimiter(cfg.AuthRateLimitRPS, cfg.AuthRateLimitBurst, 3*time.Minute)
		defer authLimiter.Close()
	}

	router := handler.NewRouter(handler.Services{
		Cards: cardSvc,
		Users: userSvc,
		Auth:  authSvc,
	}, metrics, handler.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HealthChecks:       healthChecks,
		AuthRateLimiter:    authLimiter,
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
	}, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// --- Graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		<-expiry.Stop().Done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openStore builds the configured datastore and returns a function releasing it.
func openStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (port.Store, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		if cfg.RunMigrations {
			if err := postgres.RunMigrations(db); err != nil {
				db.Close()
				return nil, nil, err
			}
			logger.Info("database migrations applied")
		}

		store := postgres.NewStore(db, resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxConcurrency: cfg.MaxConcurrency,
		}, metrics, logger)
		logger.Info("using postgres store")
		return store, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q (want postgres or memory)", cfg.StoreBackend)
	}
}
