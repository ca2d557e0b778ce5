package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sifan077/shortener/config"
	"github.com/sifan077/shortener/internal/app/analytics"
	"github.com/sifan077/shortener/internal/app/cache"
	"github.com/sifan077/shortener/internal/app/ratelimit"
	"github.com/sifan077/shortener/internal/app/repository"
	"github.com/sifan077/shortener/internal/app/repository/memory"
	appserver "github.com/sifan077/shortener/internal/app/server"
	"github.com/sifan077/shortener/internal/app/service"
	"github.com/sifan077/shortener/internal/app/validator"
	"github.com/sifan077/shortener/internal/http/handler"
	"github.com/sifan077/shortener/internal/http/middleware"
	"github.com/sifan077/shortener/internal/infra/logger"
	infraNATS "github.com/sifan077/shortener/internal/infra/nats"
	infraPostgres "github.com/sifan077/shortener/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/shortener/internal/infra/prometheus"
	infraRedis "github.com/sifan077/shortener/internal/infra/redis"
)

const shutdownTimeout = 10 * time.Second

// storage is the set of repositories chosen by storage.driver.
type storage struct {
	urls       repository.URLMappingRepository
	clicks     repository.ClickEventRepository
	rateLimits repository.RateLimitRepository
	ping       func(ctx context.Context) error
	close      func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.MustInit(logger.ForApp(cfg.App))
	defer func() { _ = logger.Sync() }()

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("rate_limit_store", cfg.RateLimit.Store),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
		zap.Bool("analytics_async", cfg.Analytics.Async),
		zap.Bool("bloom_enabled", cfg.Cache.BloomEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.close()

	checks := []handler.HealthCheck{{Name: "database", Probe: store.ping}}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("Connected to Redis successfully", zap.String("addr", infraRedis.Addr(cfg.Redis)))

		checks = append(checks, handler.HealthCheck{Name: "cache", Probe: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
		if cfg.RateLimit.Store == config.RateLimitStoreRedis {
			store.rateLimits = repository.NewRedisRateLimitRepository(redisClient)
		}
	}

	var (
		natsConn *nats.Conn
		js       nats.JetStreamContext
	)
	if cfg.NATS.Enabled {
		natsConn, js, err = infraNATS.Connect(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()
		log.Info("Connected to NATS successfully")

		checks = append(checks, handler.HealthCheck{Name: "messaging", Probe: func(context.Context) error {
			return infraNATS.Status(natsConn)
		}})
	}

	var (
		metrics  *infraPrometheus.Metrics
		recorder service.Recorder
	)
	if cfg.Prometheus.Enabled {
		metrics = infraPrometheus.Default()
		recorder = metrics

		promServer := infraPrometheus.NewServer(cfg.Prometheus, nil)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	}

	limiterOpts, err := limiterOptions(cfg.RateLimit, metrics)
	if err != nil {
		log.Fatal("Invalid rate limit rules", zap.Error(err))
	}
	limiter := ratelimit.New(store.rateLimits, log, limiterOpts...)

	stats := analytics.NewService(analytics.Deps{
		URLs:   store.urls,
		Clicks: store.clicks,
		Logger: log,
	})

	tracker := service.InlineTracker(stats)
	if cfg.Analytics.Async {
		consumer := service.NewClickConsumer(js, tracker, recorder, log)
		if err := consumer.Start(ctx); err != nil {
			log.Fatal("Failed to start click consumer", zap.Error(err))
		}
		tracker = service.NewClickPublisher(js)
		log.Info("Click tracking runs through JetStream")
	}

	var bloom *cache.BloomFilter
	if cfg.Cache.BloomEnabled {
		bloom = cache.NewBloomFilter(cfg.Cache.BloomExpectedItems, cfg.Cache.BloomFalsePositiveRate)
		known, err := store.urls.ShortURLs(ctx)
		if err != nil {
			log.Fatal("Failed to seed bloom filter", zap.Error(err))
		}
		bloom.Seed(known)
		log.Info("Bloom filter seeded", zap.Int("short_urls", len(known)))
	}

	urls := service.NewURLService(service.URLServiceDeps{
		URLs: store.urls,
		Validator: validator.New(validator.Options{
			BlockedDomains: cfg.Validator.BlockedDomains,
			ProbeTimeout:   cfg.Validator.ProbeTimeout,
			Logger:         log,
		}),
		Limiter:           limiter,
		Tracker:           tracker,
		Bloom:             bloom,
		Metrics:           recorder,
		Logger:            log,
		BaseURL:           cfg.App.BaseURL,
		CheckAvailability: cfg.Validator.CheckAvailability,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:    log,
		URLs:      urls,
		Analytics: stats,
		Limiter:   limiter,
		Metrics:   metrics,
		Auth: middleware.IdentityConfig{
			Secret:      cfg.Auth.JWTSecret,
			Placeholder: cfg.Auth.PlaceholderIdentity,
		},
		HealthChecks: checks,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Fiber server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Starting HTTP server", zap.String("addr", cfg.App.Addr()))
	if err := server.Listen(cfg.App.Addr()); err != nil {
		log.Error("Fiber server exited", zap.Error(err))
	}
	log.Info("HTTP server stopped")
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		mem := memory.New()
		log.Warn("Using in-memory storage; data is lost on restart")
		return &storage{
			urls:       mem.URLs,
			clicks:     mem.Clicks,
			rateLimits: mem.RateLimits,
			ping:       mem.Ping,
			close:      func() {},
		}, nil
	}

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("open gorm connection: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("access underlying sql db: %w", err)
	}
	if err := infraPostgres.Migrate(ctx, gormDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect pgx pool: %w", err)
	}
	log.Info("Connected to Postgres successfully")

	return &storage{
		urls:       repository.NewURLMappingRepository(gormDB),
		clicks:     repository.NewClickEventRepository(gormDB),
		rateLimits: repository.NewRateLimitRepository(gormDB),
		ping:       pool.Ping,
		close: func() {
			pool.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

func limiterOptions(cfg config.RateLimitConfig, metrics *infraPrometheus.Metrics) ([]ratelimit.Option, error) {
	rules := make([]ratelimit.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		dim, err := ratelimit.ParseDimension(r.Dimension)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Endpoint, err)
		}
		if r.Endpoint == "" || r.RequestsPerWindow <= 0 || r.WindowSeconds <= 0 {
			return nil, fmt.Errorf("rule %q: endpoint, requests_per_window and window_seconds are required", r.Endpoint)
		}
		rules = append(rules, ratelimit.Rule{
			Endpoint:          r.Endpoint,
			RequestsPerWindow: r.RequestsPerWindow,
			WindowSeconds:     r.WindowSeconds,
			Dimension:         dim,
		})
	}

	opts := []ratelimit.Option{ratelimit.WithRules(rules...)}
	if metrics != nil {
		opts = append(opts, ratelimit.WithDenyHook(metrics.RateLimited))
	}
	return opts, nil
}
