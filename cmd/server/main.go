package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/httpapi"
	"github.com/example/ride-dispatch/internal/hub"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/registry"
	"github.com/example/ride-dispatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable ride store: Postgres when configured, in-memory otherwise.
	var rideStore storage.RideStore
	var userStore storage.UserStore
	var pg *storage.PostgresStore
	if cfg.PGDSN != "" {
		pg, err = storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if cfg.RunMigrations {
			runMigrations(pg, logger)
		}
		rideStore, userStore = pg, pg
	} else {
		mem := storage.NewMemoryStore()
		rideStore, userStore = mem, mem
		logger.Warn("no PG_DSN configured, rides are held in memory")
	}

	// Volatile store and event bus share one Redis client; without
	// Redis both fall back to their in-process implementations.
	var eventBus bus.Bus
	var volatile registry.Store
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		eventBus = bus.NewRedisBus(redisClient, logger)
		volatile = registry.NewRedisStore(redisClient)
	} else {
		eventBus = bus.NewMemoryBus()
		volatile = registry.NewMemoryVolatile(nil)
		logger.Warn("no REDIS_ADDR configured, volatile state is held in memory")
	}

	reg := registry.New(volatile, eventBus, registry.Config{
		LivenessTTL:    cfg.DriverLivenessTTL,
		Freshness:      cfg.LocationFreshness,
		CacheTTL:       cfg.NearbyCacheTTL,
		TrackRetention: cfg.TrackRetention,
	}, logger)

	rides := &lifecycle.Service{
		Store:     rideStore,
		Bus:       eventBus,
		Logger:    logger,
		BaseFare:  cfg.BaseFare,
		PerKmRate: cfg.PerKmRate,
	}
	if cfg.StripeAPIKey != "" {
		rides.Payments = payments.NewClient(cfg.StripeAPIKey)
	}

	var policy matcher.SelectionPolicy
	switch cfg.MatchPolicy {
	case "nearest":
		policy = matcher.NearestPolicy{Registry: reg, RadiusKm: cfg.NearbyRadius}
	default:
		policy = matcher.FixedPolicy{DriverID: cfg.MatchDriverID}
	}
	match := &matcher.Service{
		Rides:  rides,
		Policy: policy,
		Logger: logger,
	}
	if err := match.Run(ctx, eventBus); err != nil {
		logger.Error("matcher subscription failed", "error", err)
		os.Exit(1)
	}

	rooms := hub.New(logger)
	live := hub.NewLive(ctx, rooms, rides, reg, rideStore, logger)

	var kafka *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kafka = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
	}

	srv := httpapi.NewServer(httpapi.Options{
		Rides:    rides,
		Registry: reg,
		Live:     live,
		Auth:     auth.NewService(userStore, cfg.JWTSecret),
		Kafka:    kafka,
		Logger:   logger,
		Ready: func(r *http.Request) error {
			if redisClient != nil {
				return redisClient.Ping(r.Context()).Err()
			}
			return nil
		},
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("ride-dispatch stopped")
}

func runMigrations(pg *storage.PostgresStore, logger *slog.Logger) {
	path := filepath.Join("migrations", "001_create_schema.sql")
	b, err := os.ReadFile(path)
	if err != nil {
		logger.Error("migration read failed", "path", path, "error", err)
		return
	}
	start := time.Now()
	if _, err := pg.DB().Exec(string(b)); err != nil {
		logger.Error("migration exec failed", "path", path, "error", err)
		return
	}
	logger.Info("migration applied", "path", path, "took", time.Since(start).String())
}
