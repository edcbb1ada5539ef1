package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/registry"
)

// locationd drains the driver-location Kafka topic into the geo
// registry so positions reported through the ingest side channel are
// visible to proximity queries alongside direct HTTP reports.

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "locationd_messages_consumed_total",
		Help: "Total driver location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "locationd_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	registryUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "locationd_registry_updates_total",
		Help: "Total successful registry updates",
	})
	registryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "locationd_registry_errors_total",
		Help: "Total registry update failures",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, registryUpdates, registryErrors)
}

// LocationSink is the slice of the registry this worker writes to.
type LocationSink interface {
	ReportLocation(ctx context.Context, driverID string, lat, lng float64) (models.DriverLocation, error)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.Load()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rc := redis.NewClient(&redis.Options{Addr: redisAddr, Password: cfg.RedisPassword})
	reg := registry.New(registry.NewRedisStore(rc), bus.NewRedisBus(rc, logger), registry.Config{
		LivenessTTL:    cfg.DriverLivenessTTL,
		Freshness:      cfg.LocationFreshness,
		CacheTTL:       cfg.NearbyCacheTTL,
		TrackRetention: cfg.TrackRetention,
	}, logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("locationd consuming", "topic", cfg.KafkaTopic, "brokers", brokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down locationd")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff.String())
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		var loc models.DriverLocation
		if err := json.Unmarshal(m.Value, &loc); err != nil || loc.DriverID == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid location message", "error", err)
			continue
		}
		if err := storeWithRetry(ctx, reg, loc, 3, 200*time.Millisecond); err != nil {
			registryErrors.Inc()
			logger.Warn("registry update failed", "driver_id", loc.DriverID, "error", err)
			continue
		}
		registryUpdates.Inc()
	}
}

// storeWithRetry writes one location into the sink with exponential
// backoff between attempts.
func storeWithRetry(ctx context.Context, sink LocationSink, loc models.DriverLocation, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if _, err = sink.ReportLocation(ctx, loc.DriverID, loc.Lat, loc.Lng); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
