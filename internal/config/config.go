package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures all tunable parameters for the dispatch process.
// Values are primarily loaded from environment variables with sane
// defaults so the binary can run locally without excessive setup.
type Config struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	PGDSN string

	// DriverLivenessTTL bounds active-set membership; LocationFreshness
	// bounds direct single-driver reads. The two windows are distinct
	// on purpose and must not be merged.
	DriverLivenessTTL time.Duration
	LocationFreshness time.Duration
	NearbyCacheTTL    time.Duration
	TrackRetention    time.Duration

	BaseFare  float64
	PerKmRate float64

	// MatchPolicy selects the driver-assignment strategy: "fixed"
	// assigns MatchDriverID to every ride, "nearest" picks the closest
	// live driver within NearbyRadius km.
	MatchPolicy   string
	MatchDriverID string
	NearbyRadius  float64

	JWTSecret    string
	StripeAPIKey string

	LogLevel      string
	RunMigrations bool
}

func defaults() Config {
	return Config{
		HTTPAddr:          ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		KafkaTopic:        "driver-locations",
		KafkaGroup:        "ride-dispatch-locationd",
		DriverLivenessTTL: 15 * time.Second,
		LocationFreshness: 10 * time.Second,
		NearbyCacheTTL:    10 * time.Second,
		TrackRetention:    time.Hour,
		BaseFare:          1.0,
		PerKmRate:         0.5,
		MatchPolicy:       "fixed",
		MatchDriverID:     "00000000-0000-0000-0000-000000000001",
		NearbyRadius:      5,
		LogLevel:          "info",
	}
}

func Load() (Config, error) {
	cfg := defaults()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setDurationFromEnv(&cfg.DriverLivenessTTL, "DRIVER_LIVENESS_TTL", &errs)
	setDurationFromEnv(&cfg.LocationFreshness, "LOCATION_FRESHNESS", &errs)
	setDurationFromEnv(&cfg.NearbyCacheTTL, "NEARBY_CACHE_TTL", &errs)
	setDurationFromEnv(&cfg.TrackRetention, "TRACK_RETENTION", &errs)

	setFloatFromEnv(&cfg.BaseFare, "FARE_BASE", &errs)
	setFloatFromEnv(&cfg.PerKmRate, "FARE_PER_KM", &errs)

	setStringFromEnv(&cfg.MatchPolicy, "MATCH_POLICY")
	cfg.MatchPolicy = strings.ToLower(cfg.MatchPolicy)
	setStringFromEnv(&cfg.MatchDriverID, "MATCH_DRIVER_ID")
	setFloatFromEnv(&cfg.NearbyRadius, "MATCH_NEARBY_RADIUS_KM", &errs)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.DriverLivenessTTL <= 0 {
		errs = append(errs, fmt.Errorf("DRIVER_LIVENESS_TTL must be > 0"))
	}
	if cfg.NearbyCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("NEARBY_CACHE_TTL must be > 0"))
	}
	if cfg.MatchPolicy != "fixed" && cfg.MatchPolicy != "nearest" {
		errs = append(errs, fmt.Errorf("MATCH_POLICY must be fixed or nearest, got %q", cfg.MatchPolicy))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
