// Package config loads environment-driven configuration for the server
// and worker binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures every tunable parameter for the dispatch engine
// processes. Values are loaded from environment variables with sane
// defaults so the binaries run locally without excessive setup.
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

	PGDSN string

	LogLevel      string
	RunMigrations bool

	// Matcher knobs (spec §4.4).
	ClusterRadiusKm    float64
	MaxPoolSize        int
	MatcherTimeoutMs   int
	DirectionThreshold float64

	// Concurrency mediator knobs (spec §4.5).
	LeaseTTL          time.Duration
	LeaseMaxRetries   int
	LeaseRetryBaseMs  int
	RetryBackoffBaseMs int
	RetryMaxAttempts  int

	// Dispatch service knobs (spec §4.6).
	PendingBatchLimit int
	FormingPoolMaxAge time.Duration

	// Pricing knobs (spec §4.2).
	DefaultWeather string

	// Worker ticker cadence.
	MatchCycleInterval    time.Duration
	SurgeRefreshInterval  time.Duration
	LeaseSweepInterval    time.Duration
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,

		KafkaTopic: "ride-pool-events",

		LogLevel: "info",

		ClusterRadiusKm:    5.0,
		MaxPoolSize:        4,
		MatcherTimeoutMs:   250,
		DirectionThreshold: 45.0,

		LeaseTTL:           30 * time.Second,
		LeaseMaxRetries:    3,
		LeaseRetryBaseMs:   50,
		RetryBackoffBaseMs: 100,
		RetryMaxAttempts:   3,

		PendingBatchLimit: 100,
		FormingPoolMaxAge: 10 * time.Minute,

		DefaultWeather: "clear",

		MatchCycleInterval:   5 * time.Second,
		SurgeRefreshInterval: 30 * time.Second,
		LeaseSweepInterval:   1 * time.Minute,
	}
}

// Load reads the environment into a Config, accumulating every parse
// error rather than failing on the first one.
func Load() (Config, error) {
	cfg := defaultConfig()
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

	cfg.PGDSN = os.Getenv("PG_DSN")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	setFloatFromEnv(&cfg.ClusterRadiusKm, "MATCHER_CLUSTER_RADIUS_KM", &errs)
	setIntFromEnv(&cfg.MaxPoolSize, "MATCHER_MAX_POOL_SIZE", &errs)
	setIntFromEnv(&cfg.MatcherTimeoutMs, "MATCHER_TIMEOUT_MS", &errs)
	setFloatFromEnv(&cfg.DirectionThreshold, "MATCHER_DIRECTION_THRESHOLD_DEG", &errs)

	setDurationFromEnv(&cfg.LeaseTTL, "LEASE_TTL", &errs)
	setIntFromEnv(&cfg.LeaseMaxRetries, "LEASE_MAX_RETRIES", &errs)
	setIntFromEnv(&cfg.LeaseRetryBaseMs, "LEASE_RETRY_BASE_MS", &errs)
	setIntFromEnv(&cfg.RetryBackoffBaseMs, "RETRY_BACKOFF_BASE_MS", &errs)
	setIntFromEnv(&cfg.RetryMaxAttempts, "RETRY_MAX_ATTEMPTS", &errs)

	setIntFromEnv(&cfg.PendingBatchLimit, "DISPATCH_PENDING_BATCH_LIMIT", &errs)
	setDurationFromEnv(&cfg.FormingPoolMaxAge, "DISPATCH_FORMING_POOL_MAX_AGE", &errs)

	setStringFromEnv(&cfg.DefaultWeather, "PRICING_DEFAULT_WEATHER")

	setDurationFromEnv(&cfg.MatchCycleInterval, "WORKER_MATCH_CYCLE_INTERVAL", &errs)
	setDurationFromEnv(&cfg.SurgeRefreshInterval, "WORKER_SURGE_REFRESH_INTERVAL", &errs)
	setDurationFromEnv(&cfg.LeaseSweepInterval, "WORKER_LEASE_SWEEP_INTERVAL", &errs)

	if cfg.MaxPoolSize <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_MAX_POOL_SIZE must be > 0"))
	}
	if cfg.LeaseMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("LEASE_MAX_RETRIES must be >= 0"))
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

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
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
