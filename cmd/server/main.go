// Command server runs the HTTP API for the ride-pooling dispatch engine
// (spec §6).
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pool-dispatch/internal/concurrency"
	"github.com/example/ride-pool-dispatch/internal/config"
	"github.com/example/ride-pool-dispatch/internal/dispatch"
	"github.com/example/ride-pool-dispatch/internal/events"
	"github.com/example/ride-pool-dispatch/internal/httpapi"
	"github.com/example/ride-pool-dispatch/internal/logging"
	"github.com/example/ride-pool-dispatch/internal/persistence"
	"github.com/example/ride-pool-dispatch/internal/pricing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	if cfg.PGDSN != "" && cfg.RunMigrations {
		runMigrations(cfg.PGDSN, logger)
	}

	var rc *redis.Client
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}

	var store persistence.Store
	if cfg.PGDSN != "" {
		ps, err := persistence.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed, falling back to memory store", "error", err)
			store = persistence.NewMemoryStore()
		} else {
			store = ps
		}
	} else {
		store = persistence.NewMemoryStore()
	}

	var leases concurrency.LeaseStore
	if rc != nil {
		leases = concurrency.NewRedisLeaseStore(rc)
	} else {
		leases = concurrency.NewMemoryLeaseStore()
	}

	var publisher *events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer publisher.Close()
	}

	hostname, _ := os.Hostname()
	svc := dispatch.New(store, leases, publisher, logger, dispatch.Config{
		ClusterRadiusKm:     cfg.ClusterRadiusKm,
		MaxPoolSize:         cfg.MaxPoolSize,
		MatchTimeout:        time.Duration(cfg.MatcherTimeoutMs) * time.Millisecond,
		DirectionThreshold:  cfg.DirectionThreshold,
		LeaseTTL:            cfg.LeaseTTL,
		LeaseMaxRetries:     cfg.LeaseMaxRetries,
		LeaseRetryBaseDelay: time.Duration(cfg.LeaseRetryBaseMs) * time.Millisecond,
		PendingBatchLimit:   cfg.PendingBatchLimit,
		FormingPoolMaxAge:   cfg.FormingPoolMaxAge,
		DefaultWeather:      pricing.Weather(cfg.DefaultWeather),
	}, "server-"+hostname)
	if rc != nil {
		svc = svc.WithZoneCache(pricing.NewZoneCache(rc, 30*time.Second))
	}

	srv := httpapi.NewServer(svc, store, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-pool-dispatch server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func runMigrations(dsn string, logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()

	b, err := os.ReadFile(filepath.Join("migrations", "001_create_schema.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_schema.sql")
}
