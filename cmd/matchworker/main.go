// Command matchworker runs the periodic matching cycle, surge zone
// refresh and lease sweep tickers against a shared Postgres/Redis/Kafka
// backend, exposing health and metrics endpoints (spec §4.6 supplement).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pool-dispatch/internal/concurrency"
	"github.com/example/ride-pool-dispatch/internal/config"
	"github.com/example/ride-pool-dispatch/internal/dispatch"
	"github.com/example/ride-pool-dispatch/internal/events"
	"github.com/example/ride-pool-dispatch/internal/logging"
	"github.com/example/ride-pool-dispatch/internal/persistence"
	"github.com/example/ride-pool-dispatch/internal/pricing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

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
	}, "matchworker-"+hostname)
	if rc != nil {
		svc = svc.WithZoneCache(pricing.NewZoneCache(rc, 30*time.Second))
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if rc != nil {
				if err := rc.Ping(r.Context()).Err(); err != nil {
					http.Error(w, "redis not ready", http.StatusServiceUnavailable)
					return
				}
			}
			w.WriteHeader(200)
			_, _ = w.Write([]byte("ready"))
		})
		logger.Info("matchworker metrics/health listening", "addr", ":9090")
		if err := http.ListenAndServe(":9090", mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	matchTicker := time.NewTicker(cfg.MatchCycleInterval)
	surgeTicker := time.NewTicker(cfg.SurgeRefreshInterval)
	sweepTicker := time.NewTicker(cfg.LeaseSweepInterval)
	defer matchTicker.Stop()
	defer surgeTicker.Stop()
	defer sweepTicker.Stop()

	logger.Info("matchworker started",
		"match_cycle_interval", cfg.MatchCycleInterval,
		"surge_refresh_interval", cfg.SurgeRefreshInterval,
		"lease_sweep_interval", cfg.LeaseSweepInterval,
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down matchworker")
			return
		case <-matchTicker.C:
			result, err := svc.RunMatchingCycle(ctx)
			if err != nil {
				logger.Error("matching cycle failed", "error", err)
				continue
			}
			logger.Info("matching cycle complete",
				"pending_seen", result.PendingSeen,
				"proposed", result.Proposed,
				"committed", result.Committed,
				"failed", result.Failed,
			)
		case <-surgeTicker.C:
			updated, err := svc.RefreshSurgeZones(ctx)
			if err != nil {
				logger.Error("surge refresh failed", "error", err)
				continue
			}
			logger.Info("surge zones refreshed", "count", updated)
		case <-sweepTicker.C:
			swept, err := svc.SweepExpiredLeases(ctx)
			if err != nil {
				logger.Error("lease sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				logger.Info("expired leases swept", "count", swept)
			}
		}
	}
}
