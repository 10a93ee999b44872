// Package dispatch orchestrates the passenger request lifecycle: intake,
// matching cycles, and cancellation, wiring together the matcher, route
// planner, pricing engine, concurrency mediator and persistence layer
// (spec §4.6).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-pool-dispatch/internal/concurrency"
	"github.com/example/ride-pool-dispatch/internal/events"
	"github.com/example/ride-pool-dispatch/internal/geometry"
	"github.com/example/ride-pool-dispatch/internal/matcher"
	"github.com/example/ride-pool-dispatch/internal/models"
	"github.com/example/ride-pool-dispatch/internal/observability"
	"github.com/example/ride-pool-dispatch/internal/persistence"
	"github.com/example/ride-pool-dispatch/internal/pricing"
)

// ErrNoLongerPending is returned by CancelRequest when the passenger is
// neither pending nor matched (in transit, completed or already
// cancelled) and so can no longer be cancelled.
var ErrNoLongerPending = errors.New("dispatch: passenger no longer pending")

// Config bundles the tunables the dispatch service consults.
type Config struct {
	ClusterRadiusKm    float64
	MaxPoolSize        int
	MatchTimeout       time.Duration
	DirectionThreshold float64

	LeaseTTL           time.Duration
	LeaseMaxRetries    int
	LeaseRetryBaseDelay time.Duration

	PendingBatchLimit int
	FormingPoolMaxAge time.Duration

	DefaultWeather pricing.Weather
}

func (c Config) matcherConfig(now func() time.Time) matcher.Config {
	return matcher.Config{
		ClusterRadiusKm:    c.ClusterRadiusKm,
		MaxPoolSize:        c.MaxPoolSize,
		TimeoutBudget:      c.MatchTimeout,
		DirectionThreshold: c.DirectionThreshold,
		Now:                now,
		Weather:            c.DefaultWeather,
	}
}

// Service is the dispatch orchestrator.
type Service struct {
	store      persistence.Store
	leases     concurrency.LeaseStore
	publisher  *events.Publisher
	zoneCache  *pricing.ZoneCache
	log        *slog.Logger
	cfg        Config
	holderID   string
	now        func() time.Time
	newID      func() string
}

// New builds a dispatch Service. holderID identifies this process as a
// lease holder (spec §4.5) — typically a hostname or pod name.
func New(store persistence.Store, leases concurrency.LeaseStore, publisher *events.Publisher, log *slog.Logger, cfg Config, holderID string) *Service {
	return &Service{
		store:     store,
		leases:    leases,
		publisher: publisher,
		log:       log,
		cfg:       cfg,
		holderID:  holderID,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// WithZoneCache attaches a write-through surge-zone cache; nil-safe and
// optional (spec §9 design note).
func (s *Service) WithZoneCache(c *pricing.ZoneCache) *Service {
	s.zoneCache = c
	return s
}

// CreateRequest implements spec §4.6's intake path: validate, price an
// estimate, persist as pending, publish an event. The returned Breakdown
// is the solo-ride quote at request time; it is advisory only and is not
// what gets persisted as the passenger's base fare once pooled.
func (s *Service) CreateRequest(ctx context.Context, req NewRequest) (models.Passenger, pricing.Breakdown, error) {
	if req.SeatsRequired <= 0 {
		return models.Passenger{}, pricing.Breakdown{}, fmt.Errorf("dispatch: seats_required must be > 0")
	}
	if _, ok := models.SmallestVehicleFor(req.SeatsRequired, req.LuggageCount); !ok {
		return models.Passenger{}, pricing.Breakdown{}, fmt.Errorf("dispatch: no vehicle class accommodates %d seats / %d luggage", req.SeatsRequired, req.LuggageCount)
	}

	distanceKm := geometry.Distance(req.Pickup, req.Dropoff)
	timeMin := geometry.TravelTime(distanceKm)

	class, _ := models.SmallestVehicleFor(req.SeatsRequired, req.LuggageCount)
	zone, hasZone := s.lookupZone(ctx, req.Pickup)
	var zoneSnapshot *pricing.ZoneSnapshot
	if hasZone {
		zoneSnapshot = snapshotOfZone(zone)
	}
	weather := s.cfg.DefaultWeather
	if weather == "" {
		weather = pricing.WeatherClear
	}
	breakdown := pricing.Price(pricing.Factors{
		Class:      class.Class,
		DistanceKm: distanceKm,
		TimeMin:    timeMin,
		PoolSize:   1,
		DetourMin:  0,
		Zone:       zoneSnapshot,
		LocalTime:  s.now(),
		Weather:    weather,
	})

	passenger := models.Passenger{
		ID:               s.newID(),
		UserID:           req.UserID,
		Pickup:           req.Pickup,
		Dropoff:          req.Dropoff,
		LuggageCount:     req.LuggageCount,
		SeatsRequired:    req.SeatsRequired,
		MaxDetourMinutes: req.MaxDetourMinutes,
		State:            models.PassengerPending,
		BaseFare:         breakdown.Base,
		SurgeMultiplier:  breakdown.Surge,
		RequestedAt:      s.now(),
	}

	if err := s.store.InsertPassenger(ctx, passenger); err != nil {
		return models.Passenger{}, pricing.Breakdown{}, fmt.Errorf("dispatch: insert passenger: %w", err)
	}

	if hasZone {
		zone.ActiveRequests++
		if err := s.store.UpdateSurgeZone(ctx, zone); err != nil {
			s.log.Warn("dispatch: failed to bump zone active requests", "zone_id", zone.ID, "error", err)
		} else {
			s.zoneCache.Put(ctx, zone)
		}
	}

	observability.RequestsCreatedTotal.Inc()
	s.publisher.Publish(ctx, passenger.ID, events.RequestCreated, events.RequestCreatedPayload{
		PassengerID: passenger.ID,
		UserID:      passenger.UserID,
		SeatsNeeded: passenger.SeatsRequired,
		BaseFare:    passenger.BaseFare,
	})

	return passenger, breakdown, nil
}

// NewRequest is CreateRequest's input.
type NewRequest struct {
	UserID           string
	Pickup           models.Coord
	Dropoff          models.Coord
	SeatsRequired    int
	LuggageCount     int
	MaxDetourMinutes float64
}

// CancelResult is CancelRequest's outcome.
type CancelResult struct {
	PassengerID   string
	RefundAmount  float64
}

// CancelRequest implements spec §4.6's cancellation path. A pending
// passenger is cancelled directly. A matched passenger requires the
// pool's lease: the pool is mutated (passenger removed, capacity
// released, waypoints dropped) under lease, and the pool is deleted if
// it would otherwise become empty.
//
// TODO: refund computation is undefined (spec's cancellation refund open
// question) — RefundAmount is always 0 rather than guessed.
func (s *Service) CancelRequest(ctx context.Context, passengerID, reason string) (CancelResult, error) {
	passenger, err := s.store.GetPassenger(ctx, passengerID)
	if err != nil {
		return CancelResult{}, err
	}

	switch passenger.State {
	case models.PassengerPending:
		if err := s.cancelPending(ctx, passenger, reason); err != nil {
			return CancelResult{}, err
		}
	case models.PassengerMatched:
		if err := s.cancelMatched(ctx, passenger, reason); err != nil {
			return CancelResult{}, err
		}
	default:
		return CancelResult{}, ErrNoLongerPending
	}
	return CancelResult{PassengerID: passengerID, RefundAmount: 0}, nil
}

func (s *Service) cancelPending(ctx context.Context, p models.Passenger, reason string) error {
	now := s.now()
	p.State = models.PassengerCancelled
	p.CancelledAt = &now
	p.CancellationReason = reason
	if err := s.store.UpdatePassengerState(ctx, p); err != nil {
		return fmt.Errorf("dispatch: cancel pending passenger: %w", err)
	}
	observability.RequestsCancelledTotal.WithLabelValues("pending").Inc()
	s.publisher.Publish(ctx, p.ID, events.RequestCancelled, events.RequestCancelledPayload{PassengerID: p.ID, Reason: reason})
	return nil
}

func (s *Service) cancelMatched(ctx context.Context, p models.Passenger, reason string) error {
	if p.PoolID == nil {
		return fmt.Errorf("dispatch: matched passenger %s has no pool id", p.ID)
	}
	poolID := *p.PoolID

	_, err := concurrency.WithLease(ctx, s.leases, poolID, s.holderID, concurrency.WithLeaseOptions{
		TTL:            s.cfg.LeaseTTL,
		MaxRetries:     s.cfg.LeaseMaxRetries,
		RetryBaseDelay: s.cfg.LeaseRetryBaseDelay,
	}, func(ctx context.Context) (struct{}, error) {
		observability.LeaseAcquiredTotal.Inc()
		return struct{}{}, s.releasePassengerFromPool(ctx, p, poolID, reason)
	})
	if errors.Is(err, concurrency.ErrLeaseUnavailable) {
		observability.LeaseUnavailableTotal.Inc()
		observability.RequestsCancelledTotal.WithLabelValues("lease_unavailable").Inc()
		return err
	}
	if err != nil {
		observability.RequestsCancelledTotal.WithLabelValues("error").Inc()
		return err
	}
	observability.RequestsCancelledTotal.WithLabelValues("matched").Inc()
	return nil
}

// releasePassengerFromPool runs under the pool's lease: it drops the
// passenger's waypoints, updates capacity, and deletes the pool if no
// passengers remain (spec §4.6, §8 scenario 4).
func (s *Service) releasePassengerFromPool(ctx context.Context, p models.Passenger, poolID, reason string) error {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteWaypointsForPassenger(ctx, poolID, p.ID); err != nil {
		return fmt.Errorf("dispatch: drop waypoints: %w", err)
	}

	waypoints, err := s.store.ListWaypoints(ctx, poolID)
	if err != nil {
		return fmt.Errorf("dispatch: list remaining waypoints: %w", err)
	}

	now := s.now()
	p.State = models.PassengerCancelled
	p.CancelledAt = &now
	p.CancellationReason = reason
	p.PoolID = nil
	if err := s.store.UpdatePassengerState(ctx, p); err != nil {
		return fmt.Errorf("dispatch: update cancelled passenger: %w", err)
	}

	// the version-checked capacity decrement always runs, even when this
	// passenger was the last one aboard, so that two concurrent
	// cancellations on the same pool always advance its version by
	// exactly 2 (spec §8 scenario 4); deletion is a separate step after.
	pool.CurrentLoad.Seats -= p.SeatsRequired
	pool.CurrentLoad.Luggage -= p.LuggageCount
	if pool.CurrentLoad.Seats < 0 {
		pool.CurrentLoad.Seats = 0
	}
	if pool.CurrentLoad.Luggage < 0 {
		pool.CurrentLoad.Luggage = 0
	}
	result, err := concurrency.UpdateIfVersion(ctx, s.store, pool, pool.Version)
	if err != nil {
		return fmt.Errorf("dispatch: update pool capacity: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("dispatch: pool %s version changed under its own lease, this should not happen", poolID)
	}

	if len(waypoints) == 0 {
		if err := s.store.DeletePool(ctx, poolID); err != nil {
			return fmt.Errorf("dispatch: delete emptied pool: %w", err)
		}
	}
	return nil
}

// lookupZone looks up the surge zone containing p, if any. The store's
// ZoneContaining only returns a proximity candidate (nearest zone center,
// or the memory store's own containment check) — callers must always
// verify the exact haversine radius themselves, since not every backend
// filters by radius in its query. The zone-cache lookup by ID is
// best-effort and only refines the record already read from persistence;
// a cache miss or outage falls back to the persisted value (spec §9
// design note: the cache is never the source of truth).
func (s *Service) lookupZone(ctx context.Context, p models.Coord) (models.SurgeZone, bool) {
	zone, err := s.store.ZoneContaining(ctx, p)
	if err != nil {
		return models.SurgeZone{}, false
	}
	if cached, ok := s.zoneCache.Get(ctx, zone.ID); ok {
		zone = cached
	}
	if !geometry.WithinRadius(p, zone.Center, zone.RadiusKm) {
		return models.SurgeZone{}, false
	}
	return zone, true
}

func snapshotOfZone(z models.SurgeZone) *pricing.ZoneSnapshot {
	return &pricing.ZoneSnapshot{
		ActiveRequests:   z.ActiveRequests,
		AvailableDrivers: z.AvailableDrivers,
		Multiplier:       z.Multiplier,
	}
}
