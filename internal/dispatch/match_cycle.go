package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/example/ride-pool-dispatch/internal/events"
	"github.com/example/ride-pool-dispatch/internal/matcher"
	"github.com/example/ride-pool-dispatch/internal/models"
	"github.com/example/ride-pool-dispatch/internal/observability"
	"github.com/example/ride-pool-dispatch/internal/pricing"
)

// CycleResult summarizes one matching cycle for logging and metrics.
type CycleResult struct {
	PendingSeen  int
	Proposed     int
	Committed    int
	Failed       int
}

// RunMatchingCycle implements spec §4.6: fetch pending passengers, run
// the matcher, and commit each proposal independently. A proposal that
// fails to commit (a passenger cancelled or no longer pending mid-cycle,
// a persistence error) does not roll back or block any other proposal —
// there is no cycle-wide transaction.
func (s *Service) RunMatchingCycle(ctx context.Context) (CycleResult, error) {
	start := s.now()
	defer func() {
		observability.MatchCycleLatency.Observe(time.Since(start).Seconds())
	}()
	observability.MatchCycleRunsTotal.Inc()

	pending, err := s.store.QueryPendingPassengers(ctx, s.cfg.PendingBatchLimit)
	if err != nil {
		return CycleResult{}, fmt.Errorf("dispatch: query pending passengers: %w", err)
	}

	result := CycleResult{PendingSeen: len(pending)}
	if len(pending) == 0 {
		return result, nil
	}

	proposals := matcher.Match(pending, s.cfg.matcherConfig(s.now))
	result.Proposed = len(proposals)
	observability.ProposalsEmittedTotal.Add(float64(len(proposals)))

	for _, p := range proposals {
		if err := s.commitProposal(ctx, p); err != nil {
			s.log.Warn("dispatch: proposal commit failed", "pool_id", p.PoolID, "error", err)
			observability.ProposalsFailedTotal.Inc()
			result.Failed++
			continue
		}
		observability.ProposalsCommittedTotal.Inc()
		result.Committed++
	}

	return result, nil
}

// commitProposal persists a matcher.Proposal as a new pool, marks its
// passengers matched, and writes the route's waypoints. It re-verifies
// every passenger is still pending immediately before writing, since the
// matcher read a snapshot that may now be stale (spec §4.4, "matcher
// never writes").
func (s *Service) commitProposal(ctx context.Context, p matcher.Proposal) error {
	for _, pid := range p.PassengerIDs {
		passenger, err := s.store.GetPassenger(ctx, pid)
		if err != nil {
			return fmt.Errorf("passenger %s vanished before commit: %w", pid, err)
		}
		if passenger.State != models.PassengerPending {
			return fmt.Errorf("passenger %s no longer pending (state=%s)", pid, passenger.State)
		}
	}

	classSpec, _ := models.ClassSpec(p.VehicleClass)
	now := s.now()
	pool := models.Pool{
		ID:              p.PoolID,
		VehicleClass:    p.VehicleClass,
		MaxCapacity:     classSpec.Capacity,
		State:           models.PoolMatched,
		TotalDistanceKm: p.Route.TotalDistanceKm,
		CreatedAt:       now,
		MatchedAt:       &now,
		Version:         0,
	}
	for _, pid := range p.PassengerIDs {
		passenger, _ := s.store.GetPassenger(ctx, pid)
		pool.CurrentLoad.Seats += passenger.SeatsRequired
		pool.CurrentLoad.Luggage += passenger.LuggageCount
	}

	if err := s.store.InsertPool(ctx, pool); err != nil {
		return fmt.Errorf("insert pool: %w", err)
	}

	for _, wp := range p.Route.Waypoints {
		wp.PoolID = p.PoolID
		if err := s.store.InsertWaypoint(ctx, wp); err != nil {
			return fmt.Errorf("insert waypoint for %s: %w", wp.PassengerID, err)
		}
	}

	for _, pid := range p.PassengerIDs {
		passenger, err := s.store.GetPassenger(ctx, pid)
		if err != nil {
			return fmt.Errorf("refetch passenger %s: %w", pid, err)
		}
		fare := p.PricePerSeat[pid]
		passenger.State = models.PassengerMatched
		passenger.PoolID = &pool.ID
		passenger.FinalFare = &fare
		passenger.MatchedAt = &now
		if err := s.store.UpdatePassengerState(ctx, passenger); err != nil {
			return fmt.Errorf("mark passenger %s matched: %w", pid, err)
		}
	}

	s.publisher.Publish(ctx, pool.ID, events.PoolMatched, events.PoolMatchedPayload{
		PoolID:       pool.ID,
		PassengerIDs: p.PassengerIDs,
		VehicleClass: string(pool.VehicleClass),
	})
	return nil
}

// RefreshSurgeZones implements the supplemented surge refresh cycle: it
// recomputes every zone's demand tier and smoothed multiplier from its
// current counters (spec §4.2, §4.6 supplement).
func (s *Service) RefreshSurgeZones(ctx context.Context) (int, error) {
	zones, err := s.store.ListSurgeZones(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch: list surge zones: %w", err)
	}
	updated := 0
	for _, z := range zones {
		observability.SurgeRefreshTotal.Inc()
		tier, multiplier := pricing.RefreshSurge(z.ActiveRequests, z.AvailableDrivers, z.Multiplier)
		z.DemandTier = tier
		z.Multiplier = multiplier
		if err := s.store.UpdateSurgeZone(ctx, z); err != nil {
			s.log.Warn("dispatch: surge zone update failed", "zone_id", z.ID, "error", err)
			continue
		}
		s.zoneCache.Put(ctx, z)
		updated++
	}
	return updated, nil
}

// SweepExpiredLeases implements the supplemented lease-sweep operation
// run periodically by the match worker (spec §4.5 supplement).
func (s *Service) SweepExpiredLeases(ctx context.Context) (int, error) {
	return s.leases.Sweep(ctx)
}
