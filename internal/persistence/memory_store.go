package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-pool-dispatch/internal/geometry"
	"github.com/example/ride-pool-dispatch/internal/models"
)

// MemoryStore is an in-memory Store implementation used by tests and
// local runs without a database configured.
type MemoryStore struct {
	mu         sync.RWMutex
	passengers map[string]models.Passenger
	pools      map[string]models.Pool
	waypoints  map[string][]models.Waypoint // keyed by poolID
	zones      map[string]models.SurgeZone
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		passengers: make(map[string]models.Passenger),
		pools:      make(map[string]models.Pool),
		waypoints:  make(map[string][]models.Waypoint),
		zones:      make(map[string]models.SurgeZone),
	}
}

func (m *MemoryStore) InsertPassenger(_ context.Context, p models.Passenger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passengers[p.ID] = p
	return nil
}

func (m *MemoryStore) GetPassenger(_ context.Context, id string) (models.Passenger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.passengers[id]
	if !ok {
		return models.Passenger{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) UpdatePassengerState(_ context.Context, p models.Passenger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.passengers[p.ID]; !ok {
		return ErrNotFound
	}
	m.passengers[p.ID] = p
	return nil
}

func (m *MemoryStore) QueryPendingPassengers(_ context.Context, limit int) ([]models.Passenger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Passenger, 0, limit)
	for _, p := range m.passengers {
		if p.State == models.PassengerPending {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) QueryPassengersByUser(_ context.Context, userID string, state *models.PassengerState) ([]models.Passenger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Passenger
	for _, p := range m.passengers {
		if p.UserID != userID {
			continue
		}
		if state != nil && p.State != *state {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (m *MemoryStore) InsertPool(_ context.Context, p models.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Version = 0
	m.pools[p.ID] = p
	return nil
}

func (m *MemoryStore) GetPool(_ context.Context, id string) (models.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[id]
	if !ok {
		return models.Pool{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) UpdatePoolUnderLease(_ context.Context, p models.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.pools[p.ID]
	if !ok {
		return ErrNotFound
	}
	p.Version = existing.Version + 1
	m.pools[p.ID] = p
	return nil
}

func (m *MemoryStore) UpdatePoolByVersion(_ context.Context, p models.Pool, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.pools[p.ID]
	if !ok {
		return 0, ErrNotFound
	}
	if existing.Version != expectedVersion {
		return 0, ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	m.pools[p.ID] = p
	return p.Version, nil
}

func (m *MemoryStore) DeletePool(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pools, id)
	delete(m.waypoints, id)
	return nil
}

func (m *MemoryStore) QueryFormingPools(_ context.Context, maxAgeSeconds int64) ([]models.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-time.Duration(maxAgeSeconds) * time.Second)
	var out []models.Pool
	for _, p := range m.pools {
		if p.State == models.PoolForming && p.CreatedAt.After(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertWaypoint(_ context.Context, w models.Waypoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waypoints[w.PoolID] = append(m.waypoints[w.PoolID], w)
	return nil
}

func (m *MemoryStore) DeleteWaypointsForPassenger(_ context.Context, poolID, passengerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wps := m.waypoints[poolID]
	out := wps[:0:0]
	for _, w := range wps {
		if w.PassengerID != passengerID {
			out = append(out, w)
		}
	}
	m.waypoints[poolID] = out
	return nil
}

func (m *MemoryStore) ListWaypoints(_ context.Context, poolID string) ([]models.Waypoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.Waypoint(nil), m.waypoints[poolID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MemoryStore) GetSurgeZone(_ context.Context, id string) (models.SurgeZone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.zones[id]
	if !ok {
		return models.SurgeZone{}, ErrNotFound
	}
	return z, nil
}

func (m *MemoryStore) ListSurgeZones(_ context.Context) ([]models.SurgeZone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SurgeZone, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z)
	}
	return out, nil
}

func (m *MemoryStore) UpdateSurgeZone(_ context.Context, z models.SurgeZone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[z.ID] = z
	return nil
}

func (m *MemoryStore) ZoneContaining(_ context.Context, p models.Coord) (models.SurgeZone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, z := range m.zones {
		if geometry.WithinRadius(p, z.Center, z.RadiusKm) {
			return z, nil
		}
	}
	return models.SurgeZone{}, ErrNotFound
}

// SeedZone is a test/bootstrap helper to insert a zone directly.
func (m *MemoryStore) SeedZone(z models.SurgeZone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[z.ID] = z
}
