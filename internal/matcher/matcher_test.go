package matcher

import (
	"testing"
	"time"

	"github.com/example/ride-pool-dispatch/internal/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialID() func() string {
	n := 0
	return func() string {
		n++
		return "pool-test-" + string(rune('a'+n-1))
	}
}

// TestMatchThreeCompatibleRidersFormOnePool exercises spec §8 scenario 2:
// three JFK-area riders headed roughly the same direction should match
// into a single Sedan pool with a six-waypoint route.
func TestMatchThreeCompatibleRidersFormOnePool(t *testing.T) {
	base := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC) // a peak-hour Thursday
	jfk := models.Coord{Lat: 40.6413, Lng: -73.7781}

	mk := func(id string, offsetLat, offsetLng float64, dropLat, dropLng float64, seq int) models.Passenger {
		return models.Passenger{
			ID:               id,
			UserID:           "user-" + id,
			Pickup:           models.Coord{Lat: jfk.Lat + offsetLat, Lng: jfk.Lng + offsetLng},
			Dropoff:          models.Coord{Lat: dropLat, Lng: dropLng},
			SeatsRequired:    1,
			LuggageCount:     1,
			MaxDetourMinutes: 20,
			State:            models.PassengerPending,
			RequestedAt:      base.Add(time.Duration(seq) * time.Second),
		}
	}

	// three riders all headed toward midtown Manhattan.
	passengers := []models.Passenger{
		mk("p1", 0.001, 0.001, 40.758, -73.985, 0),
		mk("p2", -0.002, 0.002, 40.760, -73.980, 1),
		mk("p3", 0.002, -0.001, 40.756, -73.990, 2),
	}

	proposals := Match(passengers, Config{
		Now:         fixedClock(base),
		IDGenerator: sequentialID(),
	})

	if len(proposals) != 1 {
		t.Fatalf("expected exactly 1 proposal, got %d", len(proposals))
	}
	p := proposals[0]
	if len(p.PassengerIDs) != 3 {
		t.Fatalf("expected 3 passengers in pool, got %d", len(p.PassengerIDs))
	}
	if p.VehicleClass != models.VehicleSedan {
		t.Fatalf("expected sedan for 3 seats/3 luggage, got %s", p.VehicleClass)
	}
	if len(p.Route.Waypoints) != 6 {
		t.Fatalf("expected 6 waypoints (3 pickups + 3 dropoffs), got %d", len(p.Route.Waypoints))
	}
	for _, id := range p.PassengerIDs {
		if _, ok := p.PricePerSeat[id]; !ok {
			t.Fatalf("missing per-seat price for %s", id)
		}
	}
}

// TestMatchIncompatibleDirectionsProduceSeparatePools exercises spec §8
// scenario 3: two nearby riders headed in opposite directions must not
// share a pool.
func TestMatchIncompatibleDirectionsProduceSeparatePools(t *testing.T) {
	base := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC) // off-peak
	center := models.Coord{Lat: 40.70, Lng: -74.00}

	north := models.Passenger{
		ID: "north", UserID: "u1",
		Pickup: center, Dropoff: models.Coord{Lat: 40.90, Lng: -74.00},
		SeatsRequired: 1, LuggageCount: 0, MaxDetourMinutes: 15,
		State: models.PassengerPending, RequestedAt: base,
	}
	south := models.Passenger{
		ID: "south", UserID: "u2",
		Pickup: models.Coord{Lat: 40.701, Lng: -74.001}, Dropoff: models.Coord{Lat: 40.50, Lng: -74.00},
		SeatsRequired: 1, LuggageCount: 0, MaxDetourMinutes: 15,
		State: models.PassengerPending, RequestedAt: base.Add(time.Second),
	}

	proposals := Match([]models.Passenger{north, south}, Config{
		Now:         fixedClock(base),
		IDGenerator: sequentialID(),
	})

	if len(proposals) != 2 {
		t.Fatalf("expected 2 separate pools for opposite-direction riders, got %d", len(proposals))
	}
	for _, p := range proposals {
		if len(p.PassengerIDs) != 1 {
			t.Fatalf("expected each pool to hold exactly 1 passenger, got %d", len(p.PassengerIDs))
		}
	}
}

func TestMatchEmptyInputProducesNoProposals(t *testing.T) {
	proposals := Match(nil, Config{})
	if len(proposals) != 0 {
		t.Fatalf("expected no proposals for empty input, got %d", len(proposals))
	}
}

func TestMatchRespectsTimeoutBudget(t *testing.T) {
	base := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		// advance past the deadline on the second call (the post-sort
		// deadline check inside the cluster loop).
		if calls > 1 {
			return base.Add(time.Hour)
		}
		return base
	}
	passenger := models.Passenger{
		ID: "p1", UserID: "u1",
		Pickup: models.Coord{Lat: 40.70, Lng: -74.00}, Dropoff: models.Coord{Lat: 40.80, Lng: -74.00},
		SeatsRequired: 1, LuggageCount: 0, MaxDetourMinutes: 15,
		State: models.PassengerPending, RequestedAt: base,
	}
	proposals := Match([]models.Passenger{passenger}, Config{Now: clock, TimeoutBudget: time.Millisecond})
	if len(proposals) != 0 {
		t.Fatalf("expected timeout to short-circuit before any cluster is processed, got %d", len(proposals))
	}
}

func TestScoreExistingPoolDecreasesWithLoadAndAge(t *testing.T) {
	fresh := ScoreExistingPool(1, 4, 0)
	loaded := ScoreExistingPool(3, 4, 0)
	if loaded >= fresh {
		t.Fatalf("expected a more-loaded pool to score lower: fresh=%f loaded=%f", fresh, loaded)
	}
	aged := ScoreExistingPool(1, 4, 20)
	if aged >= fresh {
		t.Fatalf("expected an older forming pool to score lower: fresh=%f aged=%f", fresh, aged)
	}
}
