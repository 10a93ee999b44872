package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/example/ride-pool-dispatch/internal/models"
)

func TestPriceSingleRiderPeakEstimate(t *testing.T) {
	// scenario 1 from spec §8: JFK -> Manhattan, Sedan, weekday 09:00, no surge zone.
	weekday9am := time.Date(2026, time.August, 3, 9, 0, 0, 0, time.UTC) // Monday
	f := Factors{
		Class:      models.VehicleSedan,
		DistanceKm: 21.3,
		TimeMin:    42.6,
		PoolSize:   1,
		LocalTime:  weekday9am,
		Weather:    WeatherClear,
	}
	b := Price(f)
	if math.Abs(b.Surge-1.3) > 1e-9 {
		t.Fatalf("expected surge 1.3 for peak hour, got %f", b.Surge)
	}
	if b.PoolDiscount != 1.0 {
		t.Fatalf("expected no pool discount for solo rider, got %f", b.PoolDiscount)
	}
	if b.Final < 90 || b.Final > 93 {
		t.Fatalf("expected final ~91.38, got %f", b.Final)
	}
}

func TestPriceThreeRiderPoolDiscount(t *testing.T) {
	off := time.Date(2026, time.August, 3, 14, 0, 0, 0, time.UTC)
	f := Factors{
		Class:      models.VehicleSedan,
		DistanceKm: 10,
		TimeMin:    20,
		PoolSize:   3,
		DetourMin:  0,
		LocalTime:  off,
		Weather:    WeatherClear,
	}
	b := Price(f)
	if math.Abs(b.PoolDiscount-0.70) > 1e-9 {
		t.Fatalf("expected discount multiplier 0.70, got %f", b.PoolDiscount)
	}
}

func TestPriceFinalBounds(t *testing.T) {
	// invariant 6: final in [0.5*base*surge, base*surge]
	off := time.Date(2026, time.August, 4, 3, 0, 0, 0, time.UTC)
	f := Factors{
		Class:      models.VehicleVan,
		DistanceKm: 40,
		TimeMin:    80,
		PoolSize:   4,
		DetourMin:  15,
		LocalTime:  off,
		Weather:    WeatherSnow,
	}
	b := Price(f)
	baseSurge := b.Base * b.Surge
	if b.Final > baseSurge+1e-6 {
		t.Fatalf("final %f exceeds base*surge %f", b.Final, baseSurge)
	}
	if b.Final < 0.5*baseSurge-1e-6 {
		t.Fatalf("final %f below 0.5*base*surge %f", b.Final, 0.5*baseSurge)
	}
}

func TestPriceSurgeClamped(t *testing.T) {
	off := time.Date(2026, time.August, 4, 8, 0, 0, 0, time.UTC) // Tue peak
	zone := &ZoneSnapshot{ActiveRequests: 1000, AvailableDrivers: 1, Multiplier: 3.5}
	f := Factors{
		Class:      models.VehicleSedan,
		DistanceKm: 5,
		TimeMin:    10,
		PoolSize:   1,
		Zone:       zone,
		LocalTime:  off,
		Weather:    WeatherSnow,
	}
	b := Price(f)
	if b.Surge > maxSurge {
		t.Fatalf("surge %f exceeds max %f", b.Surge, maxSurge)
	}
}

func TestSurgeRefreshSmoothing(t *testing.T) {
	// scenario 6 from spec §8: prev 1.0, active=30, drivers=5.
	tier, smoothed := RefreshSurge(30, 5, 1.0)
	if tier != models.DemandVeryHigh {
		t.Fatalf("expected VeryHigh tier, got %s", tier)
	}
	if math.Abs(smoothed-1.45) > 1e-9 {
		t.Fatalf("expected smoothed 1.45, got %f", smoothed)
	}
}

func TestSurgeRefreshBounds(t *testing.T) {
	_, smoothed := RefreshSurge(0, 100, 1.0)
	if smoothed < minSurge || smoothed > maxSurge {
		t.Fatalf("smoothed surge %f out of bounds", smoothed)
	}
}
