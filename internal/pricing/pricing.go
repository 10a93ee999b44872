// Package pricing computes fares, surge multipliers and pool discounts.
// Price is a pure function of its inputs (spec §4.2); nothing here
// touches persistence directly — the surge-zone cache lives alongside it
// but is wired in by the dispatch service.
package pricing

import (
	"math"
	"time"

	"github.com/example/ride-pool-dispatch/internal/models"
)

// Weather is the coarse weather condition used by the surge formula.
type Weather string

const (
	WeatherClear Weather = "clear"
	WeatherRain  Weather = "rain"
	WeatherSnow  Weather = "snow"
)

func weatherFactor(w Weather) float64 {
	switch w {
	case WeatherRain:
		return 1.2
	case WeatherSnow:
		return 1.5
	default:
		return 1.0
	}
}

const (
	minSurge = 1.0
	maxSurge = 3.5

	minPoolDiscountMultiplier = 0.50
)

// ZoneSnapshot is the subset of a SurgeZone's counters the pricing
// formula consults; callers pass nil when no zone applies.
type ZoneSnapshot struct {
	ActiveRequests   int
	AvailableDrivers int
	Multiplier       float64
}

// Factors bundles everything Price needs.
type Factors struct {
	Class          models.VehicleClass
	DistanceKm     float64
	TimeMin        float64
	PoolSize       int
	DetourMin      float64
	Zone           *ZoneSnapshot
	LocalTime      time.Time
	Weather        Weather
}

// Breakdown is the itemized output of a price computation.
type Breakdown struct {
	Base         float64
	Surge        float64
	PoolDiscount float64
	Final        float64
}

// isPeakHour reports whether t falls in a Mon-Fri 07-10 or 17-20 local
// window (spec §4.2, glossary "Peak hour").
func isPeakHour(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	h := t.Hour()
	return (h >= 7 && h < 10) || (h >= 17 && h < 20)
}

func clampSurge(v float64) float64 {
	if v < minSurge {
		return minSurge
	}
	if v > maxSurge {
		return maxSurge
	}
	return v
}

// computeSurge composes the multiplicative surge factors from spec §4.2.
func computeSurge(f Factors) float64 {
	surge := 1.0

	if f.Zone != nil {
		drivers := f.Zone.AvailableDrivers
		if drivers < 1 {
			drivers = 1
		}
		r := float64(f.Zone.ActiveRequests) / float64(drivers)
		if r > 1.5 {
			add := math.Min((r-1.5)*0.5, 1.5)
			surge += add
		}
		if f.Zone.Multiplier > surge {
			surge = f.Zone.Multiplier
		}
	}

	if isPeakHour(f.LocalTime) {
		surge *= 1.3
	}

	surge *= weatherFactor(f.Weather)

	return clampSurge(surge)
}

// poolDiscountMultiplier implements spec §4.2's pool discount formula.
func poolDiscountMultiplier(poolSize int, detourMin float64) float64 {
	if poolSize <= 1 {
		return 1.0
	}
	if detourMin < 0 {
		detourMin = 0
	}
	raw := 0.15*float64(poolSize-1) - 0.02*detourMin
	if raw < 0 {
		raw = 0
	}
	mult := 1 - raw
	if mult < minPoolDiscountMultiplier {
		mult = minPoolDiscountMultiplier
	}
	return mult
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Price computes {base, surge, poolDiscount, final} for the given
// factors (spec §4.2). Rounding to 2 decimals happens on output only —
// intermediate values retain full precision.
func Price(f Factors) Breakdown {
	spec, ok := models.ClassSpec(f.Class)
	if !ok {
		spec = models.VehicleClassSpec{MinFare: 8.00, RatePerKm: 2.50, RatePerMin: 0.40}
	}

	base := math.Max(spec.MinFare, f.DistanceKm*spec.RatePerKm+f.TimeMin*spec.RatePerMin)
	surge := computeSurge(f)
	discount := poolDiscountMultiplier(f.PoolSize, f.DetourMin)
	final := base * surge * discount

	return Breakdown{
		Base:         round2(base),
		Surge:        surge,
		PoolDiscount: discount,
		Final:        round2(final),
	}
}

// SurgeTier buckets r = active/max(drivers,1) into a demand tier and its
// raw multiplier, per spec §4.2's refresh table.
func SurgeTier(active, drivers int) (models.DemandTier, float64) {
	d := drivers
	if d < 1 {
		d = 1
	}
	r := float64(active) / float64(d)
	switch {
	case r < 0.5:
		return models.DemandLow, 1.0
	case r < 1.5:
		return models.DemandNormal, 1.0
	case r < 3.0:
		return models.DemandHigh, 1.0 + (r-1.5)*0.4
	default:
		return models.DemandVeryHigh, 1.6 + (r-3.0)*0.3
	}
}

// RefreshSurge computes the next smoothed multiplier for a zone given its
// current counters and previous multiplier (spec §4.2).
func RefreshSurge(active, drivers int, prevMultiplier float64) (models.DemandTier, float64) {
	tier, raw := SurgeTier(active, drivers)
	smoothed := 0.3*raw + 0.7*prevMultiplier
	return tier, clampSurge(smoothed)
}
