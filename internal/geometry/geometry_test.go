package geometry

import (
	"math"
	"testing"

	"github.com/example/ride-pool-dispatch/internal/models"
)

func TestDistanceZero(t *testing.T) {
	p := models.Coord{Lat: 40.7128, Lng: -74.0060}
	if d := Distance(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceJFKToManhattan(t *testing.T) {
	jfk := models.Coord{Lat: 40.6413, Lng: -73.7781}
	msq := models.Coord{Lat: 40.7580, Lng: -73.9855}
	d := Distance(jfk, msq)
	if d < 20 || d > 23 {
		t.Fatalf("expected ~21.3km, got %f", d)
	}
}

func TestBearingRange(t *testing.T) {
	a := models.Coord{Lat: 0, Lng: 0}
	b := models.Coord{Lat: 1, Lng: 1}
	brg := Bearing(a, b)
	if brg < 0 || brg >= 360 {
		t.Fatalf("bearing out of range: %f", brg)
	}
}

func TestTravelTime(t *testing.T) {
	if tt := TravelTime(30); math.Abs(tt-60) > 1e-9 {
		t.Fatalf("expected 60 minutes for 30km at 30km/h, got %f", tt)
	}
}

func TestWithinRadius(t *testing.T) {
	center := models.Coord{Lat: 0, Lng: 0}
	near := models.Coord{Lat: 0.001, Lng: 0.001}
	far := models.Coord{Lat: 10, Lng: 10}
	if !WithinRadius(near, center, 1) {
		t.Fatal("expected near point within radius")
	}
	if WithinRadius(far, center, 1) {
		t.Fatal("expected far point outside radius")
	}
}

func TestSameDirection(t *testing.T) {
	a1 := models.Coord{Lat: 0, Lng: 0}
	a2 := models.Coord{Lat: 1, Lng: 0}
	b1 := models.Coord{Lat: 0, Lng: 0.001}
	b2 := models.Coord{Lat: 1, Lng: 0.001}
	if !SameDirection(a1, a2, b1, b2, 45) {
		t.Fatal("expected parallel northward legs to be same direction")
	}

	c1 := models.Coord{Lat: 1, Lng: 0}
	c2 := models.Coord{Lat: 0, Lng: 0}
	if SameDirection(a1, a2, c1, c2, 45) {
		t.Fatal("expected opposite legs to differ in direction")
	}
}

func TestCentroidPanicsOnEmpty(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on empty centroid input")
		}
	}()
	Centroid(nil)
}

func TestCentroidAverages(t *testing.T) {
	pts := []models.Coord{{Lat: 0, Lng: 0}, {Lat: 2, Lng: 2}}
	c := Centroid(pts)
	if c.Lat != 1 || c.Lng != 1 {
		t.Fatalf("expected (1,1), got %+v", c)
	}
}
