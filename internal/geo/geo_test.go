package geo

import (
	"math"
	"testing"
)

func TestHaversineKnownDistances(t *testing.T) {
	tests := []struct {
		name       string
		lat1, lon1 float64
		lat2, lon2 float64
		wantMi     float64
		tolerance  float64
	}{
		{"same point", 34.05, -118.24, 34.05, -118.24, 0, 0.001},
		{"LA to SF", 34.0522, -118.2437, 37.7749, -122.4194, 347.4, 5},
		{"one degree latitude", 34.0, -118.0, 35.0, -118.0, 69.1, 0.5},
		{"NYC to LA", 40.7128, -74.0060, 34.0522, -118.2437, 2445, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantMi) > tt.tolerance {
				t.Errorf("Haversine() = %.2f mi, want %.2f +/- %.2f", got, tt.wantMi, tt.tolerance)
			}
		})
	}
}

func TestHaversineSymmetry(t *testing.T) {
	a := Haversine(34.05, -118.24, 37.77, -122.42)
	b := Haversine(37.77, -122.42, 34.05, -118.24)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("haversine not symmetric: %f vs %f", a, b)
	}
}

func TestBoxAround(t *testing.T) {
	box := BoxAround(34.05, -118.24, 50)

	if !box.Contains(34.05, -118.24) {
		t.Error("box must contain its center")
	}
	// A point 40 miles north is inside.
	if !box.Contains(34.05+40/MilesPerDegree, -118.24) {
		t.Error("box must contain a point 40 miles north")
	}
	// A point 2 degrees away (~138 miles) is outside.
	if box.Contains(36.05, -118.24) {
		t.Error("box must not contain a point 138 miles north")
	}
}

func TestWithinBoxIsSuperset(t *testing.T) {
	// The box prefilter must never reject a point the haversine cut would
	// accept.
	center := [2]float64{34.05, -118.24}
	points := [][2]float64{
		{34.5, -118.24}, {34.05, -117.5}, {33.5, -118.9}, {34.7, -117.6},
	}
	for _, p := range points {
		if Haversine(center[0], center[1], p[0], p[1]) <= 50 &&
			!WithinBox(center[0], center[1], p[0], p[1], 50) {
			t.Errorf("box prefilter rejected in-radius point %v", p)
		}
	}
}

func TestCirclePolygon(t *testing.T) {
	poly := CirclePolygon(34.05, -118.24, 5)

	if len(poly) != CirclePolygonPoints {
		t.Fatalf("expected %d vertices, got %d", CirclePolygonPoints, len(poly))
	}
	if !poly.ContainsPoint(34.05, -118.24) {
		t.Error("circle must contain its center")
	}
	// Point 3 miles east is inside a 5 mile circle.
	inside := -118.24 + 3/(MilesPerDegree*math.Cos(34.05*math.Pi/180))
	if !poly.ContainsPoint(34.05, inside) {
		t.Error("point 3 miles east must be inside")
	}
	// Point 10 miles east is outside.
	outside := -118.24 + 10/(MilesPerDegree*math.Cos(34.05*math.Pi/180))
	if poly.ContainsPoint(34.05, outside) {
		t.Error("point 10 miles east must be outside")
	}

	// Every vertex sits roughly on the radius.
	for _, v := range poly {
		d := Haversine(34.05, -118.24, v[1], v[0])
		if math.Abs(d-5) > 0.5 {
			t.Errorf("vertex at %.2f mi from center, want ~5", d)
		}
	}
}

func TestPolygonRingClosed(t *testing.T) {
	poly := CirclePolygon(34.05, -118.24, 2)
	ring := poly.Ring()
	if len(ring) != len(poly)+1 {
		t.Fatalf("ring length %d, want %d", len(ring), len(poly)+1)
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] != last[0] || first[1] != last[1] {
		t.Error("ring must close on its first vertex")
	}
}

func TestLineStringMinDistance(t *testing.T) {
	// A straight west-east line at lat 34.
	line := LineString{{-119.0, 34.0}, {-118.0, 34.0}}

	// Point on the line.
	if d := line.MinDistanceMi(34.0, -118.5); d > 0.1 {
		t.Errorf("point on line should be ~0 mi away, got %.2f", d)
	}
	// Point ~0.1 degrees north (~6.9 miles in planar approximation).
	d := line.MinDistanceMi(34.1, -118.5)
	if d < 5 || d > 9 {
		t.Errorf("expected ~7 mi, got %.2f", d)
	}
}

func TestLineStringIntersectsPolygon(t *testing.T) {
	poly := CirclePolygon(34.05, -118.24, 5)

	crossing := LineString{{-119.0, 34.05}, {-117.5, 34.05}}
	if !crossing.IntersectsPolygon(poly) {
		t.Error("line through the circle center must intersect")
	}

	startInside := LineString{{-118.24, 34.05}, {-117.0, 34.05}}
	if !startInside.IntersectsPolygon(poly) {
		t.Error("line starting inside must intersect")
	}

	far := LineString{{-119.0, 36.0}, {-117.5, 36.0}}
	if far.IntersectsPolygon(poly) {
		t.Error("distant line must not intersect")
	}
}

func TestBoxAroundPair(t *testing.T) {
	box := BoxAroundPair(34.05, -118.24, 34.5, -117.8, 50)

	if !box.Contains(34.05, -118.24) || !box.Contains(34.5, -117.8) {
		t.Error("box must contain both endpoints")
	}
	// Padding covers ~50 km (~0.45 degrees of latitude).
	if !box.Contains(34.05-0.4, -118.24) {
		t.Error("padding must cover 0.4 degrees south of the lower endpoint")
	}
	if box.Contains(32.0, -118.24) {
		t.Error("box must not stretch 2 degrees past the endpoints")
	}
}

func TestPolygonCentroid(t *testing.T) {
	poly := CirclePolygon(34.05, -118.24, 3)
	lat, lon := poly.Centroid()
	if math.Abs(lat-34.05) > 0.01 || math.Abs(lon+118.24) > 0.01 {
		t.Errorf("centroid (%.4f, %.4f) drifted from circle center", lat, lon)
	}
}
