package telemetry

import (
	"math"
	"testing"
)

func TestDistanceZero(t *testing.T) {
	if d := Distance(33.6844, 73.0479, 33.6844, 73.0479); d != 0 {
		t.Errorf("expected 0 distance, got %f", d)
	}
}

func TestDistanceKnown(t *testing.T) {
	// One degree of latitude is ~111.2 km.
	d := Distance(33.0, 73.0, 34.0, 73.0)
	if math.Abs(d-111195) > 500 {
		t.Errorf("expected ~111195m, got %f", d)
	}
}

func TestBearingCardinal(t *testing.T) {
	cases := []struct {
		name           string
		lat2, lng2     float64
		want, tolerance float64
	}{
		{"north", 34.0, 73.0, 0, 0.5},
		{"east", 33.0, 74.0, 90, 1.0},
		{"south", 32.0, 73.0, 180, 0.5},
		{"west", 33.0, 72.0, 270, 1.0},
	}

	for _, tc := range cases {
		got := Bearing(33.0, 73.0, tc.lat2, tc.lng2)
		diff := math.Abs(got - tc.want)
		if diff > 180 {
			diff = 360 - diff
		}
		if diff > tc.tolerance {
			t.Errorf("%s: expected bearing ~%f, got %f", tc.name, tc.want, got)
		}
	}
}

func TestBearingRange(t *testing.T) {
	b := Bearing(33.0, 73.0, 32.9, 72.9)
	if b < 0 || b >= 360 {
		t.Errorf("bearing %f outside [0,360)", b)
	}
}

func TestSampleHasFix(t *testing.T) {
	var s Sample
	if s.HasFix() {
		t.Error("zero sample should not have a fix")
	}
	s.FixQuality = 1
	if !s.HasFix() {
		t.Error("fix_quality=1 should count as a fix")
	}
	s = Sample{Position: Position{Lat: 33.6844, Lng: 73.0479}}
	if !s.HasFix() {
		t.Error("nonzero position should count as a fix")
	}
}
