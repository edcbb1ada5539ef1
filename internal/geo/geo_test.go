package geo

import (
	"math"
	"testing"
)

func TestDistanceKmZero(t *testing.T) {
	if d := DistanceKm(-6.2, 106.8, -6.2, 106.8); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceKmKnownPair(t *testing.T) {
	// Jakarta city center to a point ~1.5 km away
	d := DistanceKm(-6.2, 106.8, -6.21, 106.81)
	if d <= 0 || d > 5 {
		t.Fatalf("expected short positive distance, got %f", d)
	}
	// quarter of the equator
	eq := DistanceKm(0, 0, 0, 90)
	want := 6371.0 * math.Pi / 2
	if math.Abs(eq-want) > 1 {
		t.Fatalf("expected ~%f, got %f", want, eq)
	}
}

func TestValidCoord(t *testing.T) {
	if !ValidCoord(-6.2, 106.8) {
		t.Fatal("valid coordinate rejected")
	}
	if ValidCoord(91, 0) || ValidCoord(0, 181) || ValidCoord(-91, 0) {
		t.Fatal("out-of-range coordinate accepted")
	}
}

func TestQuantizeKeySharesNearbyCenters(t *testing.T) {
	a := QuantizeKey(-6.2001, 106.8004, 5)
	b := QuantizeKey(-6.2003, 106.7996, 5)
	if a != b {
		t.Fatalf("expected shared key, got %q vs %q", a, b)
	}
	if a != "nearby:-6.200:106.800:5" {
		t.Fatalf("unexpected key format %q", a)
	}
	if QuantizeKey(-6.2, 106.8, 5) == QuantizeKey(-6.2, 106.8, 10) {
		t.Fatal("radius must be part of the key")
	}
}
