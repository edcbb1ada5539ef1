package matcher

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

func testSetup(t *testing.T, policy SelectionPolicy) (*lifecycle.Service, *bus.MemoryBus) {
	t.Helper()
	b := bus.NewMemoryBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rides := &lifecycle.Service{
		Store:     storage.NewMemoryStore(),
		Bus:       b,
		Logger:    logger,
		BaseFare:  1,
		PerKmRate: 0.5,
	}
	m := &Service{Rides: rides, Policy: policy, Logger: logger}
	if err := m.Run(context.Background(), b); err != nil {
		t.Fatalf("run: %v", err)
	}
	return rides, b
}

func TestMatcherAssignsOnRequest(t *testing.T) {
	rides, _ := testSetup(t, FixedPolicy{DriverID: "D1"})
	ctx := context.Background()
	ride, err := rides.Request(ctx, "R1", -6.2, 106.8, -6.3, 106.7)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	// the memory bus delivers synchronously, so the match already ran
	got, err := rides.Get(ctx, ride.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusMatched || got.DriverID != "D1" {
		t.Fatalf("expected matched/D1, got %s/%q", got.Status, got.DriverID)
	}
}

func TestDuplicateEventDoesNotDoubleMatch(t *testing.T) {
	rides, b := testSetup(t, FixedPolicy{DriverID: "D1"})
	ctx := context.Background()
	ride, err := rides.Request(ctx, "R1", -6.2, 106.8, -6.3, 106.7)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	// replay the requested snapshot as the bus legitimately may
	if err := b.Publish(ctx, bus.ChannelRideRequested, ride); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := rides.Get(ctx, ride.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusMatched || got.DriverID != "D1" {
		t.Fatalf("duplicate delivery must not re-apply, got %s/%q", got.Status, got.DriverID)
	}
}

type nearbyStub struct {
	drivers []models.NearbyDriver
}

func (s nearbyStub) QueryNearby(ctx context.Context, lat, lng, radiusKm float64) ([]models.NearbyDriver, error) {
	return s.drivers, nil
}

func TestNearestPolicyPicksClosest(t *testing.T) {
	policy := NearestPolicy{
		Registry: nearbyStub{drivers: []models.NearbyDriver{
			{DriverID: "far", DistanceKm: 4.2},
			{DriverID: "near", DistanceKm: 0.7},
			{DriverID: "mid", DistanceKm: 2.1},
		}},
		RadiusKm: 5,
	}
	got, err := policy.SelectDriver(context.Background(), &models.Ride{OriginLat: -6.2, OriginLng: 106.8})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != "near" {
		t.Fatalf("expected near, got %s", got)
	}
}

func TestNearestPolicyNoCandidates(t *testing.T) {
	policy := NearestPolicy{Registry: nearbyStub{}, RadiusKm: 5}
	if _, err := policy.SelectDriver(context.Background(), &models.Ride{}); err == nil {
		t.Fatal("expected error with no live drivers")
	}
}

func TestMalformedEventIsDiscarded(t *testing.T) {
	rides, b := testSetup(t, FixedPolicy{DriverID: "D1"})
	ctx := context.Background()
	if err := b.Publish(ctx, bus.ChannelRideRequested, "not a ride"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// nothing to assert beyond "no panic"; the store stays empty
	if _, err := rides.Get(ctx, 1); err == nil {
		t.Fatal("no ride should exist")
	}
}
