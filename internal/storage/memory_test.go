package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/models"
)

func newRide(t *testing.T, m *MemoryStore) *models.Ride {
	t.Helper()
	r := &models.Ride{RiderID: "rider-1", OriginLat: -6.2, OriginLng: 106.8, DestLat: -6.3, DestLng: 106.7}
	if err := m.CreateRide(context.Background(), r); err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func TestCreateRideStartsRequested(t *testing.T) {
	m := NewMemoryStore()
	r := newRide(t, m)
	if r.Status != models.StatusRequested {
		t.Fatalf("expected requested, got %s", r.Status)
	}
	if r.DriverID != "" {
		t.Fatalf("driver must be unset on a requested ride, got %q", r.DriverID)
	}
	if r.ID == 0 {
		t.Fatal("expected assigned id")
	}
}

func TestUpdateStatusIfEnforcesPrecondition(t *testing.T) {
	m := NewMemoryStore()
	r := newRide(t, m)
	ctx := context.Background()

	if _, err := m.UpdateStatusIf(ctx, r.ID, []models.Status{models.StatusMatched}, models.StatusAccepted, "d1"); !errors.Is(err, apperrors.ErrStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	got, err := m.GetRide(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusRequested || got.DriverID != "" {
		t.Fatalf("rejected transition must leave the ride untouched, got %s/%q", got.Status, got.DriverID)
	}

	upd, err := m.UpdateStatusIf(ctx, r.ID, []models.Status{models.StatusRequested}, models.StatusMatched, "d1")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if upd.Status != models.StatusMatched || upd.DriverID != "d1" {
		t.Fatalf("unexpected ride after match: %s/%q", upd.Status, upd.DriverID)
	}
}

func TestUpdateStatusIfKeepsDriverWhenUnset(t *testing.T) {
	m := NewMemoryStore()
	r := newRide(t, m)
	ctx := context.Background()
	if _, err := m.UpdateStatusIf(ctx, r.ID, []models.Status{models.StatusRequested}, models.StatusMatched, "d1"); err != nil {
		t.Fatalf("match: %v", err)
	}
	upd, err := m.UpdateStatusIf(ctx, r.ID, []models.Status{models.StatusMatched}, models.StatusAccepted, "")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if upd.DriverID != "d1" {
		t.Fatalf("driver identity must never be cleared, got %q", upd.DriverID)
	}
}

func TestUpdateStatusIfUnknownRide(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.UpdateStatusIf(context.Background(), 42, []models.Status{models.StatusRequested}, models.StatusMatched, "d1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestActiveRideForDriver(t *testing.T) {
	m := NewMemoryStore()
	r := newRide(t, m)
	ctx := context.Background()
	if _, err := m.ActiveRideForDriver(ctx, "d1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found before acceptance, got %v", err)
	}
	mustTransition(t, m, r.ID, models.StatusRequested, models.StatusMatched, "d1")
	mustTransition(t, m, r.ID, models.StatusMatched, models.StatusAccepted, "")
	active, err := m.ActiveRideForDriver(ctx, "d1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID != r.ID {
		t.Fatalf("expected ride %d, got %d", r.ID, active.ID)
	}
	mustTransition(t, m, r.ID, models.StatusAccepted, models.StatusInProgress, "")
	mustTransition(t, m, r.ID, models.StatusInProgress, models.StatusCompleted, "")
	if _, err := m.ActiveRideForDriver(ctx, "d1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("completed ride must not be active, got %v", err)
	}
}

func TestDriverAverageRating(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	for _, rating := range []int{4, 5} {
		r := newRide(t, m)
		mustTransition(t, m, r.ID, models.StatusRequested, models.StatusMatched, "d1")
		if err := m.SetRating(ctx, r.ID, rating, ""); err != nil {
			t.Fatalf("rate: %v", err)
		}
	}
	avg, err := m.DriverAverageRating(ctx, "d1")
	if err != nil {
		t.Fatalf("avg: %v", err)
	}
	if avg != 4.5 {
		t.Fatalf("expected 4.5, got %f", avg)
	}
}

func TestMarkEarningsPaid(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		r := newRide(t, m)
		if err := m.InsertEarning(ctx, &models.Earning{DriverID: "d1", RideID: r.ID, Amount: 3.5}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	other := newRide(t, m)
	if err := m.InsertEarning(ctx, &models.Earning{DriverID: "d2", RideID: other.ID, Amount: 2}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	settled, err := m.MarkEarningsPaid(ctx, "d1")
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if settled != 2 {
		t.Fatalf("expected 2 settled earnings, got %d", settled)
	}
	earnings, err := m.EarningsByDriver(ctx, "d1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, e := range earnings {
		if !e.Paid || e.PaidAt == nil {
			t.Fatalf("earning %d not settled: %+v", e.ID, e)
		}
	}

	settled, err = m.MarkEarningsPaid(ctx, "d1")
	if err != nil {
		t.Fatalf("second payout: %v", err)
	}
	if settled != 0 {
		t.Fatalf("second payout must settle nothing, got %d", settled)
	}
}

func mustTransition(t *testing.T, m *MemoryStore, id int64, from, to models.Status, driverID string) {
	t.Helper()
	if _, err := m.UpdateStatusIf(context.Background(), id, []models.Status{from}, to, driverID); err != nil {
		t.Fatalf("transition %s -> %s: %v", from, to, err)
	}
}
