package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

func testService(t *testing.T) (*Service, *bus.MemoryBus, *recorder) {
	t.Helper()
	b := bus.NewMemoryBus()
	rec := &recorder{}
	for _, ch := range []string{
		bus.ChannelRideRequested, bus.ChannelRideMatched, bus.ChannelRideAccepted,
		bus.ChannelRideStarted, bus.ChannelRideCompleted, bus.ChannelRideCancelled,
	} {
		channel := ch
		if err := b.Subscribe(context.Background(), channel, func(ctx context.Context, payload []byte) {
			rec.events = append(rec.events, channel)
		}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	svc := &Service{
		Store:     storage.NewMemoryStore(),
		Bus:       b,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		BaseFare:  1,
		PerKmRate: 0.5,
	}
	return svc, b, rec
}

type recorder struct {
	events []string
}

func (r *recorder) last() string {
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

func TestRequestCreatesRequestedRideAndPublishes(t *testing.T) {
	svc, _, rec := testService(t)
	ride, err := svc.Request(context.Background(), "R1", -6.2, 106.8, -6.3, 106.7)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ride.Status != models.StatusRequested {
		t.Fatalf("expected requested, got %s", ride.Status)
	}
	if ride.DriverID != "" {
		t.Fatalf("requested ride must have no driver, got %q", ride.DriverID)
	}
	if rec.last() != bus.ChannelRideRequested {
		t.Fatalf("expected ride_requested event, got %v", rec.events)
	}
}

func TestRequestValidation(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	if _, err := svc.Request(ctx, "", -6.2, 106.8, -6.3, 106.7); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Request(ctx, "R1", 120, 106.8, -6.3, 106.7); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for bad coords, got %v", err)
	}
}

func TestFullLifecycleHoldsDriverInvariant(t *testing.T) {
	svc, _, rec := testService(t)
	ctx := context.Background()
	ride, err := svc.Request(ctx, "R1", -6.2, 106.8, -6.3, 106.7)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	steps := []struct {
		op      func() (*models.Ride, error)
		status  models.Status
		channel string
	}{
		{func() (*models.Ride, error) { return svc.Match(ctx, ride.ID, "D1") }, models.StatusMatched, bus.ChannelRideMatched},
		{func() (*models.Ride, error) { return svc.Accept(ctx, ride.ID, "D1") }, models.StatusAccepted, bus.ChannelRideAccepted},
		{func() (*models.Ride, error) { return svc.Start(ctx, ride.ID) }, models.StatusInProgress, bus.ChannelRideStarted},
		{func() (*models.Ride, error) { return svc.Complete(ctx, ride.ID) }, models.StatusCompleted, bus.ChannelRideCompleted},
	}
	for _, step := range steps {
		got, err := step.op()
		if err != nil {
			t.Fatalf("transition to %s: %v", step.status, err)
		}
		if got.Status != step.status {
			t.Fatalf("expected %s, got %s", step.status, got.Status)
		}
		// driver identity is set from matched onward and never cleared
		if got.DriverID != "D1" {
			t.Fatalf("expected driver D1 at %s, got %q", step.status, got.DriverID)
		}
		if rec.last() != step.channel {
			t.Fatalf("expected %s event, got %v", step.channel, rec.events)
		}
	}
}

func TestAcceptRequiresMatched(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	ride, _ := svc.Request(ctx, "R1", -6.2, 106.8, -6.3, 106.7)
	if _, err := svc.Accept(ctx, ride.ID, "D1"); !errors.Is(err, apperrors.ErrStateConflict) {
		t.Fatalf("accepting a requested ride must conflict, got %v", err)
	}
	got, _ := svc.Get(ctx, ride.ID)
	if got.Status != models.StatusRequested {
		t.Fatalf("failed accept must leave status unchanged, got %s", got.Status)
	}
}

func TestDuplicateMatchRejected(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	ride, _ := svc.Request(ctx, "R1", -6.2, 106.8, -6.3, 106.7)
	if _, err := svc.Match(ctx, ride.ID, "D1"); err != nil {
		t.Fatalf("first match: %v", err)
	}
	if _, err := svc.Match(ctx, ride.ID, "D2"); !errors.Is(err, apperrors.ErrStateConflict) {
		t.Fatalf("second match must conflict, got %v", err)
	}
	got, _ := svc.Get(ctx, ride.ID)
	if got.DriverID != "D1" {
		t.Fatalf("second match must not reassign the driver, got %q", got.DriverID)
	}
}

func TestDoubleCompleteRejected(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	ride := completedRide(t, svc)
	if _, err := svc.Complete(ctx, ride.ID); !errors.Is(err, apperrors.ErrStateConflict) {
		t.Fatalf("completing twice must conflict, got %v", err)
	}
}

func TestCancelFromEveryNonTerminalState(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	advance := map[models.Status]func(id int64){
		models.StatusRequested: func(id int64) {},
		models.StatusMatched: func(id int64) {
			svc.Match(ctx, id, "D1")
		},
		models.StatusAccepted: func(id int64) {
			svc.Match(ctx, id, "D1")
			svc.Accept(ctx, id, "D1")
		},
		models.StatusInProgress: func(id int64) {
			svc.Match(ctx, id, "D1")
			svc.Accept(ctx, id, "D1")
			svc.Start(ctx, id)
		},
	}
	for status, setup := range advance {
		ride, _ := svc.Request(ctx, "R1", -6.2, 106.8, -6.3, 106.7)
		setup(ride.ID)
		got, err := svc.Cancel(ctx, ride.ID)
		if err != nil {
			t.Fatalf("cancel from %s: %v", status, err)
		}
		if got.Status != models.StatusCancelled {
			t.Fatalf("expected cancelled, got %s", got.Status)
		}
	}
}

func TestCancelCompletedRejected(t *testing.T) {
	svc, _, _ := testService(t)
	ride := completedRide(t, svc)
	if _, err := svc.Cancel(context.Background(), ride.ID); !errors.Is(err, apperrors.ErrStateConflict) {
		t.Fatalf("cancelling a completed ride must conflict, got %v", err)
	}
}

func TestRateValidatesRange(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	ride := completedRide(t, svc)
	for _, bad := range []int{0, -1, 6, 100} {
		if err := svc.Rate(ctx, ride.ID, bad, ""); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("rating %d must be rejected, got %v", bad, err)
		}
	}
	got, _ := svc.Get(ctx, ride.ID)
	if got.Rating != nil {
		t.Fatal("rejected rating must not write")
	}
	if err := svc.Rate(ctx, ride.ID, 5, "great"); err != nil {
		t.Fatalf("rate: %v", err)
	}
	got, _ = svc.Get(ctx, ride.ID)
	if got.Rating == nil || *got.Rating != 5 || got.Comment != "great" {
		t.Fatalf("rating not persisted: %+v", got)
	}
}

func TestChargeComputesFareAndBooksOneEarning(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	ride := completedRide(t, svc)

	earning, fare, err := svc.Charge(ctx, ride.ID)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	wantFare := 1 + 0.5*geo.DistanceKm(-6.2, 106.8, -6.3, 106.7)
	if math.Abs(fare-wantFare) > 1e-9 {
		t.Fatalf("expected fare %f, got %f", wantFare, fare)
	}
	if earning.DriverID != "D1" || earning.RideID != ride.ID || earning.Amount != fare {
		t.Fatalf("unexpected earning %+v", earning)
	}
	got, _ := svc.Get(ctx, ride.ID)
	if got.Fare == nil || *got.Fare != fare {
		t.Fatalf("fare not persisted: %+v", got)
	}

	if _, _, err := svc.Charge(ctx, ride.ID); !errors.Is(err, apperrors.ErrStateConflict) {
		t.Fatalf("second charge must conflict, got %v", err)
	}
}

func TestChargeRequiresCompleted(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	ride, _ := svc.Request(ctx, "R1", -6.2, 106.8, -6.3, 106.7)
	if _, _, err := svc.Charge(ctx, ride.ID); !errors.Is(err, apperrors.ErrStateConflict) {
		t.Fatalf("charging a requested ride must conflict, got %v", err)
	}
}

func TestGetUnknownRide(t *testing.T) {
	svc, _, _ := testService(t)
	if _, err := svc.Get(context.Background(), 999); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func completedRide(t *testing.T, svc *Service) *models.Ride {
	t.Helper()
	ctx := context.Background()
	ride, err := svc.Request(ctx, "R1", -6.2, 106.8, -6.3, 106.7)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for _, op := range []func() (*models.Ride, error){
		func() (*models.Ride, error) { return svc.Match(ctx, ride.ID, "D1") },
		func() (*models.Ride, error) { return svc.Accept(ctx, ride.ID, "D1") },
		func() (*models.Ride, error) { return svc.Start(ctx, ride.ID) },
		func() (*models.Ride, error) { return svc.Complete(ctx, ride.ID) },
	} {
		if _, err := op(); err != nil {
			t.Fatalf("setup transition: %v", err)
		}
	}
	return ride
}
