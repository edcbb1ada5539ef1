package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/models"
)

// MemoryStore is the in-process fallback used when no Postgres DSN is
// configured, and the store tests run against. Its CAS semantics match
// the Postgres implementation: the status precondition and the write
// happen under one lock.
type MemoryStore struct {
	mu       sync.RWMutex
	nextRide int64
	nextEarn int64
	rides    map[int64]models.Ride
	earnings map[int64]models.Earning // keyed by ride id
	users    map[string]models.User   // keyed by phone
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[int64]models.Ride),
		earnings: make(map[int64]models.Earning),
		users:    make(map[string]models.User),
	}
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRide++
	r.ID = m.nextRide
	r.Status = models.StatusRequested
	r.CreatedAt = time.Now()
	m.rides[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, apperrors.NotFoundf("ride %d", id)
	}
	return &r, nil
}

func (m *MemoryStore) UpdateStatusIf(ctx context.Context, id int64, from []models.Status, to models.Status, driverID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, apperrors.NotFoundf("ride %d", id)
	}
	allowed := false
	for _, f := range from {
		if r.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperrors.Conflictf("ride %d is %s", id, r.Status)
	}
	r.Status = to
	if driverID != "" {
		r.DriverID = driverID
	}
	m.rides[id] = r
	return &r, nil
}

func (m *MemoryStore) SetRating(ctx context.Context, id int64, rating int, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return apperrors.NotFoundf("ride %d", id)
	}
	r.Rating = &rating
	r.Comment = comment
	m.rides[id] = r
	return nil
}

func (m *MemoryStore) SetFare(ctx context.Context, id int64, fare float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return apperrors.NotFoundf("ride %d", id)
	}
	r.Fare = &fare
	m.rides[id] = r
	return nil
}

func (m *MemoryStore) RidesByRider(ctx context.Context, riderID string) ([]models.Ride, error) {
	return m.list(func(r models.Ride) bool { return r.RiderID == riderID }), nil
}

func (m *MemoryStore) RidesByDriver(ctx context.Context, driverID string) ([]models.Ride, error) {
	return m.list(func(r models.Ride) bool { return r.DriverID == driverID }), nil
}

func (m *MemoryStore) DriverAverageRating(ctx context.Context, driverID string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum, n float64
	for _, r := range m.rides {
		if r.DriverID == driverID && r.Rating != nil {
			sum += float64(*r.Rating)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / n, nil
}

func (m *MemoryStore) ActiveRideForDriver(ctx context.Context, driverID string) (*models.Ride, error) {
	active := m.list(func(r models.Ride) bool {
		return r.DriverID == driverID &&
			(r.Status == models.StatusAccepted || r.Status == models.StatusInProgress)
	})
	if len(active) == 0 {
		return nil, apperrors.NotFoundf("no active ride for driver %s", driverID)
	}
	return &active[0], nil
}

func (m *MemoryStore) InsertEarning(ctx context.Context, e *models.Earning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEarn++
	e.ID = m.nextEarn
	e.CreatedAt = time.Now()
	m.earnings[e.RideID] = *e
	return nil
}

func (m *MemoryStore) EarningForRide(ctx context.Context, rideID int64) (*models.Earning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.earnings[rideID]
	if !ok {
		return nil, apperrors.NotFoundf("no earning for ride %d", rideID)
	}
	return &e, nil
}

func (m *MemoryStore) EarningsByDriver(ctx context.Context, driverID string) ([]models.Earning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Earning
	for _, e := range m.earnings {
		if e.DriverID == driverID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) MarkEarningsPaid(ctx context.Context, driverID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for rideID, e := range m.earnings {
		if e.DriverID != driverID || e.Paid {
			continue
		}
		e.Paid = true
		e.PaidAt = &now
		m.earnings[rideID] = e
		n++
	}
	return n, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.Phone]; exists {
		return apperrors.Validationf("phone %s already registered", u.Phone)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now()
	m.users[u.Phone] = *u
	return nil
}

func (m *MemoryStore) UserByPhone(ctx context.Context, phone string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[phone]
	if !ok {
		return nil, apperrors.NotFoundf("user with phone %s", phone)
	}
	return &u, nil
}

func (m *MemoryStore) list(keep func(models.Ride) bool) []models.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ride
	for _, r := range m.rides {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
