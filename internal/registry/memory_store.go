package registry

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryVolatile is an in-process Store for single-binary runs and
// tests. Expiry is evaluated lazily against the injected clock, the
// same way the Redis keys age out.
type MemoryVolatile struct {
	mu        sync.Mutex
	now       func() time.Time
	locations map[string]string
	active    map[string]struct{}
	lastSeen  map[string]expiring
	cache     map[string]expiring
	tracks    map[string][]string
	trackExp  map[string]time.Time
}

type expiring struct {
	value    string
	deadline time.Time
}

func NewMemoryVolatile(now func() time.Time) *MemoryVolatile {
	if now == nil {
		now = time.Now
	}
	return &MemoryVolatile{
		now:       now,
		locations: make(map[string]string),
		active:    make(map[string]struct{}),
		lastSeen:  make(map[string]expiring),
		cache:     make(map[string]expiring),
		tracks:    make(map[string][]string),
		trackExp:  make(map[string]time.Time),
	}
}

func (s *MemoryVolatile) StoreLocation(ctx context.Context, driverID, payload string, ts int64, livenessTTL time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[driverID] = payload
	s.active[driverID] = struct{}{}
	s.lastSeen[driverID] = expiring{
		value:    strconv.FormatInt(ts, 10),
		deadline: s.now().Add(livenessTTL),
	}
	return nil
}

func (s *MemoryVolatile) Location(ctx context.Context, driverID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.locations[driverID]
	return v, ok, nil
}

func (s *MemoryVolatile) ActiveDrivers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for id := range s.active {
		out = append(out, id)
	}
	return out, nil
}

func (s *MemoryVolatile) LastSeen(ctx context.Context, driverID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lastSeen[driverID]
	if !ok || s.now().After(e.deadline) {
		delete(s.lastSeen, driverID)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryVolatile) Evict(ctx context.Context, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, driverID)
	return nil
}

func (s *MemoryVolatile) CacheGet(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache[key]
	if !ok || s.now().After(e.deadline) {
		delete(s.cache, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryVolatile) CacheSet(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = expiring{value: value, deadline: s.now().Add(ttl)}
	return nil
}

func (s *MemoryVolatile) AppendTrack(ctx context.Context, key, value string, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.trackExp[key]; ok && s.now().After(exp) {
		delete(s.tracks, key)
	}
	s.tracks[key] = append(s.tracks[key], value)
	s.trackExp[key] = s.now().Add(retention)
	return nil
}

func (s *MemoryVolatile) Track(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.trackExp[key]; ok && s.now().After(exp) {
		delete(s.tracks, key)
		delete(s.trackExp, key)
		return nil, nil
	}
	return append([]string(nil), s.tracks[key]...), nil
}
