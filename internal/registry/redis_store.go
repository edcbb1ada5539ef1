package registry

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	locationsKey = "driver_locations"
	activeSetKey = "active_drivers"
	lastSeenKey  = "driver_last_seen:"
)

// RedisStore implements Store on a shared Redis client. Key layout:
// driver_locations (hash: id -> snapshot), active_drivers (set),
// driver_last_seen:<id> (expiring liveness marker), nearby:* (query
// cache), ride:<id>:track (location history list).
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// StoreLocation groups the hash write, the active-set add and the
// liveness refresh into one MULTI/EXEC batch so a failure cannot leave
// a driver active without a discoverable location.
func (s *RedisStore) StoreLocation(ctx context.Context, driverID, payload string, ts int64, livenessTTL time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, locationsKey, driverID, payload)
	pipe.SAdd(ctx, activeSetKey, driverID)
	pipe.Set(ctx, lastSeenKey+driverID, strconv.FormatInt(ts, 10), livenessTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Location(ctx context.Context, driverID string) (string, bool, error) {
	v, err := s.client.HGet(ctx, locationsKey, driverID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) ActiveDrivers(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, activeSetKey).Result()
}

func (s *RedisStore) LastSeen(ctx context.Context, driverID string) (string, bool, error) {
	v, err := s.client.Get(ctx, lastSeenKey+driverID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Evict(ctx context.Context, driverID string) error {
	return s.client.SRem(ctx, activeSetKey, driverID).Err()
}

func (s *RedisStore) CacheGet(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) CacheSet(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.SetEx(ctx, key, value, ttl).Err()
}

func (s *RedisStore) AppendTrack(ctx context.Context, key, value string, retention time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, value)
	pipe.Expire(ctx, key, retention)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Track(ctx context.Context, key string) ([]string, error) {
	return s.client.LRange(ctx, key, 0, -1).Result()
}
