package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

// Store is the narrow volatile-store surface the registry needs. The
// production implementation wraps Redis; tests use MemoryVolatile.
// StoreLocation must apply its writes as one atomic batch so a crash
// cannot leave a driver active without a discoverable location.
type Store interface {
	StoreLocation(ctx context.Context, driverID, payload string, ts int64, livenessTTL time.Duration) error
	Location(ctx context.Context, driverID string) (string, bool, error)
	ActiveDrivers(ctx context.Context) ([]string, error)
	LastSeen(ctx context.Context, driverID string) (string, bool, error)
	Evict(ctx context.Context, driverID string) error
	CacheGet(ctx context.Context, key string) (string, bool, error)
	CacheSet(ctx context.Context, key, value string, ttl time.Duration) error
	AppendTrack(ctx context.Context, key, value string, retention time.Duration) error
	Track(ctx context.Context, key string) ([]string, error)
}

// Config carries the registry's time windows. LivenessTTL (active-set
// membership) and Freshness (direct single-driver reads) are distinct
// knobs and intentionally default to different values.
type Config struct {
	LivenessTTL    time.Duration
	Freshness      time.Duration
	CacheTTL       time.Duration
	TrackRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		LivenessTTL:    15 * time.Second,
		Freshness:      10 * time.Second,
		CacheTTL:       10 * time.Second,
		TrackRetention: time.Hour,
	}
}

// Registry tracks each active driver's last known position and answers
// proximity queries. Liveness is evaluated lazily at read time; there
// is no background sweep.
type Registry struct {
	store  Store
	bus    bus.Bus
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, b bus.Bus, cfg Config, logger *slog.Logger) *Registry {
	return &Registry{store: store, bus: b, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock overrides the wall clock. Tests use it to age entries
// without sleeping.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// ReportLocation records the driver's position, marks it active and
// refreshes its liveness key, then broadcasts the snapshot for live
// consumers.
func (r *Registry) ReportLocation(ctx context.Context, driverID string, lat, lng float64) (models.DriverLocation, error) {
	if driverID == "" {
		return models.DriverLocation{}, apperrors.Validationf("missing driver id")
	}
	if !geo.ValidCoord(lat, lng) {
		return models.DriverLocation{}, apperrors.Validationf("invalid coordinates %f,%f", lat, lng)
	}
	loc := models.DriverLocation{DriverID: driverID, Lat: lat, Lng: lng, Ts: r.now().UnixMilli()}
	payload, err := json.Marshal(loc)
	if err != nil {
		return models.DriverLocation{}, err
	}
	if err := r.store.StoreLocation(ctx, driverID, string(payload), loc.Ts, r.cfg.LivenessTTL); err != nil {
		return models.DriverLocation{}, err
	}
	observability.LocationReports.Inc()
	if err := r.bus.Publish(ctx, bus.ChannelDriverLocation, loc); err != nil {
		// The snapshot is stored; a lost broadcast only delays live views.
		r.logger.Warn("location broadcast failed", "driver_id", driverID, "error", err)
	}
	return loc, nil
}

// QueryNearby returns active drivers within radiusKm of the center,
// each annotated with its haversine distance. Results are cached under
// the quantized center and radius; a cache hit returns the snapshot
// verbatim without re-evaluating liveness.
func (r *Registry) QueryNearby(ctx context.Context, lat, lng, radiusKm float64) ([]models.NearbyDriver, error) {
	if !geo.ValidCoord(lat, lng) {
		return nil, apperrors.Validationf("invalid coordinates %f,%f", lat, lng)
	}
	if radiusKm <= 0 {
		return nil, apperrors.Validationf("radius must be > 0")
	}
	key := geo.QuantizeKey(lat, lng, radiusKm)
	if cached, ok, err := r.store.CacheGet(ctx, key); err == nil && ok {
		var out []models.NearbyDriver
		if err := json.Unmarshal([]byte(cached), &out); err == nil {
			observability.NearbyCacheHits.Inc()
			return out, nil
		}
	}
	observability.NearbyCacheMisses.Inc()

	ids, err := r.store.ActiveDrivers(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]models.NearbyDriver, 0, len(ids))
	for _, id := range ids {
		live, err := r.isLive(ctx, id)
		if err != nil {
			return nil, err
		}
		if !live {
			// lazy eviction: expired drivers leave the set on read
			if err := r.store.Evict(ctx, id); err != nil {
				r.logger.Warn("evict failed", "driver_id", id, "error", err)
			}
			continue
		}
		raw, ok, err := r.store.Location(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var loc models.DriverLocation
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			continue
		}
		dist := geo.DistanceKm(lat, lng, loc.Lat, loc.Lng)
		if dist <= radiusKm {
			results = append(results, models.NearbyDriver{
				DriverID:   id,
				Lat:        loc.Lat,
				Lng:        loc.Lng,
				DistanceKm: dist,
			})
		}
	}
	if data, err := json.Marshal(results); err == nil {
		if err := r.store.CacheSet(ctx, key, string(data), r.cfg.CacheTTL); err != nil {
			r.logger.Warn("nearby cache write failed", "key", key, "error", err)
		}
	}
	return results, nil
}

// Location returns the last reported snapshot without judging staleness.
func (r *Registry) Location(ctx context.Context, driverID string) (models.DriverLocation, error) {
	raw, ok, err := r.store.Location(ctx, driverID)
	if err != nil {
		return models.DriverLocation{}, err
	}
	if !ok {
		return models.DriverLocation{}, apperrors.NotFoundf("location for driver %s", driverID)
	}
	var loc models.DriverLocation
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return models.DriverLocation{}, err
	}
	if loc.DriverID == "" {
		loc.DriverID = driverID
	}
	return loc, nil
}

// FreshLocation applies the freshness threshold, which is separate
// from the liveness TTL used for active-set membership.
func (r *Registry) FreshLocation(ctx context.Context, driverID string) (models.DriverLocation, error) {
	loc, err := r.Location(ctx, driverID)
	if err != nil {
		return models.DriverLocation{}, err
	}
	age := r.now().Sub(time.UnixMilli(loc.Ts))
	if age > r.cfg.Freshness {
		return models.DriverLocation{}, apperrors.Stalef("driver %s location is %s old", driverID, age.Truncate(time.Millisecond))
	}
	return loc, nil
}

// AppendTrack appends a location sample to the ride's replay history.
func (r *Registry) AppendTrack(ctx context.Context, rideID int64, loc models.DriverLocation) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return r.store.AppendTrack(ctx, trackKey(rideID), string(data), r.cfg.TrackRetention)
}

// Track returns the recorded location history for a ride, oldest first.
func (r *Registry) Track(ctx context.Context, rideID int64) ([]models.DriverLocation, error) {
	raw, err := r.store.Track(ctx, trackKey(rideID))
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverLocation, 0, len(raw))
	for _, entry := range raw {
		var loc models.DriverLocation
		if err := json.Unmarshal([]byte(entry), &loc); err != nil {
			continue
		}
		out = append(out, loc)
	}
	return out, nil
}

func (r *Registry) isLive(ctx context.Context, driverID string) (bool, error) {
	v, ok, err := r.store.LastSeen(ctx, driverID)
	if err != nil || !ok {
		return false, err
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, nil
	}
	return r.now().Sub(time.UnixMilli(ts)) <= r.cfg.LivenessTTL, nil
}

func trackKey(rideID int64) string {
	return "ride:" + strconv.FormatInt(rideID, 10) + ":track"
}
