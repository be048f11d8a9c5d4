package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kjstillabower/location-weather/internal/cache"
	"github.com/kjstillabower/location-weather/internal/client"
	"github.com/kjstillabower/location-weather/internal/geolocation"
	"github.com/kjstillabower/location-weather/internal/models"
	"github.com/kjstillabower/location-weather/internal/observability"
)

// DefaultValidity is how long a stored snapshot may be served without refetching.
const DefaultValidity = 10 * time.Minute

const (
	modeCached = "cached"
	modeForced = "forced"
)

var tracer = otel.Tracer("github.com/kjstillabower/location-weather/internal/service")

// Outcome is a successful refresh: the snapshot, where it came from and when
// it was captured.
type Outcome struct {
	Snapshot   models.WeatherSnapshot
	Origin     models.Origin
	CapturedAt time.Time
}

// LocationWeatherFetcher resolves the host position and returns current weather,
// serving the stored entry while it is still valid.
type LocationWeatherFetcher struct {
	locator   geolocation.Locator
	client    client.WeatherClient
	entries   *cache.EntryStore
	validity  time.Duration
	now       func() time.Time
	logger    *zap.Logger
	coalescer *refreshCoalescer
}

// Option configures a LocationWeatherFetcher.
type Option func(*LocationWeatherFetcher)

// WithValidity overrides DefaultValidity.
func WithValidity(d time.Duration) Option {
	return func(f *LocationWeatherFetcher) {
		if d > 0 {
			f.validity = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *LocationWeatherFetcher) {
		if now != nil {
			f.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *LocationWeatherFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithCoalescing makes concurrent refreshes of the same mode share one
// in-flight refresh. Joined callers wait at most timeout. Zero disables it.
func WithCoalescing(timeout time.Duration) Option {
	return func(f *LocationWeatherFetcher) {
		if timeout > 0 {
			f.coalescer = newRefreshCoalescer(timeout)
		} else {
			f.coalescer = nil
		}
	}
}

// NewLocationWeatherFetcher wires a fetcher. A nil locator behaves as a host
// without geolocation support.
func NewLocationWeatherFetcher(locator geolocation.Locator, weatherClient client.WeatherClient, entries *cache.EntryStore, opts ...Option) *LocationWeatherFetcher {
	f := &LocationWeatherFetcher{
		locator:  locator,
		client:   weatherClient,
		entries:  entries,
		validity: DefaultValidity,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Refresh returns current weather for the host position. Unless force is set,
// a stored entry younger than the validity window is returned with origin
// Cache and no network call is made. Otherwise the provider is called once and
// a successful result is stored and returned with origin API.
//
// Failures are *geolocation.PositionError or *FetchError. Neither is retried,
// and a failed fetch never falls back to an expired entry.
func (f *LocationWeatherFetcher) Refresh(ctx context.Context, force bool) (Outcome, error) {
	mode := modeCached
	if force {
		mode = modeForced
	}

	var (
		outcome Outcome
		err     error
	)
	if f.coalescer == nil {
		outcome, err = f.refresh(ctx, force)
	} else {
		var shared bool
		outcome, shared, err = f.coalescer.Do(ctx, mode, func(ctx context.Context) (Outcome, error) {
			return f.refresh(ctx, force)
		})
		if shared {
			observability.RefreshCoalescedTotal.WithLabelValues(mode).Inc()
		}
	}

	observability.RefreshesTotal.WithLabelValues(mode, resultLabel(outcome, err)).Inc()
	return outcome, err
}

func (f *LocationWeatherFetcher) refresh(ctx context.Context, force bool) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "LocationWeatherFetcher.Refresh", trace.WithAttributes(attribute.Bool("weather.force", force)))
	defer span.End()
	logger := observability.LoggerFromContext(ctx, f.logger)
	start := f.now()

	coords, err := f.position(ctx)
	if err != nil {
		var posErr *geolocation.PositionError
		if errors.As(err, &posErr) {
			observability.PositionErrorsTotal.WithLabelValues(string(posErr.Kind)).Inc()
			logger.Info("position unavailable", zap.String("kind", string(posErr.Kind)), zap.NamedError("cause", posErr.Err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "position")
		return Outcome{}, err
	}

	if force {
		observability.CacheMissesTotal.WithLabelValues("forced").Inc()
	} else if outcome, ok := f.fromStore(ctx, logger); ok {
		span.SetAttributes(attribute.String("weather.origin", string(outcome.Origin)))
		logger.Debug("weather served", zap.String("origin", string(outcome.Origin)), zap.Duration("duration", f.now().Sub(start)))
		return outcome, nil
	}

	outcome, err := f.fetch(ctx, logger, coords)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch")
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("weather.origin", string(outcome.Origin)))
	logger.Debug("weather served", zap.String("origin", string(outcome.Origin)), zap.Duration("duration", f.now().Sub(start)))
	return outcome, nil
}

func (f *LocationWeatherFetcher) position(ctx context.Context) (models.Coordinates, error) {
	ctx, span := tracer.Start(ctx, "geolocation.CurrentPosition")
	defer span.End()
	return geolocation.Locate(ctx, f.locator)
}

// fromStore returns the stored entry when it is still valid. Read failures and
// undecodable entries count as a miss.
func (f *LocationWeatherFetcher) fromStore(ctx context.Context, logger *zap.Logger) (Outcome, bool) {
	opStart := time.Now()
	entry, ok, err := f.entries.Load(ctx)
	observeStoreOp("get", err, time.Since(opStart))

	switch {
	case err != nil:
		reason := "error"
		if errors.Is(err, cache.ErrCorruptEntry) {
			reason = "corrupt"
		}
		observability.CacheMissesTotal.WithLabelValues(reason).Inc()
		logger.Warn("cache read failed, treating as miss", zap.String("key", f.entries.Key()), zap.Error(err))
		return Outcome{}, false
	case !ok:
		observability.CacheMissesTotal.WithLabelValues("absent").Inc()
		logger.Debug("cache miss", zap.String("key", f.entries.Key()))
		return Outcome{}, false
	}

	now := f.now()
	age := now.Sub(entry.CapturedAt())
	if !entry.ValidAt(now, f.validity) {
		observability.CacheMissesTotal.WithLabelValues("expired").Inc()
		logger.Debug("cache entry expired", zap.String("key", f.entries.Key()), zap.Duration("age", age))
		return Outcome{}, false
	}

	observability.CacheHitsTotal.Inc()
	observability.CacheEntryAgeSeconds.Observe(age.Seconds())
	logger.Debug("cache hit", zap.String("key", f.entries.Key()), zap.Duration("age", age))
	return Outcome{Snapshot: entry.Data, Origin: models.OriginCache, CapturedAt: entry.CapturedAt()}, true
}

func (f *LocationWeatherFetcher) fetch(ctx context.Context, logger *zap.Logger, coords models.Coordinates) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "weather.GetCurrentWeather", trace.WithAttributes(
		attribute.Float64("geo.latitude", coords.Latitude),
		attribute.Float64("geo.longitude", coords.Longitude),
	))
	defer span.End()

	snapshot, err := f.client.GetCurrentWeather(ctx, coords)
	if err != nil {
		category := client.CategorizeError(err)
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(category)).Inc()
		logger.Warn("weather fetch failed", zap.String("category", string(category)), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(category))
		return Outcome{}, &FetchError{Err: err}
	}

	capturedAt := f.now()
	entry := models.NewCacheEntry(snapshot, capturedAt)
	opStart := time.Now()
	setErr := f.entries.Save(ctx, entry)
	observeStoreOp("set", setErr, time.Since(opStart))
	if setErr != nil {
		logger.Warn("cache write failed", zap.String("key", f.entries.Key()), zap.Error(setErr))
	}

	return Outcome{Snapshot: snapshot, Origin: models.OriginAPI, CapturedAt: entry.CapturedAt()}, nil
}

func observeStoreOp(operation string, err error, d time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
		observability.CacheErrorsTotal.WithLabelValues(operation).Inc()
	}
	observability.CacheOperationDurationSeconds.WithLabelValues(operation, result).Observe(d.Seconds())
}

func resultLabel(outcome Outcome, err error) string {
	var posErr *geolocation.PositionError
	var fetchErr *FetchError
	switch {
	case err == nil && outcome.Origin == models.OriginCache:
		return "cache"
	case err == nil:
		return "api"
	case errors.As(err, &posErr):
		return "position_error"
	case errors.As(err, &fetchErr):
		return "fetch_error"
	default:
		return "canceled"
	}
}
