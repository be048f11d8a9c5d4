package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/location-weather/internal/models"
)

func parisEntry(capturedAt time.Time) models.CacheEntry {
	return models.NewCacheEntry(models.WeatherSnapshot{
		Location:    "Paris",
		Temperature: 15,
		Humidity:    60,
		Pressure:    1012,
		WindSpeed:   3.2,
		Description: "nuageux",
		Icon:        "04d",
	}, capturedAt)
}

// backends returns every store that can run without external services.
func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sqliteStore, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "nested", "weather.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	mr := miniredis.RunT(t)
	redisStore := NewRedisStore(mr.Addr(), "", 0, time.Hour)
	t.Cleanup(func() { _ = redisStore.Close() })

	return map[string]Backend{
		BackendInMemory: NewInMemoryStore(),
		BackendSQLite:   sqliteStore,
		BackendRedis:    redisStore,
	}
}

// TestStores_GetSet verifies every backend stores and returns values byte for
// byte, overwrites whole values, and reports misses without error.
func TestStores_GetSet(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Ping(ctx))

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok, "Get() on missing key")

			require.NoError(t, store.Set(ctx, "k", []byte(`{"a":1}`)))
			got, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte(`{"a":1}`), got)

			require.NoError(t, store.Set(ctx, "k", []byte(`{"b":2}`)))
			got, _, err = store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"b":2}`), got)
		})
	}
}

// TestEntryStore_RoundTrip verifies that storing an entry and reading it back
// yields identical snapshot fields and timestamp on every backend.
func TestEntryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	captured := time.UnixMilli(time.Now().UnixMilli())
	want := parisEntry(captured)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			entries := NewEntryStore(store, "")
			assert.Equal(t, DefaultKey, entries.Key())

			_, ok, err := entries.Load(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, entries.Save(ctx, want))
			got, ok, err := entries.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)
			assert.True(t, got.CapturedAt().Equal(captured))
		})
	}
}

// TestEntryStore_LocalStorageLayout verifies an entry written by the original
// browser widget (same JSON layout) is readable.
func TestEntryStore_LocalStorageLayout(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	raw := `{"data":{"coord":{"lon":2.35,"lat":48.85},"weather":[{"id":804,"main":"Clouds","description":"nuageux","icon":"04d"}],` +
		`"main":{"temp":15,"humidity":60,"pressure":1012},"wind":{"speed":3.2},"name":"Paris"},"timestamp":1760000000000}`
	require.NoError(t, store.Set(ctx, DefaultKey, []byte(raw)))

	got, ok, err := NewEntryStore(store, DefaultKey).Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, parisEntry(time.UnixMilli(1760000000000)), got)
}

// TestEntryStore_CorruptValue verifies undecodable values surface as ErrCorruptEntry.
func TestEntryStore_CorruptValue(t *testing.T) {
	ctx := context.Background()
	tests := map[string]string{
		"not json":          "{oops",
		"missing timestamp": `{"data":{"name":"Paris"}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			store := NewInMemoryStore()
			require.NoError(t, store.Set(ctx, "k", []byte(raw)))

			_, ok, err := NewEntryStore(store, "k").Load(ctx)
			assert.False(t, ok)
			assert.True(t, errors.Is(err, ErrCorruptEntry), "error = %v", err)
		})
	}
}

// TestInMemoryStore_CopiesValues verifies callers cannot mutate stored bytes.
func TestInMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'x'

	got, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got[1] = 'y'

	again, _, _ := store.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

// TestSQLiteStore_SurvivesReopen verifies values persist across process restarts.
func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "weather.db")

	first, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, DefaultKey, []byte("persisted")))
	require.NoError(t, first.Close())

	second, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()
	got, ok, err := second.Get(ctx, DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("persisted"), got)
}

// TestRedisStore_RetentionOutlivesValidity verifies redis keeps values for the
// configured retention rather than the validity window.
func TestRedisStore_RetentionOutlivesValidity(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := NewRedisStore(mr.Addr(), "", 0, time.Hour)
	defer store.Close()

	require.NoError(t, store.Set(ctx, DefaultKey, []byte("v")))
	mr.FastForward(15 * time.Minute)
	_, ok, err := store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok, "value should outlive the 10 minute validity window")

	mr.FastForward(time.Hour)
	_, ok, err = store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok, "value should be gone after retention")
}

// TestRedisStore_Unreachable verifies backend failures are returned as errors, not misses.
func TestRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(mr.Addr(), "", 0, time.Hour)
	defer store.Close()
	mr.Close()

	_, ok, err := store.Get(context.Background(), DefaultKey)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	store, err := Open(Options{Backend: BackendInMemory})
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, store)

	store, err = Open(Options{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "w.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	_ = store.Close()

	store, err = Open(Options{Backend: BackendMemcached, MemcachedAddrs: "localhost:11211"})
	require.NoError(t, err)
	assert.IsType(t, &MemcachedStore{}, store)

	_, err = Open(Options{Backend: "floppy"})
	assert.Error(t, err)
}

func TestExpirationSeconds(t *testing.T) {
	assert.Equal(t, int32(86400), expirationSeconds(0))
	assert.Equal(t, int32(3600), expirationSeconds(time.Hour))
	assert.Equal(t, int32(30*24*60*60), expirationSeconds(365*24*time.Hour))
}
