//go:build integration

package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/location-weather/internal/cache"
	"github.com/kjstillabower/location-weather/internal/client"
	"github.com/kjstillabower/location-weather/internal/geolocation"
	"github.com/kjstillabower/location-weather/internal/models"
)

// TestLocationWeatherFetcher_Integration runs a real fetch for Paris against
// OpenWeatherMap, persisting to SQLite, then serves the second refresh from the store.
func TestLocationWeatherFetcher_Integration(t *testing.T) {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	wc, err := client.NewOpenWeatherClient(apiKey, "https://api.openweathermap.org/data/2.5/weather", 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	locator, err := geolocation.NewStaticLocator(paris)
	if err != nil {
		t.Fatalf("NewStaticLocator() error = %v", err)
	}
	store, err := cache.OpenSQLiteStore(filepath.Join(t.TempDir(), "weather.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer store.Close()

	f := NewLocationWeatherFetcher(locator, wc, cache.NewEntryStore(store, ""))
	ctx := context.Background()

	first, err := f.Refresh(ctx, false)
	if err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	if first.Origin != models.OriginAPI || first.Snapshot.Location == "" {
		t.Errorf("first Refresh() = %+v, want named location from API", first)
	}

	second, err := f.Refresh(ctx, false)
	if err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if second.Origin != models.OriginCache || second.Snapshot != first.Snapshot {
		t.Errorf("second Refresh() = %+v, want stored snapshot from Cache", second)
	}
}
