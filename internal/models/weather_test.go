package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestWeatherSnapshot_UnmarshalProviderPayload verifies that a provider payload
// maps onto the flat snapshot fields, keeping only the first weather condition.
func TestWeatherSnapshot_UnmarshalProviderPayload(t *testing.T) {
	payload := `{"name":"Paris","main":{"temp":15,"humidity":60,"pressure":1012},
		"weather":[{"description":"nuageux","icon":"04d"},{"description":"pluie","icon":"10d"}],
		"wind":{"speed":3.2},"cod":200}`

	var got WeatherSnapshot
	if err := json.Unmarshal([]byte(payload), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := WeatherSnapshot{
		Location:    "Paris",
		Temperature: 15,
		Humidity:    60,
		Pressure:    1012,
		WindSpeed:   3.2,
		Description: "nuageux",
		Icon:        "04d",
	}
	if got != want {
		t.Errorf("Unmarshal() = %+v, want %+v", got, want)
	}
}

// TestWeatherSnapshot_NoConditions verifies that a payload without a weather
// array leaves description and icon empty instead of failing.
func TestWeatherSnapshot_NoConditions(t *testing.T) {
	var got WeatherSnapshot
	if err := json.Unmarshal([]byte(`{"name":"Lyon","main":{"temp":9}}`), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Description != "" || got.Icon != "" {
		t.Errorf("Description/Icon = %q/%q, want empty", got.Description, got.Icon)
	}
	if got.IconURL() != "" {
		t.Errorf("IconURL() = %q, want empty", got.IconURL())
	}
}

// TestCacheEntry_Layout verifies the persisted layout is {data, timestamp} with
// the snapshot in provider shape and the timestamp in epoch millis.
func TestCacheEntry_Layout(t *testing.T) {
	captured := time.UnixMilli(1700000000123)
	entry := NewCacheEntry(WeatherSnapshot{Location: "Paris", Icon: "04d"}, captured)

	raw, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"data":{"name":"Paris"`, `"timestamp":1700000000123`, `"icon":"04d"`} {
		if !strings.Contains(s, want) {
			t.Errorf("Marshal() = %s, missing %s", s, want)
		}
	}
	if !entry.CapturedAt().Equal(captured) {
		t.Errorf("CapturedAt() = %v, want %v", entry.CapturedAt(), captured)
	}
}

// TestCacheEntry_ValidAt verifies the validity window is half-open: an entry is
// valid strictly before the window elapses.
func TestCacheEntry_ValidAt(t *testing.T) {
	captured := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	entry := NewCacheEntry(WeatherSnapshot{}, captured)
	window := 10 * time.Minute

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"just captured", 0, true},
		{"five minutes", 5 * time.Minute, true},
		{"one milli before expiry", window - time.Millisecond, true},
		{"exactly at window", window, false},
		{"fifteen minutes", 15 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entry.ValidAt(captured.Add(tt.age), window); got != tt.want {
				t.Errorf("ValidAt(+%v) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}
