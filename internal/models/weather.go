package models

import (
	"encoding/json"
	"time"
)

// Origin tells the presentation layer where a snapshot came from.
type Origin string

const (
	OriginCache Origin = "Cache"
	OriginAPI   Origin = "API"
)

// Coordinates is a position reported by the host. Never persisted.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WeatherSnapshot is the current weather as reported by the provider.
// It serializes to the provider's own layout (name, main, weather, wind) so a
// stored entry can be read back by anything that understands the upstream payload.
type WeatherSnapshot struct {
	Location    string
	Temperature float64 // °C
	Humidity    int     // %
	Pressure    int     // hPa
	WindSpeed   float64 // m/s
	Description string
	Icon        string
}

type snapshotWire struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
		Pressure int     `json:"pressure"`
	} `json:"main"`
	Weather []conditionWire `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type conditionWire struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// MarshalJSON encodes the snapshot in the provider layout.
func (s WeatherSnapshot) MarshalJSON() ([]byte, error) {
	var w snapshotWire
	w.Name = s.Location
	w.Main.Temp = s.Temperature
	w.Main.Humidity = s.Humidity
	w.Main.Pressure = s.Pressure
	w.Wind.Speed = s.WindSpeed
	w.Weather = []conditionWire{{Description: s.Description, Icon: s.Icon}}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a provider-layout payload. Only the first weather
// condition is kept; a payload without conditions leaves Description and Icon empty.
func (s *WeatherSnapshot) UnmarshalJSON(data []byte) error {
	var w snapshotWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = WeatherSnapshot{
		Location:    w.Name,
		Temperature: w.Main.Temp,
		Humidity:    w.Main.Humidity,
		Pressure:    w.Main.Pressure,
		WindSpeed:   w.Wind.Speed,
	}
	if len(w.Weather) > 0 {
		s.Description = w.Weather[0].Description
		s.Icon = w.Weather[0].Icon
	}
	return nil
}

// IconURL returns the provider's 2x icon image for the snapshot's condition.
func (s WeatherSnapshot) IconURL() string {
	if s.Icon == "" {
		return ""
	}
	return "http://openweathermap.org/img/wn/" + s.Icon + "@2x.png"
}

// CacheEntry is the value persisted under the cache key. Timestamp is epoch millis.
type CacheEntry struct {
	Data      WeatherSnapshot `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// NewCacheEntry stamps a snapshot with its capture time.
func NewCacheEntry(s WeatherSnapshot, capturedAt time.Time) CacheEntry {
	return CacheEntry{Data: s, Timestamp: capturedAt.UnixMilli()}
}

// CapturedAt returns the capture time of the entry.
func (e CacheEntry) CapturedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// ValidAt reports whether the entry may still be served at now.
// An entry is valid while now - capturedAt < window.
func (e CacheEntry) ValidAt(now time.Time, window time.Duration) bool {
	return now.Sub(e.CapturedAt()) < window
}
