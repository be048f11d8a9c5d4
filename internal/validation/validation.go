package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/kjstillabower/location-weather/internal/models"
)

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
var ErrLatitudeOutOfRange = errors.New("latitude out of range")

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
var ErrLongitudeOutOfRange = errors.New("longitude out of range")

// ErrCoordinateNotFinite is returned for NaN or infinite values.
var ErrCoordinateNotFinite = errors.New("coordinate is not a finite number")

// ValidateCoordinates checks that a position reported by a locator or read
// from config can be sent to the weather provider.
func ValidateCoordinates(c models.Coordinates) error {
	if !finite(c.Latitude) || !finite(c.Longitude) {
		return ErrCoordinateNotFinite
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: %v", ErrLatitudeOutOfRange, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: %v", ErrLongitudeOutOfRange, c.Longitude)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
