package geolocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/kjstillabower/location-weather/internal/models"
	"github.com/kjstillabower/location-weather/internal/validation"
)

// Locator answers a single "where is the host now" request.
type Locator interface {
	CurrentPosition(ctx context.Context) (models.Coordinates, error)
}

// ErrorKind is a stable label for why a position could not be obtained.
type ErrorKind string

const (
	KindUnsupported         ErrorKind = "unsupported"
	KindPermissionDenied    ErrorKind = "permission_denied"
	KindPositionUnavailable ErrorKind = "position_unavailable"
	KindTimeout             ErrorKind = "timeout"
)

// Message returns the text shown to the end user for this kind.
func (k ErrorKind) Message() string {
	switch k {
	case KindUnsupported:
		return "La géolocalisation n'est pas supportée par cet environnement."
	case KindPermissionDenied:
		return "L'accès à votre position a été refusé."
	case KindTimeout:
		return "La demande de position a expiré."
	default:
		return "Votre position est indisponible."
	}
}

// PositionError is returned by Locate when no position could be obtained.
// Error returns the user-facing message; Err keeps the underlying cause.
type PositionError struct {
	Kind ErrorKind
	Err  error
}

func (e *PositionError) Error() string {
	return e.Kind.Message()
}

func (e *PositionError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, ErrPermissionDenied)
// holds for any PositionError of that kind.
func (e *PositionError) Is(target error) bool {
	t, ok := target.(*PositionError)
	if !ok {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

var (
	ErrUnsupported         = &PositionError{Kind: KindUnsupported}
	ErrPermissionDenied    = &PositionError{Kind: KindPermissionDenied}
	ErrPositionUnavailable = &PositionError{Kind: KindPositionUnavailable}
	ErrTimeout             = &PositionError{Kind: KindTimeout}
)

// Locate asks l for the current position and normalizes every failure into a
// *PositionError. A nil locator means the host has no geolocation capability.
func Locate(ctx context.Context, l Locator) (models.Coordinates, error) {
	if l == nil {
		return models.Coordinates{}, &PositionError{Kind: KindUnsupported}
	}
	coords, err := l.CurrentPosition(ctx)
	if err != nil {
		return models.Coordinates{}, classify(err)
	}
	if err := validation.ValidateCoordinates(coords); err != nil {
		return models.Coordinates{}, &PositionError{Kind: KindPositionUnavailable, Err: fmt.Errorf("invalid position: %w", err)}
	}
	return coords, nil
}

func classify(err error) *PositionError {
	var pe *PositionError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &PositionError{Kind: KindTimeout, Err: err}
	}
	return &PositionError{Kind: KindPositionUnavailable, Err: err}
}

// Unsupported is the locator of a host without any geolocation capability.
type Unsupported struct{}

func (Unsupported) CurrentPosition(ctx context.Context) (models.Coordinates, error) {
	return models.Coordinates{}, &PositionError{Kind: KindUnsupported}
}

// StaticLocator always reports the same configured position.
type StaticLocator struct {
	coords models.Coordinates
}

// NewStaticLocator validates coords and returns a locator reporting them.
func NewStaticLocator(coords models.Coordinates) (*StaticLocator, error) {
	if err := validation.ValidateCoordinates(coords); err != nil {
		return nil, fmt.Errorf("static locator: %w", err)
	}
	return &StaticLocator{coords: coords}, nil
}

func (s *StaticLocator) CurrentPosition(ctx context.Context) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	return s.coords, nil
}
