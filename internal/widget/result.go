package widget

import (
	"errors"
	"time"

	"github.com/kjstillabower/location-weather/internal/geolocation"
	"github.com/kjstillabower/location-weather/internal/models"
	"github.com/kjstillabower/location-weather/internal/service"
)

// State is what the widget currently shows.
type State int

const (
	StateLoading State = iota
	StateError
	StateData
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateError:
		return "error"
	case StateData:
		return "data"
	default:
		return "unknown"
	}
}

// ErrorKind groups failures for presentation.
type ErrorKind string

const (
	ErrorPosition ErrorKind = "position"
	ErrorFetch    ErrorKind = "fetch"
	ErrorOther    ErrorKind = "other"
)

// Result is one of Loading, Error or Data. Only the fields of the current
// State are meaningful.
type Result struct {
	State State

	// Error
	Kind    ErrorKind
	Message string
	Err     error

	// Data
	Snapshot   models.WeatherSnapshot
	Origin     models.Origin
	CapturedAt time.Time
}

// Loading is shown while a refresh is in progress.
func Loading() Result {
	return Result{State: StateLoading}
}

// Failed builds an Error result carrying the user-facing message of err.
func Failed(err error) Result {
	r := Result{State: StateError, Err: err, Kind: ErrorOther}
	var posErr *geolocation.PositionError
	var fetchErr *service.FetchError
	switch {
	case errors.As(err, &posErr):
		r.Kind = ErrorPosition
		r.Message = posErr.Error()
	case errors.As(err, &fetchErr):
		r.Kind = ErrorFetch
		r.Message = fetchErr.Error()
	default:
		r.Message = "La demande a été interrompue."
	}
	return r
}

// Ready builds a Data result from a successful refresh.
func Ready(o service.Outcome) Result {
	return Result{State: StateData, Snapshot: o.Snapshot, Origin: o.Origin, CapturedAt: o.CapturedAt}
}

// FromRefresh converts the return values of Refresh into a Result.
func FromRefresh(o service.Outcome, err error) Result {
	if err != nil {
		return Failed(err)
	}
	return Ready(o)
}
