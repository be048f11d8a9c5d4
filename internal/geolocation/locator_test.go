package geolocation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kjstillabower/location-weather/internal/models"
)

type fakeLocator struct {
	coords models.Coordinates
	err    error
}

func (f fakeLocator) CurrentPosition(ctx context.Context) (models.Coordinates, error) {
	return f.coords, f.err
}

// TestLocate_NilLocatorIsUnsupported verifies that a host without any locator
// resolves to the unsupported kind with its user-facing message.
func TestLocate_NilLocatorIsUnsupported(t *testing.T) {
	_, err := Locate(context.Background(), nil)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Locate(nil) error = %v, want ErrUnsupported", err)
	}
	if err.Error() != "La géolocalisation n'est pas supportée par cet environnement." {
		t.Errorf("message = %q", err.Error())
	}
}

// TestLocate_Classification verifies that raw locator errors are normalized
// into PositionError kinds.
func TestLocate_Classification(t *testing.T) {
	tests := []struct {
		name    string
		loc     Locator
		wantErr error
	}{
		{"unsupported locator", Unsupported{}, ErrUnsupported},
		{"permission denied passes through", fakeLocator{err: &PositionError{Kind: KindPermissionDenied}}, ErrPermissionDenied},
		{"deadline becomes timeout", fakeLocator{err: context.DeadlineExceeded}, ErrTimeout},
		{"other error becomes unavailable", fakeLocator{err: errors.New("gps off")}, ErrPositionUnavailable},
		{"out of range position is unavailable", fakeLocator{coords: models.Coordinates{Latitude: 123}}, ErrPositionUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Locate(context.Background(), tc.loc)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Locate() error = %v, want %v", err, tc.wantErr)
			}
			var pe *PositionError
			if !errors.As(err, &pe) {
				t.Errorf("Locate() error %T is not *PositionError", err)
			}
		})
	}
}

// TestPositionError_IsDistinguishesKinds verifies that kind sentinels do not
// match errors of another kind.
func TestPositionError_IsDistinguishesKinds(t *testing.T) {
	err := &PositionError{Kind: KindTimeout, Err: context.DeadlineExceeded}
	if errors.Is(err, ErrPermissionDenied) {
		t.Error("timeout error matched ErrPermissionDenied")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("PositionError should unwrap to its cause")
	}
}

func TestStaticLocator(t *testing.T) {
	paris := models.Coordinates{Latitude: 48.85, Longitude: 2.35}
	l, err := NewStaticLocator(paris)
	if err != nil {
		t.Fatalf("NewStaticLocator() error = %v", err)
	}
	got, err := Locate(context.Background(), l)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if got != paris {
		t.Errorf("Locate() = %+v, want %+v", got, paris)
	}

	if _, err := NewStaticLocator(models.Coordinates{Longitude: 500}); err == nil {
		t.Error("NewStaticLocator() with invalid longitude expected error")
	}
}

// TestIPLocator_Success verifies that a successful ip-api style response is
// mapped to coordinates.
func TestIPLocator_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","city":"Paris","lat":48.85,"lon":2.35}`))
	}))
	defer server.Close()

	got, err := NewIPLocator(server.URL, time.Second).CurrentPosition(context.Background())
	if err != nil {
		t.Fatalf("CurrentPosition() error = %v", err)
	}
	if got.Latitude != 48.85 || got.Longitude != 2.35 {
		t.Errorf("CurrentPosition() = %+v, want (48.85, 2.35)", got)
	}
}

func TestIPLocator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			wantErr: ErrPermissionDenied,
		},
		{
			name: "lookup failed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"fail","message":"private range"}`))
			},
			wantErr: ErrPositionUnavailable,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: ErrPositionUnavailable,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{not json`))
			},
			wantErr: ErrPositionUnavailable,
		},
		{
			name: "slow lookup",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
			wantErr: ErrTimeout,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			_, err := NewIPLocator(server.URL, 50*time.Millisecond).CurrentPosition(context.Background())
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("CurrentPosition() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
