package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInFlightTracker_CountsRequests(t *testing.T) {
	tracker := &InFlightTracker{}
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := tracker.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	}))

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/weather", nil))
		close(done)
	}()
	<-entered

	if got := tracker.Count(); got != 1 {
		t.Errorf("Count() during request = %d, want 1", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tracker.WaitForZero(ctx, 5*time.Millisecond); err != context.DeadlineExceeded {
		t.Errorf("WaitForZero() with request in flight = %v, want context.DeadlineExceeded", err)
	}

	close(release)
	<-done
	if err := tracker.WaitForZero(context.Background(), 5*time.Millisecond); err != nil {
		t.Errorf("WaitForZero() = %v, want nil", err)
	}
}
