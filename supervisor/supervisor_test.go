package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
)

type fakeServer struct {
	stop      chan struct{}
	shutdowns atomic.Int32
}

func (f *fakeServer) ListenAndServe() error {
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	close(f.stop)
	return nil
}

func TestHTTPServiceShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	srv := &fakeServer{stop: make(chan struct{})}
	svc := NewHTTPService("portal", srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if srv.shutdowns.Load() != 1 {
		t.Errorf("Shutdown called %d times", srv.shutdowns.Load())
	}
	if svc.String() != "portal" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestTreeRestartsFailedService(t *testing.T) {
	t.Parallel()

	tree := NewTree("test", logging.NewSlogLogger(), TreeConfig{FailureBackoff: time.Millisecond})

	var runs atomic.Int32
	restarted := make(chan struct{})
	tree.AddPipeline(Func{Name: "flaky", Run: func(ctx context.Context) error {
		switch runs.Add(1) {
		case 1:
			return errors.New("boom")
		case 2:
			close(restarted)
		}
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	select {
	case <-restarted:
	case <-time.After(5 * time.Second):
		t.Fatal("service was not restarted")
	}

	cancel()
	<-errCh
	if runs.Load() != 2 {
		t.Errorf("runs = %d, want 2", runs.Load())
	}
}
