package aisstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// flakyServer sends one frame per connection and then hangs up.
func flakyServer(t *testing.T, accepted *atomic.Int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		n := accepted.Add(1)
		_ = conn.Write(r.Context(), websocket.MessageText, []byte{byte('0' + n)})
		conn.Close(websocket.StatusGoingAway, "bye")
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	t.Parallel()

	var accepted atomic.Int32
	srv := flakyServer(t, &accepted)
	defer srv.Close()

	c := NewClient(wsURL(srv), Options{Backoff: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case b := <-c.Msg:
			got = append(got, string(b))
		case <-timeout:
			t.Fatalf("received %v before timeout", got)
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Errorf("frames = %v, want one per connection in order", got)
	}
	if c.State() != DISCONNECTED {
		t.Errorf("state after stop = %v", c.State())
	}
}

func TestClientStaysConnecting(t *testing.T) {
	t.Parallel()

	// Nothing listens here, so the client cycles connect failures.
	c := NewClient("ws://127.0.0.1:1", Options{Backoff: 5 * time.Millisecond, DialTimeout: 100 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := c.Serve(ctx); err != context.DeadlineExceeded {
		t.Errorf("Serve returned %v", err)
	}
	if c.State() != DISCONNECTED {
		t.Errorf("state = %v", c.State())
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{DISCONNECTED: "disconnected", CONNECTING: "connecting", CONNECTED: "connected"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", s, s.String())
		}
	}
}
