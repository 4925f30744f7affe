package bus

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"nhooyr.io/websocket"

	"github.com/abhinesh-kourav/maritime-route-simulation/aisstream"
	"github.com/abhinesh-kourav/maritime-route-simulation/simulator"
)

type fakeController struct {
	mu       sync.Mutex
	running  bool
	interval float64
	factor   float64
}

func (f *fakeController) Start(interval, factor float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return simulator.ErrAlreadyRunning
	}
	f.running, f.interval, f.factor = true, interval, factor
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return simulator.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeController) SetSpeedFactor(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factor = v
}

func (f *fakeController) state() (bool, float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.interval, f.factor
}

func startHub(t *testing.T) (*Hub, *fakeController, string) {
	t.Helper()

	ctrl := &fakeController{}
	hub := NewHub(ctrl, time.Second)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	return hub, ctrl, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readAck(t *testing.T, conn *websocket.Conn) aisstream.Ack {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ack aisstream.Ack
	if err := json.Unmarshal(b, &ack); err != nil {
		t.Fatalf("unmarshal %q: %v", b, err)
	}
	return ack
}

func TestBroadcastReachesEverySubscriber(t *testing.T) {
	t.Parallel()

	hub, _, url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)
	waitFor(t, func() bool { return hub.Count() == 2 })

	msg := aisstream.NewWireMessage(244000001, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), []string{"!AIVDM,x"})
	hub.Publish(context.Background(), msg)

	for _, conn := range []*websocket.Conn{a, b} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, raw, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var got aisstream.WireMessage
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatal(err)
		}
		if got.MMSI != 244000001 || got.Payload[0] != "!AIVDM,x" {
			t.Errorf("got %+v", got)
		}
	}
}

func TestDisconnectedSubscriberIsRemoved(t *testing.T) {
	t.Parallel()

	hub, _, url := startHub(t)
	keep := dial(t, url)
	gone := dial(t, url)
	waitFor(t, func() bool { return hub.Count() == 2 })

	gone.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return hub.Count() == 1 })

	if n := hub.Broadcast(context.Background(), []byte(`{"message":"AIVDM"}`)); n != 1 {
		t.Errorf("delivered to %d, want 1", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := keep.Read(ctx); err != nil {
		t.Errorf("remaining subscriber did not receive: %v", err)
	}
}

func TestBroadcastWithoutSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub(&fakeController{}, time.Second)
	if n := hub.Broadcast(context.Background(), []byte("{}")); n != 0 {
		t.Errorf("delivered to %d", n)
	}
}

func TestCommands(t *testing.T) {
	t.Parallel()

	_, ctrl, url := startHub(t)
	conn := dial(t, url)

	send(t, conn, map[string]any{"command": "start"})
	if ack := readAck(t, conn); ack.Status != aisstream.STATUS_STARTED || ack.Detail != "" {
		t.Errorf("start ack = %+v", ack)
	}
	if running, interval, factor := ctrl.state(); !running || interval != 5 || factor != 1 {
		t.Errorf("controller = %v %v %v, want defaults", running, interval, factor)
	}

	send(t, conn, map[string]any{"command": "start", "interval": 1, "speed_factor": 10})
	if ack := readAck(t, conn); ack.Status != aisstream.STATUS_STARTED || ack.Detail == "" {
		t.Errorf("second start ack = %+v, want informational", ack)
	}
	if _, interval, _ := ctrl.state(); interval != 5 {
		t.Errorf("second start changed interval to %v", interval)
	}

	// ignored without a reply
	if err := conn.Write(context.Background(), websocket.MessageText, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	send(t, conn, map[string]any{"command": "warp"})

	send(t, conn, map[string]any{"command": "set_speed_factor", "speed_factor": -1})
	if ack := readAck(t, conn); ack.Status != aisstream.STATUS_SPEED_UPDATED {
		t.Errorf("set_speed_factor ack = %+v", ack)
	}
	if _, _, factor := ctrl.state(); factor != -1 {
		t.Errorf("factor = %v", factor)
	}

	send(t, conn, map[string]any{"command": "stop"})
	if ack := readAck(t, conn); ack.Status != aisstream.STATUS_STOPPED {
		t.Errorf("stop ack = %+v", ack)
	}
	send(t, conn, map[string]any{"command": "stop"})
	if ack := readAck(t, conn); ack.Status != aisstream.STATUS_STOPPED {
		t.Errorf("repeated stop ack = %+v", ack)
	}
	if running, _, _ := ctrl.state(); running {
		t.Error("controller still running")
	}
}

func TestServeClosesSubscribers(t *testing.T) {
	t.Parallel()

	hub, _, url := startHub(t)
	conn := dial(t, url)
	waitFor(t, func() bool { return hub.Count() == 1 })

	readErr := make(chan error, 1)
	go func() {
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer rcancel()
		_, _, err := conn.Read(rctx)
		readErr <- err
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = hub.Serve(ctx)

	if hub.Count() != 0 {
		t.Errorf("count = %d after Serve returned", hub.Count())
	}
	if err := <-readErr; websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("read err = %v, want going away", err)
	}
}
