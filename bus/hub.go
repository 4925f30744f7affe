// Package bus fans simulator position reports out to websocket subscribers
// and turns subscriber control messages into simulator calls.
package bus

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/abhinesh-kourav/maritime-route-simulation/aisstream"
	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
	"github.com/abhinesh-kourav/maritime-route-simulation/metrics"
	"github.com/abhinesh-kourav/maritime-route-simulation/simulator"
)

const (
	WRITE_TIMEOUT = 5 * time.Second
	READ_LIMIT    = 64 << 10
	STATUS_ERROR  = "error"
)

// Controller is the simulator surface the bus drives.
type Controller interface {
	Start(intervalMinutes, speedFactor float64) error
	Stop() error
	SetSpeedFactor(f float64)
}

type subscriber struct {
	id   string
	conn *websocket.Conn
}

// Hub holds the live subscriber set. Delivery is best effort: a subscriber
// whose write fails is removed once the broadcast has been attempted on
// everyone else.
type Hub struct {
	ctrl         Controller
	writeTimeout time.Duration

	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewHub(ctrl Controller, writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = WRITE_TIMEOUT
	}
	return &Hub{
		ctrl:         ctrl,
		writeTimeout: writeTimeout,
		subs:         make(map[string]*subscriber),
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add(s *subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s.id] = s
	metrics.BusSubscribers.Set(float64(len(h.subs)))
	return len(h.subs)
}

func (h *Hub) remove(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return false
	}
	delete(h.subs, s.id)
	metrics.BusSubscribers.Set(float64(len(h.subs)))
	return true
}

func (h *Hub) snapshot() []*subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	return subs
}

// Publish encodes msg once and broadcasts it. It satisfies simulator.Sink.
func (h *Hub) Publish(ctx context.Context, msg aisstream.WireMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Int("mmsi", msg.MMSI).Msg("could not marshal wire message")
		return
	}
	h.Broadcast(ctx, b)
}

// Broadcast writes b to every subscriber and returns how many accepted it.
func (h *Hub) Broadcast(ctx context.Context, b []byte) int {
	subs := h.snapshot()
	if len(subs) == 0 {
		logging.Trace().Msg("no subscribers, message not delivered")
		return 0
	}

	// A stopping simulator cancels ctx; in-flight writes still get their timeout.
	ctx = context.WithoutCancel(ctx)

	var failed []*subscriber
	for _, s := range subs {
		if err := h.write(ctx, s, b); err != nil {
			logging.Debug().Err(err).Str("subscriber", s.id).Msg("delivery failed")
			failed = append(failed, s)
		}
	}

	for _, s := range failed {
		if h.remove(s) {
			s.conn.CloseNow()
			metrics.BusDroppedSubscribers.Inc()
			logging.Info().Str("subscriber", s.id).Int("subscribers", h.Count()).Msg("dropped subscriber after failed delivery")
		}
	}

	metrics.BusBroadcasts.Inc()
	return len(subs) - len(failed)
}

func (h *Hub) write(ctx context.Context, s *subscriber, b []byte) error {
	wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, b)
}

// ServeHTTP upgrades the request, registers the subscriber and reads its
// control commands until the connection ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket accept failed")
		return
	}
	conn.SetReadLimit(READ_LIMIT)

	s := &subscriber{id: uuid.NewString(), conn: conn}
	n := h.add(s)
	logging.Info().Str("subscriber", s.id).Str("remote", r.RemoteAddr).Int("subscribers", n).Msg("subscriber connected")

	defer func() {
		if h.remove(s) {
			logging.Info().Str("subscriber", s.id).Int("subscribers", h.Count()).Msg("subscriber disconnected")
		}
		conn.CloseNow()
	}()

	for {
		_, b, err := conn.Read(r.Context())
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				logging.Debug().Err(err).Str("subscriber", s.id).Msg("subscriber read ended")
			}
			return
		}
		h.handleCommand(r.Context(), s, b)
	}
}

func (h *Hub) handleCommand(ctx context.Context, s *subscriber, b []byte) {
	var cmd aisstream.Command
	if err := json.Unmarshal(b, &cmd); err != nil {
		logging.Warn().Str("subscriber", s.id).Str("raw", string(b)).Msg("received invalid json")
		return
	}

	var ack aisstream.Ack
	switch cmd.Command {
	case aisstream.CMD_START:
		err := h.ctrl.Start(cmd.IntervalOrDefault(), cmd.SpeedFactorOrDefault())
		switch {
		case errors.Is(err, simulator.ErrAlreadyRunning):
			ack = aisstream.Ack{Status: aisstream.STATUS_STARTED, Detail: "already running"}
		case err != nil:
			ack = aisstream.Ack{Status: STATUS_ERROR, Detail: err.Error()}
		default:
			ack = aisstream.Ack{Status: aisstream.STATUS_STARTED}
		}

	case aisstream.CMD_STOP:
		if err := h.ctrl.Stop(); err != nil && !errors.Is(err, simulator.ErrNotRunning) {
			ack = aisstream.Ack{Status: STATUS_ERROR, Detail: err.Error()}
		} else {
			ack = aisstream.Ack{Status: aisstream.STATUS_STOPPED}
		}

	case aisstream.CMD_SET_SPEED_FACTOR:
		h.ctrl.SetSpeedFactor(cmd.SpeedFactorOrDefault())
		ack = aisstream.Ack{Status: aisstream.STATUS_SPEED_UPDATED}

	default:
		logging.Warn().Str("subscriber", s.id).Str("command", cmd.Command).Msg("ignoring unknown command")
		return
	}

	out, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := h.write(ctx, s, out); err != nil {
		logging.Debug().Err(err).Str("subscriber", s.id).Msg("could not acknowledge command")
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	var wg sync.WaitGroup
	for _, s := range h.snapshot() {
		if !h.remove(s) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}()
	}
	wg.Wait()
}

// Serve blocks until ctx ends, then disconnects all subscribers. Hijacked
// websocket connections are not closed by http.Server.Shutdown.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()
	h.Close()
	return ctx.Err()
}

func (h *Hub) String() string { return "bus-hub" }
