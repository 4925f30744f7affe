// Package aisstream holds the wire types exchanged between the simulator bus
// and its consumers, and the reconnecting client that keeps an ingestion
// subscription alive.
package aisstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
	"github.com/abhinesh-kourav/maritime-route-simulation/metrics"
)

const (
	DIAL_TIMEOUT       = 5 * time.Second
	HEARTBEAT_TIMEOUT  = 10 * time.Second
	HEARTBEAT_INTERVAL = 30 * time.Second
	BACKOFF            = 5 * time.Second
	READ_LIMIT         = 1 << 20
)

type State int32

const (
	DISCONNECTED State = iota
	CONNECTING
	CONNECTED
)

func (s State) String() string {
	switch s {
	case DISCONNECTED:
		return "disconnected"
	case CONNECTING:
		return "connecting"
	case CONNECTED:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type Options struct {
	Backoff           time.Duration
	DialTimeout       time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Client subscribes to a websocket source and forwards every frame on Msg.
// It reconnects after a fixed backoff, forever, until its context ends.
type Client struct {
	Url string
	Msg chan []byte

	opts  Options
	state atomic.Int32
}

func NewClient(url string, opts Options) *Client {
	if opts.Backoff <= 0 {
		opts.Backoff = BACKOFF
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DIAL_TIMEOUT
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = HEARTBEAT_INTERVAL
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = HEARTBEAT_TIMEOUT
	}

	return &Client{
		Url:  url,
		Msg:  make(chan []byte),
		opts: opts,
	}
}

// State reports the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	metrics.IngestConnectionState.Set(float64(s))
	if prev != s {
		logging.Debug().Str("from", prev.String()).Str("to", s.String()).Str("url", c.Url).Msg("ingest connection state")
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	hc := &http.Client{Timeout: c.opts.DialTimeout}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.Url, &websocket.DialOptions{HTTPClient: hc})
	if err != nil {
		return nil, fmt.Errorf("could not connect to websocket: %w", err)
	}
	conn.SetReadLimit(READ_LIMIT)
	return conn, nil
}

// Serve runs the connect/read/backoff loop. It returns ctx.Err() once ctx is
// cancelled and never gives up on its own.
func (c *Client) Serve(ctx context.Context) error {
	defer c.setState(DISCONNECTED)

	for {
		c.setState(CONNECTING)

		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Warn().Err(err).Str("url", c.Url).Dur("backoff", c.opts.Backoff).Msg("ais connect failed")
		} else {
			c.setState(CONNECTED)
			logging.Info().Str("url", c.Url).Msg("ais stream connected")

			err = c.stream(ctx, conn)
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return ctx.Err()
			}
			logging.Warn().Err(err).Str("url", c.Url).Dur("backoff", c.opts.Backoff).Msg("ais read failed")
			conn.Close(websocket.StatusNormalClosure, "")
		}

		c.setState(DISCONNECTED)
		metrics.IngestReconnects.Inc()

		if !sleep(ctx, c.opts.Backoff) {
			return ctx.Err()
		}
	}
}

func (c *Client) stream(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.heartbeat(connCtx, conn)

	for {
		_, b, err := conn.Read(connCtx)
		if err != nil {
			return err
		}

		select {
		case c.Msg <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// heartbeat pings the server every HeartbeatInterval. A ping that is not
// answered within HeartbeatTimeout closes the connection, which fails the
// pending Read and sends the client into backoff.
func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(c.opts.HeartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, c.opts.HeartbeatTimeout)
		err := conn.Ping(pingCtx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logging.Debug().Err(err).Str("url", c.Url).Msg("ais heartbeat failed")
			}
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
