package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
	"github.com/abhinesh-kourav/maritime-route-simulation/metrics"
)

const (
	DEFAULT_BUFFER_SIZE    = 100
	DEFAULT_FLUSH_INTERVAL = 5 * time.Second
	DEFAULT_FLUSH_TIMEOUT  = 30 * time.Second
)

// Writer persists one batch atomically and reports how many records were
// new. A failed write must leave storage unchanged.
type Writer interface {
	WriteBatch(ctx context.Context, records []Record) (inserted int, err error)
}

type BufferOptions struct {
	Size          int
	FlushInterval time.Duration
	FlushTimeout  time.Duration

	// Consecutive failed flushes before the breaker opens, and how long it
	// stays open before letting one flush through.
	FailureThreshold uint32
	OpenTimeout      time.Duration

	Now func() time.Time

	// OnFlush runs after every successful flush.
	OnFlush func(written, inserted int)
}

// Buffer accumulates records and flushes them when it holds Size records or
// when more than FlushInterval has passed since the last flush. Both
// conditions are checked on Append only. A failed flush keeps every record
// for the next attempt.
type Buffer struct {
	w    Writer
	opts BufferOptions
	cb   *gobreaker.CircuitBreaker[int]

	mu        sync.Mutex
	records   []Record
	lastFlush time.Time
	closed    bool
}

func NewBuffer(w Writer, opts BufferOptions) *Buffer {
	if opts.Size <= 0 {
		opts.Size = DEFAULT_BUFFER_SIZE
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DEFAULT_FLUSH_INTERVAL
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DEFAULT_FLUSH_TIMEOUT
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	threshold := opts.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "store-flush",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("storage circuit breaker state changed")
		},
	})

	return &Buffer{
		w:         w,
		opts:      opts,
		cb:        cb,
		records:   make([]Record, 0, opts.Size),
		lastFlush: opts.Now(),
	}
}

// Append buffers r and flushes if a trigger fired. A non-nil error other
// than ErrClosed means r was buffered but the flush failed.
func (b *Buffer) Append(ctx context.Context, r Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	b.records = append(b.records, r)
	metrics.BufferDepth.Set(float64(len(b.records)))

	if len(b.records) >= b.opts.Size || b.opts.Now().Sub(b.lastFlush) > b.opts.FlushInterval {
		return b.flushLocked(ctx, false)
	}
	return nil
}

// Flush writes the buffer now regardless of triggers.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	return b.flushLocked(ctx, false)
}

// Close performs a final flush, bypassing the breaker, and rejects further
// appends. Records are lost only if this last write fails.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.flushLocked(ctx, true); err != nil {
		logging.Error().Err(err).Int("count", len(b.records)).Msg("final flush failed, buffered records lost")
		return err
	}
	return nil
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

func (b *Buffer) flushLocked(ctx context.Context, bypassBreaker bool) error {
	n := len(b.records)
	if n == 0 {
		return nil
	}

	// Shutdown cancels ctx before the final flush; the timeout still applies.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.opts.FlushTimeout)
	defer cancel()

	write := func() (int, error) { return b.w.WriteBatch(fctx, b.records) }

	start := time.Now()
	var inserted int
	var err error
	if bypassBreaker {
		inserted, err = write()
	} else {
		inserted, err = b.cb.Execute(write)
	}
	metrics.FlushDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.FlushesTotal.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Int("count", n).Msg("flush failed, keeping buffered records")
		return fmt.Errorf("could not flush %d records: %w", n, err)
	}

	metrics.FlushesTotal.WithLabelValues("ok").Inc()
	logging.Info().Int("count", n).Int("inserted", inserted).Msg("flushed messages to database")

	b.records = make([]Record, 0, b.opts.Size)
	b.lastFlush = b.opts.Now()
	metrics.BufferDepth.Set(0)

	if b.opts.OnFlush != nil {
		b.opts.OnFlush(n, inserted)
	}
	return nil
}
