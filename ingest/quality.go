package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
	"github.com/abhinesh-kourav/maritime-route-simulation/metrics"
	"github.com/abhinesh-kourav/maritime-route-simulation/store"
)

const (
	DEFAULT_REPORT_INTERVAL = 5 * time.Minute
	SAVE_TIMEOUT            = 5 * time.Second
)

type Outcome int

const (
	VALID Outcome = iota
	INVALID
	MALFORMED
)

func (o Outcome) String() string {
	switch o {
	case VALID:
		return "valid"
	case INVALID:
		return "invalid"
	case MALFORMED:
		return "malformed"
	}
	return "unknown"
}

// QualitySaver persists periodic snapshots.
type QualitySaver interface {
	SaveQuality(ctx context.Context, s store.QualitySnapshot) error
}

// QualityMonitor keeps process-lifetime counters. A malformed message also
// counts as invalid. A report is emitted, and saved when a saver is set,
// on the first message after the interval has elapsed.
type QualityMonitor struct {
	interval time.Duration
	now      func() time.Time
	saver    QualitySaver

	mu         sync.Mutex
	counts     store.QualitySnapshot
	lastReport time.Time
	reports    int
}

func NewQualityMonitor(interval time.Duration, saver QualitySaver, now func() time.Time) *QualityMonitor {
	if interval <= 0 {
		interval = DEFAULT_REPORT_INTERVAL
	}
	if now == nil {
		now = time.Now
	}
	return &QualityMonitor{
		interval:   interval,
		now:        now,
		saver:      saver,
		lastReport: now(),
	}
}

func (q *QualityMonitor) Record(ctx context.Context, o Outcome) {
	q.mu.Lock()
	q.counts.Total++
	switch o {
	case VALID:
		q.counts.Valid++
	case INVALID:
		q.counts.Invalid++
	case MALFORMED:
		q.counts.Invalid++
		q.counts.Malformed++
	}
	metrics.MessagesTotal.WithLabelValues(o.String()).Inc()

	now := q.now()
	due := now.Sub(q.lastReport) > q.interval
	if due {
		q.lastReport = now
	}
	snap := q.snapshotLocked(now)
	q.mu.Unlock()

	if due {
		q.report(ctx, snap)
	}
}

// RecordDuplicates counts messages that storage already held. They were
// counted toward the total when first processed.
func (q *QualityMonitor) RecordDuplicates(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	q.counts.Duplicate += int64(n)
	q.mu.Unlock()
	metrics.MessagesTotal.WithLabelValues("duplicate").Add(float64(n))
}

func (q *QualityMonitor) Snapshot() store.QualitySnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked(q.now())
}

func (q *QualityMonitor) snapshotLocked(now time.Time) store.QualitySnapshot {
	s := q.counts
	s.Timestamp = now
	return s
}

// Reports is the number of reports emitted so far.
func (q *QualityMonitor) Reports() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reports
}

func ValidPercentage(s store.QualitySnapshot) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Valid) / float64(s.Total) * 100
}

func (q *QualityMonitor) report(ctx context.Context, s store.QualitySnapshot) {
	if s.Total == 0 {
		return
	}

	q.mu.Lock()
	q.reports++
	q.mu.Unlock()

	logging.Info().
		Int64("total", s.Total).
		Int64("valid", s.Valid).
		Float64("valid_pct", ValidPercentage(s)).
		Int64("invalid", s.Invalid).
		Int64("duplicate", s.Duplicate).
		Int64("malformed", s.Malformed).
		Msg("data quality report")

	if q.saver == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SAVE_TIMEOUT)
	defer cancel()
	if err := q.saver.SaveQuality(sctx, s); err != nil {
		logging.Warn().Err(err).Msg("could not save quality snapshot")
	}
}
