package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abhinesh-kourav/maritime-route-simulation/store"
)

type fakeSaver struct {
	mu    sync.Mutex
	saved []store.QualitySnapshot
}

func (f *fakeSaver) SaveQuality(_ context.Context, s store.QualitySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, s)
	return nil
}

func TestQualityCounters(t *testing.T) {
	t.Parallel()

	q := NewQualityMonitor(time.Hour, nil, nil)
	ctx := context.Background()

	q.Record(ctx, VALID)
	q.Record(ctx, VALID)
	q.Record(ctx, INVALID)
	q.Record(ctx, MALFORMED)
	q.RecordDuplicates(2)
	q.RecordDuplicates(0)

	s := q.Snapshot()
	if s.Total != 4 || s.Valid != 2 || s.Invalid != 2 || s.Malformed != 1 || s.Duplicate != 2 {
		t.Errorf("snapshot = %+v", s)
	}
	if ValidPercentage(s) != 50 {
		t.Errorf("valid pct = %v", ValidPercentage(s))
	}
	if ValidPercentage(store.QualitySnapshot{}) != 0 {
		t.Error("pct of nothing")
	}
}

func TestQualityReportsAfterInterval(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	saver := &fakeSaver{}
	q := NewQualityMonitor(5*time.Minute, saver, clock)
	ctx := context.Background()

	q.Record(ctx, VALID)
	now = now.Add(5 * time.Minute)
	q.Record(ctx, VALID)
	if q.Reports() != 0 {
		t.Fatal("reported at exactly the interval")
	}

	now = now.Add(time.Second)
	q.Record(ctx, INVALID)
	if q.Reports() != 1 {
		t.Fatalf("reports = %d, want 1", q.Reports())
	}

	now = now.Add(time.Minute)
	q.Record(ctx, VALID)
	if q.Reports() != 1 {
		t.Error("reported again before the next interval")
	}

	saver.mu.Lock()
	defer saver.mu.Unlock()
	if len(saver.saved) != 1 {
		t.Fatalf("saved %d snapshots", len(saver.saved))
	}
	if s := saver.saved[0]; s.Total != 3 || s.Valid != 2 || s.Invalid != 1 {
		t.Errorf("saved snapshot = %+v", s)
	}
}
