package store

import (
	"math"
	"testing"
	"time"
)

func TestMessageID(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	if got := MessageID(244000001, ts); got != "244000001_2025-02-03T04:05:06Z" {
		t.Errorf("MessageID = %q", got)
	}
	if MessageID(1, ts) == MessageID(1, ts.Add(time.Second)) {
		t.Error("ids collide across timestamps")
	}
}

func TestWKT(t *testing.T) {
	t.Parallel()

	r := Record{Latitude: 51.5, Longitude: -0.12}
	if w := r.WKT(); w == nil || *w != "SRID=4326;POINT(-0.120000 51.500000)" {
		t.Errorf("WKT = %v", w)
	}

	r.Latitude = 91
	if r.WKT() != nil {
		t.Error("off-globe record produced a point")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		{MMSI: 2, Timestamp: t0.Add(3 * time.Hour)},
		{MMSI: 1, Timestamp: t0.Add(2 * time.Hour)},
		{MMSI: 2, Timestamp: t0},
		{MMSI: 2, Timestamp: t0.Add(time.Hour)},
	}

	got := Summarize(records)
	if len(got) != 2 {
		t.Fatalf("got %d summaries", len(got))
	}

	if got[0].MMSI != 1 || got[0].MessageCount != 1 || !got[0].FirstSeen.Equal(got[0].LastSeen) {
		t.Errorf("vessel 1 = %+v", got[0])
	}
	if got[1].MMSI != 2 || got[1].MessageCount != 3 || !got[1].FirstSeen.Equal(t0) || !got[1].LastSeen.Equal(t0.Add(3*time.Hour)) {
		t.Errorf("vessel 2 = %+v", got[1])
	}

	if len(Summarize(nil)) != 0 {
		t.Error("summaries from nothing")
	}
}

func TestTrackStats(t *testing.T) {
	t.Parallel()

	if st := TrackStats(nil); st.TotalMessages != 0 || st.StartTime != nil {
		t.Errorf("empty stats = %+v", st)
	}

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ten, twelve := 10.0, 12.0
	track := []TrackPoint{
		{Timestamp: t0, Latitude: 0, Longitude: 0, Speed: &ten},
		{Timestamp: t0.Add(time.Hour), Latitude: 1, Longitude: 0, Speed: &twelve},
		{Timestamp: t0.Add(90 * time.Minute), Latitude: 95, Longitude: 0},
		{Timestamp: t0.Add(2 * time.Hour), Latitude: 2, Longitude: 0},
	}

	st := TrackStats(track)
	if st.TotalMessages != 4 {
		t.Errorf("messages = %d", st.TotalMessages)
	}
	// one valid leg of one degree; the legs through lat 95 are skipped
	if math.Abs(st.TotalDistanceKm-111.19) > 0.01 {
		t.Errorf("distance = %v", st.TotalDistanceKm)
	}
	if st.AverageSpeed != 11 || st.MaxSpeed != 12 {
		t.Errorf("speeds = %v / %v", st.AverageSpeed, st.MaxSpeed)
	}
	if st.DurationHours != 2 {
		t.Errorf("duration = %v", st.DurationHours)
	}
	if !st.StartTime.Equal(t0) || !st.EndTime.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("range = %v..%v", st.StartTime, st.EndTime)
	}
}

func TestSummarizeCountsDuplicates(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Record{MMSI: 7, Timestamp: t0.Add(time.Hour), Latitude: 1, Longitude: 2}
	early := Record{MMSI: 7, Timestamp: t0, Latitude: 1, Longitude: 2}

	got := Summarize([]Record{r, r, r, early, early})
	if len(got) != 1 {
		t.Fatalf("got %d summaries", len(got))
	}
	if got[0].MessageCount != 5 {
		t.Errorf("message count = %d, want 5", got[0].MessageCount)
	}
	if !got[0].FirstSeen.Equal(t0) || !got[0].LastSeen.Equal(t0.Add(time.Hour)) {
		t.Errorf("range = %v..%v", got[0].FirstSeen, got[0].LastSeen)
	}
}
