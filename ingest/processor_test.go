package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/abhinesh-kourav/maritime-route-simulation/aiscodec"
	"github.com/abhinesh-kourav/maritime-route-simulation/aisstream"
	"github.com/abhinesh-kourav/maritime-route-simulation/store"
)

type fakeBuffer struct {
	records []store.Record
	err     error
}

func (f *fakeBuffer) Append(_ context.Context, r store.Record) error {
	f.records = append(f.records, r)
	return f.err
}

type fakeObserver struct{ seen []int64 }

func (f *fakeObserver) Observe(r store.Record) { f.seen = append(f.seen, r.MMSI) }

func wire(t *testing.T, mmsi int, lat, lon float64, ts time.Time) []byte {
	t.Helper()

	sentences, err := aiscodec.New().EncodePosition(aiscodec.PositionFields{MMSI: mmsi, Lat: lat, Lon: lon, Speed: 12.3, Course: 45, Heading: 45})
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(aisstream.NewWireMessage(mmsi, ts, sentences))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestProcessor(buf Appender, obs ...Observer) (*Processor, *QualityMonitor) {
	q := NewQualityMonitor(time.Hour, nil, nil)
	return NewProcessor(nil, buf, q, obs...), q
}

func TestProcessValidMessage(t *testing.T) {
	t.Parallel()

	buf := &fakeBuffer{}
	obs := &fakeObserver{}
	p, q := newTestProcessor(buf, obs)

	ts := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	r, ok := p.Process(context.Background(), wire(t, 244000001, 51.9225, 4.4792, ts))
	if !ok {
		t.Fatal("message rejected")
	}

	if !r.IsValid || len(r.ValidationErrors) != 0 {
		t.Errorf("record invalid: %v", r.ValidationErrors)
	}
	if r.MessageID != "244000001_2025-01-01T06:00:00Z" || r.MMSI != 244000001 || !r.Timestamp.Equal(ts) {
		t.Errorf("identity = %s %d %v", r.MessageID, r.MMSI, r.Timestamp)
	}
	if r.MessageType == nil || *r.MessageType != 1 || r.Speed == nil || r.Heading == nil || *r.Heading != 45 {
		t.Errorf("optional fields = %+v", r)
	}
	if len(buf.records) != 1 || len(obs.seen) != 1 {
		t.Errorf("buffered %d, observed %d", len(buf.records), len(obs.seen))
	}
	if s := q.Snapshot(); s.Total != 1 || s.Valid != 1 {
		t.Errorf("quality = %+v", s)
	}
}

func TestProcessReceiverSentenceIsValid(t *testing.T) {
	t.Parallel()

	buf := &fakeBuffer{}
	p, q := newTestProcessor(buf)

	raw := []byte(`{"message":"AIVDM","mmsi":265547250,"timestamp":"2025-01-01T06:00:00","payload":["!AIVDM,1,1,,A,13u?etPv2;0n:dDPwUM1U1Cb069D,0*24"]}`)
	r, ok := p.Process(context.Background(), raw)
	if !ok {
		t.Fatal("message rejected")
	}
	if !r.IsValid {
		t.Fatalf("record invalid: %v", r.ValidationErrors)
	}
	if r.Latitude < 57.66 || r.Latitude > 57.661 || r.Longitude < 11.832 || r.Longitude > 11.834 {
		t.Errorf("position = %v,%v", r.Latitude, r.Longitude)
	}
	if s := q.Snapshot(); s.Valid != 1 || s.Invalid != 0 {
		t.Errorf("quality = %+v", s)
	}
}

func TestProcessInvalidIsStoredFlagged(t *testing.T) {
	t.Parallel()

	buf := &fakeBuffer{}
	p, q := newTestProcessor(buf)

	r, ok := p.Process(context.Background(), wire(t, 244000001, 91, 4.4, time.Now()))
	if !ok {
		t.Fatal("invalid message treated as malformed")
	}
	if r.IsValid || len(r.ValidationErrors) != 1 || r.ValidationErrors[0] != "Invalid latitude: 91" {
		t.Errorf("record = %v %v", r.IsValid, r.ValidationErrors)
	}
	if len(buf.records) != 1 {
		t.Error("invalid record not buffered")
	}
	if s := q.Snapshot(); s.Invalid != 1 || s.Malformed != 0 {
		t.Errorf("quality = %+v", s)
	}
}

func TestProcessMalformed(t *testing.T) {
	t.Parallel()

	inputs := map[string]string{
		"not json":          `{{{`,
		"missing mmsi":      `{"timestamp":"2025-01-01T00:00:00Z","payload":"!AIVDM,1,1,,A,x,0*00"}`,
		"missing payload":   `{"mmsi":244000001,"timestamp":"2025-01-01T00:00:00Z"}`,
		"missing timestamp": `{"mmsi":244000001,"payload":"!AIVDM,1,1,,A,x,0*00"}`,
		"undecodable":       `{"mmsi":244000001,"timestamp":"2025-01-01T00:00:00Z","payload":"hello"}`,
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			buf := &fakeBuffer{}
			p, q := newTestProcessor(buf)
			if _, ok := p.Process(context.Background(), []byte(in)); ok {
				t.Fatal("malformed message accepted")
			}
			if len(buf.records) != 0 {
				t.Error("malformed message buffered")
			}
			if s := q.Snapshot(); s.Total != 1 || s.Malformed != 1 || s.Invalid != 1 {
				t.Errorf("quality = %+v", s)
			}
		})
	}
}

func TestProcessBadTimestampUsesReceiveTime(t *testing.T) {
	t.Parallel()

	buf := &fakeBuffer{}
	p, _ := newTestProcessor(buf)
	received := time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC)
	p.now = func() time.Time { return received }

	raw := wire(t, 244000001, 10, 10, time.Now())
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	m["timestamp"] = "not a time"
	raw, _ = json.Marshal(m)

	r, ok := p.Process(context.Background(), raw)
	if !ok || !r.Timestamp.Equal(received) {
		t.Errorf("timestamp = %v ok=%v", r.Timestamp, ok)
	}
}

func TestProcessFlushFailureKeepsGoing(t *testing.T) {
	t.Parallel()

	buf := &fakeBuffer{err: errors.New("flush failed")}
	obs := &fakeObserver{}
	p, _ := newTestProcessor(buf, obs)

	if _, ok := p.Process(context.Background(), wire(t, 244000001, 10, 10, time.Now())); !ok {
		t.Fatal("rejected")
	}
	if len(obs.seen) != 1 {
		t.Error("observer skipped after deferred flush")
	}
}

func TestServeProcessesInOrder(t *testing.T) {
	t.Parallel()

	in := make(chan []byte)
	buf := &fakeBuffer{}
	p := NewProcessor(in, buf, NewQualityMonitor(time.Hour, nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		in <- wire(t, 244000001+i, 10, 10, ts)
	}
	close(in)

	if err := <-done; err != nil {
		t.Fatalf("Serve = %v", err)
	}
	cancel()

	if len(buf.records) != 3 {
		t.Fatalf("buffered %d", len(buf.records))
	}
	for i, r := range buf.records {
		if want := int64(244000001 + i); r.MMSI != want {
			t.Errorf("record %d mmsi = %d, want %d (%s)", i, r.MMSI, want, fmt.Sprint(buf.records))
		}
	}
}
