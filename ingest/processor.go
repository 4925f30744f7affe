// Package ingest turns raw wire messages into validated records: parse,
// decode, validate, count, then hand off to the persistence buffer and any
// live observers.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/abhinesh-kourav/maritime-route-simulation/aiscodec"
	"github.com/abhinesh-kourav/maritime-route-simulation/aisstream"
	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
	"github.com/abhinesh-kourav/maritime-route-simulation/store"
)

// Appender is the persistence buffer.
type Appender interface {
	Append(ctx context.Context, r store.Record) error
}

// Observer sees every record that reached the buffer.
type Observer interface {
	Observe(r store.Record)
}

type Processor struct {
	In <-chan []byte

	codec     *aiscodec.Codec
	quality   *QualityMonitor
	buffer    Appender
	observers []Observer
	now       func() time.Time
}

func NewProcessor(in <-chan []byte, buffer Appender, quality *QualityMonitor, observers ...Observer) *Processor {
	return &Processor{
		In:        in,
		codec:     aiscodec.New(),
		quality:   quality,
		buffer:    buffer,
		observers: observers,
		now:       time.Now,
	}
}

// Serve handles messages one at a time in arrival order until ctx ends. A
// message already being processed is finished first.
func (p *Processor) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-p.In:
			if !ok {
				return nil
			}
			p.Process(ctx, b)
		}
	}
}

func (p *Processor) String() string { return "processor" }

// Process runs one raw wire message through the pipeline. It returns the
// record handed to the buffer, or false when the message was malformed.
func (p *Processor) Process(ctx context.Context, raw []byte) (store.Record, bool) {
	report, err := aisstream.ParseReport(raw, p.now())
	if err != nil {
		ev := logging.Warn().Err(err)
		if errors.Is(err, aisstream.ErrInvalidJSON) {
			ev = logging.Error().Err(err)
		}
		ev.Str("raw", string(raw)).Msg("discarding malformed message")
		p.quality.Record(ctx, MALFORMED)
		return store.Record{}, false
	}
	if !report.TimestampValid {
		logging.Warn().Int64("mmsi", report.MMSI).Msg("invalid timestamp format, using receive time")
	}

	fields, err := p.codec.Decode(report.Payload)
	if err != nil {
		logging.Warn().Err(err).Int64("mmsi", report.MMSI).Str("payload", report.Payload).Msg("failed to decode ais payload")
		p.quality.Record(ctx, MALFORMED)
		return store.Record{}, false
	}

	ok, verrs := Validate(fields)
	r := newRecord(report, fields, ok, verrs)

	if ok {
		p.quality.Record(ctx, VALID)
	} else {
		logging.Debug().Int64("mmsi", r.MMSI).Strs("errors", verrs).Msg("invalid message")
		p.quality.Record(ctx, INVALID)
	}

	if err := p.buffer.Append(ctx, r); err != nil {
		if errors.Is(err, store.ErrClosed) {
			logging.Error().Int64("mmsi", r.MMSI).Msg("buffer closed, message not stored")
			return r, true
		}
		logging.Warn().Err(err).Msg("buffered message, flush deferred")
	}

	for _, o := range p.observers {
		o.Observe(r)
	}
	return r, true
}

func newRecord(report aisstream.Report, f aiscodec.Fields, ok bool, verrs []string) store.Record {
	r := store.Record{
		MessageID:        store.MessageID(report.MMSI, report.Timestamp),
		MMSI:             report.MMSI,
		Timestamp:        report.Timestamp,
		Payload:          report.Payload,
		Speed:            f.Speed,
		Course:           f.Course,
		Heading:          f.Heading,
		NavigationStatus: f.Status,
		MessageType:      f.Type,
		IsValid:          ok,
		ValidationErrors: verrs,
	}
	if f.Lat != nil {
		r.Latitude = *f.Lat
	}
	if f.Lon != nil {
		r.Longitude = *f.Lon
	}
	return r
}
