// Package store persists validated AIS records. Buffer batches records in
// memory and Postgres writes them idempotently while keeping the per-vessel
// summary table current.
package store

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrClosed = errors.New("store is closed")

// Record is one decoded and validated AIS message.
type Record struct {
	MessageID        string
	MMSI             int64
	Timestamp        time.Time
	Payload          string
	Latitude         float64
	Longitude        float64
	Speed            *float64
	Course           *float64
	Heading          *int
	NavigationStatus *int
	MessageType      *int
	IsValid          bool
	ValidationErrors []string
}

// MessageID derives the natural key of a message from its vessel and time.
func MessageID(mmsi int64, ts time.Time) string {
	return fmt.Sprintf("%d_%s", mmsi, ts.UTC().Format(time.RFC3339Nano))
}

// HasPosition reports whether the coordinates are on the globe.
func (r Record) HasPosition() bool {
	return r.Latitude >= -90 && r.Latitude <= 90 && r.Longitude >= -180 && r.Longitude <= 180
}

// WKT renders the position for PostGIS, or nil when it is off the globe.
func (r Record) WKT() *string {
	if !r.HasPosition() {
		return nil
	}
	s := fmt.Sprintf("SRID=4326;POINT(%f %f)", r.Longitude, r.Latitude)
	return &s
}

type VesselSummary struct {
	MMSI         int64     `json:"mmsi"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int64     `json:"message_count"`
}

// Summarize folds records into one summary per vessel, ordered by MMSI. Every
// record counts, including repeats of the same message.
func Summarize(records []Record) []VesselSummary {
	byMMSI := make(map[int64]*VesselSummary)
	for _, r := range records {
		s, ok := byMMSI[r.MMSI]
		if !ok {
			byMMSI[r.MMSI] = &VesselSummary{MMSI: r.MMSI, FirstSeen: r.Timestamp, LastSeen: r.Timestamp, MessageCount: 1}
			continue
		}
		if r.Timestamp.Before(s.FirstSeen) {
			s.FirstSeen = r.Timestamp
		}
		if r.Timestamp.After(s.LastSeen) {
			s.LastSeen = r.Timestamp
		}
		s.MessageCount++
	}

	out := make([]VesselSummary, 0, len(byMMSI))
	for _, s := range byMMSI {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MMSI < out[j].MMSI })
	return out
}
