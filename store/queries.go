package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/abhinesh-kourav/maritime-route-simulation/kinematics"
)

const DEFAULT_RECENT_LIMIT = 50

type TrackPoint struct {
	MMSI      int64     `json:"mmsi"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed,omitempty"`
	Course    *float64  `json:"course,omitempty"`
	Heading   *int      `json:"heading,omitempty"`
}

type VesselStats struct {
	TotalMessages   int        `json:"total_messages"`
	TotalDistanceKm float64    `json:"total_distance_km"`
	AverageSpeed    float64    `json:"average_speed_knots"`
	MaxSpeed        float64    `json:"max_speed_knots"`
	DurationHours   float64    `json:"duration_hours"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
}

type Overview struct {
	TotalMessages   int64           `json:"total_messages"`
	TotalVessels    int64           `json:"total_vessels"`
	InvalidMessages int64           `json:"invalid_messages"`
	EarliestMessage *time.Time      `json:"earliest_message"`
	LatestMessage   *time.Time      `json:"latest_message"`
	MostActive      []VesselSummary `json:"most_active"`
}

func (p *Postgres) ListVessels(ctx context.Context) ([]VesselSummary, error) {
	rows, err := p.pool.Query(ctx, `SELECT mmsi, first_seen, last_seen, message_count FROM vessels ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("could not list vessels: %w", err)
	}
	return collectSummaries(rows)
}

func collectSummaries(rows pgx.Rows) ([]VesselSummary, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (VesselSummary, error) {
		var s VesselSummary
		err := row.Scan(&s.MMSI, &s.FirstSeen, &s.LastSeen, &s.MessageCount)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("could not read vessel summaries: %w", err)
	}
	return out, nil
}

// Track returns the valid positions of one vessel in time order, optionally
// bounded by start and end.
func (p *Postgres) Track(ctx context.Context, mmsi int64, start, end *time.Time) ([]TrackPoint, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT mmsi, timestamp, latitude, longitude, speed, course, heading
		FROM ais_messages
		WHERE mmsi = $1 AND is_valid = TRUE
		  AND ($2::timestamptz IS NULL OR timestamp >= $2)
		  AND ($3::timestamptz IS NULL OR timestamp <= $3)
		ORDER BY timestamp ASC`, mmsi, start, end)
	if err != nil {
		return nil, fmt.Errorf("could not query track for %d: %w", mmsi, err)
	}
	return collectTrack(rows)
}

func collectTrack(rows pgx.Rows) ([]TrackPoint, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TrackPoint, error) {
		var t TrackPoint
		err := row.Scan(&t.MMSI, &t.Timestamp, &t.Latitude, &t.Longitude, &t.Speed, &t.Course, &t.Heading)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("could not read track: %w", err)
	}
	return out, nil
}

func (p *Postgres) VesselStats(ctx context.Context, mmsi int64, start, end *time.Time) (VesselStats, error) {
	track, err := p.Track(ctx, mmsi, start, end)
	if err != nil {
		return VesselStats{}, err
	}
	return TrackStats(track), nil
}

// TrackStats summarises a time-ordered track. Legs touching an off-globe
// coordinate do not count toward distance.
func TrackStats(track []TrackPoint) VesselStats {
	if len(track) == 0 {
		return VesselStats{}
	}

	var st VesselStats
	st.TotalMessages = len(track)

	for i := 1; i < len(track); i++ {
		a, b := track[i-1], track[i]
		if !onGlobe(a) || !onGlobe(b) {
			continue
		}
		st.TotalDistanceKm += kinematics.Haversine(
			kinematics.Point{Lon: a.Longitude, Lat: a.Latitude},
			kinematics.Point{Lon: b.Longitude, Lat: b.Latitude},
		)
	}

	first, last := track[0].Timestamp, track[0].Timestamp
	var speedSum float64
	var speeds int
	for _, t := range track {
		if t.Timestamp.Before(first) {
			first = t.Timestamp
		}
		if t.Timestamp.After(last) {
			last = t.Timestamp
		}
		if t.Speed != nil {
			speedSum += *t.Speed
			speeds++
			st.MaxSpeed = math.Max(st.MaxSpeed, *t.Speed)
		}
	}
	if speeds > 0 {
		st.AverageSpeed = round2(speedSum / float64(speeds))
	}

	st.TotalDistanceKm = round2(st.TotalDistanceKm)
	st.MaxSpeed = round2(st.MaxSpeed)
	st.DurationHours = round2(last.Sub(first).Hours())
	st.StartTime, st.EndTime = &first, &last
	return st
}

func onGlobe(t TrackPoint) bool {
	return math.Abs(t.Latitude) <= 90 && math.Abs(t.Longitude) <= 180
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RecentPositions returns the latest valid position of each vessel, newest
// first.
func (p *Postgres) RecentPositions(ctx context.Context, limit int) ([]TrackPoint, error) {
	if limit <= 0 {
		limit = DEFAULT_RECENT_LIMIT
	}

	rows, err := p.pool.Query(ctx, `
		WITH ranked AS (
			SELECT mmsi, timestamp, latitude, longitude, speed, course, heading,
			       ROW_NUMBER() OVER (PARTITION BY mmsi ORDER BY timestamp DESC) AS rn
			FROM ais_messages
			WHERE is_valid = TRUE
		)
		SELECT mmsi, timestamp, latitude, longitude, speed, course, heading
		FROM ranked
		WHERE rn = 1
		ORDER BY timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("could not query recent positions: %w", err)
	}
	return collectTrack(rows)
}

func (p *Postgres) Overview(ctx context.Context) (Overview, error) {
	var o Overview

	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE NOT is_valid),
		       MIN(timestamp),
		       MAX(timestamp)
		FROM ais_messages`).Scan(&o.TotalMessages, &o.InvalidMessages, &o.EarliestMessage, &o.LatestMessage)
	if err != nil {
		return o, fmt.Errorf("could not query message totals: %w", err)
	}

	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vessels`).Scan(&o.TotalVessels); err != nil {
		return o, fmt.Errorf("could not count vessels: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT mmsi, first_seen, last_seen, message_count
		FROM vessels
		ORDER BY message_count DESC
		LIMIT 10`)
	if err != nil {
		return o, fmt.Errorf("could not query most active vessels: %w", err)
	}
	if o.MostActive, err = collectSummaries(rows); err != nil {
		return o, err
	}
	return o, nil
}

// LatestQuality returns the most recent persisted quality snapshot.
func (p *Postgres) LatestQuality(ctx context.Context) (QualitySnapshot, bool, error) {
	var s QualitySnapshot
	err := p.pool.QueryRow(ctx, `
		SELECT timestamp, total_messages, valid_messages, invalid_messages, duplicate_messages, malformed_messages
		FROM data_quality_metrics
		ORDER BY timestamp DESC
		LIMIT 1`).Scan(&s.Timestamp, &s.Total, &s.Valid, &s.Invalid, &s.Duplicate, &s.Malformed)
	if isNoRows(err) {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("could not query quality snapshot: %w", err)
	}
	return s, true, nil
}
