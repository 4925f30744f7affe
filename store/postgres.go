package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
)

// Postgres is the PostGIS-backed storage. It implements Writer.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open connects and pings. Failure here is fatal for the receiver: it cannot
// begin without storage.
func Open(ctx context.Context, url string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("could not parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not reach database: %w", err)
	}

	logging.Info().Str("host", cfg.ConnConfig.Host).Str("database", cfg.ConnConfig.Database).Msg("connected to database")
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// EnsureSchema creates the tables and indexes if they are missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("could not apply schema: %w", err)
		}
	}
	logging.Info().Msg("database schema ready")
	return nil
}

// WriteBatch inserts records, skipping any that collide on (mmsi, timestamp,
// latitude, longitude), then folds the whole batch into the vessel summaries:
// message_count grows by one per message, duplicates included. It returns
// how many rows were actually inserted. Everything happens in one
// transaction.
func (p *Postgres) WriteBatch(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	// no-op after Commit
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted, err := insertMessages(ctx, tx, records)
	if err != nil {
		return 0, err
	}

	if err := upsertVessels(ctx, tx, Summarize(records)); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("could not commit batch: %w", err)
	}
	return inserted, nil
}

func insertMessages(ctx context.Context, tx pgx.Tx, records []Record) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertMessageSQL,
			r.MessageID, r.MMSI, r.Timestamp, r.Payload, r.Latitude, r.Longitude,
			r.Speed, r.Course, r.Heading, r.NavigationStatus, r.MessageType,
			r.IsValid, validationErrors(r), r.WKT(),
		)
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for _, r := range records {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("could not insert message %s: %w", r.MessageID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("could not insert messages: %w", err)
	}
	return inserted, nil
}

func validationErrors(r Record) []string {
	if len(r.ValidationErrors) == 0 {
		return nil
	}
	return r.ValidationErrors
}

func upsertVessels(ctx context.Context, tx pgx.Tx, summaries []VesselSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range summaries {
		batch.Queue(upsertVesselSQL, s.MMSI, s.FirstSeen, s.LastSeen, s.MessageCount)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("could not update vessel summaries: %w", err)
	}
	return nil
}

// QualitySnapshot is one periodic quality report.
type QualitySnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Total     int64     `json:"total"`
	Valid     int64     `json:"valid"`
	Invalid   int64     `json:"invalid"`
	Duplicate int64     `json:"duplicate"`
	Malformed int64     `json:"malformed"`
}

func (p *Postgres) SaveQuality(ctx context.Context, s QualitySnapshot) error {
	_, err := p.pool.Exec(ctx, insertQualitySQL, s.Timestamp, s.Total, s.Valid, s.Invalid, s.Duplicate, s.Malformed)
	if err != nil {
		return fmt.Errorf("could not save quality snapshot: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
