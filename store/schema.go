package store

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE TABLE IF NOT EXISTS ais_messages (
		id BIGSERIAL PRIMARY KEY,
		message_id TEXT NOT NULL,
		mmsi BIGINT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		payload TEXT NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		speed DOUBLE PRECISION,
		course DOUBLE PRECISION,
		heading INTEGER,
		navigation_status INTEGER,
		message_type INTEGER,
		is_valid BOOLEAN NOT NULL DEFAULT TRUE,
		validation_errors TEXT[],
		geo_point GEOGRAPHY(POINT, 4326),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ais_messages_mmsi ON ais_messages(mmsi)`,
	`CREATE INDEX IF NOT EXISTS idx_ais_messages_timestamp ON ais_messages(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_ais_messages_geo_point ON ais_messages USING GIST(geo_point)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_message ON ais_messages(mmsi, timestamp, latitude, longitude)`,
	`CREATE TABLE IF NOT EXISTS vessels (
		mmsi BIGINT PRIMARY KEY,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL,
		message_count BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS data_quality_metrics (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		total_messages BIGINT NOT NULL,
		valid_messages BIGINT NOT NULL,
		invalid_messages BIGINT NOT NULL,
		duplicate_messages BIGINT NOT NULL,
		malformed_messages BIGINT NOT NULL
	)`,
}

const insertMessageSQL = `
INSERT INTO ais_messages
	(message_id, mmsi, timestamp, payload, latitude, longitude,
	 speed, course, heading, navigation_status, message_type,
	 is_valid, validation_errors, geo_point)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, ST_GeogFromText($14))
ON CONFLICT (mmsi, timestamp, latitude, longitude) DO NOTHING`

const upsertVesselSQL = `
INSERT INTO vessels (mmsi, first_seen, last_seen, message_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (mmsi) DO UPDATE SET
	first_seen = LEAST(vessels.first_seen, EXCLUDED.first_seen),
	last_seen = GREATEST(vessels.last_seen, EXCLUDED.last_seen),
	message_count = vessels.message_count + EXCLUDED.message_count`

const insertQualitySQL = `
INSERT INTO data_quality_metrics
	(timestamp, total_messages, valid_messages, invalid_messages, duplicate_messages, malformed_messages)
VALUES ($1, $2, $3, $4, $5, $6)`
