package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"podwatch/internal/pipeline"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection for validation analytics.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS validation_sessions (
		timestamp         DateTime64(3),
		image_path        String,
		carrier           LowCardinality(String),
		confidence        Float32,
		pattern_used      LowCardinality(String),
		fields_found      UInt8,
		gps_distance_km   Float64,
		matched_route_id  LowCardinality(String),
		is_valid          UInt8,
		validation_score  Float64,
		learning_outcome  LowCardinality(String),
		warnings          String,
		recorded_at       DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (carrier, learning_outcome, timestamp)
	SETTINGS index_granularity = 8192`

	if err := d.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create clickhouse schema: %w", err)
	}
	return nil
}

// RecordReport appends one finished report to the analytics table.
func (d *ClickHouseDB) RecordReport(ctx context.Context, r *pipeline.Report) error {
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO validation_sessions (timestamp, image_path, carrier, confidence,
			pattern_used, fields_found, gps_distance_km, matched_route_id,
			is_valid, validation_score, learning_outcome, warnings)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	var valid uint8
	if r.Verdict.IsValid {
		valid = 1
	}

	err = batch.Append(
		r.Timestamp,
		r.ImageRef,
		r.Classification.Carrier,
		float32(r.Classification.Confidence),
		r.Classification.PatternUsed,
		uint8(len(r.Classification.Fields)),
		r.Verdict.GPSDistanceKm,
		r.MatchedRouteID,
		valid,
		r.Verdict.ConfidenceScore,
		r.Session.LearningOutcome,
		strings.Join(r.Verdict.Warnings, "; "),
	)
	if err != nil {
		return fmt.Errorf("append session: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CarrierDaily is one row of the daily per-carrier rollup.
type CarrierDaily struct {
	Day        time.Time
	Carrier    string
	Sessions   uint64
	ValidCount uint64
	AvgScore   float64
}

// CarrierDailyStats aggregates sessions per carrier per day.
func (d *ClickHouseDB) CarrierDailyStats(ctx context.Context, since time.Time) ([]CarrierDaily, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT toStartOfDay(timestamp) AS day, carrier,
		       count() AS sessions, sum(is_valid) AS valid_count,
		       avg(validation_score) AS avg_score
		FROM validation_sessions
		WHERE timestamp >= ?
		GROUP BY day, carrier
		ORDER BY day, carrier
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var out []CarrierDaily
	for rows.Next() {
		var row CarrierDaily
		if err := rows.Scan(&row.Day, &row.Carrier, &row.Sessions, &row.ValidCount, &row.AvgScore); err != nil {
			return nil, fmt.Errorf("scan daily stats: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
