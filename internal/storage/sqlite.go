// Package storage provides persistent storage for processed delivery
// sessions: a local SQLite archive, a PostgreSQL route source with carrier
// statistics sync, and a ClickHouse analytics sink.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"podwatch/internal/pipeline"
)

// SessionRow is one archived validation session.
type SessionRow struct {
	ID              int64
	Timestamp       time.Time
	ImagePath       string
	Carrier         string
	Confidence      float64
	PatternUsed     string
	FieldsJSON      string
	GPSDistanceKm   float64
	MatchedRouteID  string
	IsValid         bool
	ValidationScore float64
	LearningOutcome string
	Warnings        string
}

// Archive wraps a SQLite database holding processed sessions.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens or creates a SQLite session archive at the given path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	// WAL keeps readers from blocking the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createArchiveSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	return a.db.Close()
}

func createArchiveSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		image_path TEXT NOT NULL,
		carrier TEXT NOT NULL,
		confidence REAL,
		pattern_used TEXT,
		fields_json TEXT,
		gps_distance_km REAL,
		matched_route_id TEXT,
		is_valid INTEGER NOT NULL DEFAULT 0,
		validation_score REAL,
		learning_outcome TEXT,
		warnings TEXT,
		created_at TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_carrier ON sessions(carrier);
	CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(learning_outcome);
	CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON sessions(timestamp);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordReport archives one finished pipeline report.
func (a *Archive) RecordReport(_ context.Context, r *pipeline.Report) error {
	fieldsJSON, err := json.Marshal(r.Classification.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	_, err = a.db.Exec(`
		INSERT INTO sessions (timestamp, image_path, carrier, confidence, pattern_used,
		                      fields_json, gps_distance_km, matched_route_id, is_valid,
		                      validation_score, learning_outcome, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.Timestamp.Format(time.RFC3339), r.ImageRef, r.Classification.Carrier,
		r.Classification.Confidence, r.Classification.PatternUsed, string(fieldsJSON),
		r.Verdict.GPSDistanceKm, r.MatchedRouteID, boolInt(r.Verdict.IsValid),
		r.Verdict.ConfidenceScore, r.Session.LearningOutcome,
		strings.Join(r.Verdict.Warnings, "; "),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// QueryParams filters archived sessions.
type QueryParams struct {
	Carrier   string
	Outcome   string
	ValidOnly bool
	Since     time.Time
	Limit     int
	Offset    int
}

// Query returns archived sessions matching the parameters, newest first.
func (a *Archive) Query(p QueryParams) ([]SessionRow, error) {
	var conditions []string
	var args []interface{}

	if p.Carrier != "" {
		conditions = append(conditions, "carrier = ?")
		args = append(args, p.Carrier)
	}
	if p.Outcome != "" {
		conditions = append(conditions, "learning_outcome = ?")
		args = append(args, p.Outcome)
	}
	if p.ValidOnly {
		conditions = append(conditions, "is_valid = 1")
	}
	if !p.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, p.Since.Format(time.RFC3339))
	}

	query := `SELECT id, timestamp, image_path, carrier, confidence, pattern_used,
			fields_json, gps_distance_km, matched_route_id, is_valid,
			validation_score, learning_outcome, warnings
			FROM sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"

	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []SessionRow
	for rows.Next() {
		var s SessionRow
		var ts string
		var isValid int

		err := rows.Scan(&s.ID, &ts, &s.ImagePath, &s.Carrier, &s.Confidence,
			&s.PatternUsed, &s.FieldsJSON, &s.GPSDistanceKm, &s.MatchedRouteID,
			&isValid, &s.ValidationScore, &s.LearningOutcome, &s.Warnings)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		s.Timestamp, _ = time.Parse(time.RFC3339, ts)
		s.IsValid = isValid != 0
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ArchiveStats summarises the archive contents.
type ArchiveStats struct {
	TotalSessions int
	ValidSessions int
	ByCarrier     map[string]int
}

// Stats returns aggregate counts over the archive.
func (a *Archive) Stats() (ArchiveStats, error) {
	stats := ArchiveStats{ByCarrier: make(map[string]int)}

	if err := a.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&stats.TotalSessions); err != nil {
		return stats, fmt.Errorf("count sessions: %w", err)
	}
	if err := a.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE is_valid = 1").Scan(&stats.ValidSessions); err != nil {
		return stats, fmt.Errorf("count valid sessions: %w", err)
	}

	rows, err := a.db.Query("SELECT carrier, COUNT(*) FROM sessions GROUP BY carrier")
	if err != nil {
		return stats, fmt.Errorf("count by carrier: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var carrier string
		var n int
		if err := rows.Scan(&carrier, &n); err != nil {
			return stats, fmt.Errorf("scan carrier count: %w", err)
		}
		stats.ByCarrier[carrier] = n
	}
	return stats, rows.Err()
}
