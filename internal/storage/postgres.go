package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"podwatch/internal/delivery"
	"podwatch/internal/knowledge"
	"podwatch/internal/routes"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB wraps a PostgreSQL connection pool. Postgres is the source of
// truth for the route reference table and receives periodic carrier
// statistics snapshots.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Route reference table, the master copy of the CSV table.
	CREATE TABLE IF NOT EXISTS delivery_routes (
		route_id              TEXT PRIMARY KEY,
		recipient_name        TEXT NOT NULL,
		cep                   TEXT,
		nf_number             TEXT,
		gps_lat               DOUBLE PRECISION,
		gps_lon               DOUBLE PRECISION,
		delivery_window_start TEXT,
		delivery_window_end   TEXT,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_delivery_routes_nf ON delivery_routes(nf_number);
	CREATE INDEX IF NOT EXISTS idx_delivery_routes_cep ON delivery_routes(cep);

	-- Carrier learning snapshots pushed from the local knowledge store.
	CREATE TABLE IF NOT EXISTS carrier_stats (
		carrier                TEXT PRIMARY KEY,
		total_samples          INTEGER NOT NULL DEFAULT 0,
		successful_validations INTEGER NOT NULL DEFAULT 0,
		confidence_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
		success_rate           DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}
	return nil
}

// LoadRoutes reads the full route reference table. Rows without coordinates
// are kept for field matching, mirroring the CSV loader.
func (d *PostgresDB) LoadRoutes(ctx context.Context) ([]routes.DeliveryRoute, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT route_id, recipient_name, COALESCE(cep, ''), COALESCE(nf_number, ''),
		       gps_lat, gps_lon,
		       COALESCE(delivery_window_start, ''), COALESCE(delivery_window_end, '')
		FROM delivery_routes
		ORDER BY route_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	var out []routes.DeliveryRoute
	for rows.Next() {
		var rt routes.DeliveryRoute
		var lat, lon *float64

		err := rows.Scan(&rt.RouteID, &rt.RecipientName, &rt.CEP, &rt.NFNumber,
			&lat, &lon, &rt.WindowStart, &rt.WindowEnd)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}

		if lat != nil && lon != nil {
			rt.Location = delivery.LatLon{Lat: *lat, Lon: *lon}
			rt.HasGPS = true
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// UpsertRoute inserts or replaces one route reference row.
func (d *PostgresDB) UpsertRoute(ctx context.Context, rt routes.DeliveryRoute) error {
	var lat, lon *float64
	if rt.HasGPS {
		lat, lon = &rt.Location.Lat, &rt.Location.Lon
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO delivery_routes (route_id, recipient_name, cep, nf_number,
		                             gps_lat, gps_lon, delivery_window_start, delivery_window_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (route_id) DO UPDATE SET
			recipient_name = EXCLUDED.recipient_name,
			cep = EXCLUDED.cep,
			nf_number = EXCLUDED.nf_number,
			gps_lat = EXCLUDED.gps_lat,
			gps_lon = EXCLUDED.gps_lon,
			delivery_window_start = EXCLUDED.delivery_window_start,
			delivery_window_end = EXCLUDED.delivery_window_end
	`, rt.RouteID, rt.RecipientName, rt.CEP, rt.NFNumber, lat, lon, rt.WindowStart, rt.WindowEnd)
	if err != nil {
		return fmt.Errorf("upsert route: %w", err)
	}
	return nil
}

// SyncCarrierStats pushes the current learning snapshot upstream.
func (d *PostgresDB) SyncCarrierStats(ctx context.Context, stats knowledge.LearningStats) error {
	for carrier, detail := range stats.Carriers {
		_, err := d.pool.Exec(ctx, `
			INSERT INTO carrier_stats (carrier, total_samples, successful_validations,
			                           confidence_score, success_rate, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (carrier) DO UPDATE SET
				total_samples = EXCLUDED.total_samples,
				successful_validations = EXCLUDED.successful_validations,
				confidence_score = EXCLUDED.confidence_score,
				success_rate = EXCLUDED.success_rate,
				updated_at = NOW()
		`, carrier, detail.Samples, detail.Validations,
			detail.Confidence, detail.SuccessRate)
		if err != nil {
			return fmt.Errorf("sync carrier %s: %w", carrier, err)
		}
	}
	return nil
}
