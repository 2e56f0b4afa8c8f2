package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSchema creates the tables Postgres writes to.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id                   UUID PRIMARY KEY,
	user_id              TEXT NOT NULL,
	start_date           TIMESTAMPTZ NOT NULL,
	distance_km          DOUBLE PRECISION NOT NULL,
	distance_miles       DOUBLE PRECISION NOT NULL,
	moving_time          DOUBLE PRECISION NOT NULL,
	elapsed_time         DOUBLE PRECISION,
	average_speed        DOUBLE PRECISION,
	average_heartrate    DOUBLE PRECISION,
	max_heartrate        DOUBLE PRECISION,
	total_elevation_gain DOUBLE PRECISION,
	pace_sec_per_km      DOUBLE PRECISION,
	pace_sec_per_mile    DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS runs_user_id_idx ON runs (user_id);
CREATE TABLE IF NOT EXISTS rolling_features (
	id         UUID PRIMARY KEY,
	user_id    TEXT NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	features   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS rolling_features_user_id_idx ON rolling_features (user_id);
`

// Postgres writes records through a pgx pool or transaction.
type Postgres struct {
	db DBTX
}

// NewPostgres wraps db.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// ConnectPostgres opens a pool and verifies connectivity.
func ConnectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("migrate postgres schema: %w", err)
	}
	return nil
}

// DeleteUser removes every run and snapshot stored for userID.
func (p *Postgres) DeleteUser(ctx context.Context, userID string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM runs WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}
	if _, err := p.db.Exec(ctx, `DELETE FROM rolling_features WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete rolling features: %w", err)
	}
	return nil
}

func (p *Postgres) InsertRun(ctx context.Context, userID string, rec RunRecord) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO runs (id, user_id, start_date, distance_km, distance_miles, moving_time,
		 elapsed_time, average_speed, average_heartrate, max_heartrate, total_elevation_gain,
		 pace_sec_per_km, pace_sec_per_mile)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID,
		userID,
		rec.StartDate,
		rec.DistanceKM,
		rec.DistanceMiles,
		rec.MovingTime,
		rec.ElapsedTime,
		rec.AverageSpeed,
		rec.AverageHR,
		rec.MaxHR,
		rec.ElevationGain,
		rec.PaceSecPerKM,
		rec.PaceSecPerMile,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (p *Postgres) InsertSnapshot(ctx context.Context, userID string, rec SnapshotRecord) error {
	feats, err := rec.featuresJSON()
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	_, err = p.db.Exec(ctx,
		`INSERT INTO rolling_features (id, user_id, start_date, features)
		 VALUES ($1, $2, $3, $4)`,
		rec.ID,
		userID,
		rec.StartDate,
		feats,
	)
	if err != nil {
		return fmt.Errorf("insert rolling features: %w", err)
	}
	return nil
}

// CountRuns returns the number of runs stored for userID.
func (p *Postgres) CountRuns(ctx context.Context, userID string) (int, error) {
	var n int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM runs WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}
