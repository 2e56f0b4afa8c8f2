package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	start_date           TEXT NOT NULL,
	distance_km          REAL NOT NULL,
	distance_miles       REAL NOT NULL,
	moving_time          REAL NOT NULL,
	elapsed_time         REAL,
	average_speed        REAL,
	average_heartrate    REAL,
	max_heartrate        REAL,
	total_elevation_gain REAL,
	pace_sec_per_km      REAL,
	pace_sec_per_mile    REAL
);
CREATE INDEX IF NOT EXISTS runs_user_id_idx ON runs (user_id);
CREATE TABLE IF NOT EXISTS rolling_features (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	start_date TEXT NOT NULL,
	features   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS rolling_features_user_id_idx ON rolling_features (user_id);
`

// SQLite stores records in an embedded database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps in-memory databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout=5000;", "PRAGMA synchronous=NORMAL;", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare sqlite schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DeleteUser removes every run and snapshot stored for userID.
func (s *SQLite) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rolling_features WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete rolling features: %w", err)
	}
	return nil
}

func (s *SQLite) InsertRun(ctx context.Context, userID string, rec RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, user_id, start_date, distance_km, distance_miles, moving_time,
		 elapsed_time, average_speed, average_heartrate, max_heartrate, total_elevation_gain,
		 pace_sec_per_km, pace_sec_per_mile)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(),
		userID,
		rec.StartDate.UTC().Format(time.RFC3339),
		rec.DistanceKM,
		rec.DistanceMiles,
		rec.MovingTime,
		nullFloat(rec.ElapsedTime),
		nullFloat(rec.AverageSpeed),
		nullFloat(rec.AverageHR),
		nullFloat(rec.MaxHR),
		nullFloat(rec.ElevationGain),
		nullFloat(rec.PaceSecPerKM),
		nullFloat(rec.PaceSecPerMile),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLite) InsertSnapshot(ctx context.Context, userID string, rec SnapshotRecord) error {
	feats, err := rec.featuresJSON()
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rolling_features (id, user_id, start_date, features) VALUES (?, ?, ?, ?)`,
		rec.ID.String(),
		userID,
		rec.StartDate.UTC().Format(time.RFC3339),
		string(feats),
	)
	if err != nil {
		return fmt.Errorf("insert rolling features: %w", err)
	}
	return nil
}

// Runs returns the runs stored for userID ordered by start date.
func (s *SQLite) Runs(ctx context.Context, userID string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, start_date, distance_km, distance_miles, moving_time, elapsed_time,
		 average_speed, average_heartrate, max_heartrate, total_elevation_gain,
		 pace_sec_per_km, pace_sec_per_mile
		 FROM runs WHERE user_id = ? ORDER BY start_date`, userID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec                          RunRecord
			id, start                    string
			elapsed, speed, avgHR, maxHR sql.NullFloat64
			elev, pkm, pmile             sql.NullFloat64
		)
		if err := rows.Scan(&id, &start, &rec.DistanceKM, &rec.DistanceMiles, &rec.MovingTime,
			&elapsed, &speed, &avgHR, &maxHR, &elev, &pkm, &pmile); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
		if rec.StartDate, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("parse run start: %w", err)
		}
		rec.ElapsedTime = floatFromNull(elapsed)
		rec.AverageSpeed = floatFromNull(speed)
		rec.AverageHR = floatFromNull(avgHR)
		rec.MaxHR = floatFromNull(maxHR)
		rec.ElevationGain = floatFromNull(elev)
		rec.PaceSecPerKM = floatFromNull(pkm)
		rec.PaceSecPerMile = floatFromNull(pmile)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Snapshots returns the snapshots stored for userID ordered by start date.
func (s *SQLite) Snapshots(ctx context.Context, userID string) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, start_date, features FROM rolling_features WHERE user_id = ? ORDER BY start_date`, userID)
	if err != nil {
		return nil, fmt.Errorf("query rolling features: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var (
			rec              SnapshotRecord
			id, start, feats string
		)
		if err := rows.Scan(&id, &start, &feats); err != nil {
			return nil, fmt.Errorf("scan rolling features: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse snapshot id: %w", err)
		}
		if rec.StartDate, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("parse snapshot start: %w", err)
		}
		if err := json.Unmarshal([]byte(feats), &rec.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	out := v.Float64
	return &out
}
