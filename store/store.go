// Package store publishes normalized runs and rolling-feature snapshots to an
// external database. Writes are per record and best effort: a failed insert is
// logged and skipped, and earlier records stay committed.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/features"
)

// Sink is the write surface of a backing store.
type Sink interface {
	DeleteUser(ctx context.Context, userID string) error
	InsertRun(ctx context.Context, userID string, rec RunRecord) error
	InsertSnapshot(ctx context.Context, userID string, rec SnapshotRecord) error
}

// RunRecord is one normalized run as stored.
type RunRecord struct {
	ID             uuid.UUID `json:"id"`
	StartDate      time.Time `json:"start_date"`
	DistanceKM     float64   `json:"distance_km"`
	DistanceMiles  float64   `json:"distance_miles"`
	MovingTime     float64   `json:"moving_time"`
	ElapsedTime    *float64  `json:"elapsed_time,omitempty"`
	AverageSpeed   *float64  `json:"average_speed,omitempty"`
	AverageHR      *float64  `json:"average_heartrate,omitempty"`
	MaxHR          *float64  `json:"max_heartrate,omitempty"`
	ElevationGain  *float64  `json:"total_elevation_gain,omitempty"`
	PaceSecPerKM   *float64  `json:"pace_sec_per_km,omitempty"`
	PaceSecPerMile *float64  `json:"pace_sec_per_mile,omitempty"`
}

// NewRunRecord assigns a fresh ID to a normalized run.
func NewRunRecord(r activity.Run) RunRecord {
	return RunRecord{
		ID:             uuid.New(),
		StartDate:      r.Start.UTC(),
		DistanceKM:     r.DistanceKM,
		DistanceMiles:  r.DistanceMiles,
		MovingTime:     r.MovingTimeS,
		ElapsedTime:    r.ElapsedTimeS,
		AverageSpeed:   r.AverageSpeed,
		AverageHR:      r.AverageHR,
		MaxHR:          r.MaxHR,
		ElevationGain:  r.ElevationGainM,
		PaceSecPerKM:   r.PaceSecPerKM,
		PaceSecPerMile: r.PaceSecPerMile,
	}
}

// SnapshotRecord is one rolling-feature snapshot keyed by feature column name.
type SnapshotRecord struct {
	ID        uuid.UUID          `json:"id"`
	StartDate time.Time          `json:"start_date"`
	Features  map[string]float64 `json:"features"`
}

// NewSnapshotRecord flattens a snapshot into named feature values.
func NewSnapshotRecord(s features.Snapshot, windows []int) SnapshotRecord {
	cols := features.Columns(windows)
	vals := s.Values()
	feats := make(map[string]float64, len(cols))
	for i, col := range cols {
		if i < len(vals) {
			feats[col] = vals[i]
		}
	}
	return SnapshotRecord{
		ID:        uuid.New(),
		StartDate: s.Start.UTC(),
		Features:  feats,
	}
}

func (r SnapshotRecord) featuresJSON() ([]byte, error) {
	return json.Marshal(r.Features)
}
