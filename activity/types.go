package activity

import "time"

// DistanceUnit says how an Activity's raw distance should be read.
type DistanceUnit int

const (
	// UnitAuto defers to the table-wide magnitude heuristic in Normalize.
	UnitAuto DistanceUnit = iota
	// UnitMeters marks distances decoded from sources that always report meters.
	UnitMeters
	// UnitKilometers marks distances already in kilometers.
	UnitKilometers
)

// Activity is one imported workout before normalization. Nil pointers are
// missing or unparseable cells.
type Activity struct {
	Start          *time.Time
	Distance       *float64
	Unit           DistanceUnit
	MovingTimeS    *float64
	ElapsedTimeS   *float64
	AverageSpeed   *float64
	AverageHR      *float64
	MaxHR          *float64
	ElevationGainM *float64
	Type           string
}

// Run is a normalized run-type activity.
type Run struct {
	Start          time.Time `json:"start_date"`
	DistanceKM     float64   `json:"distance_km"`
	DistanceMiles  float64   `json:"distance_miles"`
	MovingTimeS    float64   `json:"moving_time"`
	ElapsedTimeS   *float64  `json:"elapsed_time,omitempty"`
	AverageSpeed   *float64  `json:"average_speed,omitempty"`
	AverageHR      *float64  `json:"average_heartrate,omitempty"`
	MaxHR          *float64  `json:"max_heartrate,omitempty"`
	ElevationGainM *float64  `json:"total_elevation_gain,omitempty"`
	PaceSecPerKM   *float64  `json:"pace_sec_per_km,omitempty"`
	PaceSecPerMile *float64  `json:"pace_sec_per_mile,omitempty"`
}

// DistanceMeters returns the run distance in meters.
func (r Run) DistanceMeters() float64 {
	return r.DistanceKM * 1000
}

// StoppageRatio is moving time over elapsed time. ok is false when elapsed
// time is unknown or not positive.
func (r Run) StoppageRatio() (ratio float64, ok bool) {
	if r.ElapsedTimeS == nil || *r.ElapsedTimeS <= 0 {
		return 0, false
	}
	return r.MovingTimeS / *r.ElapsedTimeS, true
}

// HRPolicy decides what happens to runs without heart-rate data.
type HRPolicy string

const (
	// HRDrop removes runs missing average or max heart rate.
	HRDrop HRPolicy = "drop"
	// HRKeep retains them with nil heart-rate fields.
	HRKeep HRPolicy = "keep"
)

// Options configures Normalize.
type Options struct {
	HRPolicy HRPolicy
}

// DefaultOptions drops runs without heart rate, since the downstream heart-rate
// aggregates need it.
func DefaultOptions() Options {
	return Options{HRPolicy: HRDrop}
}
