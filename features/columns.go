package features

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StartColumn names the snapshot timestamp column in tabular output.
const StartColumn = "start_date"

// metricNames lists the per-window aggregates in column order.
var metricNames = []string{
	"mileage_km",
	"mileage_miles",
	"run_count",
	"longest_run_km",
	"longest_run_miles",
	"avg_pace_sec_per_km",
	"fastest_pace_sec_per_km",
	"avg_pace_sec_per_mile",
	"fastest_pace_sec_per_mile",
	"avg_hr",
	"max_hr",
	"elevation_gain_m",
}

// ColumnName returns the tabular column for metric over a days-long window,
// e.g. "mileage_km_14d".
func ColumnName(metric string, days int) string {
	return metric + "_" + strconv.Itoa(days) + "d"
}

// Columns returns the feature column names for windows, grouped by window in
// the configured order. The timestamp column is not included.
func Columns(windows []int) []string {
	out := make([]string, 0, len(windows)*len(metricNames))
	for _, w := range windows {
		for _, m := range metricNames {
			out = append(out, ColumnName(m, w))
		}
	}
	return out
}

// Values flattens the snapshot into the order given by Columns.
func (s Snapshot) Values() []float64 {
	out := make([]float64, 0, len(s.Windows)*len(metricNames))
	for _, w := range s.Windows {
		out = append(out,
			w.MileageKM,
			w.MileageMiles,
			float64(w.RunCount),
			w.LongestRunKM,
			w.LongestRunMiles,
			w.AvgPaceSecPerKM,
			w.FastestPaceSecPerKM,
			w.AvgPaceSecPerMile,
			w.FastestPaceSecPerMile,
			w.AvgHR,
			w.MaxHR,
			w.ElevationGainM,
		)
	}
	return out
}

// WindowsFromColumns recovers window lengths from a header, in order of first
// appearance, using the mileage_km_<n>d columns.
func WindowsFromColumns(header []string) []int {
	var out []int
	seen := map[int]bool{}
	for _, name := range header {
		rest, ok := strings.CutPrefix(strings.TrimSpace(name), "mileage_km_")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(rest, "d"))
		if err != nil || n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// FromValues rebuilds a snapshot from a row laid out per Columns(windows).
func FromValues(start time.Time, windows []int, values []float64) (Snapshot, error) {
	if len(values) != len(windows)*len(metricNames) {
		return Snapshot{}, fmt.Errorf("snapshot row has %d values, want %d", len(values), len(windows)*len(metricNames))
	}
	snap := Snapshot{Start: start, Windows: make([]WindowStats, 0, len(windows))}
	for i, days := range windows {
		v := values[i*len(metricNames) : (i+1)*len(metricNames)]
		snap.Windows = append(snap.Windows, WindowStats{
			Days:                  days,
			MileageKM:             v[0],
			MileageMiles:          v[1],
			RunCount:              int(v[2]),
			LongestRunKM:          v[3],
			LongestRunMiles:       v[4],
			AvgPaceSecPerKM:       v[5],
			FastestPaceSecPerKM:   v[6],
			AvgPaceSecPerMile:     v[7],
			FastestPaceSecPerMile: v[8],
			AvgHR:                 v[9],
			MaxHR:                 v[10],
			ElevationGainM:        v[11],
		})
	}
	return snap, nil
}
