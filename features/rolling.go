// Package features builds trailing training-load snapshots from normalized
// runs.
package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lucasjlepore/vdot-analyzer/activity"
)

// DefaultWindows are the trailing window lengths in days.
var DefaultWindows = []int{14, 30}

// WindowStats aggregates the runs that started inside one trailing window.
type WindowStats struct {
	Days                  int     `json:"days"`
	MileageKM             float64 `json:"mileage_km"`
	MileageMiles          float64 `json:"mileage_miles"`
	RunCount              int     `json:"run_count"`
	LongestRunKM          float64 `json:"longest_run_km"`
	LongestRunMiles       float64 `json:"longest_run_miles"`
	AvgPaceSecPerKM       float64 `json:"avg_pace_sec_per_km"`
	FastestPaceSecPerKM   float64 `json:"fastest_pace_sec_per_km"`
	AvgPaceSecPerMile     float64 `json:"avg_pace_sec_per_mile"`
	FastestPaceSecPerMile float64 `json:"fastest_pace_sec_per_mile"`
	AvgHR                 float64 `json:"avg_hr"`
	MaxHR                 float64 `json:"max_hr"`
	ElevationGainM        float64 `json:"elevation_gain_m"`
}

// Snapshot is the training load leading up to (not including) Start.
type Snapshot struct {
	Start   time.Time     `json:"start_date"`
	Windows []WindowStats `json:"windows"`
}

// Window returns the stats for the given window length.
func (s Snapshot) Window(days int) (WindowStats, bool) {
	for _, w := range s.Windows {
		if w.Days == days {
			return w, true
		}
	}
	return WindowStats{}, false
}

// Build computes one snapshot per run timestamp. The window for run start t and
// length w covers runs with t-w <= start < t. Snapshots with an empty window,
// or with an aggregate that has no defined input, are omitted.
func Build(runs []activity.Run, windows []int) ([]Snapshot, error) {
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	if err := validateWindows(windows); err != nil {
		return nil, err
	}

	sorted := make([]activity.Run, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := make([]Snapshot, 0, len(sorted))
	for _, run := range sorted {
		t := run.Start
		snap := Snapshot{Start: t, Windows: make([]WindowStats, 0, len(windows))}
		complete := true
		for _, days := range windows {
			from := t.Add(-time.Duration(days) * 24 * time.Hour)
			stats, ok := aggregate(sorted, from, t, days)
			if !ok {
				complete = false
				break
			}
			snap.Windows = append(snap.Windows, stats)
		}
		if complete {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Trailing aggregates runs with from <= start < to. It is the single-window
// building block used by Build; ok is false when the window is empty or an
// aggregate is undefined.
func Trailing(runs []activity.Run, to time.Time, days int) (WindowStats, bool) {
	from := to.Add(-time.Duration(days) * 24 * time.Hour)
	return aggregate(runs, from, to, days)
}

func aggregate(runs []activity.Run, from, to time.Time, days int) (WindowStats, bool) {
	stats := WindowStats{Days: days}

	var (
		paceKM   = newMoments()
		paceMile = newMoments()
		avgHR    = newMoments()
		maxHR    = newMoments()
		longKM   = newMoments()
		longMile = newMoments()
		elev     = newMoments()
	)
	for _, r := range runs {
		if r.Start.Before(from) || !r.Start.Before(to) {
			continue
		}
		stats.RunCount++
		stats.MileageKM += r.DistanceKM
		stats.MileageMiles += r.DistanceMiles
		longKM.add(r.DistanceKM)
		longMile.add(r.DistanceMiles)
		if r.ElevationGainM != nil {
			elev.add(*r.ElevationGainM)
		}
		if r.PaceSecPerKM != nil {
			paceKM.add(*r.PaceSecPerKM)
		}
		if r.PaceSecPerMile != nil {
			paceMile.add(*r.PaceSecPerMile)
		}
		if r.AverageHR != nil {
			avgHR.add(*r.AverageHR)
		}
		if r.MaxHR != nil {
			maxHR.add(*r.MaxHR)
		}
	}
	if stats.RunCount == 0 {
		return WindowStats{}, false
	}
	for _, m := range []moments{paceKM, paceMile, avgHR, maxHR, longKM, elev} {
		if m.n == 0 {
			return WindowStats{}, false
		}
	}

	stats.ElevationGainM = elev.sum
	stats.LongestRunKM = longKM.max
	stats.LongestRunMiles = longMile.max
	stats.AvgPaceSecPerKM = paceKM.mean()
	stats.FastestPaceSecPerKM = paceKM.min
	stats.AvgPaceSecPerMile = paceMile.mean()
	stats.FastestPaceSecPerMile = paceMile.min
	stats.AvgHR = avgHR.mean()
	stats.MaxHR = maxHR.max
	return stats, true
}

// moments tracks sum/min/max over finite values.
type moments struct {
	n   int
	sum float64
	min float64
	max float64
}

func newMoments() moments {
	return moments{min: math.Inf(1), max: math.Inf(-1)}
}

func (m *moments) add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	m.n++
	m.sum += v
	if v < m.min {
		m.min = v
	}
	if v > m.max {
		m.max = v
	}
}

func (m moments) mean() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.n)
}

func validateWindows(windows []int) error {
	seen := make(map[int]struct{}, len(windows))
	for _, w := range windows {
		if w <= 0 {
			return fmt.Errorf("window length must be positive, got %d", w)
		}
		if _, dup := seen[w]; dup {
			return fmt.Errorf("duplicate window length %d", w)
		}
		seen[w] = struct{}{}
	}
	return nil
}
