// Package label detects race-like efforts, scores them and pairs each with
// the training snapshot that preceded it.
package label

import (
	"sort"
	"time"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/features"
)

// DefaultCooldown is the minimum spacing between kept efforts.
const DefaultCooldown = 21 * 24 * time.Hour

// Thresholds decide whether a run was raced.
type Thresholds struct {
	MinAvgHR         float64
	MinMiles         float64
	MinStoppageRatio float64
}

// DefaultThresholds: hard effort, at least 3 miles, stopped under 3% of the time.
func DefaultThresholds() Thresholds {
	return Thresholds{MinAvgHR: 160, MinMiles: 3.0, MinStoppageRatio: 0.97}
}

// Options configures Label.
type Options struct {
	Thresholds Thresholds
	Cooldown   time.Duration
}

// DefaultOptions returns the standard thresholds and a 21-day cooldown.
func DefaultOptions() Options {
	return Options{Thresholds: DefaultThresholds(), Cooldown: DefaultCooldown}
}

// Effort is a race-like run with its score.
type Effort struct {
	Run           activity.Run `json:"run"`
	StoppageRatio float64      `json:"stoppage_ratio"`
	Score         float64      `json:"vdot"`
}

// Observation is a scored effort paired with the latest snapshot taken
// strictly before it.
type Observation struct {
	Start    time.Time         `json:"start_date"`
	Score    float64           `json:"vdot"`
	Snapshot features.Snapshot `json:"snapshot"`
}

// IsRaceLike reports whether run meets every threshold. Runs without heart
// rate or elapsed time never qualify.
func (th Thresholds) IsRaceLike(run activity.Run) bool {
	if run.AverageHR == nil || *run.AverageHR < th.MinAvgHR {
		return false
	}
	if run.DistanceMiles < th.MinMiles {
		return false
	}
	ratio, ok := run.StoppageRatio()
	return ok && ratio >= th.MinStoppageRatio
}

// Efforts returns the race-like runs, scored on distance and moving time, in
// start order.
func Efforts(runs []activity.Run, th Thresholds) []Effort {
	out := make([]Effort, 0)
	for _, r := range runs {
		if !th.IsRaceLike(r) {
			continue
		}
		ratio, _ := r.StoppageRatio()
		out = append(out, Effort{
			Run:           r,
			StoppageRatio: ratio,
			Score:         vdot.Score(r.DistanceMeters(), r.MovingTimeS),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Run.Start.Before(out[j].Run.Start)
	})
	return out
}

// Dedup keeps the first effort and then every effort at least cooldown after
// the previously kept one, counted in whole days. Efforts must be in start
// order.
func Dedup(efforts []Effort, cooldown time.Duration) []Effort {
	minDays := int(cooldown / (24 * time.Hour))
	out := make([]Effort, 0, len(efforts))
	var last time.Time
	for i, e := range efforts {
		if i > 0 && wholeDays(e.Run.Start.Sub(last)) < minDays {
			continue
		}
		out = append(out, e)
		last = e.Run.Start
	}
	return out
}

// Label scores race-like efforts, applies the cooldown and the plausibility
// bounds, and attaches the preceding snapshot. Efforts with no earlier
// snapshot are dropped. It returns a *vdot.DataQualityError when the history
// holds no race-like effort at all.
func Label(runs []activity.Run, snapshots []features.Snapshot, opts Options) ([]Observation, error) {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}

	efforts := Efforts(runs, opts.Thresholds)
	if len(efforts) == 0 {
		return nil, &vdot.DataQualityError{Stage: "label", Reason: "no race-like efforts in history"}
	}

	snaps := make([]features.Snapshot, len(snapshots))
	copy(snaps, snapshots)
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Start.Before(snaps[j].Start)
	})

	out := make([]Observation, 0)
	for _, e := range Dedup(efforts, opts.Cooldown) {
		if !vdot.Plausible(e.Score) {
			continue
		}
		snap, ok := latestBefore(snaps, e.Run.Start)
		if !ok {
			continue
		}
		out = append(out, Observation{Start: e.Run.Start, Score: e.Score, Snapshot: snap})
	}
	return out, nil
}

// latestBefore returns the last snapshot with Start < t from a sorted slice.
func latestBefore(snaps []features.Snapshot, t time.Time) (features.Snapshot, bool) {
	i := sort.Search(len(snaps), func(i int) bool {
		return !snaps[i].Start.Before(t)
	})
	if i == 0 {
		return features.Snapshot{}, false
	}
	return snaps[i-1], true
}

func wholeDays(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
