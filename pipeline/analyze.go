package pipeline

import (
	"errors"
	"fmt"
	"io"
	"math"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/features"
	"github.com/lucasjlepore/vdot-analyzer/forecast"
	"github.com/lucasjlepore/vdot-analyzer/label"
)

// Prepare runs normalization, feature building and labeling in memory. A
// history without race-like efforts is not an error: the dataset comes back
// with NoEfforts set and no observations.
func Prepare(acts []activity.Activity, cfg Config) (*Dataset, error) {
	windows := cfg.Windows
	if len(windows) == 0 {
		windows = features.DefaultWindows
	}

	runs, err := activity.Normalize(acts, cfg.Normalize)
	if err != nil {
		return nil, fmt.Errorf("normalize activities: %w", err)
	}
	if len(runs) == 0 {
		return nil, &vdot.DataQualityError{
			Stage:  "normalize",
			Reason: fmt.Sprintf("none of %d activities is a run with start date, distance and moving time", len(acts)),
		}
	}

	snaps, err := features.Build(runs, windows)
	if err != nil {
		return nil, fmt.Errorf("build rolling features: %w", err)
	}

	ds := &Dataset{
		Activities: len(acts),
		Runs:       runs,
		Snapshots:  snaps,
		Windows:    windows,
	}

	obs, err := label.Label(runs, snaps, cfg.Label)
	var dq *vdot.DataQualityError
	switch {
	case errors.As(err, &dq):
		ds.NoEfforts = true
	case err != nil:
		return nil, fmt.Errorf("label efforts: %w", err)
	default:
		ds.Observations = obs
	}
	return ds, nil
}

// Analyze reads an activity export and summarizes it.
func Analyze(r io.Reader, cfg Config) (Analysis, *Dataset, error) {
	acts, err := activity.ReadCSV(r)
	if err != nil {
		return Analysis{}, nil, err
	}
	ds, err := Prepare(acts, cfg)
	if err != nil {
		return Analysis{}, nil, err
	}
	return Summarize(ds), ds, nil
}

// Summarize reports the most recent score with its race projections and the
// mean heart rate over all runs.
func Summarize(ds *Dataset) Analysis {
	a := Analysis{
		Runs:         len(ds.Runs),
		Observations: len(ds.Observations),
		History:      make([]HistoryPoint, 0, len(ds.Observations)),
	}
	if hr, ok := activity.AverageHR(ds.Runs); ok {
		a.AvgHR = int(math.Round(hr))
	}
	for _, o := range ds.Observations {
		a.History = append(a.History, HistoryPoint{
			Date: o.Start.Format("2006-01-02"),
			VDOT: math.Round(o.Score*100) / 100,
		})
	}
	if len(ds.Observations) == 0 {
		return a
	}

	last := ds.Observations[len(ds.Observations)-1]
	a.VDOT = math.Round(last.Score*100) / 100
	a.LastEffort = last.Start.Format("2006-01-02")
	proj := vdot.RaceTimes(last.Score)
	a.RaceTimes = proj.Formatted()
	a.Extrapolated = proj.Extrapolated
	a.Warning = proj.Warning
	return a
}

// Points converts observations into forecast input.
func Points(obs []label.Observation) []forecast.Point {
	out := make([]forecast.Point, 0, len(obs))
	for _, o := range obs {
		out = append(out, forecast.Point{Date: o.Start, Score: o.Score})
	}
	return out
}

// Forecast projects the dataset's score history months ahead.
func Forecast(ds *Dataset, months float64, opts forecast.Options) forecast.Outcome {
	if ds == nil {
		return forecast.Outcome{Failure: &forecast.Failure{Reason: forecast.ReasonInsufficientData, Message: "no dataset"}}
	}
	return forecast.Predict(Points(ds.Observations), ds.Runs, months, opts)
}
