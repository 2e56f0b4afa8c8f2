package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/forecast"
)

// BuildSummary renders the analysis, the recent training context and the
// forecast as a plain-text report.
func BuildSummary(ds *Dataset, a Analysis, fc *forecast.Outcome) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Runs: %d | Scored efforts: %d | Average HR %d bpm\n", a.Runs, a.Observations, a.AvgHR)
	if a.Observations == 0 {
		b.WriteString("VDOT: no race-like efforts found (reported as 0)\n")
	} else {
		fmt.Fprintf(&b, "VDOT %.2f (last effort %s)\n", a.VDOT, a.LastEffort)
		fmt.Fprintf(
			&b,
			"Race projections: 5K %s | Half %s | Marathon %s\n",
			a.RaceTimes[vdot.Race5000],
			a.RaceTimes[vdot.RaceHalfMarathon],
			a.RaceTimes[vdot.RaceMarathon],
		)
		if a.Extrapolated {
			fmt.Fprintf(&b, "Note: %s\n", a.Warning)
		}
	}

	if ctx, ok := recentContext(ds, fc); ok {
		fmt.Fprintf(&b, "\nRecent Training Context (last %d days)\n", forecast.ContextDays)
		fmt.Fprintf(&b, "- Total distance: %.1f km\n", ctx.TotalDistanceKM)
		fmt.Fprintf(&b, "- Number of runs: %d\n", ctx.RunCount)
		fmt.Fprintf(&b, "- Average pace: %s /km\n", formatPace(ctx.AvgPaceSecPerKM()))
		fmt.Fprintf(&b, "- Average heart rate: %.0f bpm\n", ctx.AvgHR)
	}

	if len(a.History) > 0 {
		b.WriteString("\nVDOT History\n")
		for _, h := range a.History {
			fmt.Fprintf(&b, "- %s: %.2f\n", h.Date, h.VDOT)
		}
	}

	if fc != nil {
		b.WriteString("\nForecast\n")
		switch {
		case fc.Failure != nil:
			fmt.Fprintf(&b, "- Unavailable (%s): %s\n", fc.Failure.Reason, fc.Failure.Message)
		case fc.Forecast.PredictedScore == nil:
			fmt.Fprintf(&b, "- No training in the %d days before %s; cannot project.\n", forecast.ContextDays, fc.Forecast.LastDate)
		default:
			f := fc.Forecast
			fmt.Fprintf(&b, "- Model: %s\n", f.Model)
			fmt.Fprintf(
				&b,
				"- %s: VDOT %.2f (80%% interval %.2f-%.2f), %+.2f from %.2f on %s\n",
				f.PredictionDate,
				*f.PredictedScore,
				*f.Lower80,
				*f.Upper80,
				*f.Change,
				f.LastScore,
				f.LastDate,
			)
			if f.Degraded != "" {
				fmt.Fprintf(&b, "- Degraded: %s\n", f.Degraded)
			}
		}
	}

	return strings.TrimSpace(b.String()) + "\n"
}

func recentContext(ds *Dataset, fc *forecast.Outcome) (forecast.TrainingContext, bool) {
	if fc != nil && fc.Forecast != nil && fc.Forecast.Context != nil {
		return *fc.Forecast.Context, true
	}
	if ds == nil || len(ds.Runs) == 0 {
		return forecast.TrainingContext{}, false
	}
	last := ds.Runs[len(ds.Runs)-1].Start
	return forecast.Context(ds.Runs, last.Add(time.Second))
}

func formatPace(secPerKM float64) string {
	if secPerKM <= 0 || math.IsInf(secPerKM, 0) || math.IsNaN(secPerKM) {
		return "n/a"
	}
	return vdot.FormatClock(secPerKM)
}
