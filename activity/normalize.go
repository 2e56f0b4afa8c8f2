// Package activity turns raw activity exports into normalized, time-ordered
// runs.
package activity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	vdot "github.com/lucasjlepore/vdot-analyzer"
)

// DateLayout is the export's "Activity Date" format, e.g. "Mar 4, 2024, 6:12:45 AM".
const DateLayout = "Jan 2, 2006, 3:04:05 PM"

// metersThreshold is the raw-distance magnitude above which a table is read as
// meters. Exports carry no unit column, so this is an assumption: no single
// run is expected to exceed 1000 km, and no meter-valued table is expected to
// stay below 1000 m for every row.
const metersThreshold = 1000.0

// ColumnMap maps export header names to canonical column names. Columns not
// listed here are dropped.
var ColumnMap = map[string]string{
	"Distance":           "distance",
	"Moving Time":        "moving_time",
	"Elapsed Time":       "elapsed_time",
	"Average Speed":      "average_speed",
	"Average Heart Rate": "average_heartrate",
	"Max Heart Rate":     "max_heartrate",
	"Elevation Gain":     "total_elevation_gain",
	"Activity Type":      "type",
	"Activity Date":      "start_date",
}

// ReadCSV parses an activity export into Activity records. It fails with a
// *vdot.SchemaError when the export has no Distance column.
func ReadCSV(r io.Reader) ([]Activity, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &vdot.SchemaError{Column: "Distance", Source: "empty export"}
		}
		return nil, fmt.Errorf("read export header: %w", err)
	}

	// First occurrence wins; some exports repeat a header in another unit.
	index := make(map[string]int, len(ColumnMap))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))
		canonical, ok := ColumnMap[name]
		if !ok {
			continue
		}
		if _, seen := index[canonical]; !seen {
			index[canonical] = i
		}
	}
	if _, ok := index["distance"]; !ok {
		return nil, &vdot.SchemaError{Column: "Distance", Source: "activity export"}
	}

	cell := func(row []string, canonical string) string {
		i, ok := index[canonical]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make([]Activity, 0, 256)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read export row %d: %w", len(out)+2, err)
		}
		out = append(out, Activity{
			Start:          parseDate(cell(row, "start_date")),
			Distance:       parseNumber(cell(row, "distance")),
			Unit:           UnitAuto,
			MovingTimeS:    parseNumber(cell(row, "moving_time")),
			ElapsedTimeS:   parseNumber(cell(row, "elapsed_time")),
			AverageSpeed:   parseNumber(cell(row, "average_speed")),
			AverageHR:      parseNumber(cell(row, "average_heartrate")),
			MaxHR:          parseNumber(cell(row, "max_heartrate")),
			ElevationGainM: parseNumber(cell(row, "total_elevation_gain")),
			Type:           cell(row, "type"),
		})
	}
	return out, nil
}

// NormalizeCSV reads an export and normalizes it in one step.
func NormalizeCSV(r io.Reader, opts Options) ([]Run, error) {
	acts, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return Normalize(acts, opts)
}

// Normalize filters acts to runs, resolves distance units, derives pace and
// returns the runs ordered by start time. The input is not modified.
func Normalize(acts []Activity, opts Options) ([]Run, error) {
	if opts.HRPolicy == "" {
		opts.HRPolicy = HRDrop
	}
	if opts.HRPolicy != HRDrop && opts.HRPolicy != HRKeep {
		return nil, fmt.Errorf("unsupported heart-rate policy %q (expected drop|keep)", opts.HRPolicy)
	}

	kept := make([]Activity, 0, len(acts))
	for _, a := range acts {
		if !strings.EqualFold(strings.TrimSpace(a.Type), "run") {
			continue
		}
		if opts.HRPolicy == HRDrop && (a.AverageHR == nil || a.MaxHR == nil) {
			continue
		}
		if a.Start == nil || a.Distance == nil || a.MovingTimeS == nil {
			continue
		}
		kept = append(kept, a)
	}

	autoMeters := false
	for _, a := range kept {
		if a.Unit == UnitAuto && math.Abs(*a.Distance) > metersThreshold {
			autoMeters = true
			break
		}
	}

	runs := make([]Run, 0, len(kept))
	for _, a := range kept {
		km := *a.Distance
		switch a.Unit {
		case UnitMeters:
			km /= 1000
		case UnitAuto:
			if autoMeters {
				km /= 1000
			}
		}
		run := Run{
			Start:          a.Start.UTC(),
			DistanceKM:     km,
			DistanceMiles:  km * vdot.MilesPerKM,
			MovingTimeS:    *a.MovingTimeS,
			ElapsedTimeS:   copyFloat(a.ElapsedTimeS),
			AverageSpeed:   copyFloat(a.AverageSpeed),
			AverageHR:      copyFloat(a.AverageHR),
			MaxHR:          copyFloat(a.MaxHR),
			ElevationGainM: copyFloat(a.ElevationGainM),
		}
		if run.DistanceKM != 0 {
			run.PaceSecPerKM = floatPtr(run.MovingTimeS / run.DistanceKM)
			run.PaceSecPerMile = floatPtr(run.MovingTimeS / run.DistanceMiles)
		}
		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Start.Before(runs[j].Start)
	})
	return runs, nil
}

// AverageHR returns the mean average heart rate over runs that report one.
// ok is false when none do.
func AverageHR(runs []Run) (float64, bool) {
	sum := 0.0
	n := 0
	for _, r := range runs {
		if r.AverageHR == nil || !isFinite(*r.AverageHR) {
			continue
		}
		sum += *r.AverageHR
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	ts, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return nil
	}
	return &ts
}

// groupedNumber matches comma thousands grouping such as "1,234.5".
var groupedNumber = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// parseNumber parses a cell leniently. Commas are accepted only as thousands
// separators; a decimal comma ("5,03") is unparseable and yields nil.
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.Contains(s, ",") {
		if !groupedNumber.MatchString(s) {
			return nil
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(v) {
		return nil
	}
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func floatPtr(v float64) *float64 {
	out := v
	return &out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
