package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/activity"
)

// TimeLayout is the timestamp format written to tables.
const TimeLayout = time.RFC3339

var runColumns = []string{
	"start_date", "distance_km", "distance_miles", "moving_time", "elapsed_time",
	"average_speed", "average_heartrate", "max_heartrate", "total_elevation_gain",
	"pace_sec_per_km", "pace_sec_per_mile",
}

type runParquetRow struct {
	StartDate          string   `parquet:"name=start_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	DistanceKM         float64  `parquet:"name=distance_km, type=DOUBLE"`
	DistanceMiles      float64  `parquet:"name=distance_miles, type=DOUBLE"`
	MovingTime         float64  `parquet:"name=moving_time, type=DOUBLE"`
	ElapsedTime        *float64 `parquet:"name=elapsed_time, type=DOUBLE, repetitiontype=OPTIONAL"`
	AverageSpeed       *float64 `parquet:"name=average_speed, type=DOUBLE, repetitiontype=OPTIONAL"`
	AverageHeartrate   *float64 `parquet:"name=average_heartrate, type=DOUBLE, repetitiontype=OPTIONAL"`
	MaxHeartrate       *float64 `parquet:"name=max_heartrate, type=DOUBLE, repetitiontype=OPTIONAL"`
	TotalElevationGain *float64 `parquet:"name=total_elevation_gain, type=DOUBLE, repetitiontype=OPTIONAL"`
	PaceSecPerKM       *float64 `parquet:"name=pace_sec_per_km, type=DOUBLE, repetitiontype=OPTIONAL"`
	PaceSecPerMile     *float64 `parquet:"name=pace_sec_per_mile, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// WriteRuns writes normalized runs to path.
func WriteRuns(path string, runs []activity.Run, format Format) error {
	if format == FormatParquet {
		return writeRunsParquet(path, runs)
	}
	return writeRunsCSV(path, runs)
}

// ReadRuns reads a runs table written by WriteRuns, choosing the decoder from
// the file extension.
func ReadRuns(path string) ([]activity.Run, error) {
	if FormatOf(path) == FormatParquet {
		return readRunsParquet(path)
	}
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return DecodeRunsCSV(rc)
}

func writeRunsCSV(path string, runs []activity.Run) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(runColumns); err != nil {
		return err
	}
	for _, r := range runs {
		if err := w.Write(runCSVRow(r)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// DecodeRunsCSV parses a runs table. start_date, distance_km and moving_time
// are required; distance_miles and paces are always derived from distance_km.
func DecodeRunsCSV(r io.Reader) ([]activity.Run, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &vdot.SchemaError{Column: "start_date", Source: "runs table"}
		}
		return nil, fmt.Errorf("read runs header: %w", err)
	}
	idx := headerIndex(header)
	for _, col := range []string{"start_date", "distance_km", "moving_time"} {
		if _, ok := idx[col]; !ok {
			return nil, &vdot.SchemaError{Column: col, Source: "runs table"}
		}
	}

	var out []activity.Run
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read runs row %d: %w", line, err)
		}
		start, err := ParseTime(cellAt(row, idx, "start_date"))
		if err != nil {
			return nil, fmt.Errorf("runs row %d: %w", line, err)
		}
		km := parseFloatPtr(cellAt(row, idx, "distance_km"))
		moving := parseFloatPtr(cellAt(row, idx, "moving_time"))
		if km == nil || moving == nil {
			continue
		}
		run := activity.Run{
			Start:          start,
			DistanceKM:     *km,
			DistanceMiles:  *km * vdot.MilesPerKM,
			MovingTimeS:    *moving,
			ElapsedTimeS:   parseFloatPtr(cellAt(row, idx, "elapsed_time")),
			AverageSpeed:   parseFloatPtr(cellAt(row, idx, "average_speed")),
			AverageHR:      parseFloatPtr(cellAt(row, idx, "average_heartrate")),
			MaxHR:          parseFloatPtr(cellAt(row, idx, "max_heartrate")),
			ElevationGainM: parseFloatPtr(cellAt(row, idx, "total_elevation_gain")),
		}
		if run.DistanceKM != 0 {
			pk := run.MovingTimeS / run.DistanceKM
			pm := run.MovingTimeS / run.DistanceMiles
			run.PaceSecPerKM, run.PaceSecPerMile = &pk, &pm
		}
		out = append(out, run)
	}
	return out, nil
}

func writeRunsParquet(path string, runs []activity.Run) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(runParquetRow), 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range runs {
		if err := pw.Write(runParquet(r)); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

func runCSVRow(r activity.Run) []string {
	return []string{
		r.Start.UTC().Format(TimeLayout),
		formatFloat(r.DistanceKM),
		formatFloat(r.DistanceMiles),
		formatFloat(r.MovingTimeS),
		formatFloatPtr(r.ElapsedTimeS),
		formatFloatPtr(r.AverageSpeed),
		formatFloatPtr(r.AverageHR),
		formatFloatPtr(r.MaxHR),
		formatFloatPtr(r.ElevationGainM),
		formatFloatPtr(r.PaceSecPerKM),
		formatFloatPtr(r.PaceSecPerMile),
	}
}

func runParquet(r activity.Run) runParquetRow {
	return runParquetRow{
		StartDate:          r.Start.UTC().Format(TimeLayout),
		DistanceKM:         r.DistanceKM,
		DistanceMiles:      r.DistanceMiles,
		MovingTime:         r.MovingTimeS,
		ElapsedTime:        r.ElapsedTimeS,
		AverageSpeed:       r.AverageSpeed,
		AverageHeartrate:   r.AverageHR,
		MaxHeartrate:       r.MaxHR,
		TotalElevationGain: r.ElevationGainM,
		PaceSecPerKM:       r.PaceSecPerKM,
		PaceSecPerMile:     r.PaceSecPerMile,
	}
}

func readRunsParquet(path string) ([]activity.Run, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(runParquetRow), 4)
	if err != nil {
		return nil, fmt.Errorf("open parquet runs: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]runParquetRow, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read parquet runs: %w", err)
	}

	out := make([]activity.Run, 0, len(rows))
	for i, row := range rows {
		start, err := ParseTime(row.StartDate)
		if err != nil {
			return nil, fmt.Errorf("parquet runs row %d: %w", i, err)
		}
		out = append(out, activity.Run{
			Start:          start,
			DistanceKM:     row.DistanceKM,
			DistanceMiles:  row.DistanceMiles,
			MovingTimeS:    row.MovingTime,
			ElapsedTimeS:   row.ElapsedTime,
			AverageSpeed:   row.AverageSpeed,
			AverageHR:      row.AverageHeartrate,
			MaxHR:          row.MaxHeartrate,
			ElevationGainM: row.TotalElevationGain,
			PaceSecPerKM:   row.PaceSecPerKM,
			PaceSecPerMile: row.PaceSecPerMile,
		})
	}
	return out, nil
}

// ParseTime accepts RFC 3339 timestamps and the space-separated
// "2006-01-02 15:04:05" form, in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04:05-07:00", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}
	return idx
}

func cellAt(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseFloatPtr(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
