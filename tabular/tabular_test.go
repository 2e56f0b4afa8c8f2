package tabular

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/features"
	"github.com/lucasjlepore/vdot-analyzer/label"
)

const export = "Activity Date,Activity Type,Distance,Moving Time,Elapsed Time,Average Heart Rate,Max Heart Rate\n" +
	`"Jan 1, 2024, 7:00:00 AM",Run,5000,1500,1510,150,170` + "\n" +
	`"Jan 3, 2024, 7:00:00 AM",Ride,30000,3600,3600,130,150` + "\n" +
	`"Jan 5, 2024, 7:00:00 AM",Run,10000,3000,3020,155,172` + "\n"

func TestReadActivitiesDecompresses(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "activities.csv")
	require.NoError(t, os.WriteFile(plain, []byte(export), 0o644))

	var gzBuf bytes.Buffer
	gz := gzip.NewWriter(&gzBuf)
	_, err := gz.Write([]byte(export))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	gzPath := filepath.Join(dir, "activities.csv.gz")
	require.NoError(t, os.WriteFile(gzPath, gzBuf.Bytes(), 0o644))

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zstPath := filepath.Join(dir, "activities.csv.zst")
	require.NoError(t, os.WriteFile(zstPath, enc.EncodeAll([]byte(export), nil), 0o644))
	require.NoError(t, enc.Close())

	for _, path := range []string{plain, gzPath, zstPath} {
		acts, err := ReadActivities(path)
		require.NoError(t, err, path)
		require.Len(t, acts, 3, path)

		runs, err := activity.Normalize(acts, activity.DefaultOptions())
		require.NoError(t, err, path)
		require.Len(t, runs, 2, path)
		assert.Equal(t, 5.0, runs[0].DistanceKM, path)
	}
}

func TestRunsRoundTrip(t *testing.T) {
	acts, err := activity.ReadCSV(bytes.NewReader([]byte(export)))
	require.NoError(t, err)
	runs, err := activity.Normalize(acts, activity.Options{HRPolicy: activity.HRKeep})
	require.NoError(t, err)

	dir := t.TempDir()
	for _, format := range []Format{FormatCSV, FormatParquet} {
		path := filepath.Join(dir, "runs."+format.Extension())
		require.NoError(t, WriteRuns(path, runs, format))

		back, err := ReadRuns(path)
		require.NoError(t, err, format)
		require.Len(t, back, len(runs), format)
		for i := range runs {
			assert.True(t, runs[i].Start.Equal(back[i].Start), format)
			assert.Equal(t, runs[i].DistanceKM, back[i].DistanceKM, format)
			assert.Equal(t, runs[i].DistanceKM*vdot.MilesPerKM, back[i].DistanceMiles, format)
			assert.Equal(t, *runs[i].AverageHR, *back[i].AverageHR, format)
			assert.Nil(t, back[i].AverageSpeed, format)
			require.NotNil(t, back[i].PaceSecPerKM, format)
			assert.InDelta(t, *runs[i].PaceSecPerKM, *back[i].PaceSecPerKM, 1e-9, format)
		}
	}
}

func TestDecodeRunsCSVRequiresColumns(t *testing.T) {
	_, err := DecodeRunsCSV(bytes.NewReader([]byte("start_date,moving_time\n2024-01-01T07:00:00Z,1200\n")))
	var schemaErr *vdot.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "distance_km", schemaErr.Column)
}

func TestSnapshotsAndObservations(t *testing.T) {
	start := time.Date(2024, 2, 1, 7, 0, 0, 0, time.UTC)
	snaps := []features.Snapshot{
		{Start: start, Windows: []features.WindowStats{
			{Days: 14, MileageKM: 20, RunCount: 3, AvgHR: 150, MaxHR: 170},
			{Days: 30, MileageKM: 45, RunCount: 6, AvgHR: 151, MaxHR: 175},
		}},
	}
	windows := features.DefaultWindows
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "rolling_features.csv")
	require.NoError(t, WriteSnapshots(csvPath, snaps, windows, FormatCSV))
	back, gotWindows, err := ReadSnapshots(csvPath)
	require.NoError(t, err)
	assert.Equal(t, windows, gotWindows)
	assert.Equal(t, snaps, back)

	parquetPath := filepath.Join(dir, "rolling_features.parquet")
	require.NoError(t, WriteSnapshots(parquetPath, snaps, windows, FormatParquet))
	info, err := os.Stat(parquetPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	_, _, err = ReadSnapshots(parquetPath)
	require.Error(t, err)

	obs := []label.Observation{{Start: start.AddDate(0, 0, 1), Score: 48.25, Snapshot: snaps[0]}}
	obsPath := filepath.Join(dir, "vdot_dataset.csv")
	require.NoError(t, WriteObservations(obsPath, obs, windows, FormatCSV))
	require.NoError(t, WriteObservations(filepath.Join(dir, "vdot_dataset.parquet"), obs, windows, FormatParquet))

	points, err := ReadPoints(obsPath)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, start.AddDate(0, 0, 1), points[0].Date)
	assert.Equal(t, 48.25, points[0].Score)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("PARQUET")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("xlsx")
	require.Error(t, err)

	assert.Equal(t, FormatParquet, FormatOf("runs.parquet"))
	assert.Equal(t, FormatCSV, FormatOf("runs.csv.gz"))
}

func TestMarshalRuns(t *testing.T) {
	acts, err := activity.ReadCSV(bytes.NewReader([]byte(export)))
	require.NoError(t, err)
	runs, err := activity.Normalize(acts, activity.DefaultOptions())
	require.NoError(t, err)

	csvData, err := MarshalRuns(runs, FormatCSV)
	require.NoError(t, err)
	back, err := DecodeRunsCSV(bytes.NewReader(csvData))
	require.NoError(t, err)
	assert.Len(t, back, len(runs))

	pq, err := MarshalRuns(runs, FormatParquet)
	require.NoError(t, err)
	require.Greater(t, len(pq), 4)
	assert.Equal(t, "PAR1", string(pq[:4]))
}
