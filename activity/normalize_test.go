package activity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vdot "github.com/lucasjlepore/vdot-analyzer"
)

const exportHeader = "Activity ID,Activity Date,Activity Name,Activity Type,Elapsed Time,Distance,Moving Time,Distance,Max Heart Rate,Average Heart Rate,Average Speed,Elevation Gain\n"

func TestReadCSVMissingDistanceColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Activity Date,Activity Type,Moving Time\nJan 1, 2024, 7:00:00 AM,Run,1200\n"))
	var schemaErr *vdot.SchemaError
	require.True(t, errors.As(err, &schemaErr), "expected SchemaError, got %v", err)
	assert.Equal(t, "Distance", schemaErr.Column)
}

func TestReadCSVFirstDuplicateHeaderWins(t *testing.T) {
	data := exportHeader +
		`1,"Mar 4, 2024, 6:12:45 AM",Morning Run,Run,1300,5.01,1250,"5,010.0",180,165,4.0,12` + "\n"

	acts, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, acts, 1)

	a := acts[0]
	require.NotNil(t, a.Distance)
	assert.InDelta(t, 5.01, *a.Distance, 1e-12)
	require.NotNil(t, a.Start)
	assert.Equal(t, time.Date(2024, 3, 4, 6, 12, 45, 0, time.UTC), *a.Start)
	assert.Equal(t, "Run", a.Type)
	require.NotNil(t, a.ElevationGainM)
	assert.Equal(t, 12.0, *a.ElevationGainM)
}

func TestReadCSVTrimsHeadersAndParsesLeniently(t *testing.T) {
	data := " Activity Date , Activity Type ,Distance, Moving Time \n" +
		`"Jan 2, 2024, 7:00:00 PM",Run,"1,234.5",oops` + "\n" +
		`not a date,Run,3.0,900` + "\n"

	acts, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, acts, 2)

	require.NotNil(t, acts[0].Distance)
	assert.Equal(t, 1234.5, *acts[0].Distance)
	assert.Nil(t, acts[0].MovingTimeS)
	assert.Nil(t, acts[1].Start)
}

func TestReadCSVStripsByteOrderMark(t *testing.T) {
	data := "\uFEFFDistance,Activity Type,Moving Time\n5.0,Run,1500\n"

	acts, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, acts, 1)
	require.NotNil(t, acts[0].Distance)
	assert.Equal(t, 5.0, *acts[0].Distance)
}

func TestReadCSVDecimalCommaIsNotThousandsGrouping(t *testing.T) {
	data := "Activity Date,Activity Type,Distance,Moving Time\n" +
		`"Jan 2, 2024, 7:00:00 AM",Run,"5,03",1500` + "\n" +
		`"Jan 3, 2024, 7:00:00 AM",Run,"1,234,567.25",1500` + "\n" +
		`"Jan 4, 2024, 7:00:00 AM",Run,"12,5",1500` + "\n" +
		`"Jan 5, 2024, 7:00:00 AM",Run,8.2,1500` + "\n"

	acts, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, acts, 4)

	assert.Nil(t, acts[0].Distance, "decimal comma must not become 503")
	require.NotNil(t, acts[1].Distance)
	assert.Equal(t, 1234567.25, *acts[1].Distance)
	assert.Nil(t, acts[2].Distance)

	// The dropped decimal-comma row cannot flip the table into meters.
	runs, err := Normalize([]Activity{acts[0], acts[3]}, Options{HRPolicy: HRKeep})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 8.2, runs[0].DistanceKM)
}

func TestNormalizeMilesInvariant(t *testing.T) {
	acts := []Activity{
		runActivity(day(0), 5.0, 1500, 160, 175),
		runActivity(day(1), 10.0, 3000, 150, 170),
		runActivity(day(2), 0.0, 60, 120, 130),
	}
	runs, err := Normalize(acts, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, runs, 3)

	for _, r := range runs {
		assert.Equal(t, r.DistanceKM*vdot.MilesPerKM, r.DistanceMiles)
	}
	require.NotNil(t, runs[0].PaceSecPerKM)
	assert.InDelta(t, 300.0, *runs[0].PaceSecPerKM, 1e-9)
	assert.Nil(t, runs[2].PaceSecPerKM, "zero distance has no pace")
	assert.Nil(t, runs[2].PaceSecPerMile)
}

func TestNormalizeMetersHeuristicIsTableWide(t *testing.T) {
	acts := []Activity{
		runActivity(day(0), 5000, 1500, 160, 175),
		runActivity(day(1), 800, 200, 160, 175),
	}
	runs, err := Normalize(acts, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.InDelta(t, 5.0, runs[0].DistanceKM, 1e-12)
	assert.InDelta(t, 0.8, runs[1].DistanceKM, 1e-12)
}

func TestNormalizeKilometersStayKilometers(t *testing.T) {
	runs, err := Normalize([]Activity{runActivity(day(0), 21.1, 6000, 160, 175)}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 21.1, runs[0].DistanceKM)
}

func TestNormalizeExplicitMetersIgnoresHeuristic(t *testing.T) {
	fitAct := runActivity(day(0), 800, 200, 160, 175)
	fitAct.Unit = UnitMeters
	csvAct := runActivity(day(1), 5.0, 1500, 160, 175)

	runs, err := Normalize([]Activity{fitAct, csvAct}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.InDelta(t, 0.8, runs[0].DistanceKM, 1e-12)
	assert.Equal(t, 5.0, runs[1].DistanceKM)
}

func TestNormalizeFiltersAndOrders(t *testing.T) {
	ride := runActivity(day(0), 40, 4000, 140, 160)
	ride.Type = "Ride"
	noHR := runActivity(day(1), 5, 1500, 0, 0)
	noHR.AverageHR, noHR.MaxHR = nil, nil
	noMoving := runActivity(day(2), 5, 1500, 150, 160)
	noMoving.MovingTimeS = nil
	noDate := runActivity(day(3), 5, 1500, 150, 160)
	noDate.Start = nil
	lower := runActivity(day(5), 6, 1800, 150, 160)
	lower.Type = "  run "
	earlier := runActivity(day(4), 7, 2100, 150, 160)

	acts := []Activity{ride, noHR, noMoving, noDate, lower, earlier}

	runs, err := Normalize(acts, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, day(4), runs[0].Start)
	assert.Equal(t, day(5), runs[1].Start)

	kept, err := Normalize(acts, Options{HRPolicy: HRKeep})
	require.NoError(t, err)
	require.Len(t, kept, 3)
	assert.Nil(t, kept[0].AverageHR)
}

func TestNormalizeRejectsUnknownPolicy(t *testing.T) {
	_, err := Normalize(nil, Options{HRPolicy: "impute"})
	require.Error(t, err)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	acts := []Activity{runActivity(day(1), 5000, 1500, 160, 175), runActivity(day(0), 3000, 900, 160, 175)}
	_, err := Normalize(acts, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 5000.0, *acts[0].Distance)
	assert.Equal(t, day(1), *acts[0].Start)
}

func TestAverageHR(t *testing.T) {
	runs, err := Normalize([]Activity{
		runActivity(day(0), 5, 1500, 150, 170),
		runActivity(day(1), 5, 1500, 160, 170),
	}, DefaultOptions())
	require.NoError(t, err)

	avg, ok := AverageHR(runs)
	require.True(t, ok)
	assert.Equal(t, 155.0, avg)

	_, ok = AverageHR(nil)
	assert.False(t, ok)
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func runActivity(start time.Time, distance, moving, avgHR, maxHR float64) Activity {
	elapsed := moving
	return Activity{
		Start:        &start,
		Distance:     &distance,
		MovingTimeS:  &moving,
		ElapsedTimeS: &elapsed,
		AverageHR:    &avgHR,
		MaxHR:        &maxHR,
		Type:         "Run",
	}
}
