package activity

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/tormoder/fit"
)

// DecodeFIT decodes an activity FIT stream into an Activity built from the
// first session's totals. Distance is reported in meters.
func DecodeFIT(r io.Reader) (Activity, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return Activity{}, fmt.Errorf("decode FIT file: %w", err)
	}

	file, err := decoded.Activity()
	if err != nil {
		return Activity{}, fmt.Errorf("activity FIT expected: %w", err)
	}
	if len(file.Sessions) == 0 {
		return Activity{}, fmt.Errorf("activity file has no session message")
	}
	session := file.Sessions[0]

	act := Activity{
		Unit: UnitMeters,
		Type: sportName(session.Sport),
	}

	if start := validTimeOrZero(session.StartTime); !start.IsZero() {
		start = start.UTC()
		act.Start = &start
	} else if len(file.Records) > 0 {
		if first := validTimeOrZero(file.Records[0].Timestamp); !first.IsZero() {
			first = first.UTC()
			act.Start = &first
		}
	}

	timer := safePositive(session.GetTotalTimerTimeScaled())
	moving := safePositive(session.GetTotalMovingTimeScaled())
	if moving == 0 {
		moving = timer
	}
	elapsed := safePositive(session.GetTotalElapsedTimeScaled())
	if elapsed == 0 {
		elapsed = timer
	}
	distance := safePositive(session.GetTotalDistanceScaled())
	speed := safePositive(session.GetEnhancedAvgSpeedScaled())
	if speed == 0 {
		speed = safePositive(session.GetAvgSpeedScaled())
	}
	if speed == 0 && distance > 0 && moving > 0 {
		speed = distance / moving
	}

	act.Distance = positivePtr(distance)
	act.MovingTimeS = positivePtr(moving)
	act.ElapsedTimeS = positivePtr(elapsed)
	act.AverageSpeed = positivePtr(speed)
	act.AverageHR = positivePtr(float64(validUint8(session.AvgHeartRate)))
	act.MaxHR = positivePtr(float64(validUint8(session.MaxHeartRate)))
	if ascent := validUint16(session.TotalAscent); ascent > 0 {
		act.ElevationGainM = floatPtr(float64(ascent))
	}
	return act, nil
}

// ReadFITFile opens and decodes one .fit or .fit.gz file.
func ReadFITFile(path string) (Activity, error) {
	f, err := os.Open(path)
	if err != nil {
		return Activity{}, fmt.Errorf("open FIT file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Activity{}, fmt.Errorf("open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	act, err := DecodeFIT(r)
	if err != nil {
		return Activity{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return act, nil
}

// ReadFITDir decodes every .fit and .fit.gz file directly inside dir, in name
// order. Files that fail to decode are returned in skipped rather than
// aborting the import.
func ReadFITDir(dir string) (acts []Activity, skipped []error, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read FIT directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		if strings.HasSuffix(lower, ".fit") || strings.HasSuffix(lower, ".fit.gz") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		act, err := ReadFITFile(filepath.Join(dir, name))
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		acts = append(acts, act)
	}
	return acts, skipped, nil
}

// sportName maps FIT sports onto the export's "Activity Type" vocabulary.
func sportName(s fit.Sport) string {
	switch s {
	case fit.SportRunning:
		return "Run"
	case fit.SportCycling:
		return "Ride"
	case fit.SportWalking:
		return "Walk"
	case fit.SportHiking:
		return "Hike"
	case fit.SportSwimming:
		return "Swim"
	default:
		return fmt.Sprint(s)
	}
}

func validTimeOrZero(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func validUint8(v uint8) uint8 {
	if v == math.MaxUint8 {
		return 0
	}
	return v
}

func validUint16(v uint16) uint16 {
	if v == math.MaxUint16 {
		return 0
	}
	return v
}

func safePositive(v float64) float64 {
	if !isFinite(v) || v <= 0 {
		return 0
	}
	return v
}

func positivePtr(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return floatPtr(v)
}
