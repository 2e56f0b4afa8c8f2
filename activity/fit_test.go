package activity

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/tormoder/fit"
)

func TestDecodeFITSessionTotals(t *testing.T) {
	start := time.Date(2026, 2, 26, 7, 0, 0, 0, time.UTC)
	data := buildRunFIT(t, start)

	act, err := DecodeFIT(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeFIT error: %v", err)
	}
	if act.Type != "Run" {
		t.Fatalf("unexpected type: %q", act.Type)
	}
	if act.Unit != UnitMeters {
		t.Fatalf("expected meters unit, got %v", act.Unit)
	}
	if act.Start == nil || !act.Start.Equal(start) {
		t.Fatalf("unexpected start: %v", act.Start)
	}
	if act.Distance == nil || *act.Distance != 5000 {
		t.Fatalf("unexpected distance: %v", act.Distance)
	}
	if act.MovingTimeS == nil || *act.MovingTimeS != 1200 {
		t.Fatalf("unexpected moving time: %v", act.MovingTimeS)
	}
	if act.ElapsedTimeS == nil || *act.ElapsedTimeS != 1230 {
		t.Fatalf("unexpected elapsed time: %v", act.ElapsedTimeS)
	}
	if act.AverageHR == nil || *act.AverageHR != 170 {
		t.Fatalf("unexpected avg hr: %v", act.AverageHR)
	}
	if act.MaxHR == nil || *act.MaxHR != 182 {
		t.Fatalf("unexpected max hr: %v", act.MaxHR)
	}

	runs, err := Normalize([]Activity{act}, DefaultOptions())
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if len(runs) != 1 || runs[0].DistanceKM != 5 {
		t.Fatalf("expected one 5km run, got %+v", runs)
	}
}

func TestReadFITDirReadsGzipAndSkipsBroken(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

	if err := os.WriteFile(filepath.Join(dir, "a.fit"), buildRunFIT(t, start), 0o644); err != nil {
		t.Fatalf("write fit: %v", err)
	}

	var gzBuf bytes.Buffer
	gz := gzip.NewWriter(&gzBuf)
	if _, err := gz.Write(buildRunFIT(t, start.AddDate(0, 0, 1))); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.fit.gz"), gzBuf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fit.gz: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "c.fit"), []byte("not a fit file"), 0o644); err != nil {
		t.Fatalf("write broken: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	acts, skipped, err := ReadFITDir(dir)
	if err != nil {
		t.Fatalf("ReadFITDir error: %v", err)
	}
	if len(acts) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(acts))
	}
	if len(skipped) != 1 {
		t.Fatalf("expected 1 skipped file, got %d", len(skipped))
	}
}

func buildRunFIT(t *testing.T, start time.Time) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}

	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	record := fit.NewRecordMsg()
	record.Timestamp = start.Add(30 * time.Second)
	record.HeartRate = 165
	activity.Records = append(activity.Records, record)

	session := fit.NewSessionMsg()
	session.Timestamp = start.Add(1230 * time.Second)
	session.StartTime = start
	session.Sport = fit.SportRunning
	session.TotalTimerTime = 1200 * 1000
	session.TotalElapsedTime = 1230 * 1000
	session.TotalDistance = 5000 * 100
	session.AvgHeartRate = 170
	session.MaxHeartRate = 182
	session.TotalAscent = 25
	activity.Sessions = append(activity.Sessions, session)

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}
