package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/features"
	"github.com/lucasjlepore/vdot-analyzer/forecast"
	"github.com/lucasjlepore/vdot-analyzer/label"
)

const (
	snapshotDateColumn = "snapshot_date"
	scoreColumn        = "vdot"
)

// WriteSnapshots writes rolling-feature snapshots with one column per window
// aggregate.
func WriteSnapshots(path string, snaps []features.Snapshot, windows []int, format Format) error {
	header := append([]string{features.StartColumn}, features.Columns(windows)...)
	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		row := []string{s.Start.UTC().Format(TimeLayout)}
		for _, v := range s.Values() {
			row = append(row, formatFloat(v))
		}
		rows = append(rows, row)
	}
	return writeTable(path, header, rows, 1, format)
}

// ReadSnapshots reads a CSV snapshot table. Window lengths are recovered from
// the column names.
func ReadSnapshots(path string) ([]features.Snapshot, []int, error) {
	if FormatOf(path) == FormatParquet {
		return nil, nil, fmt.Errorf("read snapshots %s: parquet snapshot tables are write-only; use csv", path)
	}
	rc, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	header, rows, err := readAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshots: %w", err)
	}
	idx := headerIndex(header)
	if _, ok := idx[features.StartColumn]; !ok {
		return nil, nil, &vdot.SchemaError{Column: features.StartColumn, Source: "snapshot table"}
	}
	windows := features.WindowsFromColumns(header)
	if len(windows) == 0 {
		return nil, nil, &vdot.SchemaError{Column: features.ColumnName("mileage_km", features.DefaultWindows[0]), Source: "snapshot table"}
	}
	cols := features.Columns(windows)
	for _, c := range cols {
		if _, ok := idx[c]; !ok {
			return nil, nil, &vdot.SchemaError{Column: c, Source: "snapshot table"}
		}
	}

	out := make([]features.Snapshot, 0, len(rows))
	for i, row := range rows {
		start, err := ParseTime(cellAt(row, idx, features.StartColumn))
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot row %d: %w", i+2, err)
		}
		values := make([]float64, len(cols))
		complete := true
		for j, c := range cols {
			v := parseFloatPtr(cellAt(row, idx, c))
			if v == nil {
				complete = false
				break
			}
			values[j] = *v
		}
		if !complete {
			continue
		}
		snap, err := features.FromValues(start, windows, values)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, snap)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, windows, nil
}

// WriteObservations writes the labeled dataset: the race date, the snapshot
// it was paired with, every snapshot feature, and the score.
func WriteObservations(path string, obs []label.Observation, windows []int, format Format) error {
	header := append([]string{features.StartColumn, snapshotDateColumn}, features.Columns(windows)...)
	header = append(header, scoreColumn)
	rows := make([][]string, 0, len(obs))
	for _, o := range obs {
		row := []string{o.Start.UTC().Format(TimeLayout), o.Snapshot.Start.UTC().Format(TimeLayout)}
		for _, v := range o.Snapshot.Values() {
			row = append(row, formatFloat(v))
		}
		row = append(row, formatFloat(o.Score))
		rows = append(rows, row)
	}
	return writeTable(path, header, rows, 2, format)
}

// ReadPoints reads the start_date and vdot columns of a CSV score table.
func ReadPoints(path string) ([]forecast.Point, error) {
	if FormatOf(path) == FormatParquet {
		return nil, fmt.Errorf("read scores %s: parquet score tables are write-only; use csv", path)
	}
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	header, rows, err := readAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read scores: %w", err)
	}
	idx := headerIndex(header)
	for _, c := range []string{features.StartColumn, scoreColumn} {
		if _, ok := idx[c]; !ok {
			return nil, &vdot.SchemaError{Column: c, Source: "score table"}
		}
	}

	out := make([]forecast.Point, 0, len(rows))
	for i, row := range rows {
		date, err := ParseTime(cellAt(row, idx, features.StartColumn))
		if err != nil {
			return nil, fmt.Errorf("score row %d: %w", i+2, err)
		}
		score := parseFloatPtr(cellAt(row, idx, scoreColumn))
		if score == nil {
			continue
		}
		out = append(out, forecast.Point{Date: date, Score: *score})
	}
	return out, nil
}

// writeTable writes string rows. The first textCols columns are UTF8 strings
// and the rest doubles when the format is parquet.
func writeTable(path string, header []string, rows [][]string, textCols int, format Format) error {
	if format == FormatParquet {
		return writeParquetTable(path, header, rows, textCols)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeParquetTable(path string, header []string, rows [][]string, textCols int) error {
	md := make([]string, len(header))
	for i, name := range header {
		if i < textCols {
			md[i] = "name=" + name + ", type=BYTE_ARRAY, convertedtype=UTF8"
		} else {
			md[i] = "name=" + name + ", type=DOUBLE"
		}
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewCSVWriter(md, fw, 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		rec := make([]*string, len(row))
		for i := range row {
			rec[i] = &row[i]
		}
		if err := pw.WriteString(rec); err != nil {
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

func readAll(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return header, rows, nil
}
