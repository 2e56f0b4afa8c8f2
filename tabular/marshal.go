package tabular

import (
	"bytes"
	"encoding/csv"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lucasjlepore/vdot-analyzer/activity"
)

// MarshalRuns encodes runs in memory, for responses that stream a table
// instead of writing a file.
func MarshalRuns(runs []activity.Run, format Format) ([]byte, error) {
	if format == FormatParquet {
		return marshalRunsParquet(runs)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(runColumns); err != nil {
		return nil, err
	}
	for _, r := range runs {
		if err := w.Write(runCSVRow(r)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalRunsParquet(runs []activity.Run) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(runParquetRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range runs {
		if err := pw.Write(runParquet(r)); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}
