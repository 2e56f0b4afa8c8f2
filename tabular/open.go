// Package tabular reads and writes the pipeline's tables as CSV or Parquet.
package tabular

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/lucasjlepore/vdot-analyzer/activity"
)

// Format is an on-disk table encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat normalizes a user-supplied format name; empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected parquet|csv)", s)
	}
}

// Extension is the file extension written for f.
func (f Format) Extension() string {
	if f == FormatParquet {
		return "parquet"
	}
	return "csv"
}

// FormatOf infers the format from a path, ignoring compression suffixes.
func FormatOf(path string) Format {
	if strings.HasSuffix(strings.ToLower(trimCompression(path)), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// Open opens path for reading, transparently decompressing .gz and .zst files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open gzip stream %s: %w", path, err)
		}
		return &stackedCloser{Reader: gz, closers: []io.Closer{gz, f}}, nil
	case strings.HasSuffix(lower, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open zstd stream %s: %w", path, err)
		}
		rc := dec.IOReadCloser()
		return &stackedCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
	default:
		return f, nil
	}
}

// ReadActivities loads raw activities from a CSV export (optionally
// compressed), a single FIT file, or a directory of FIT files.
func ReadActivities(path string) ([]activity.Activity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		acts, _, err := activity.ReadFITDir(path)
		return acts, err
	}
	if strings.HasSuffix(strings.ToLower(trimCompression(path)), ".fit") {
		act, err := activity.ReadFITFile(path)
		if err != nil {
			return nil, err
		}
		return []activity.Activity{act}, nil
	}

	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return activity.ReadCSV(rc)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func trimCompression(path string) string {
	lower := strings.ToLower(path)
	for _, ext := range []string{".gz", ".zst"} {
		if strings.HasSuffix(lower, ext) {
			return path[:len(path)-len(ext)]
		}
	}
	return path
}
