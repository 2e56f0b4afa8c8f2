package pipeline

import (
	"log/slog"
	"time"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/features"
	"github.com/lucasjlepore/vdot-analyzer/forecast"
	"github.com/lucasjlepore/vdot-analyzer/label"
)

// Options configures the vdot_analyze batch pipeline.
type Options struct {
	InputPath string // CSV export (.csv, .csv.gz, .csv.zst), .fit/.fit.gz file, or FIT directory
	OutDir    string
	Format    string // parquet|csv
	Overwrite bool
	Windows   []int
	HRPolicy  activity.HRPolicy
	Months    float64 // forecast horizon; 0 skips the forecast
	Model     forecast.Model
	Now       func() time.Time
	Logger    *slog.Logger
}

// Result returns generated output paths and the in-memory results.
type Result struct {
	OutputDir    string            `json:"output_dir"`
	ManifestPath string            `json:"manifest_path"`
	RunsPath     string            `json:"runs_path"`
	FeaturesPath string            `json:"features_path"`
	DatasetPath  string            `json:"dataset_path"`
	AnalysisPath string            `json:"analysis_path"`
	ForecastPath string            `json:"forecast_path,omitempty"`
	SummaryPath  string            `json:"summary_path"`
	Analysis     Analysis          `json:"analysis"`
	Forecast     *forecast.Outcome `json:"forecast,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
}

// Manifest describes one pipeline run's inputs and artifacts.
type Manifest struct {
	FormatVersion   string    `json:"format_version"`
	GeneratedAt     time.Time `json:"generated_at"`
	SourcePath      string    `json:"source_path"`
	SourceSHA256    string    `json:"source_sha256,omitempty"`
	SourceSizeBytes int64     `json:"source_size_bytes,omitempty"`
	TableFormat     string    `json:"table_format"`
	Windows         []int     `json:"windows"`
	HRPolicy        string    `json:"hr_policy"`
	ActivityCount   int       `json:"activity_count"`
	RunCount        int       `json:"run_count"`
	SnapshotCount   int       `json:"snapshot_count"`
	ObservationCnt  int       `json:"observation_count"`
	Artifacts       []string  `json:"artifacts"`
	Notes           []string  `json:"notes,omitempty"`
}

// ManifestFormatVersion identifies the artifact layout.
const ManifestFormatVersion = "vdot-analyzer/v1"

// Config holds the stage settings shared by the batch and in-memory modes.
type Config struct {
	Windows   []int
	Normalize activity.Options
	Label     label.Options
}

// DefaultConfig uses 14/30-day windows, drops runs without heart rate and
// applies the standard race thresholds.
func DefaultConfig() Config {
	return Config{
		Windows:   append([]int(nil), features.DefaultWindows...),
		Normalize: activity.DefaultOptions(),
		Label:     label.DefaultOptions(),
	}
}

// Dataset is the output of every stage before forecasting.
type Dataset struct {
	Activities   int
	Runs         []activity.Run
	Snapshots    []features.Snapshot
	Observations []label.Observation
	Windows      []int
	// NoEfforts is set when the history has no race-like effort at all.
	NoEfforts bool
}

// Analysis is the fitness summary returned to callers. A VDOT of 0 means no
// race-like effort was found; AvgHR is still reported.
type Analysis struct {
	VDOT         float64              `json:"vdot"`
	AvgHR        int                  `json:"avg_hr"`
	RaceTimes    map[vdot.Race]string `json:"race_times,omitempty"`
	Extrapolated bool                 `json:"extrapolated,omitempty"`
	Warning      string               `json:"warning,omitempty"`
	LastEffort   string               `json:"last_effort,omitempty"`
	Observations int                  `json:"observations"`
	Runs         int                  `json:"runs"`
	History      []HistoryPoint       `json:"history"`
}

// HistoryPoint is one scored effort.
type HistoryPoint struct {
	Date string  `json:"date"`
	VDOT float64 `json:"vdot"`
}
