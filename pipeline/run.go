package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/features"
	"github.com/lucasjlepore/vdot-analyzer/forecast"
	"github.com/lucasjlepore/vdot-analyzer/label"
	"github.com/lucasjlepore/vdot-analyzer/tabular"
)

// Run executes the full vdot_analyze pipeline and writes all artifacts:
//   - normalized_runs.<ext>
//   - rolling_features.<ext>
//   - vdot_dataset.<ext>
//   - analysis.json
//   - forecast.json (when Months > 0)
//   - summary.txt
//   - manifest.json
func Run(opts Options) (*Result, error) {
	if strings.TrimSpace(opts.InputPath) == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format, err := tabular.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	if opts.Months < 0 {
		return nil, fmt.Errorf("months ahead must be positive, got %v", opts.Months)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	cfg := DefaultConfig()
	if len(opts.Windows) > 0 {
		cfg.Windows = opts.Windows
	}
	if opts.HRPolicy != "" {
		cfg.Normalize.HRPolicy = opts.HRPolicy
	}

	acts, err := tabular.ReadActivities(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("read activities: %w", err)
	}
	ds, err := Prepare(acts, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("dataset prepared",
		"activities", ds.Activities,
		"runs", len(ds.Runs),
		"snapshots", len(ds.Snapshots),
		"observations", len(ds.Observations))

	if err := ensureOutputDir(opts.OutDir, opts.Overwrite); err != nil {
		return nil, err
	}

	res := &Result{OutputDir: opts.OutDir}
	ext := format.Extension()

	res.RunsPath = filepath.Join(opts.OutDir, "normalized_runs."+ext)
	if err := tabular.WriteRuns(res.RunsPath, ds.Runs, format); err != nil {
		return nil, fmt.Errorf("write normalized runs: %w", err)
	}
	res.FeaturesPath = filepath.Join(opts.OutDir, "rolling_features."+ext)
	if err := tabular.WriteSnapshots(res.FeaturesPath, ds.Snapshots, ds.Windows, format); err != nil {
		return nil, fmt.Errorf("write rolling features: %w", err)
	}
	res.DatasetPath = filepath.Join(opts.OutDir, "vdot_dataset."+ext)
	if err := tabular.WriteObservations(res.DatasetPath, ds.Observations, ds.Windows, format); err != nil {
		return nil, fmt.Errorf("write vdot dataset: %w", err)
	}

	res.Analysis = Summarize(ds)
	if ds.NoEfforts {
		res.Warnings = append(res.Warnings, "no race-like efforts found; VDOT reported as 0")
	} else if len(ds.Observations) == 0 {
		res.Warnings = append(res.Warnings, "all race-like efforts scored outside the plausible range")
	}
	if res.Analysis.Warning != "" {
		res.Warnings = append(res.Warnings, res.Analysis.Warning)
	}
	res.AnalysisPath = filepath.Join(opts.OutDir, "analysis.json")
	if err := tabular.WriteJSON(res.AnalysisPath, res.Analysis); err != nil {
		return nil, fmt.Errorf("write analysis.json: %w", err)
	}

	if opts.Months > 0 {
		outcome := Forecast(ds, opts.Months, forecast.Options{Model: opts.Model, Now: now, Logger: logger})
		res.Forecast = &outcome
		if outcome.Failure != nil {
			res.Warnings = append(res.Warnings, "forecast unavailable: "+outcome.Failure.Error())
		} else if outcome.Forecast.Degraded != "" {
			res.Warnings = append(res.Warnings, "forecast degraded: "+outcome.Forecast.Degraded)
		}
		res.ForecastPath = filepath.Join(opts.OutDir, "forecast.json")
		if err := tabular.WriteJSON(res.ForecastPath, outcome); err != nil {
			return nil, fmt.Errorf("write forecast.json: %w", err)
		}
	}

	res.SummaryPath = filepath.Join(opts.OutDir, "summary.txt")
	summary := BuildSummary(ds, res.Analysis, res.Forecast)
	if err := os.WriteFile(res.SummaryPath, []byte(summary), 0o644); err != nil {
		return nil, fmt.Errorf("write summary.txt: %w", err)
	}

	manifest := Manifest{
		FormatVersion:  ManifestFormatVersion,
		GeneratedAt:    now().UTC(),
		SourcePath:     opts.InputPath,
		TableFormat:    string(format),
		Windows:        ds.Windows,
		HRPolicy:       string(cfg.Normalize.HRPolicy),
		ActivityCount:  ds.Activities,
		RunCount:       len(ds.Runs),
		SnapshotCount:  len(ds.Snapshots),
		ObservationCnt: len(ds.Observations),
		Notes:          res.Warnings,
	}
	if sha, size, err := fileDigest(opts.InputPath); err == nil {
		manifest.SourceSHA256, manifest.SourceSizeBytes = sha, size
	}
	for _, p := range []string{res.RunsPath, res.FeaturesPath, res.DatasetPath, res.AnalysisPath, res.ForecastPath, res.SummaryPath} {
		if p != "" {
			manifest.Artifacts = append(manifest.Artifacts, filepath.Base(p))
		}
	}
	res.ManifestPath = filepath.Join(opts.OutDir, "manifest.json")
	if err := tabular.WriteJSON(res.ManifestPath, manifest); err != nil {
		return nil, fmt.Errorf("write manifest.json: %w", err)
	}
	return res, nil
}

// NormalizeFile reads an activity export and writes the normalized runs
// table. It returns the number of runs written.
func NormalizeFile(inputPath, outPath string, opts activity.Options) (int, error) {
	acts, err := tabular.ReadActivities(inputPath)
	if err != nil {
		return 0, fmt.Errorf("read activities: %w", err)
	}
	runs, err := activity.Normalize(acts, opts)
	if err != nil {
		return 0, err
	}
	if err := tabular.WriteRuns(outPath, runs, tabular.FormatOf(outPath)); err != nil {
		return 0, fmt.Errorf("write normalized runs: %w", err)
	}
	return len(runs), nil
}

// BuildFeaturesFile reads a runs table and writes its rolling snapshots.
func BuildFeaturesFile(runsPath, outPath string, windows []int) (int, error) {
	runs, err := tabular.ReadRuns(runsPath)
	if err != nil {
		return 0, fmt.Errorf("read runs: %w", err)
	}
	if len(windows) == 0 {
		windows = features.DefaultWindows
	}
	snaps, err := features.Build(runs, windows)
	if err != nil {
		return 0, err
	}
	if err := tabular.WriteSnapshots(outPath, snaps, windows, tabular.FormatOf(outPath)); err != nil {
		return 0, fmt.Errorf("write rolling features: %w", err)
	}
	return len(snaps), nil
}

// LabelFile joins scored race efforts from a runs table with the snapshots
// table and writes the labeled dataset.
func LabelFile(runsPath, snapshotsPath, outPath string, opts label.Options) (int, error) {
	runs, err := tabular.ReadRuns(runsPath)
	if err != nil {
		return 0, fmt.Errorf("read runs: %w", err)
	}
	snaps, windows, err := tabular.ReadSnapshots(snapshotsPath)
	if err != nil {
		return 0, fmt.Errorf("read rolling features: %w", err)
	}
	obs, err := label.Label(runs, snaps, opts)
	if err != nil {
		return 0, err
	}
	if err := tabular.WriteObservations(outPath, obs, windows, tabular.FormatOf(outPath)); err != nil {
		return 0, fmt.Errorf("write vdot dataset: %w", err)
	}
	return len(obs), nil
}

// ForecastFile forecasts from a labeled dataset and a runs table. Read
// failures are reported as invalid input.
func ForecastFile(datasetPath, runsPath string, months float64, opts forecast.Options) forecast.Outcome {
	points, err := tabular.ReadPoints(datasetPath)
	if err != nil {
		return forecast.Outcome{Failure: &forecast.Failure{Reason: forecast.ReasonInvalidInput, Message: err.Error()}}
	}
	runs, err := tabular.ReadRuns(runsPath)
	if err != nil {
		return forecast.Outcome{Failure: &forecast.Failure{Reason: forecast.ReasonInvalidInput, Message: err.Error()}}
	}
	return forecast.Predict(points, runs, months, opts)
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set overwrite=true to allow)", path)
	}
	return nil
}

func fileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	if info.IsDir() {
		return "", 0, fmt.Errorf("%s is a directory", path)
	}
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
