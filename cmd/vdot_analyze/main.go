package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/forecast"
	"github.com/lucasjlepore/vdot-analyzer/label"
	"github.com/lucasjlepore/vdot-analyzer/pipeline"
)

func main() {
	var (
		inputPath = flag.String("input", "", "Activity export (.csv, .csv.gz, .csv.zst), .fit file, or directory of .fit files")
		outDir    = flag.String("out", "", "Output directory (full pipeline) or output table path (single stage)")
		format    = flag.String("format", "parquet", "Table format: parquet|csv")
		overwrite = flag.Bool("overwrite", false, "Allow writing into non-empty output directories")
		windows   = flag.String("windows", "14,30", "Comma-separated rolling window lengths in days")
		hrPolicy  = flag.String("hr-policy", "drop", "Runs missing heart rate: drop|keep")
		months    = flag.Float64("months", 3, "Forecast horizon in months; 0 skips the forecast")
		model     = flag.String("model", "blended", "Forecast model: blended|statistical")
		stage     = flag.String("stage", "all", "Stage to run: all|normalize|features|label|forecast")
		runsPath  = flag.String("runs", "", "Normalized runs table (features, label and forecast stages)")
		snapsPath = flag.String("snapshots", "", "Rolling features table (label stage)")
		dataset   = flag.String("dataset", "", "Labeled VDOT dataset (forecast stage)")
		lookup    = flag.String("lookup", "", "Print race projections for a score (46.5) or the score for a result (5000=21:30)")
		logLevel  = flag.String("log-level", "warn", "Log level: debug|info|warn|error")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --input export.csv --out outdir [--months 3] [--format parquet|csv]\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(flag.CommandLine.Output(), "       %s --stage normalize|features|label|forecast [stage flags]\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(flag.CommandLine.Output(), "       %s --lookup 46.5 | --lookup 5000=21:30\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := newLogger(*logLevel)

	if strings.TrimSpace(*lookup) != "" {
		if err := printLookup(*lookup); err != nil {
			fmt.Fprintf(os.Stderr, "vdot_analyze lookup failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	wins, err := parseWindows(*windows)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vdot_analyze: %v\n", err)
		os.Exit(2)
	}
	fcModel, err := forecast.ParseModel(*model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vdot_analyze: %v\n", err)
		os.Exit(2)
	}
	policy := activity.HRPolicy(*hrPolicy)

	switch *stage {
	case "all":
		if strings.TrimSpace(*inputPath) == "" || strings.TrimSpace(*outDir) == "" {
			flag.Usage()
			os.Exit(2)
		}
		runAll(pipeline.Options{
			InputPath: *inputPath,
			OutDir:    *outDir,
			Format:    *format,
			Overwrite: *overwrite,
			Windows:   wins,
			HRPolicy:  policy,
			Months:    *months,
			Model:     fcModel,
			Logger:    logger,
		})
	case "normalize":
		requireFlags(*inputPath, *outDir)
		n, err := pipeline.NormalizeFile(*inputPath, *outDir, activity.Options{HRPolicy: policy})
		exitOn("normalize", err)
		fmt.Printf("normalized runs:     %d -> %s\n", n, *outDir)
	case "features":
		requireFlags(*runsPath, *outDir)
		n, err := pipeline.BuildFeaturesFile(*runsPath, *outDir, wins)
		exitOn("features", err)
		fmt.Printf("rolling snapshots:   %d -> %s\n", n, *outDir)
	case "label":
		requireFlags(*runsPath, *snapsPath, *outDir)
		n, err := pipeline.LabelFile(*runsPath, *snapsPath, *outDir, label.DefaultOptions())
		exitOn("label", err)
		fmt.Printf("vdot observations:   %d -> %s\n", n, *outDir)
	case "forecast":
		requireFlags(*dataset, *runsPath)
		outcome := pipeline.ForecastFile(*dataset, *runsPath, *months, forecast.Options{Model: fcModel, Logger: logger})
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
			os.Exit(1)
		}
		if outcome.Failure != nil {
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "vdot_analyze: unknown stage %q\n", *stage)
		flag.Usage()
		os.Exit(2)
	}
}

func runAll(opts pipeline.Options) {
	result, err := pipeline.Run(opts)
	exitOn("pipeline", err)

	fmt.Printf("vdot_analyze complete\n")
	fmt.Printf("Output dir:          %s\n", result.OutputDir)
	fmt.Printf("normalized runs:     %s\n", result.RunsPath)
	fmt.Printf("rolling features:    %s\n", result.FeaturesPath)
	fmt.Printf("vdot dataset:        %s\n", result.DatasetPath)
	fmt.Printf("analysis.json:       %s\n", result.AnalysisPath)
	if result.ForecastPath != "" {
		fmt.Printf("forecast.json:       %s\n", result.ForecastPath)
	}
	fmt.Printf("summary.txt:         %s\n", result.SummaryPath)
	fmt.Printf("manifest.json:       %s\n", result.ManifestPath)
	for _, w := range result.Warnings {
		fmt.Printf("warning:             %s\n", w)
	}

	if data, err := os.ReadFile(result.SummaryPath); err == nil {
		fmt.Println()
		fmt.Print(string(data))
	}
}

// printLookup handles "--lookup 46.5" and "--lookup 5000=21:30".
func printLookup(arg string) error {
	if race, clock, ok := strings.Cut(arg, "="); ok {
		secs, err := vdot.ParseClock(clock)
		if err != nil {
			return err
		}
		score, ok := vdot.ScoreForTime(vdot.Race(race), secs)
		if !ok {
			return fmt.Errorf("%s in %s is outside the lookup table", vdot.FormatClock(secs), race)
		}
		fmt.Printf("VDOT: %.1f\n", score)
		return nil
	}

	score, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Errorf("parse score %q: %w", arg, err)
	}
	proj := vdot.RaceTimes(score)
	times := proj.Formatted()
	fmt.Printf("VDOT: %.1f\n", score)
	for _, race := range vdot.Races {
		fmt.Printf("  %-14s %s\n", race, times[race])
	}
	if proj.Warning != "" {
		fmt.Printf("warning: %s\n", proj.Warning)
	}
	return nil
}

func parseWindows(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid window %q: expected a positive number of days", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one window is required")
	}
	return out, nil
}

func requireFlags(values ...string) {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			flag.Usage()
			os.Exit(2)
		}
	}
}

func exitOn(stage string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "vdot_analyze %s failed: %v\n", stage, err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
