//go:build js && wasm

package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"syscall/js"
	"time"

	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/forecast"
	"github.com/lucasjlepore/vdot-analyzer/pipeline"
	"github.com/lucasjlepore/vdot-analyzer/tabular"
)

func main() {
	js.Global().Set("analyzeExport", js.FuncOf(analyzeExport))
	select {}
}

// analyzeExport(csvBytes Uint8Array, options object) runs the in-memory
// pipeline and returns the analysis JSON plus a zip of the artifacts.
func analyzeExport(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return failure("expected arguments: fileBytes(Uint8Array), options(object)")
	}
	fileArg := args[0]
	optsArg := args[1]
	if fileArg.IsUndefined() || fileArg.IsNull() || fileArg.Get("length").Int() == 0 {
		return failure("export bytes are required")
	}

	fileBytes := make([]byte, fileArg.Get("length").Int())
	if n := js.CopyBytesToGo(fileBytes, fileArg); n == 0 {
		return failure("failed to read export bytes from JS input")
	}

	cfg := pipeline.DefaultConfig()
	cfg.Normalize.HRPolicy = activity.HRPolicy(getString(optsArg, "hr_policy", string(activity.HRDrop)))
	format, err := tabular.ParseFormat(getString(optsArg, "format", "parquet"))
	if err != nil {
		return failure(err.Error())
	}
	model, err := forecast.ParseModel(getString(optsArg, "model", string(forecast.ModelBlended)))
	if err != nil {
		return failure(err.Error())
	}
	months := getFloat(optsArg, "months")

	analysis, ds, err := pipeline.Analyze(bytes.NewReader(fileBytes), cfg)
	if err != nil {
		return failure(err.Error())
	}

	files := map[string][]byte{}
	runsData, err := tabular.MarshalRuns(ds.Runs, format)
	if err != nil {
		return failure(fmt.Sprintf("encode runs: %v", err))
	}
	files["normalized_runs."+format.Extension()] = runsData
	if files["analysis.json"], err = json.MarshalIndent(analysis, "", "  "); err != nil {
		return failure(err.Error())
	}

	var fc *forecast.Outcome
	var warnings []string
	if months > 0 {
		outcome := pipeline.Forecast(ds, months, forecast.Options{Model: model})
		fc = &outcome
		if outcome.Failure != nil {
			warnings = append(warnings, "forecast: "+outcome.Failure.Message)
		}
		if files["forecast.json"], err = json.MarshalIndent(outcome, "", "  "); err != nil {
			return failure(err.Error())
		}
	}
	if ds.NoEfforts {
		warnings = append(warnings, "no race-like efforts found; VDOT reported as 0")
	}
	summary := pipeline.BuildSummary(ds, analysis, fc)
	files["summary.txt"] = []byte(summary)

	zipBytes, err := zipArtifacts(files)
	if err != nil {
		return failure(fmt.Sprintf("create zip: %v", err))
	}
	payload := js.Global().Get("Uint8Array").New(len(zipBytes))
	js.CopyBytesToJS(payload, zipBytes)

	fileNames := make([]string, 0, len(files))
	for name := range files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)

	return map[string]any{
		"ok":       true,
		"analysis": string(files["analysis.json"]),
		"summary":  summary,
		"zip":      payload,
		"warnings": stringsToAny(warnings),
		"files":    stringsToAny(fileNames),
	}
}

func failure(msg string) map[string]any {
	return map[string]any{
		"ok":    false,
		"error": msg,
	}
}

func zipArtifacts(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fixedTime := time.Unix(0, 0).UTC()

	for _, name := range names {
		h := &zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		}
		h.SetModTime(fixedTime)
		w, err := zw.CreateHeader(h)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func getString(v js.Value, key, fallback string) string {
	if v.IsUndefined() || v.IsNull() {
		return fallback
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() {
		return fallback
	}
	s := out.String()
	if s == "" || s == "undefined" || s == "null" {
		return fallback
	}
	return s
}

func getFloat(v js.Value, key string) float64 {
	if v.IsUndefined() || v.IsNull() {
		return 0
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() || out.Type() != js.TypeNumber {
		return 0
	}
	return out.Float()
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
