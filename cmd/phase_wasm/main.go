//go:build js && wasm

package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"syscall/js"
	"time"

	phaseenergy "github.com/flight-assurance/phase-energy"
	"github.com/flight-assurance/phase-energy/pipeline"
)

func main() {
	js.Global().Set("analyzeUlog", js.FuncOf(analyzeUlog))
	select {}
}

func analyzeUlog(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return map[string]any{
			"ok":    false,
			"error": "expected arguments: fileBytes(Uint8Array), options(object)",
		}
	}
	fileArg := args[0]
	optsArg := args[1]
	if fileArg.IsUndefined() || fileArg.IsNull() || fileArg.Get("length").Int() == 0 {
		return map[string]any{
			"ok":    false,
			"error": "ulog file bytes are required",
		}
	}

	fileBytes := make([]byte, fileArg.Get("length").Int())
	if n := js.CopyBytesToGo(fileBytes, fileArg); n == 0 {
		return map[string]any{
			"ok":    false,
			"error": "failed to read ULog bytes from JS input",
		}
	}

	cfg := phaseenergy.DefaultConfig()
	cfg.Thresholds.GroundVel = getFloat(optsArg, "ground_vel", cfg.Thresholds.GroundVel)
	cfg.Thresholds.CruiseVel = getFloat(optsArg, "cruise_vel", cfg.Thresholds.CruiseVel)
	cfg.Thresholds.AltitudeMin = getFloat(optsArg, "altitude_min", cfg.Thresholds.AltitudeMin)
	cfg.Thresholds.ClimbVZ = getFloat(optsArg, "climb_vz", cfg.Thresholds.ClimbVZ)
	cfg.Thresholds.DescendVZ = getFloat(optsArg, "descend_vz", cfg.Thresholds.DescendVZ)
	cfg.MinSegmentDuration = getFloat(optsArg, "min_segment_duration", cfg.MinSegmentDuration)

	opts := pipeline.BytesOptions{
		SourceFileName: getString(optsArg, "source_file_name", "input.ulg"),
		Data:           fileBytes,
		Config:         cfg,
		Format:         getString(optsArg, "format", "csv"),
		CopySource:     true,
	}
	result, err := pipeline.RunBytes(opts)
	if err != nil {
		return map[string]any{
			"ok":    false,
			"error": err.Error(),
		}
	}

	zipBytes, err := zipArtifacts(result.Files)
	if err != nil {
		return map[string]any{
			"ok":    false,
			"error": fmt.Sprintf("create zip: %v", err),
		}
	}
	payload := js.Global().Get("Uint8Array").New(len(zipBytes))
	js.CopyBytesToJS(payload, zipBytes)

	fileNames := make([]string, 0, len(result.Files))
	for name := range result.Files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)

	return map[string]any{
		"ok":       true,
		"zip":      payload,
		"report":   string(result.Files[pipeline.ReportJSONFile]),
		"warnings": stringsToAny(result.Warnings),
		"files":    stringsToAny(fileNames),
	}
}

// zipArtifacts packs files in name order with a fixed mod time so equal
// inputs give byte-identical archives.
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

func getFloat(v js.Value, key string, fallback float64) float64 {
	if v.IsUndefined() || v.IsNull() {
		return fallback
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() || out.Type() != js.TypeNumber {
		return fallback
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
