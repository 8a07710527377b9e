package ulog

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/flight-assurance/phase-energy/ulog/ulogtest"
)

func TestExportFileWritesBundle(t *testing.T) {
	data := ulogtest.FlightLog(
		[]ulogtest.MotionRow{{Timestamp: 0}, {Timestamp: 100_000}, {Timestamp: 200_000}},
		[]ulogtest.BatteryRow{{Timestamp: 50_000, VoltageV: 15.8, CurrentA: 4}},
	)

	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "flight.ulg")
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		t.Fatalf("write sample ulog: %v", err)
	}

	outDir := filepath.Join(tmp, "export")
	result, err := ExportFile(inputPath, outDir, ExportOptions{
		Overwrite:      true,
		CopySourceFile: true,
	})
	if err != nil {
		t.Fatalf("ExportFile error: %v", err)
	}
	if result.DatasetCount != 2 {
		t.Fatalf("expected 2 datasets, got %d", result.DatasetCount)
	}
	if result.SampleCount != 4 {
		t.Fatalf("expected 4 samples, got %d", result.SampleCount)
	}
	if _, err := os.Stat(result.SourceCopyPath); err != nil {
		t.Fatalf("source copy missing: %v", err)
	}

	manifestData, err := os.ReadFile(result.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if manifest.FormatVersion != ExportFormatVersion {
		t.Fatalf("unexpected format version: %q", manifest.FormatVersion)
	}
	if manifest.SourceSHA256 != SHA256Hex(data) {
		t.Fatalf("manifest sha mismatch")
	}
	if len(manifest.Datasets) != 2 || manifest.Datasets[0].Name != "battery_status" {
		t.Fatalf("unexpected dataset ordering: %+v", manifest.Datasets)
	}
	if got := manifest.Datasets[1].DurationS; math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("unexpected position duration: %v", got)
	}

	linesData, err := os.ReadFile(result.DatasetsPath)
	if err != nil {
		t.Fatalf("read datasets: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(linesData)), "\n")
	if len(lines) != result.DatasetCount {
		t.Fatalf("datasets line count mismatch: %d != %d", len(lines), result.DatasetCount)
	}
}

func TestExportFileRefusesNonEmptyDir(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "flight.ulg")
	if err := os.WriteFile(inputPath, ulogtest.NewBuilder(0).Bytes(), 0o644); err != nil {
		t.Fatalf("write sample ulog: %v", err)
	}
	outDir := filepath.Join(tmp, "export")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	if _, err := ExportFile(inputPath, outDir, ExportOptions{}); err == nil {
		t.Fatal("expected error for non-empty output dir")
	}
}

func TestLoadCSVDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"flight_vehicle_local_position_0.csv": "timestamp,vx,vy,vz,z\n0,0,0,0,0\n1000000,1,0,-1,-2\n",
		"flight_battery_status_0.csv":         "timestamp,voltage_v,current_a\n0,16.0,5\n1000000,15.9,\n",
		"other_battery_status_0.csv":          "timestamp,voltage_v,current_a\n0,1,1\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	log, err := LoadCSVDir(dir, "flight")
	if err != nil {
		t.Fatalf("LoadCSVDir error: %v", err)
	}
	if len(log.Datasets()) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(log.Datasets()))
	}
	pos, err := log.Dataset("vehicle_local_position", 0)
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	vz, _ := pos.Column("vz")
	if vz[1] != -1 {
		t.Fatalf("unexpected vz: %v", vz)
	}
	bat, err := log.Dataset("battery_status", 0)
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	current, _ := bat.Column("current_a")
	if !math.IsNaN(current[1]) {
		t.Fatalf("expected empty cell to be NaN, got %v", current[1])
	}
}

func TestReadCSVDatasetRequiresTimestamp(t *testing.T) {
	_, err := ReadCSVDataset(strings.NewReader("vx,vy\n1,2\n"), "vehicle_local_position", 0)
	if err == nil {
		t.Fatal("expected error without timestamp column")
	}
}
