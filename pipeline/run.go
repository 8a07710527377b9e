package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	phaseenergy "github.com/flight-assurance/phase-energy"
	"github.com/flight-assurance/phase-energy/ulog"
)

// Run executes the full ulog_analyze pipeline and writes all artifacts to OutDir.
func Run(opts Options) (*Result, error) {
	if strings.TrimSpace(opts.ULogPath) == "" {
		return nil, fmt.Errorf("ulog path is required")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	// The decoder export validates the file and prepares the directory.
	baseExport, err := ulog.ExportFile(opts.ULogPath, opts.OutDir, ulog.ExportOptions{
		Overwrite:      opts.Overwrite,
		CopySourceFile: opts.CopySource,
	})
	if err != nil {
		return nil, err
	}

	analysis, err := phaseenergy.AnalyzeFile(opts.ULogPath, opts.Config)
	if err != nil {
		return nil, fmt.Errorf("analyze ulog file: %w", err)
	}
	analysis.SourceSHA256 = baseExport.SourceSHA256

	artifacts, err := buildArtifacts(analysis, format)
	if err != nil {
		return nil, err
	}

	rowsFile := alignedRowsStem + "." + format
	res := &Result{
		OutputDir:       opts.OutDir,
		ManifestPath:    baseExport.ManifestPath,
		DatasetsPath:    baseExport.DatasetsPath,
		SourceCopyPath:  baseExport.SourceCopyPath,
		ReportPath:      filepath.Join(opts.OutDir, ReportJSONFile),
		ReportYAMLPath:  filepath.Join(opts.OutDir, ReportYAMLFile),
		WorkbookPath:    filepath.Join(opts.OutDir, WorkbookFile),
		SegmentsPath:    filepath.Join(opts.OutDir, SegmentsFile),
		AlignedRowsPath: filepath.Join(opts.OutDir, rowsFile),
		NotesPath:       filepath.Join(opts.OutDir, NotesFile),
		Warnings:        analysis.Warnings,
		Analysis:        analysis,
	}

	for name, data := range artifacts {
		if err := os.WriteFile(filepath.Join(opts.OutDir, name), data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}
	return res, nil
}

// RunBytes produces the same artifacts as Run without touching the filesystem.
func RunBytes(opts BytesOptions) (*BytesResult, error) {
	if len(opts.Data) == 0 {
		return nil, fmt.Errorf("ulog bytes are required")
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	sourceName := strings.TrimSpace(opts.SourceFileName)
	if sourceName == "" {
		sourceName = "input.ulg"
	}

	parsed, err := ulog.ParseBytes(opts.Data)
	if err != nil {
		return nil, fmt.Errorf("parse ulog bytes: %w", err)
	}
	analysis, err := phaseenergy.AnalyzeLog(parsed, opts.Config)
	if err != nil {
		return nil, fmt.Errorf("analyze ulog bytes: %w", err)
	}
	analysis.FilePath = sourceName
	analysis.SourceSHA256 = ulog.SHA256Hex(opts.Data)
	analysis.Notes = phaseenergy.BuildPhaseNotes(analysis)

	files, err := buildArtifacts(analysis, format)
	if err != nil {
		return nil, err
	}

	manifest, err := ulog.MarshalJSON(ulog.BuildManifest(parsed, sourceName, opts.Data))
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ManifestFile, err)
	}
	files[ManifestFile] = manifest

	datasets, err := ulog.MarshalJSONL(parsed.Summaries())
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", DatasetsFile, err)
	}
	files[DatasetsFile] = datasets

	if opts.CopySource {
		files[SourceCopyFile] = append([]byte(nil), opts.Data...)
	}

	return &BytesResult{Files: files, Warnings: analysis.Warnings}, nil
}

func normalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = defaultRowFormat
	}
	if format != "parquet" && format != "csv" {
		return "", fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}
	return format, nil
}

// buildArtifacts renders every analysis artifact in memory, keyed by file name.
func buildArtifacts(a *phaseenergy.Analysis, format string) (map[string][]byte, error) {
	files := make(map[string][]byte, 8)

	report, err := ulog.MarshalJSON(a.Report)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ReportJSONFile, err)
	}
	files[ReportJSONFile] = report

	reportYAML, err := yaml.Marshal(a.Report)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ReportYAMLFile, err)
	}
	files[ReportYAMLFile] = reportYAML

	doc := BuildSegmentsDocument(a)
	segments, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", SegmentsFile, err)
	}
	files[SegmentsFile] = append(segments, '\n')

	workbook, err := buildWorkbook(a.Report, doc.Segments)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", WorkbookFile, err)
	}
	files[WorkbookFile] = workbook

	rowsFile := alignedRowsStem + "." + format
	switch format {
	case "csv":
		rows, err := marshalAlignedCSV(a)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", rowsFile, err)
		}
		files[rowsFile] = rows
	case "parquet":
		rows, err := marshalAlignedParquet(a)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", rowsFile, err)
		}
		files[rowsFile] = rows
	}

	files[NotesFile] = []byte(a.Notes + "\n")
	return files, nil
}

// BuildSegmentsDocument flattens the analysis segments for segments.json.
func BuildSegmentsDocument(a *phaseenergy.Analysis) SegmentsDocument {
	e := a.Energy
	doc := SegmentsDocument{
		SourceFile:         a.FilePath,
		SourceSHA256:       a.SourceSHA256,
		Thresholds:         a.Thresholds,
		MinSegmentDuration: a.MinSegmentDuration,
		FlightTimeS:        e.TotalTime,
		FlightDrawMAh:      e.TotalDraw,
		BaselineRate:       e.BaselineRate,
		UncoveredTimeS:     e.UncoveredTime,
		UncoveredDrawMAh:   e.UncoveredDraw,
		Segments:           make([]SegmentRecord, 0, len(e.Segments)),
	}
	for i, s := range e.Segments {
		doc.Segments = append(doc.Segments, SegmentRecord{
			Index:     i,
			Phase:     s.Phase.String(),
			StartS:    s.StartTime,
			EndS:      s.EndTime,
			DurationS: s.Duration,
			DrawMAh:   s.Draw,
			AvgRate:   s.AvgRate,
			DiffOfAvg: s.DiffOfAvg,
			PctTime:   s.PctTime,
			FirstRow:  s.FirstRow,
			EndRow:    s.EndRow,
			RowCount:  s.EndRow - s.FirstRow,
		})
	}
	return doc
}

var (
	phaseSheetHeader = []any{
		"Phase", "TotalTime(s)", "Total Draw(mAh)", "AvgDr(mAh/s)",
		"DiffofAvg(%)", "PctTime of Flight(%)", "Total Draw per Minute(mAh)",
	}
	segmentSheetHeader = []any{
		"Index", "Phase", "Start(s)", "End(s)", "Duration(s)", "Draw(mAh)",
		"AvgDr(mAh/s)", "DiffofAvg(%)", "PctTime of Flight(%)", "Rows",
	}
)

const (
	phaseSheet   = "Phases"
	segmentSheet = "Segments"
)

func buildWorkbook(report phaseenergy.Report, segments []SegmentRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", phaseSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(segmentSheet); err != nil {
		return nil, err
	}

	if err := setRow(f, phaseSheet, 1, phaseSheetHeader); err != nil {
		return nil, err
	}
	for i, rec := range report {
		row := []any{
			rec.Phase, rec.TotalTime, rec.TotalDraw,
			cellValue(rec.AvgDrawRate), cellValue(rec.DiffOfAvg),
			cellValue(rec.PctTime), cellValue(rec.DrawPerMinute),
		}
		if err := setRow(f, phaseSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	if err := setRow(f, segmentSheet, 1, segmentSheetHeader); err != nil {
		return nil, err
	}
	for i, s := range segments {
		row := []any{
			s.Index, s.Phase, s.StartS, s.EndS, s.DurationS, s.DrawMAh,
			cellValue(s.AvgRate), cellValue(s.DiffOfAvg), cellValue(s.PctTime), s.RowCount,
		}
		if err := setRow(f, segmentSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// cellValue leaves unavailable figures as empty cells.
func cellValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

var alignedCSVHeader = []string{
	"index", "time_s", "timestamp_us", "vx", "vy", "vz", "z",
	"battery_index", "battery_time_s", "voltage_v", "current_a",
	"horizontal_velocity", "altitude", "time_delta_s", "charge_draw_mah",
	"phase", "segment",
}

func marshalAlignedCSV(a *phaseenergy.Analysis) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(alignedCSVHeader); err != nil {
		return nil, err
	}

	segmentOf := rowSegments(a)
	for i, r := range a.Rows {
		row := []string{
			strconv.Itoa(r.Index),
			formatFloat(r.Time),
			strconv.FormatUint(r.Timestamp, 10),
			formatFloat(r.VX),
			formatFloat(r.VY),
			formatFloat(r.VZ),
			formatFloat(r.Z),
			strconv.Itoa(r.BatteryIndex),
			formatFloat(r.BatteryTime),
			formatFloat(r.VoltageV),
			formatFloat(r.CurrentA),
			formatFloat(r.HorizontalVelocity),
			formatFloat(r.Altitude),
			formatFloat(r.TimeDelta),
			formatFloat(r.ChargeDraw),
			rowLabel(a, i),
			strconv.Itoa(segmentOf[i]),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rowSegments maps each consolidated row to its segment index, or -1 for
// rows that fell between segments.
func rowSegments(a *phaseenergy.Analysis) []int {
	out := make([]int, len(a.Rows))
	for i := range out {
		out[i] = -1
	}
	for si, s := range a.Energy.Segments {
		for i := s.FirstRow; i < s.EndRow && i < len(out); i++ {
			out[i] = si
		}
	}
	return out
}

func rowLabel(a *phaseenergy.Analysis, i int) string {
	if i < len(a.Labels) {
		return a.Labels[i].String()
	}
	return phaseenergy.PhaseUnknown.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
