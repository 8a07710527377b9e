package pipeline

import phaseenergy "github.com/flight-assurance/phase-energy"

// Artifact file names.
const (
	ReportJSONFile   = "phase_report.json"
	ReportYAMLFile   = "phase_report.yaml"
	WorkbookFile     = "phase_report.xlsx"
	SegmentsFile     = "segments.json"
	NotesFile        = "phase_notes.md"
	ManifestFile     = "manifest.json"
	DatasetsFile     = "datasets.jsonl"
	SourceCopyFile   = "source.ulg"
	alignedRowsStem  = "aligned_rows"
	defaultRowFormat = "parquet"
)

// Options configures the ulog_analyze pipeline.
type Options struct {
	ULogPath   string
	OutDir     string
	Config     phaseenergy.Config
	Format     string // parquet|csv
	Overwrite  bool
	CopySource bool
}

// Result returns generated output paths.
type Result struct {
	OutputDir       string   `json:"output_dir"`
	ManifestPath    string   `json:"manifest_path"`
	DatasetsPath    string   `json:"datasets_path"`
	SourceCopyPath  string   `json:"source_copy_path,omitempty"`
	ReportPath      string   `json:"report_path"`
	ReportYAMLPath  string   `json:"report_yaml_path"`
	WorkbookPath    string   `json:"workbook_path"`
	SegmentsPath    string   `json:"segments_path"`
	AlignedRowsPath string   `json:"aligned_rows_path"`
	NotesPath       string   `json:"notes_path"`
	Warnings        []string `json:"warnings,omitempty"`

	Analysis *phaseenergy.Analysis `json:"-"`
}

// BytesOptions configures an in-memory run, used by the wasm build.
type BytesOptions struct {
	SourceFileName string
	Data           []byte
	Config         phaseenergy.Config
	Format         string
	CopySource     bool
}

// BytesResult holds every artifact keyed by file name.
type BytesResult struct {
	Files    map[string][]byte
	Warnings []string
}

// SegmentsDocument is the segments.json layout.
type SegmentsDocument struct {
	SourceFile         string                 `json:"source_file"`
	SourceSHA256       string                 `json:"source_sha256,omitempty"`
	Thresholds         phaseenergy.Thresholds `json:"thresholds"`
	MinSegmentDuration float64                `json:"min_segment_duration_s"`
	FlightTimeS        float64                `json:"flight_time_s"`
	FlightDrawMAh      float64                `json:"flight_draw_mah"`
	BaselineRate       *float64               `json:"baseline_rate_mah_per_s"`
	UncoveredTimeS     float64                `json:"uncovered_time_s"`
	UncoveredDrawMAh   float64                `json:"uncovered_draw_mah"`
	Segments           []SegmentRecord        `json:"segments"`
}

// SegmentRecord is one consolidated phase segment.
type SegmentRecord struct {
	Index     int      `json:"index"`
	Phase     string   `json:"phase"`
	StartS    float64  `json:"start_s"`
	EndS      float64  `json:"end_s"`
	DurationS float64  `json:"duration_s"`
	DrawMAh   float64  `json:"draw_mah"`
	AvgRate   *float64 `json:"avg_rate_mah_per_s"`
	DiffOfAvg *float64 `json:"diff_of_avg_pct"`
	PctTime   *float64 `json:"pct_time_of_flight"`
	FirstRow  int      `json:"first_row"`
	EndRow    int      `json:"end_row"`
	RowCount  int      `json:"row_count"`
}
