package ulog

import (
	"errors"
	"time"
)

const (
	// ExportFormatVersion identifies the on-disk schema for decoder exports.
	ExportFormatVersion = "ulog_manifest_v1"

	// TicksPerSecond is the ULog clock rate (microseconds).
	TicksPerSecond = 1_000_000
)

var (
	// ErrInvalidHeader is returned when the input does not start with the ULog magic.
	ErrInvalidHeader = errors.New("invalid ulog header")

	// ErrDatasetNotFound is returned when a requested dataset was never subscribed in the log.
	ErrDatasetNotFound = errors.New("dataset not found")
)

// Log is a decoded ULog file.
type Log struct {
	Header   Header
	Flags    Flags
	Info     map[string]string
	Params   map[string]float64
	Messages []LogMessage
	Dropouts []Dropout
	Warnings []string

	datasets []*Dataset
}

// Header stores the fixed file header values.
type Header struct {
	Version        uint8  `json:"version"`
	StartTimestamp uint64 `json:"start_timestamp_us"`
}

// Flags mirrors the optional flag bits message.
type Flags struct {
	Present         bool   `json:"present"`
	Compat          []byte `json:"compat,omitempty"`
	Incompat        []byte `json:"incompat,omitempty"`
	HasAppendedData bool   `json:"has_appended_data"`
}

// LogMessage is one logged string ('L' or tagged 'C').
type LogMessage struct {
	Level     uint8  `json:"level"`
	Tag       uint16 `json:"tag,omitempty"`
	Timestamp uint64 `json:"timestamp_us"`
	Message   string `json:"message"`
}

// Dropout records a span of lost data reported by the logger.
type Dropout struct {
	Offset     int64         `json:"file_offset"`
	DurationMS uint16        `json:"duration_ms"`
	Duration   time.Duration `json:"-"`
}

// Dataset holds every sample of one subscribed topic instance, column oriented.
// All columns have the same length as Timestamps. A field missing from a
// short sample is stored as NaN.
type Dataset struct {
	Name       string               `json:"name"`
	MultiID    uint8                `json:"multi_id"`
	Fields     []string             `json:"fields"`
	Timestamps []uint64             `json:"-"`
	Columns    map[string][]float64 `json:"-"`
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Timestamps)
}

// Column returns the named column and whether it exists.
func (d *Dataset) Column(name string) ([]float64, bool) {
	if d == nil {
		return nil, false
	}
	col, ok := d.Columns[name]
	return col, ok
}

// ExportOptions controls export behavior.
type ExportOptions struct {
	// Overwrite allows writing into a non-empty output directory.
	Overwrite bool

	// CopySourceFile writes a byte-for-byte copy of the source log to the output directory.
	CopySourceFile bool
}

// ExportResult describes generated files.
type ExportResult struct {
	OutputDir       string `json:"output_dir"`
	ManifestPath    string `json:"manifest_path"`
	DatasetsPath    string `json:"datasets_path"`
	SourceCopyPath  string `json:"source_copy_path,omitempty"`
	DatasetCount    int    `json:"dataset_count"`
	SampleCount     int    `json:"sample_count"`
	SourceSHA256    string `json:"source_sha256"`
	SourceSizeBytes int64  `json:"source_size_bytes"`
	WarningCount    int    `json:"warning_count"`
}

// Manifest captures export metadata and pointers to exported files.
type Manifest struct {
	FormatVersion   string             `json:"format_version"`
	GeneratedAt     time.Time          `json:"generated_at"`
	SourceFile      string             `json:"source_file"`
	SourceFileName  string             `json:"source_file_name"`
	SourceSHA256    string             `json:"source_sha256"`
	SourceSizeBytes int64              `json:"source_size_bytes"`
	Header          Header             `json:"header"`
	Flags           Flags              `json:"flags"`
	Info            map[string]string  `json:"info,omitempty"`
	Params          map[string]float64 `json:"params,omitempty"`
	DatasetsPath    string             `json:"datasets_path"`
	Datasets        []DatasetSummary   `json:"datasets"`
	MessageCount    int                `json:"logged_message_count"`
	DropoutCount    int                `json:"dropout_count"`
	Warnings        []string           `json:"warnings,omitempty"`
}

// DatasetSummary is one line of datasets.jsonl.
type DatasetSummary struct {
	Name        string   `json:"name"`
	MultiID     uint8    `json:"multi_id"`
	Fields      []string `json:"fields"`
	SampleCount int      `json:"sample_count"`
	FirstTS     uint64   `json:"first_timestamp_us,omitempty"`
	LastTS      uint64   `json:"last_timestamp_us,omitempty"`
	DurationS   float64  `json:"duration_s"`
}
