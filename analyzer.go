package phaseenergy

import (
	"errors"
	"fmt"
	"math"

	"github.com/flight-assurance/phase-energy/ulog"
)

// DefaultMinSegmentDuration is the shortest label run, in seconds, kept as a segment.
const DefaultMinSegmentDuration = 1.0

var (
	// ErrEmptySeries means a motion or battery series had no samples.
	ErrEmptySeries = errors.New("empty series")
	// ErrMissingField means a dataset lacks a column the analysis reads.
	ErrMissingField = errors.New("missing required field")
	// ErrNoIntervals means no aligned row had a positive time delta.
	ErrNoIntervals = errors.New("no positive-duration intervals")
	// ErrInvalidConfig means a threshold or duration is not usable.
	ErrInvalidConfig = errors.New("invalid analysis config")
)

// Config holds the classifier thresholds and the debounce duration.
type Config struct {
	Thresholds         Thresholds `json:"thresholds"`
	MinSegmentDuration float64    `json:"min_segment_duration_s"`
}

// DefaultConfig returns the stock thresholds and a 1 s debounce.
func DefaultConfig() Config {
	return Config{
		Thresholds:         DefaultThresholds(),
		MinSegmentDuration: DefaultMinSegmentDuration,
	}
}

// Validate reports non-finite thresholds and negative durations.
func (c Config) Validate() error {
	values := map[string]float64{
		"ground_vel":           c.Thresholds.GroundVel,
		"cruise_vel":           c.Thresholds.CruiseVel,
		"altitude_min":         c.Thresholds.AltitudeMin,
		"climb_vz":             c.Thresholds.ClimbVZ,
		"descend_vz":           c.Thresholds.DescendVZ,
		"min_segment_duration": c.MinSegmentDuration,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidConfig, name)
		}
	}
	if c.MinSegmentDuration < 0 {
		return fmt.Errorf("%w: min_segment_duration must be >= 0", ErrInvalidConfig)
	}
	if c.Thresholds.GroundVel < 0 {
		return fmt.Errorf("%w: ground_vel must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Analysis is the full result of one flight analysis.
type Analysis struct {
	FilePath           string     `json:"file_path,omitempty"`
	SourceSHA256       string     `json:"source_sha256,omitempty"`
	MotionSamples      int        `json:"motion_samples"`
	BatterySamples     int        `json:"battery_samples"`
	AlignedRows        int        `json:"aligned_rows"`
	SurvivingRows      int        `json:"surviving_rows"`
	Thresholds         Thresholds `json:"thresholds"`
	MinSegmentDuration float64    `json:"min_segment_duration_s"`
	Energy             Energy     `json:"energy"`
	Report             Report     `json:"report"`
	Warnings           []string   `json:"warnings,omitempty"`
	Notes              string     `json:"notes"`

	// Rows are the consolidated rows with their labels, in time order.
	Rows   []AlignedRow `json:"-"`
	Labels []Phase      `json:"-"`
}

// AnalyzeFile decodes a ULog file and analyzes it.
func AnalyzeFile(path string, cfg Config) (*Analysis, error) {
	log, err := ulog.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode ulog file: %w", err)
	}
	analysis, err := AnalyzeLog(log, cfg)
	if err != nil {
		return nil, err
	}
	analysis.FilePath = path
	analysis.Notes = BuildPhaseNotes(analysis)
	return analysis, nil
}

// AnalyzeBytes decodes an in-memory ULog recording and analyzes it.
func AnalyzeBytes(data []byte, sourceName string, cfg Config) (*Analysis, error) {
	log, err := ulog.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	analysis, err := AnalyzeLog(log, cfg)
	if err != nil {
		return nil, err
	}
	analysis.FilePath = sourceName
	analysis.SourceSHA256 = ulog.SHA256Hex(data)
	analysis.Notes = BuildPhaseNotes(analysis)
	return analysis, nil
}

// AnalyzeLog runs the analysis over an already decoded log.
func AnalyzeLog(log *ulog.Log, cfg Config) (*Analysis, error) {
	motion, battery, err := LoadSeries(log)
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}
	analysis, err := Analyze(motion, battery, cfg)
	if err != nil {
		return nil, err
	}
	analysis.Warnings = append(ulog.BuildWarnings(log), analysis.Warnings...)
	return analysis, nil
}

// Analyze runs normalization, alignment, classification, consolidation and
// energy aggregation over two raw series. A zero Config means DefaultConfig.
func Analyze(motion []MotionSample, battery []BatterySample, cfg Config) (*Analysis, error) {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var warnings []string
	motion, reordered := sortMotion(motion)
	if reordered {
		warnings = append(warnings, "motion samples were out of order and have been sorted by timestamp")
	}
	battery, reordered = sortBattery(battery)
	if reordered {
		warnings = append(warnings, "battery samples were out of order and have been sorted by timestamp")
	}

	motionTimes, err := NormalizeTimes(motionTimestamps(motion))
	if err != nil {
		return nil, fmt.Errorf("motion series (%s): %w", MotionDataset, err)
	}
	batteryTimes, err := NormalizeTimes(batteryTimestamps(battery))
	if err != nil {
		return nil, fmt.Errorf("battery series (%s): %w", BatteryDataset, err)
	}

	aligned, err := Align(motion, motionTimes, battery, batteryTimes)
	if err != nil {
		return nil, err
	}
	rows := SurvivingRows(DeriveFeatures(aligned))
	if len(rows) == 0 {
		return nil, fmt.Errorf("%d motion samples: %w", len(motion), ErrNoIntervals)
	}
	if dropped := len(aligned) - len(rows) - 1; dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("%d motion samples with non-increasing time were excluded", dropped))
	}

	labels := NewClassifier(cfg.Thresholds).ClassifyRows(rows)
	segments, err := Consolidate(rows, labels, cfg.MinSegmentDuration)
	if err != nil {
		return nil, err
	}
	energy := Aggregate(rows, labels, segments)
	if energy.SkippedDraws > 0 {
		warnings = append(warnings, fmt.Sprintf("%d rows had a non-finite charge draw and contribute 0 mAh", energy.SkippedDraws))
	}
	if energy.BaselineRate == nil {
		warnings = append(warnings, "no non-ground intervals: relative draw percentages are unavailable")
	}

	return &Analysis{
		MotionSamples:      len(motion),
		BatterySamples:     len(battery),
		AlignedRows:        len(aligned),
		SurvivingRows:      len(rows),
		Thresholds:         cfg.Thresholds,
		MinSegmentDuration: cfg.MinSegmentDuration,
		Energy:             energy,
		Report:             AssembleReport(energy),
		Warnings:           warnings,
		Rows:               rows,
		Labels:             labels,
	}, nil
}
