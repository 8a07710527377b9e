// Package config loads settings for the analysis tools and the upload server.
//
// Sources are layered with koanf: built-in defaults, then an optional YAML
// file, then PHASE_ENERGY_* environment variables. The merged result is
// checked with go-playground/validator before it is returned.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	phaseenergy "github.com/flight-assurance/phase-energy"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PHASE_ENERGY_"
	// PathEnvVar names a config file when no explicit path is given.
	PathEnvVar = EnvPrefix + "CONFIG"
)

// Config is the merged application configuration.
type Config struct {
	Analysis AnalysisConfig `koanf:"analysis"`
	Logging  LoggingConfig  `koanf:"logging"`
	Server   ServerConfig   `koanf:"server"`
	Archive  ArchiveConfig  `koanf:"archive"`
	Output   OutputConfig   `koanf:"output"`
}

// AnalysisConfig mirrors phaseenergy.Config in flat form.
type AnalysisConfig struct {
	GroundVel          float64 `koanf:"ground_vel" validate:"gte=0"`
	CruiseVel          float64 `koanf:"cruise_vel" validate:"gte=0"`
	AltitudeMin        float64 `koanf:"altitude_min"`
	ClimbVZ            float64 `koanf:"climb_vz"`
	DescendVZ          float64 `koanf:"descend_vz"`
	MinSegmentDuration float64 `koanf:"min_segment_duration" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled off"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

type ServerConfig struct {
	Addr           string        `koanf:"addr" validate:"required"`
	UploadDir      string        `koanf:"upload_dir" validate:"required"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes" validate:"gt=0"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	RateLimit      int           `koanf:"rate_limit" validate:"gte=0"`
	RateWindow     time.Duration `koanf:"rate_window" validate:"gte=0"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gte=0"`
	ShutdownGrace  time.Duration `koanf:"shutdown_grace" validate:"gte=0"`
}

type ArchiveConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path" validate:"required_if=Enabled true"`
}

type OutputConfig struct {
	// Format selects the aligned-row table encoding.
	Format    string `koanf:"format" validate:"oneof=parquet csv"`
	Overwrite bool   `koanf:"overwrite"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := phaseenergy.DefaultConfig()
	return &Config{
		Analysis: FromAnalysis(cfg),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr:           ":5000",
			UploadDir:      "uploads",
			MaxUploadBytes: 64 << 20,
			AllowedOrigins: []string{"http://localhost:*"},
			RateLimit:      30,
			RateWindow:     time.Minute,
			RequestTimeout: 2 * time.Minute,
			ShutdownGrace:  10 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "phase_reports.db",
		},
		Output: OutputConfig{
			Format: "parquet",
		},
	}
}

// FromAnalysis flattens an analysis config.
func FromAnalysis(c phaseenergy.Config) AnalysisConfig {
	return AnalysisConfig{
		GroundVel:          c.Thresholds.GroundVel,
		CruiseVel:          c.Thresholds.CruiseVel,
		AltitudeMin:        c.Thresholds.AltitudeMin,
		ClimbVZ:            c.Thresholds.ClimbVZ,
		DescendVZ:          c.Thresholds.DescendVZ,
		MinSegmentDuration: c.MinSegmentDuration,
	}
}

// ToAnalysis converts the section into the analyzer's configuration.
func (a AnalysisConfig) ToAnalysis() phaseenergy.Config {
	return phaseenergy.Config{
		Thresholds: phaseenergy.Thresholds{
			GroundVel:   a.GroundVel,
			CruiseVel:   a.CruiseVel,
			AltitudeMin: a.AltitudeMin,
			ClimbVZ:     a.ClimbVZ,
			DescendVZ:   a.DescendVZ,
		},
		MinSegmentDuration: a.MinSegmentDuration,
	}
}

// Load merges defaults, the YAML file at path and the environment.
// An empty path falls back to $PHASE_ENERGY_CONFIG; with neither set no
// file is read.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitListFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKeys maps PHASE_ENERGY_* suffixes to koanf paths. Unlisted variables are ignored.
var envKeys = map[string]string{
	"ground_vel":           "analysis.ground_vel",
	"cruise_vel":           "analysis.cruise_vel",
	"altitude_min":         "analysis.altitude_min",
	"climb_vz":             "analysis.climb_vz",
	"descend_vz":           "analysis.descend_vz",
	"min_segment_duration": "analysis.min_segment_duration",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"addr":             "server.addr",
	"upload_dir":       "server.upload_dir",
	"max_upload_bytes": "server.max_upload_bytes",
	"allowed_origins":  "server.allowed_origins",
	"rate_limit":       "server.rate_limit",
	"rate_window":      "server.rate_window",
	"request_timeout":  "server.request_timeout",
	"shutdown_grace":   "server.shutdown_grace",

	"archive_enabled": "archive.enabled",
	"archive_path":    "archive.path",

	"output_format":    "output.format",
	"output_overwrite": "output.overwrite",
}

func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envKeys[key]
}

var listPaths = []string{"server.allowed_origins"}

// splitListFields turns comma-separated env values into slices.
func splitListFields(k *koanf.Koanf) error {
	for _, path := range listPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var items []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field constraints and the analyzer's own rules.
func (c *Config) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Analysis.ToAnalysis().Validate(); err != nil {
		return err
	}
	return nil
}
