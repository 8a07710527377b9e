package ulog

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	json "github.com/goccy/go-json"
)

// ParseBytes decodes raw ULog bytes.
func ParseBytes(data []byte) (*Log, error) {
	log, err := parseULogBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse ulog bytes: %w", err)
	}
	return log, nil
}

// ParseFile reads and decodes a ULog file from disk.
func ParseFile(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ulog file: %w", err)
	}
	return ParseBytes(data)
}

// Dataset returns the samples of one topic instance.
func (l *Log) Dataset(name string, multiID uint8) (*Dataset, error) {
	for _, ds := range l.datasets {
		if ds.Name == name && ds.MultiID == multiID {
			return ds, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (multi_id %d)", ErrDatasetNotFound, name, multiID)
}

// Datasets returns every decoded topic instance sorted by name then multi id.
func (l *Log) Datasets() []*Dataset {
	out := append([]*Dataset(nil), l.datasets...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].MultiID < out[j].MultiID
	})
	return out
}

// AddDataset registers an externally decoded dataset, replacing any existing
// dataset with the same name and multi id.
func (l *Log) AddDataset(ds *Dataset) {
	for i, existing := range l.datasets {
		if existing.Name == ds.Name && existing.MultiID == ds.MultiID {
			l.datasets[i] = ds
			return
		}
	}
	l.datasets = append(l.datasets, ds)
}

// Summaries returns one DatasetSummary per dataset in Datasets order.
func (l *Log) Summaries() []DatasetSummary {
	datasets := l.Datasets()
	out := make([]DatasetSummary, 0, len(datasets))
	for _, ds := range datasets {
		s := DatasetSummary{
			Name:        ds.Name,
			MultiID:     ds.MultiID,
			Fields:      ds.Fields,
			SampleCount: ds.Len(),
		}
		if n := ds.Len(); n > 0 {
			s.FirstTS = ds.Timestamps[0]
			s.LastTS = ds.Timestamps[n-1]
			if s.LastTS > s.FirstTS {
				s.DurationS = float64(s.LastTS-s.FirstTS) / TicksPerSecond
			}
		}
		out = append(out, s)
	}
	return out
}

// SHA256Hex returns the hex digest used to identify a source recording.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MarshalJSON renders indented JSON with a trailing newline.
func MarshalJSON(v any) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	out = append(out, '\n')
	return out, nil
}

// MarshalJSONL renders dataset summaries as JSONL bytes.
func MarshalJSONL(summaries []DatasetSummary) ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriterSize(&buf, 1<<16)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, s := range summaries {
		if err := enc.Encode(s); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildWarnings returns deterministic decode-quality notes.
func BuildWarnings(l *Log) []string {
	if l == nil {
		return nil
	}
	warnings := make([]string, 0, len(l.Warnings)+2)
	warnings = append(warnings, l.Warnings...)
	if n := len(l.Dropouts); n > 0 {
		var total uint32
		for _, d := range l.Dropouts {
			total += uint32(d.DurationMS)
		}
		warnings = append(warnings, fmt.Sprintf("logger reported %d dropouts totalling %d ms", n, total))
	}
	if l.Flags.HasAppendedData {
		warnings = append(warnings, "appended data sections are not decoded")
	}
	return dedupeStrings(warnings)
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
