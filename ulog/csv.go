package ulog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadCSVDataset reads one ulog2csv-style table. The header row names the
// columns and must contain a timestamp column. Empty cells become NaN.
func ReadCSVDataset(r io.Reader, name string, multiID uint8) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv dataset %s: empty file", name)
		}
		return nil, fmt.Errorf("csv dataset %s: read header: %w", name, err)
	}
	header = append([]string(nil), header...)

	tsIdx := -1
	ds := &Dataset{
		Name:    name,
		MultiID: multiID,
		Columns: make(map[string][]float64, len(header)),
	}
	for i, col := range header {
		col = strings.TrimSpace(col)
		header[i] = col
		if col == timestampFieldName {
			tsIdx = i
			continue
		}
		ds.Fields = append(ds.Fields, col)
		ds.Columns[col] = nil
	}
	if tsIdx < 0 {
		return nil, fmt.Errorf("csv dataset %s: no %s column", name, timestampFieldName)
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv dataset %s line %d: %w", name, line, err)
		}
		ts, err := strconv.ParseUint(strings.TrimSpace(rec[tsIdx]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("csv dataset %s line %d: timestamp: %w", name, line, err)
		}
		ds.Timestamps = append(ds.Timestamps, ts)
		for i, col := range header {
			if i == tsIdx {
				continue
			}
			v := math.NaN()
			if i < len(rec) {
				if s := strings.TrimSpace(rec[i]); s != "" {
					if parsed, err := strconv.ParseFloat(s, 64); err == nil {
						v = parsed
					}
				}
			}
			ds.Columns[col] = append(ds.Columns[col], v)
		}
	}
	return ds, nil
}

// LoadCSVDir assembles a Log from the files ulog2csv writes for one
// recording: <base>_<dataset>_<multi_id>.csv inside dir.
func LoadCSVDir(dir, base string) (*Log, error) {
	pattern := filepath.Join(dir, base+"_*.csv")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no csv datasets match %s", pattern)
	}

	l := &Log{
		Info:   make(map[string]string),
		Params: make(map[string]float64),
	}
	for _, path := range matches {
		name, multiID, ok := splitCSVName(filepath.Base(path), base)
		if !ok {
			l.Warnings = append(l.Warnings, fmt.Sprintf("skip %s: name does not end in _<multi_id>.csv", filepath.Base(path)))
			continue
		}
		ds, err := readCSVFile(path, name, multiID)
		if err != nil {
			return nil, err
		}
		l.AddDataset(ds)
	}
	return l, nil
}

func readCSVFile(path, name string, multiID uint8) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSVDataset(f, name, multiID)
}

func splitCSVName(file, base string) (string, uint8, bool) {
	stem := strings.TrimSuffix(strings.TrimPrefix(file, base+"_"), ".csv")
	cut := strings.LastIndexByte(stem, '_')
	if cut <= 0 {
		return "", 0, false
	}
	id, err := strconv.ParseUint(stem[cut+1:], 10, 8)
	if err != nil {
		return "", 0, false
	}
	return stem[:cut], uint8(id), true
}
