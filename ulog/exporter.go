package ulog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ExportFile decodes a ULog file and writes a metadata export bundle.
// Output files:
//   - manifest.json
//   - datasets.jsonl
//   - source.ulg (optional)
func ExportFile(inputPath, outputDir string, opts ExportOptions) (*ExportResult, error) {
	if strings.TrimSpace(inputPath) == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("read ulog file: %w", err)
	}
	parsed, err := parseULogBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse ulog file: %w", err)
	}

	if err := EnsureOutputDir(outputDir, opts.Overwrite); err != nil {
		return nil, err
	}

	summaries := parsed.Summaries()
	datasetsPath := filepath.Join(outputDir, "datasets.jsonl")
	if err := writeJSONL(datasetsPath, summaries); err != nil {
		return nil, fmt.Errorf("write datasets.jsonl: %w", err)
	}

	manifest := BuildManifest(parsed, inputPath, data)
	manifestPath := filepath.Join(outputDir, "manifest.json")
	if err := writeJSON(manifestPath, manifest); err != nil {
		return nil, fmt.Errorf("write manifest.json: %w", err)
	}

	sourceCopyPath := ""
	if opts.CopySourceFile {
		sourceCopyPath = filepath.Join(outputDir, "source.ulg")
		if err := copyFile(inputPath, sourceCopyPath); err != nil {
			return nil, fmt.Errorf("copy source ulog file: %w", err)
		}
	}

	samples := 0
	for _, s := range summaries {
		samples += s.SampleCount
	}
	return &ExportResult{
		OutputDir:       outputDir,
		ManifestPath:    manifestPath,
		DatasetsPath:    datasetsPath,
		SourceCopyPath:  sourceCopyPath,
		DatasetCount:    len(summaries),
		SampleCount:     samples,
		SourceSHA256:    manifest.SourceSHA256,
		SourceSizeBytes: manifest.SourceSizeBytes,
		WarningCount:    len(manifest.Warnings),
	}, nil
}

// BuildManifest describes a decoded log and its source bytes.
func BuildManifest(l *Log, sourcePath string, data []byte) Manifest {
	return Manifest{
		FormatVersion:   ExportFormatVersion,
		GeneratedAt:     time.Now().UTC(),
		SourceFile:      sourcePath,
		SourceFileName:  filepath.Base(sourcePath),
		SourceSHA256:    SHA256Hex(data),
		SourceSizeBytes: int64(len(data)),
		Header:          l.Header,
		Flags:           l.Flags,
		Info:            l.Info,
		Params:          l.Params,
		DatasetsPath:    "datasets.jsonl",
		Datasets:        l.Summaries(),
		MessageCount:    len(l.Messages),
		DropoutCount:    len(l.Dropouts),
		Warnings:        BuildWarnings(l),
	}
}

// EnsureOutputDir creates path and refuses a non-empty directory unless overwrite is set.
func EnsureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set overwrite=true to allow)", path)
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONL(path string, summaries []DatasetSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewWriterSize(f, 1<<16)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	for _, s := range summaries {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return buf.Flush()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
