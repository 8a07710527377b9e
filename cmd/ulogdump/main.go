package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flight-assurance/phase-energy/ulog"
)

func main() {
	var (
		outDir     = flag.String("out-dir", "", "Output directory for manifest.json and datasets.jsonl")
		overwrite  = flag.Bool("overwrite", true, "Allow writing to non-empty output directories")
		copySource = flag.Bool("copy-source", true, "Copy original log into export directory as source.ulg")
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-ulg-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	inputPath := flag.Arg(0)
	if strings.TrimSpace(*outDir) == "" {
		base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		*outDir = filepath.Join(".", "exports", base+"_"+ulog.ExportFormatVersion)
	}

	result, err := ulog.ExportFile(inputPath, *outDir, ulog.ExportOptions{
		Overwrite:      *overwrite,
		CopySourceFile: *copySource,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Export complete\n")
	fmt.Printf("Output dir: %s\n", result.OutputDir)
	fmt.Printf("Manifest:   %s\n", result.ManifestPath)
	fmt.Printf("Datasets:   %s\n", result.DatasetsPath)
	if result.SourceCopyPath != "" {
		fmt.Printf("Source log: %s\n", result.SourceCopyPath)
	}
	fmt.Printf("Samples:    %d across %d datasets\n", result.SampleCount, result.DatasetCount)
	fmt.Printf("SHA-256:    %s (%d bytes)\n", result.SourceSHA256, result.SourceSizeBytes)
	if result.WarningCount > 0 {
		fmt.Printf("Warnings:   %d (see manifest.json)\n", result.WarningCount)
	}
}
