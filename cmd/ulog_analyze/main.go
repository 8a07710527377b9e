package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flight-assurance/phase-energy/internal/config"
	"github.com/flight-assurance/phase-energy/internal/logging"
	"github.com/flight-assurance/phase-energy/pipeline"
)

func main() {
	var (
		configPath = flag.String("config", "", "Optional YAML config file")
		ulogPath   = flag.String("ulog", "", "Path to input .ulg file")
		outDir     = flag.String("out", "", "Output directory")
		format     = flag.String("format", "", "Aligned row format: parquet|csv (default from config)")
		overwrite  = flag.Bool("overwrite", true, "Allow writing into non-empty output directories")
		copySource = flag.Bool("copy-source", true, "Copy the input log into the output directory as source.ulg")
	)
	analysisFlags := config.BindAnalysisFlags(flag.CommandLine)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --ulog flight.ulg --out outdir [--format parquet|csv] [--min-segment 1]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*ulogPath) == "" || strings.TrimSpace(*outDir) == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ulog_analyze failed: %v\n", err)
		os.Exit(1)
	}
	analysisFlags.Apply(&cfg.Analysis)
	if *format == "" {
		*format = cfg.Output.Format
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "console", Caller: cfg.Logging.Caller})

	result, err := pipeline.Run(pipeline.Options{
		ULogPath:   *ulogPath,
		OutDir:     *outDir,
		Config:     cfg.Analysis.ToAnalysis(),
		Format:     *format,
		Overwrite:  *overwrite,
		CopySource: *copySource,
	})
	if err != nil {
		logging.Err(err).Str("ulog", *ulogPath).Msg("ulog_analyze failed")
		os.Exit(1)
	}
	for _, w := range result.Warnings {
		logging.Warn().Str("ulog", *ulogPath).Msg(w)
	}

	fmt.Printf("ulog_analyze complete\n")
	fmt.Printf("Output dir:          %s\n", result.OutputDir)
	fmt.Printf("manifest.json:       %s\n", result.ManifestPath)
	fmt.Printf("datasets.jsonl:      %s\n", result.DatasetsPath)
	fmt.Printf("phase report:        %s\n", result.ReportPath)
	fmt.Printf("phase report yaml:   %s\n", result.ReportYAMLPath)
	fmt.Printf("workbook:            %s\n", result.WorkbookPath)
	fmt.Printf("segments:            %s\n", result.SegmentsPath)
	fmt.Printf("aligned rows:        %s\n", result.AlignedRowsPath)
	fmt.Printf("notes:               %s\n", result.NotesPath)
	if result.SourceCopyPath != "" {
		fmt.Printf("source copy:         %s\n", result.SourceCopyPath)
	}
}
