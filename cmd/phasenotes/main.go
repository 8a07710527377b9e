package main

import (
	"flag"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	phaseenergy "github.com/flight-assurance/phase-energy"
	"github.com/flight-assurance/phase-energy/internal/config"
	"github.com/flight-assurance/phase-energy/ulog"
)

func main() {
	var (
		configPath = flag.String("config", "", "Optional YAML config file")
		jsonOut    = flag.Bool("json", false, "Emit the phase report as JSON")
		full       = flag.Bool("full", false, "With --json, emit the full analysis instead of the report")
		segments   = flag.Bool("segments", false, "Include the segment-by-segment listing in text output")
		csvBase    = flag.String("csv-base", "", "Read ulog2csv exports named <base>_<dataset>_<multi>.csv from the directory argument")
	)
	analysisFlags := config.BindAnalysisFlags(flag.CommandLine)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-ulg-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	analysisFlags.Apply(&cfg.Analysis)

	filePath := flag.Arg(0)
	analysis, err := analyze(filePath, *csvBase, cfg.Analysis.ToAnalysis())
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		var v any = analysis.Report
		if *full {
			v = analysis
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println(analysis.Notes)
	if *segments && len(analysis.Energy.Segments) > 0 {
		fmt.Println()
		fmt.Println("Segments")
		for i, s := range analysis.Energy.Segments {
			rate := "n/a"
			if s.AvgRate != nil {
				rate = fmt.Sprintf("%.3f", *s.AvgRate)
			}
			fmt.Printf(
				"- %02d | %-13s | %7.1fs - %7.1fs | %6.1fs | %8.2f mAh | %s mAh/s\n",
				i+1,
				s.Phase,
				s.StartTime,
				s.EndTime,
				s.Duration,
				s.Draw,
				rate,
			)
		}
	}
}

func analyze(path, csvBase string, cfg phaseenergy.Config) (*phaseenergy.Analysis, error) {
	if csvBase == "" {
		return phaseenergy.AnalyzeFile(path, cfg)
	}
	log, err := ulog.LoadCSVDir(path, csvBase)
	if err != nil {
		return nil, err
	}
	analysis, err := phaseenergy.AnalyzeLog(log, cfg)
	if err != nil {
		return nil, err
	}
	analysis.FilePath = path
	analysis.Notes = phaseenergy.BuildPhaseNotes(analysis)
	return analysis, nil
}
