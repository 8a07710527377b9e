package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flight-assurance/phase-energy/internal/archive"
	"github.com/flight-assurance/phase-energy/internal/config"
	"github.com/flight-assurance/phase-energy/internal/logging"
	"github.com/flight-assurance/phase-energy/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "Optional YAML config file")
		addr       = flag.String("addr", "", "Listen address (overrides config)")
	)
	analysisFlags := config.BindAnalysisFlags(flag.CommandLine)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	analysisFlags.Apply(&cfg.Analysis)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logging.Err(err).Msg("phase_server stopped")
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var store server.Archive
	if cfg.Archive.Enabled {
		s := archive.Open(cfg.Archive.Path)
		defer func() {
			if err := s.Close(); err != nil {
				logging.Err(err).Msg("close archive")
			}
		}()
		store = s
		logging.Info().Str("path", cfg.Archive.Path).Msg("report archive enabled")
	}

	return server.New(cfg.Server, cfg.Analysis.ToAnalysis(), store).ListenAndServe(ctx)
}
