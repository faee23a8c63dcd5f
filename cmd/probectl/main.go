package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/driftwire/internal/config"
	"github.com/danmuck/driftwire/internal/observability"
	"github.com/danmuck/driftwire/internal/probe"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "probectl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a probe TOML config")
	beaconAddr := flag.String("beacon", "", "beacon address override (host:port)")
	flag.Parse()

	observability.InitLogger("probe")

	cfg := probe.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := config.LoadProbeConfig(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		log.Info().Str("path", *configPath).Msg("config_loaded")
	}
	if *beaconAddr != "" {
		cfg.BeaconAddr = *beaconAddr
	}
	return probe.NewServiceWithConfig(cfg).Run()
}
