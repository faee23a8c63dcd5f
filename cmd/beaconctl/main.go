package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/driftwire/internal/beacon"
	"github.com/danmuck/driftwire/internal/config"
	"github.com/danmuck/driftwire/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "beaconctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a beacon TOML config")
	flag.Parse()

	observability.InitLogger("beacon")

	cfg := beacon.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := config.LoadBeaconConfig(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		log.Info().Str("path", *configPath).Msg("config_loaded")
	}
	return beacon.NewServiceWithConfig(cfg).Run()
}
