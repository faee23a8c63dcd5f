package main

import (
	"flag"
	"log"

	"github.com/danmuck/driftwire/internal/config"
)

func main() {
	kind := flag.String("kind", "beacon", "config kind: beacon|probe")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			switch *kind {
			case "beacon":
				path = "cmd/beaconctl/config.toml"
			case "probe":
				path = "cmd/probectl/config.toml"
			default:
				log.Fatalf("unknown kind: %s", *kind)
			}
		}

		switch *kind {
		case "beacon":
			if _, err := config.LoadBeaconConfig(path); err != nil {
				log.Fatal(err)
			}
		case "probe":
			if _, err := config.LoadProbeConfig(path); err != nil {
				log.Fatal(err)
			}
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "beacon":
			target = "cmd/beaconctl/config.toml"
		case "probe":
			target = "cmd/probectl/config.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
