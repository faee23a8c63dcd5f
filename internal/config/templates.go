package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "beacon":
		return beaconTemplate, nil
	case "probe":
		return probeTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const beaconTemplate = `id = "beacon.local"
listen_addr = ":7474"
session_timeout = "15s"
sweep_interval = "1s"
read_timeout = "250ms"
max_payload_bytes = 1193
admin_listen_addr = ""
admin_cors_origins = ["http://localhost:3000"]
`

const probeTemplate = `id = "probe.local"
beacon_addr = "127.0.0.1:7474"
run_duration = "30s"
send_interval = "100ms"
drain_grace = "2s"
metrics_path = "probe_metrics.csv"
handshake_retries = 10
max_retries = 5
retry_interval = "200ms"
retry_max_interval = "3s"
retry_multiplier = 1.5
read_timeout = "250ms"
max_payload_bytes = 1193
`
