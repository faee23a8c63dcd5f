package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/driftwire/internal/beacon"
	"github.com/danmuck/driftwire/internal/probe"
)

// beaconFileConfig is the on-disk schema for a beacon endpoint. Duration
// fields are strings through time.ParseDuration.
type beaconFileConfig struct {
	ID               string   `toml:"id"`
	ListenAddr       string   `toml:"listen_addr"`
	SessionTimeout   string   `toml:"session_timeout"`
	SweepInterval    string   `toml:"sweep_interval"`
	ReadTimeout      string   `toml:"read_timeout"`
	MaxPayloadBytes  int      `toml:"max_payload_bytes"`
	AdminListenAddr  string   `toml:"admin_listen_addr"`
	AdminCORSOrigins []string `toml:"admin_cors_origins"`
}

// probeFileConfig is the on-disk schema for a probe endpoint.
type probeFileConfig struct {
	ID               string  `toml:"id"`
	BeaconAddr       string  `toml:"beacon_addr"`
	RunDuration      string  `toml:"run_duration"`
	SendInterval     string  `toml:"send_interval"`
	DrainGrace       string  `toml:"drain_grace"`
	MetricsPath      string  `toml:"metrics_path"`
	HandshakeRetries int     `toml:"handshake_retries"`
	MaxRetries       int     `toml:"max_retries"`
	RetryInterval    string  `toml:"retry_interval"`
	RetryMaxInterval string  `toml:"retry_max_interval"`
	RetryMultiplier  float64 `toml:"retry_multiplier"`
	ReadTimeout      string  `toml:"read_timeout"`
	MaxPayloadBytes  int     `toml:"max_payload_bytes"`
}

// LoadBeaconConfig overlays the file at path onto beacon service defaults.
// Only keys present in the file override.
func LoadBeaconConfig(path string) (beacon.ServiceConfig, error) {
	cfg := beacon.DefaultServiceConfig()

	var raw beaconFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return beacon.ServiceConfig{}, fmt.Errorf("load beacon config: %w", err)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.BeaconID = id
		}
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("session_timeout") {
		d, err := parseDuration("session_timeout", raw.SessionTimeout)
		if err != nil {
			return beacon.ServiceConfig{}, err
		}
		cfg.Session.SessionTimeout = d
	}
	if meta.IsDefined("sweep_interval") {
		d, err := parseDuration("sweep_interval", raw.SweepInterval)
		if err != nil {
			return beacon.ServiceConfig{}, err
		}
		cfg.Session.SweepInterval = d
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration("read_timeout", raw.ReadTimeout)
		if err != nil {
			return beacon.ServiceConfig{}, err
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("admin_cors_origins") {
		cfg.AdminCORSOrigins = normalizeList(raw.AdminCORSOrigins)
	}

	if err := ValidateBeaconConfig(cfg); err != nil {
		return beacon.ServiceConfig{}, err
	}
	return cfg, nil
}

// LoadProbeConfig overlays the file at path onto probe service defaults.
// run_duration may be "0" to run until a signal.
func LoadProbeConfig(path string) (probe.ServiceConfig, error) {
	cfg := probe.DefaultServiceConfig()

	var raw probeFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return probe.ServiceConfig{}, fmt.Errorf("load probe config: %w", err)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.ProbeID = id
		}
	}
	if meta.IsDefined("beacon_addr") {
		cfg.BeaconAddr = strings.TrimSpace(raw.BeaconAddr)
	}
	if meta.IsDefined("run_duration") {
		d, err := parseDuration("run_duration", raw.RunDuration)
		if err != nil {
			return probe.ServiceConfig{}, err
		}
		cfg.RunDuration = d
	}
	if meta.IsDefined("send_interval") {
		d, err := parseDuration("send_interval", raw.SendInterval)
		if err != nil {
			return probe.ServiceConfig{}, err
		}
		cfg.SendInterval = d
	}
	if meta.IsDefined("drain_grace") {
		d, err := parseDuration("drain_grace", raw.DrainGrace)
		if err != nil {
			return probe.ServiceConfig{}, err
		}
		cfg.Session.DrainGrace = d
	}
	if meta.IsDefined("metrics_path") {
		cfg.MetricsPath = strings.TrimSpace(raw.MetricsPath)
	}
	if meta.IsDefined("handshake_retries") {
		cfg.Session.HandshakeRetries = raw.HandshakeRetries
	}
	if meta.IsDefined("max_retries") {
		cfg.Session.Retry.MaxRetries = raw.MaxRetries
	}
	if meta.IsDefined("retry_interval") {
		d, err := parseDuration("retry_interval", raw.RetryInterval)
		if err != nil {
			return probe.ServiceConfig{}, err
		}
		cfg.Session.Retry.Interval = d
	}
	if meta.IsDefined("retry_max_interval") {
		d, err := parseDuration("retry_max_interval", raw.RetryMaxInterval)
		if err != nil {
			return probe.ServiceConfig{}, err
		}
		cfg.Session.Retry.MaxInterval = d
	}
	if meta.IsDefined("retry_multiplier") {
		cfg.Session.Retry.Multiplier = raw.RetryMultiplier
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration("read_timeout", raw.ReadTimeout)
		if err != nil {
			return probe.ServiceConfig{}, err
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}

	if err := ValidateProbeConfig(cfg); err != nil {
		return probe.ServiceConfig{}, err
	}
	return cfg, nil
}

func ValidateBeaconConfig(cfg beacon.ServiceConfig) error {
	if strings.TrimSpace(cfg.BeaconID) == "" {
		return fmt.Errorf("beacon config missing id")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("beacon config missing listen_addr")
	}
	return nil
}

func ValidateProbeConfig(cfg probe.ServiceConfig) error {
	if strings.TrimSpace(cfg.ProbeID) == "" {
		return fmt.Errorf("probe config missing id")
	}
	if strings.TrimSpace(cfg.BeaconAddr) == "" {
		return fmt.Errorf("probe config missing beacon_addr")
	}
	if strings.TrimSpace(cfg.MetricsPath) == "" {
		return fmt.Errorf("probe config missing metrics_path")
	}
	return nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
