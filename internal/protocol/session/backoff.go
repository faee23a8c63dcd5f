package session

import (
	"math"
	"time"
)

// NextRetryDelay returns the ack-wait delay armed after N prior resends of
// the same packet. Zero prior resends yields the base interval.
func NextRetryDelay(cfg RetryConfig, retries int) time.Duration {
	if cfg.Interval <= 0 {
		return 0
	}
	if retries <= 0 {
		return cfg.Interval
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.Interval) * math.Pow(cfg.Multiplier, float64(retries))
	if cfg.MaxInterval > 0 && delay > float64(cfg.MaxInterval) {
		delay = float64(cfg.MaxInterval)
	}
	return time.Duration(delay)
}
