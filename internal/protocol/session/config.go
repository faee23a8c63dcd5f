package session

import "time"

// RetryConfig defines acknowledgment retry behavior for in-flight packets.
// MaxRetries counts retransmissions after the first send, so a packet is
// transmitted at most MaxRetries+1 times.
type RetryConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	MaxRetries  int
}

// Config defines session lifecycle and reliability defaults shared by both
// endpoint roles. HandshakeRetries caps total INIT transmissions, the first
// send included.
type Config struct {
	HandshakeRetries int
	SessionTimeout   time.Duration
	SweepInterval    time.Duration
	ReadTimeout      time.Duration
	DrainGrace       time.Duration
	Retry            RetryConfig
}

// DefaultConfig returns the reliability defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeRetries: 10,
		SessionTimeout:   15 * time.Second,
		SweepInterval:    time.Second,
		ReadTimeout:      250 * time.Millisecond,
		DrainGrace:       2 * time.Second,
		Retry: RetryConfig{
			Interval:    200 * time.Millisecond,
			MaxInterval: 3 * time.Second,
			Multiplier:  1.5,
			MaxRetries:  5,
		},
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.HandshakeRetries <= 0 {
		c.HandshakeRetries = def.HandshakeRetries
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = def.SessionTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = def.DrainGrace
	}
	if c.Retry.Interval <= 0 {
		c.Retry.Interval = def.Retry.Interval
	}
	if c.Retry.MaxInterval <= 0 {
		c.Retry.MaxInterval = def.Retry.MaxInterval
	}
	if c.Retry.Multiplier < 1.0 {
		c.Retry.Multiplier = def.Retry.Multiplier
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = def.Retry.MaxRetries
	}
	return c
}
