package probe

import (
	"context"
	"math"
	"math/rand"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/driftwire/internal/protocol"
	"github.com/danmuck/driftwire/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// ServiceConfig configures probe standalone runtime defaults.
type ServiceConfig struct {
	ProbeID    string
	BeaconAddr string
	// RunDuration bounds the submission phase; zero runs until a signal.
	RunDuration  time.Duration
	SendInterval time.Duration
	MetricsPath  string
	Limits       protocol.Limits
	Session      session.Config
}

// Probe service defaults for standalone runtime configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ProbeID:      "probe.local",
		RunDuration:  30 * time.Second,
		SendInterval: 100 * time.Millisecond,
		MetricsPath:  "probe_metrics.csv",
		Limits:       protocol.DefaultLimits(),
		Session:      session.DefaultConfig(),
	}
}

// Service runs one probe lifecycle as a standalone process: handshake, paced
// submissions, drain, metrics flush.
type Service struct {
	cfg  ServiceConfig
	walk *updateGenerator
}

// Probe service constructor using default standalone config.
func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

// Probe service constructor using explicit config.
func NewServiceWithConfig(cfg ServiceConfig) *Service {
	cfg.Session = cfg.Session.WithDefaults()
	if strings.TrimSpace(cfg.ProbeID) == "" {
		cfg.ProbeID = "probe.local"
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = 100 * time.Millisecond
	}
	if strings.TrimSpace(cfg.MetricsPath) == "" {
		cfg.MetricsPath = "probe_metrics.csv"
	}
	if cfg.Limits.MaxPayloadBytes <= 0 {
		cfg.Limits = protocol.DefaultLimits()
	}
	if cfg.RunDuration < 0 {
		cfg.RunDuration = 0
	}
	return &Service{
		cfg:  cfg,
		walk: newUpdateGenerator(time.Now().UnixNano()),
	}
}

// Probe runtime entrypoint that blocks until the run completes or a process
// signal arrives. A failed handshake is fatal to the run; the metrics file is
// flushed either way.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := NewClient(ClientConfig{
		ProbeID:    s.cfg.ProbeID,
		BeaconAddr: s.cfg.BeaconAddr,
		Limits:     s.cfg.Limits,
		Session:    s.cfg.Session,
	})
	if err != nil {
		return err
	}
	if err := client.Dial(); err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	log.Info().
		Str("probe", s.cfg.ProbeID).
		Str("beacon", s.cfg.BeaconAddr).
		Dur("run_duration", s.cfg.RunDuration).
		Msg("probe_starting")
	if err := client.Handshake(ctx); err != nil {
		// Even a run that never establishes leaves a metrics file behind.
		if flushErr := client.Engine().Flush(s.cfg.MetricsPath); flushErr != nil {
			log.Error().Err(flushErr).Str("path", s.cfg.MetricsPath).Msg("metrics_flush_failed")
		}
		return err
	}
	return s.serve(ctx, client)
}

// Probe main loop: paced submissions against the run clock, then drain and
// flush. The dispatch loop runs beside it and keeps consuming acks through
// the drain window.
func (s *Service) serve(ctx context.Context, client *Client) error {
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	dispatchErr := make(chan error, 1)
	go func() {
		dispatchErr <- client.Dispatch(dispatchCtx)
	}()

	ticker := time.NewTicker(s.cfg.SendInterval)
	defer ticker.Stop()

	var runDone <-chan time.Time
	if s.cfg.RunDuration > 0 {
		runTimer := time.NewTimer(s.cfg.RunDuration)
		defer runTimer.Stop()
		runDone = runTimer.C
	}

	dispatchDone := false
	submitted := 0
loop:
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("submitted", submitted).Msg("probe_interrupted")
			break loop
		case <-runDone:
			log.Info().Int("submitted", submitted).Msg("run_complete")
			break loop
		case err := <-dispatchErr:
			dispatchDone = true
			if err != nil {
				return err
			}
			break loop
		case <-ticker.C:
			payload := session.EncodeUpdate(s.walk.Next())
			if _, err := client.Submit(payload); err != nil {
				log.Warn().Err(err).Msg("submit_failed")
				continue
			}
			submitted++
		}
	}

	abandoned := client.Drain(s.cfg.Session.DrainGrace)
	cancelDispatch()
	if !dispatchDone {
		if err := <-dispatchErr; err != nil {
			log.Warn().Err(err).Msg("dispatch_exit")
		}
	}
	return s.flush(client, abandoned)
}

// Probe end-of-run accounting: CSV flush plus the summary event.
func (s *Service) flush(client *Client, abandoned int) error {
	summary := client.Engine().Summarize()
	if err := client.Engine().Flush(s.cfg.MetricsPath); err != nil {
		log.Error().Err(err).Str("path", s.cfg.MetricsPath).Msg("metrics_flush_failed")
		return err
	}
	log.Info().
		Str("path", s.cfg.MetricsPath).
		Int("total_sent", summary.TotalSent).
		Int("acked", summary.SampleCount).
		Int("lost", summary.LostCount).
		Int("abandoned", abandoned).
		Dur("mean_latency", summary.MeanLatency).
		Dur("jitter", summary.Jitter).
		Float64("loss_rate", summary.LossRate).
		Msg("run_summary")
	return nil
}

// updateGenerator advances a deterministic drift walk: the heading wanders a
// few degrees per tick and the position moves one unit along it.
type updateGenerator struct {
	rng     *rand.Rand
	tick    uint32
	x, y    float32
	heading int
}

func newUpdateGenerator(seed int64) *updateGenerator {
	return &updateGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *updateGenerator) Next() session.Update {
	g.tick++
	g.heading = (g.heading + g.rng.Intn(21) - 10 + 360) % 360
	rad := float64(g.heading) * math.Pi / 180
	g.x += float32(math.Cos(rad))
	g.y += float32(math.Sin(rad))
	return session.Update{
		Tick:    g.tick,
		X:       g.x,
		Y:       g.y,
		Heading: uint16(g.heading),
	}
}
