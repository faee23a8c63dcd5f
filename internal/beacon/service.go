package beacon

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/driftwire/internal/observability"
	"github.com/danmuck/driftwire/internal/protocol"
	"github.com/danmuck/driftwire/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// ServiceConfig configures the beacon endpoint.
type ServiceConfig struct {
	BeaconID         string
	ListenAddr       string
	AdminListenAddr  string
	AdminCORSOrigins []string
	Limits           protocol.Limits
	Session          session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BeaconID:   "beacon.local",
		ListenAddr: ":7474",
		Limits:     protocol.DefaultLimits(),
		Session:    session.DefaultConfig(),
	}
}

// Service binds the beacon socket and drives the dispatch loop plus the
// optional admin surface.
type Service struct {
	cfg ServiceConfig

	server *Server
	conn   *net.UDPConn
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.BeaconID) == "" {
		cfg.BeaconID = def.BeaconID
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.Limits.MaxPayloadBytes <= 0 {
		cfg.Limits = def.Limits
	}
	cfg.Session = cfg.Session.WithDefaults()
	svc := &Service{
		cfg:    cfg,
		server: NewServer(cfg.BeaconID, cfg.Session),
	}
	svc.server.SetDeliveryHandler(updateLog{beaconID: cfg.BeaconID})
	return svc
}

// Server returns the protocol state owner.
func (s *Service) Server() *Server {
	return s.server
}

// Run blocks until signal shutdown or a fatal serve error.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := s.listen()
	if err != nil {
		return err
	}
	log.Info().
		Str("beacon_id", s.cfg.BeaconID).
		Str("addr", conn.LocalAddr().String()).
		Msg("beacon_listening")

	adminErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.AdminListenAddr) != "" {
		go func() {
			adminErr <- s.serveAdmin(ctx)
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, conn)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			return err
		}
		return <-serveErr
	}
}

func (s *Service) listen() (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", addr)
}

// Serve drives the dispatch loop on an existing socket until ctx cancels,
// one inbound message at a time. The session sweep runs off the same loop
// clock; the read deadline bounds every wait.
func (s *Service) Serve(ctx context.Context, conn *net.UDPConn) error {
	s.conn = conn
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, protocol.MaxDatagramBytes)
	nextSweep := time.Now().Add(s.cfg.Session.SweepInterval)
	for {
		now := time.Now()
		if !now.Before(nextSweep) {
			closed := s.server.Sweep(now)
			log.Debug().
				Int("active_sessions", s.server.SessionCount()).
				Int("closed", closed).
				Msg("sweep")
			nextSweep = now.Add(s.cfg.Session.SweepInterval)
		}
		_ = conn.SetReadDeadline(now.Add(s.cfg.Session.ReadTimeout))
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			return err
		}
		s.dispatch(remote, buf[:n], time.Now())
	}
}

func (s *Service) dispatch(remote *net.UDPAddr, raw []byte, now time.Time) {
	msg, err := protocol.Decode(raw, s.cfg.Limits)
	if err != nil {
		observability.RecordDecodeError(s.cfg.BeaconID)
		log.Warn().
			Str("remote", remote.String()).
			Int("bytes", len(raw)).
			Err(err).
			Msg("packet_dropped")
		return
	}
	observability.RecordPacketReceived(s.cfg.BeaconID, msg.Type.String())
	if reply := s.server.Handle(remote, msg, now); reply != nil {
		s.send(remote, reply)
	}
}

func (s *Service) send(remote *net.UDPAddr, msg *protocol.Message) {
	raw, err := protocol.Encode(msg, s.cfg.Limits)
	if err != nil {
		log.Error().
			Str("type", msg.Type.String()).
			Err(err).
			Msg("encode_reply_failed")
		return
	}
	if _, err := s.conn.WriteToUDP(raw, remote); err != nil {
		log.Warn().
			Str("remote", remote.String()).
			Err(err).
			Msg("send_failed")
		return
	}
	observability.RecordPacketSent(s.cfg.BeaconID, msg.Type.String())
}

// updateLog decodes delivered payloads as position updates for the
// application log. Undecodable payloads stay opaque; decoding is an
// application concern, never a protocol error.
type updateLog struct {
	beaconID string
}

func (u updateLog) HandleDelivery(remote *net.UDPAddr, seq uint32, payload []byte) {
	upd, err := session.DecodeUpdate(payload)
	if err != nil {
		log.Debug().
			Str("remote", remote.String()).
			Uint32("seq", seq).
			Int("bytes", len(payload)).
			Msg("opaque_payload_delivered")
		return
	}
	log.Debug().
		Str("remote", remote.String()).
		Uint32("seq", seq).
		Uint32("tick", upd.Tick).
		Float32("x", upd.X).
		Float32("y", upd.Y).
		Uint16("heading", upd.Heading).
		Msg("update_delivered")
}
