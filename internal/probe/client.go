package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/driftwire/internal/metrics"
	"github.com/danmuck/driftwire/internal/observability"
	"github.com/danmuck/driftwire/internal/protocol"
	"github.com/danmuck/driftwire/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrBeaconAddrRequired = errors.New("probe: beacon address required")
	ErrHandshakeTimeout   = errors.New("probe: handshake timeout")
	ErrNotEstablished     = errors.New("probe: session not established")
	ErrDeliveryFailure    = errors.New("probe: data delivery failure")
)

// drainPollInterval paces flight-emptiness checks during Drain.
const drainPollInterval = 20 * time.Millisecond

// ClientConfig configures one probe client run.
type ClientConfig struct {
	ProbeID    string
	BeaconAddr string
	Limits     protocol.Limits
	Session    session.Config
}

// Client is the transmitting endpoint. It owns the socket, the session with
// its flight of unacknowledged packets, and the run's metrics engine. Submit
// and the dispatch loop may run on different goroutines; the session, flight,
// and engine serialize internally.
type Client struct {
	probeID    string
	beaconAddr string
	cfg        session.Config
	limits     protocol.Limits

	conn   *net.UDPConn
	sess   *session.Session
	engine *metrics.Engine

	draining atomic.Bool
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BeaconAddr) == "" {
		return nil, ErrBeaconAddrRequired
	}
	if strings.TrimSpace(cfg.ProbeID) == "" {
		cfg.ProbeID = "probe.local"
	}
	if cfg.Limits.MaxPayloadBytes <= 0 {
		cfg.Limits = protocol.DefaultLimits()
	}
	return &Client{
		probeID:    cfg.ProbeID,
		beaconAddr: cfg.BeaconAddr,
		cfg:        cfg.Session.WithDefaults(),
		limits:     cfg.Limits,
		engine:     metrics.NewEngine(),
	}, nil
}

// Dial binds the connected socket and opens the session record. The session
// stays in awaiting_init until Handshake runs.
func (c *Client) Dial() error {
	raddr, err := net.ResolveUDPAddr("udp", c.beaconAddr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}
	c.conn = conn
	c.sess = session.NewSession(raddr, session.StateAwaitingInit, time.Now())
	return nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Engine() *metrics.Engine {
	return c.engine
}

func (c *Client) Session() *session.Session {
	return c.sess
}

// InFlight reports the number of data packets awaiting acknowledgment.
func (c *Client) InFlight() int {
	return c.sess.Flight().Len()
}

// Handshake sends INIT until an INIT_ACK arrives. HandshakeRetries caps the
// total number of INIT transmissions, with the configured backoff between
// them. Exhausting the budget returns ErrHandshakeTimeout and the session
// never establishes.
func (c *Client) Handshake(ctx context.Context) error {
	if c.sess.State() == session.StateEstablished {
		return nil
	}
	c.sess.SetState(session.StateInitSent)
	start := time.Now()
	buf := make([]byte, protocol.MaxDatagramBytes)
	for attempt := 0; attempt < c.cfg.HandshakeRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			observability.RecordRetransmit(c.probeID)
			log.Debug().Int("attempt", attempt).Msg("init_retransmit")
		}
		if err := c.send(&protocol.Message{Type: protocol.TypeInit, Seq: 0}); err != nil {
			log.Warn().Err(err).Msg("init_send_failed")
		}
		deadline := time.Now().Add(session.NextRetryDelay(c.cfg.Retry, attempt))
		ok, err := c.awaitInitAck(ctx, deadline, buf)
		if err != nil {
			return err
		}
		if ok {
			now := time.Now()
			c.sess.SetState(session.StateEstablished)
			c.sess.Touch(now)
			log.Info().
				Str("beacon", c.beaconAddr).
				Dur("took", now.Sub(start)).
				Int("attempts", attempt+1).
				Msg("session_established")
			return nil
		}
	}
	return ErrHandshakeTimeout
}

// awaitInitAck reads until deadline looking for an INIT_ACK. A missed window
// reports (false, nil) so the caller can resend. Read errors other than a
// closed socket count as a missed reply; connection-refused surfaces here
// while the beacon is still coming up.
func (c *Client) awaitInitAck(ctx context.Context, deadline time.Time, buf []byte) (bool, error) {
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return false, err
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return false, err
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return false, nil
			}
			log.Debug().Err(err).Msg("handshake_read_failed")
			continue
		}
		msg, err := protocol.Decode(buf[:n], c.limits)
		if err != nil {
			observability.RecordDecodeError(c.probeID)
			log.Warn().Err(err).Msg("packet_dropped")
			continue
		}
		observability.RecordPacketReceived(c.probeID, msg.Type.String())
		if msg.Type == protocol.TypeInitAck {
			return true, nil
		}
		log.Debug().Str("type", msg.Type.String()).Msg("unexpected_handshake_reply")
	}
	return false, nil
}

// Submit assigns the next sequence, sends the payload, and tracks it in the
// flight. The returned sequence is live even when the first transmission
// failed; the retransmission path covers it. Multiple sequences may be in
// flight at once.
func (c *Client) Submit(payload []byte) (uint32, error) {
	if c.draining.Load() {
		return 0, ErrNotEstablished
	}
	switch c.sess.State() {
	case session.StateEstablished, session.StateDataInFlight:
	default:
		return 0, ErrNotEstablished
	}
	// Validate size before consuming a sequence number; a burned sequence
	// would open a permanent gap at the receiver.
	if len(payload) > c.limits.MaxPayloadBytes {
		return 0, fmt.Errorf("%w: %d bytes", protocol.ErrPayloadTooLarge, len(payload))
	}

	seq := c.sess.NextSendSeq()
	now := time.Now()
	c.sess.Flight().Track(session.PendingPacket{
		Seq:           seq,
		Payload:       payload,
		SentAt:        now,
		LastSentAt:    now,
		AckDeadlineAt: now.Add(session.NextRetryDelay(c.cfg.Retry, 0)),
	})
	c.engine.RecordSent(seq, now)
	c.sess.SetState(session.StateDataInFlight)

	if err := c.send(&protocol.Message{Type: protocol.TypeData, Seq: seq, Payload: payload}); err != nil {
		log.Warn().Err(err).Uint32("seq", seq).Msg("data_send_failed")
	}
	return seq, nil
}

// Dispatch runs the client loop: it resends due packets, fails packets past
// their retry budget, and consumes inbound acknowledgments. It returns when
// ctx is canceled. The socket read deadline bounds each wait so due
// retransmissions are never starved by a quiet wire.
func (c *Client) Dispatch(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	buf := make([]byte, protocol.MaxDatagramBytes)
	for {
		c.retransmitDue(time.Now())

		wait := c.cfg.ReadTimeout
		if deadline, ok := c.sess.Flight().NextDeadline(); ok {
			if until := time.Until(deadline); until < wait {
				wait = until
			}
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			log.Warn().Err(err).Msg("read_failed")
			continue
		}
		c.handle(buf[:n], time.Now())
	}
}

// Drain stops accepting new payloads and waits for the dispatch loop to
// settle the flight. Packets still pending after grace are recorded lost.
// Returns the number of abandoned packets.
func (c *Client) Drain(grace time.Duration) int {
	c.draining.Store(true)
	deadline := time.Now().Add(grace)
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for c.sess.Flight().Len() > 0 && time.Now().Before(deadline) {
		<-ticker.C
	}

	abandoned := 0
	for _, item := range c.sess.Flight().List() {
		if _, ok := c.sess.Flight().Fail(item.Seq); !ok {
			continue
		}
		c.engine.RecordLost(item.Seq)
		observability.RecordDeliveryFailure(c.probeID)
		log.Warn().
			Uint32("seq", item.Seq).
			Int("retries", item.Retries).
			Err(ErrDeliveryFailure).
			Msg("drain_abandoned")
		abandoned++
	}
	c.sess.SetState(session.StateClosed)
	log.Info().Int("abandoned", abandoned).Msg("session_closed")
	return abandoned
}

func (c *Client) retransmitDue(now time.Time) {
	for _, item := range c.sess.Flight().Due(now) {
		if item.Retries >= c.cfg.Retry.MaxRetries {
			c.fail(item)
			continue
		}
		delay := session.NextRetryDelay(c.cfg.Retry, item.Retries+1)
		updated, ok := c.sess.Flight().MarkRetry(item.Seq, now, now.Add(delay))
		if !ok {
			continue
		}
		observability.RecordRetransmit(c.probeID)
		log.Debug().Uint32("seq", item.Seq).Int("retries", updated.Retries).Msg("data_retransmit")
		if err := c.send(&protocol.Message{Type: protocol.TypeData, Seq: item.Seq, Payload: item.Payload}); err != nil {
			log.Warn().Err(err).Uint32("seq", item.Seq).Msg("data_send_failed")
		}
	}
}

// fail settles one packet as lost after its retry budget. Losing a sequence
// never ends the run; later sequences may still deliver.
func (c *Client) fail(item session.PendingPacket) {
	if _, ok := c.sess.Flight().Fail(item.Seq); !ok {
		return
	}
	c.engine.RecordLost(item.Seq)
	observability.RecordDeliveryFailure(c.probeID)
	log.Warn().
		Uint32("seq", item.Seq).
		Int("retries", item.Retries).
		Err(ErrDeliveryFailure).
		Msg("delivery_failed")
	if c.sess.Flight().Len() == 0 {
		c.sess.SetState(session.StateEstablished)
	}
}

func (c *Client) handle(datagram []byte, now time.Time) {
	msg, err := protocol.Decode(datagram, c.limits)
	if err != nil {
		observability.RecordDecodeError(c.probeID)
		log.Warn().Err(err).Msg("packet_dropped")
		return
	}
	observability.RecordPacketReceived(c.probeID, msg.Type.String())

	switch msg.Type {
	case protocol.TypeDataAck:
		c.handleAck(msg.Seq, now)
	case protocol.TypeInitAck:
		// A duplicate handshake reply from a resent INIT.
		log.Debug().Msg("late_init_ack_ignored")
	case protocol.TypeError:
		log.Warn().Uint32("seq", msg.Seq).Str("detail", string(msg.Payload)).Msg("beacon_error")
	default:
		log.Warn().Str("type", msg.Type.String()).Msg("unexpected_message_dropped")
	}
}

func (c *Client) handleAck(seq uint32, now time.Time) {
	item, ok := c.sess.Flight().Ack(seq)
	if !ok {
		log.Debug().Uint32("seq", seq).Msg("stale_ack_ignored")
		return
	}
	c.sess.Touch(now)
	rtt, ok := c.engine.RecordAcked(seq, now)
	if !ok {
		return
	}
	observability.RecordRTT(c.probeID, rtt)
	log.Debug().
		Uint32("seq", seq).
		Dur("rtt", rtt).
		Int("retries", item.Retries).
		Msg("data_acked")
	if c.sess.Flight().Len() == 0 {
		c.sess.SetState(session.StateEstablished)
	}
}

func (c *Client) send(msg *protocol.Message) error {
	datagram, err := protocol.Encode(msg, c.limits)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(datagram); err != nil {
		return err
	}
	observability.RecordPacketSent(c.probeID, msg.Type.String())
	return nil
}
