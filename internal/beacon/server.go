package beacon

import (
	"net"
	"time"

	"github.com/danmuck/driftwire/internal/observability"
	"github.com/danmuck/driftwire/internal/protocol"
	"github.com/danmuck/driftwire/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// DeliveryHandler receives each in-order data payload exactly once.
type DeliveryHandler interface {
	HandleDelivery(remote *net.UDPAddr, seq uint32, payload []byte)
}

// Server owns beacon protocol state: the session store and the receiver half
// of the reliability rules. It holds no socket; the service layer feeds it
// decoded messages and transmits its replies.
type Server struct {
	beaconID string
	cfg      session.Config

	store   *session.Store
	deliver DeliveryHandler
}

func NewServer(beaconID string, cfg session.Config) *Server {
	return &Server{
		beaconID: beaconID,
		cfg:      cfg.WithDefaults(),
		store:    session.NewStore(),
	}
}

// SetDeliveryHandler binds the application callback for delivered payloads.
// Bind before serving; the dispatch loop reads it unlocked.
func (s *Server) SetDeliveryHandler(h DeliveryHandler) {
	s.deliver = h
}

// Handle dispatches one decoded message and returns the reply to transmit,
// or nil when the message is dropped.
func (s *Server) Handle(remote *net.UDPAddr, msg *protocol.Message, now time.Time) *protocol.Message {
	switch msg.Type {
	case protocol.TypeInit:
		return s.HandleInit(remote, now)
	case protocol.TypeData:
		return s.HandleData(remote, msg, now)
	default:
		log.Warn().
			Str("remote", remote.String()).
			Str("type", msg.Type.String()).
			Uint32("seq", msg.Seq).
			Msg("unexpected_message_dropped")
		return nil
	}
}

// HandleInit creates or refreshes the session for remote and returns the
// INIT_ACK reply. A repeated INIT re-acks without touching counters.
func (s *Server) HandleInit(remote *net.UDPAddr, now time.Time) *protocol.Message {
	if sess, ok := s.store.Get(remote); ok && sess.State() == session.StateClosed {
		// A closed session never resurrects; a fresh INIT starts over.
		s.store.Remove(remote)
	}
	sess, created := s.store.GetOrCreate(remote, now)
	sess.Touch(now)
	if created {
		sess.SetState(session.StateEstablished)
		observability.SetActiveSessions(s.beaconID, s.store.Len())
		log.Info().
			Str("remote", remote.String()).
			Msg("session_established")
	} else {
		log.Debug().
			Str("remote", remote.String()).
			Msg("init_reacked")
	}
	return &protocol.Message{Type: protocol.TypeInitAck, Seq: 0}
}

// HandleData runs the receiver path for one data message and returns the ack
// reply. Data without a session, or for a closed one, is dropped and logged;
// the sender is never answered.
func (s *Server) HandleData(remote *net.UDPAddr, msg *protocol.Message, now time.Time) *protocol.Message {
	sess, ok := s.store.Get(remote)
	if !ok {
		log.Warn().
			Str("remote", remote.String()).
			Uint32("seq", msg.Seq).
			Msg("data_without_session")
		return nil
	}
	if sess.State() == session.StateClosed {
		log.Warn().
			Str("remote", remote.String()).
			Uint32("seq", msg.Seq).
			Msg("closed_session_drop")
		return nil
	}
	sess.Touch(now)
	switch sess.Accept(msg.Seq) {
	case session.DispositionDeliver:
		if s.deliver != nil {
			s.deliver.HandleDelivery(remote, msg.Seq, msg.Payload)
		}
	case session.DispositionDuplicate:
		log.Debug().
			Str("remote", remote.String()).
			Uint32("seq", msg.Seq).
			Msg("data_duplicate_reacked")
	case session.DispositionGap:
		log.Debug().
			Str("remote", remote.String()).
			Uint32("seq", msg.Seq).
			Uint32("expected", sess.Snapshot().NextSeq).
			Msg("data_gap_acked")
	}
	return &protocol.Message{Type: protocol.TypeDataAck, Seq: msg.Seq}
}

// Sweep closes sessions idle past SessionTimeout and releases sessions closed
// by an earlier pass, returning the number newly closed. Each close logs the
// session's delivery counters. A closed session stays in the store until the
// pass after it closed, and traffic to it is dropped in the meantime.
func (s *Server) Sweep(now time.Time) int {
	closed := 0
	for _, sess := range s.store.Expired(now, s.cfg.SessionTimeout) {
		if sess.State() == session.StateClosed {
			s.store.Remove(sess.Remote())
			log.Debug().
				Str("remote", sess.Remote().String()).
				Msg("session_released")
			continue
		}
		sess.SetState(session.StateClosed)
		snap := sess.Snapshot()
		closed++
		log.Info().
			Str("remote", snap.Remote).
			Uint64("received", snap.Received).
			Uint64("delivered", snap.Delivered).
			Uint64("duplicates", snap.Duplicates).
			Uint64("gaps", snap.Gaps).
			Dur("idle", now.Sub(snap.LastSeenAt)).
			Msg("session_closed")
	}
	observability.SetActiveSessions(s.beaconID, s.store.Len())
	return closed
}

// Snapshot reports all tracked sessions for the admin surface.
func (s *Server) Snapshot() []session.Snapshot {
	return s.store.Snapshot()
}

func (s *Server) SessionCount() int {
	return s.store.Len()
}

func (s *Server) ID() string {
	return s.beaconID
}
