package session

import (
	"net"
	"sync"
	"time"
)

// State names one point in the session lifecycle.
type State string

const (
	StateAwaitingInit State = "awaiting_init"
	StateInitSent     State = "init_sent"
	StateEstablished  State = "established"
	StateDataInFlight State = "data_in_flight"
	StateClosed       State = "closed"
)

// Disposition classifies an inbound data sequence against the receive cursor.
type Disposition int

const (
	DispositionDeliver Disposition = iota
	DispositionDuplicate
	DispositionGap
)

func (d Disposition) String() string {
	switch d {
	case DispositionDeliver:
		return "deliver"
	case DispositionDuplicate:
		return "duplicate"
	case DispositionGap:
		return "gap"
	default:
		return "unknown"
	}
}

// Session tracks one peer conversation: lifecycle state, the receive cursor,
// the outbound sequence counter, and the in-flight tracker for packets this
// endpoint sent. remote is immutable after construction.
type Session struct {
	mu sync.RWMutex

	remote    *net.UDPAddr
	state     State
	createdAt time.Time
	lastSeen  time.Time

	nextExpectedSeq uint32
	lastSentSeq     uint32

	flight *Flight

	received   uint64
	delivered  uint64
	duplicates uint64
	gaps       uint64
}

// Snapshot is a point-in-time view of one session for status surfaces.
type Snapshot struct {
	Remote     string    `json:"remote"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	NextSeq    uint32    `json:"next_seq"`
	Received   uint64    `json:"received"`
	Delivered  uint64    `json:"delivered"`
	Duplicates uint64    `json:"duplicates"`
	Gaps       uint64    `json:"gaps"`
}

func NewSession(remote *net.UDPAddr, state State, now time.Time) *Session {
	return &Session{
		remote:          remote,
		state:           state,
		createdAt:       now,
		lastSeen:        now,
		nextExpectedSeq: 1,
		flight:          NewFlight(),
	}
}

func (s *Session) Remote() *net.UDPAddr {
	return s.remote
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Touch records peer activity at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) LastSeenAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// NextSendSeq reserves and returns the next outbound data sequence,
// starting from 1.
func (s *Session) NextSendSeq() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSentSeq++
	return s.lastSentSeq
}

func (s *Session) Flight() *Flight {
	return s.flight
}

// Accept classifies an inbound data sequence against the receive cursor.
// The cursor advances only on an exact match; gap sequences are counted but
// never advance it.
func (s *Session) Accept(seq uint32) Disposition {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received++
	switch {
	case seq == s.nextExpectedSeq:
		s.nextExpectedSeq++
		s.delivered++
		return DispositionDeliver
	case seq < s.nextExpectedSeq:
		s.duplicates++
		return DispositionDuplicate
	default:
		s.gaps++
		return DispositionGap
	}
}

// Snapshot reports the current session state and counters.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Remote:     s.remote.String(),
		State:      s.state,
		CreatedAt:  s.createdAt,
		LastSeenAt: s.lastSeen,
		NextSeq:    s.nextExpectedSeq,
		Received:   s.received,
		Delivered:  s.delivered,
		Duplicates: s.duplicates,
		Gaps:       s.gaps,
	}
}
