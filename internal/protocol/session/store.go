package session

import (
	"net"
	"sort"
	"sync"
	"time"
)

// Store tracks live sessions keyed by canonical remote address.
type Store struct {
	mu    sync.RWMutex
	items map[string]*Session
}

func NewStore() *Store {
	return &Store{
		items: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for addr, creating one in awaiting_init on
// first sight. The bool reports whether a new session was created.
func (s *Store) GetOrCreate(addr *net.UDPAddr, now time.Time) (*Session, bool) {
	key := addr.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.items[key]; ok {
		return sess, false
	}
	sess := NewSession(addr, StateAwaitingInit, now)
	s.items[key] = sess
	return sess, true
}

func (s *Store) Get(addr *net.UDPAddr) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.items[addr.String()]
	return sess, ok
}

func (s *Store) Remove(addr *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, addr.String())
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Snapshot reports every live session, sorted by remote address.
func (s *Store) Snapshot() []Snapshot {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.items))
	for _, sess := range s.items {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Remote < out[j].Remote
	})
	return out
}

// Expired returns sessions idle for at least timeout, longest-idle first.
func (s *Store) Expired(now time.Time, timeout time.Duration) []*Session {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.items))
	for _, sess := range s.items {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	out := make([]*Session, 0)
	for _, sess := range sessions {
		if now.Sub(sess.LastSeenAt()) >= timeout {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt().Before(out[j].LastSeenAt())
	})
	return out
}
