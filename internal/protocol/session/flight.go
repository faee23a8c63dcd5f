package session

import (
	"sort"
	"sync"
	"time"
)

// PendingPacket tracks one data packet awaiting acknowledgment.
type PendingPacket struct {
	Seq           uint32
	Payload       []byte
	SentAt        time.Time
	LastSentAt    time.Time
	Retries       int
	AckDeadlineAt time.Time
}

// Flight stores unacknowledged packets keyed by sequence number.
type Flight struct {
	mu    sync.RWMutex
	items map[uint32]PendingPacket
}

func NewFlight() *Flight {
	return &Flight{
		items: make(map[uint32]PendingPacket),
	}
}

func (f *Flight) Track(item PendingPacket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.Seq] = item
}

// Ack removes the packet for seq and returns it. Unknown sequences report
// false and change nothing.
func (f *Flight) Ack(seq uint32) (PendingPacket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[seq]
	if !ok {
		return PendingPacket{}, false
	}
	delete(f.items, seq)
	return item, true
}

// Due returns packets whose ack deadline has passed, earliest deadline first.
func (f *Flight) Due(now time.Time) []PendingPacket {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]PendingPacket, 0)
	for _, item := range f.items {
		if !item.AckDeadlineAt.After(now) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AckDeadlineAt.Equal(out[j].AckDeadlineAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].AckDeadlineAt.Before(out[j].AckDeadlineAt)
	})
	return out
}

// MarkRetry bumps the retry count and arms the next ack deadline.
func (f *Flight) MarkRetry(seq uint32, at, deadline time.Time) (PendingPacket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[seq]
	if !ok {
		return PendingPacket{}, false
	}
	item.Retries++
	item.LastSentAt = at
	item.AckDeadlineAt = deadline
	f.items[seq] = item
	return item, true
}

// Fail drops the packet for seq once its retry budget is spent.
func (f *Flight) Fail(seq uint32) (PendingPacket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[seq]
	if !ok {
		return PendingPacket{}, false
	}
	delete(f.items, seq)
	return item, true
}

// NextDeadline reports the earliest pending ack deadline.
func (f *Flight) NextDeadline() (time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var earliest time.Time
	found := false
	for _, item := range f.items {
		if !found || item.AckDeadlineAt.Before(earliest) {
			earliest = item.AckDeadlineAt
			found = true
		}
	}
	return earliest, found
}

func (f *Flight) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}

func (f *Flight) List() []PendingPacket {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]PendingPacket, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Seq < out[j].Seq
	})
	return out
}
