package metrics

import (
	"sort"
	"sync"
	"time"
)

// Record tracks one data sequence from first transmission to ack or loss.
type Record struct {
	Seq     uint32
	SentAt  time.Time
	AckedAt time.Time
	RTT     time.Duration
	Acked   bool
	Lost    bool
}

// Summary aggregates one run's delivery quality. Jitter is the mean absolute
// difference of consecutive round trips in ack-arrival order.
type Summary struct {
	MeanLatency time.Duration
	Jitter      time.Duration
	LossRate    float64
	SampleCount int
	LostCount   int
	TotalSent   int
}

// Engine accumulates per-packet delivery records for one endpoint run. It is
// created at endpoint start and flushed at shutdown, never shared across runs.
type Engine struct {
	mu      sync.RWMutex
	records map[uint32]*Record
	rtts    []time.Duration
}

func NewEngine() *Engine {
	return &Engine{
		records: make(map[uint32]*Record),
	}
}

// RecordSent opens the record for seq at its first transmission.
// Retransmissions keep the original send time.
func (e *Engine) RecordSent(seq uint32, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.records[seq]; ok {
		return
	}
	e.records[seq] = &Record{Seq: seq, SentAt: at}
}

// RecordAcked settles the record for seq and returns the measured round trip.
// Unknown or already-settled sequences report false.
func (e *Engine) RecordAcked(seq uint32, at time.Time) (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[seq]
	if !ok || rec.Acked || rec.Lost {
		return 0, false
	}
	rec.Acked = true
	rec.AckedAt = at
	rec.RTT = at.Sub(rec.SentAt)
	e.rtts = append(e.rtts, rec.RTT)
	return rec.RTT, true
}

// RecordLost settles the record for seq as a delivery failure.
func (e *Engine) RecordLost(seq uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[seq]
	if !ok || rec.Acked || rec.Lost {
		return false
	}
	rec.Lost = true
	return true
}

// Records returns every record sorted by sequence.
func (e *Engine) Records() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Record, 0, len(e.records))
	for _, rec := range e.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Summarize aggregates the run so far. Zero samples yield a zero summary,
// never a division failure.
func (e *Engine) Summarize() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Summary{
		SampleCount: len(e.rtts),
		TotalSent:   len(e.records),
	}
	for _, rec := range e.records {
		if rec.Lost {
			s.LostCount++
		}
	}
	if s.TotalSent > 0 {
		s.LossRate = float64(s.LostCount) / float64(s.TotalSent)
	}
	if len(e.rtts) == 0 {
		return s
	}
	var total time.Duration
	for _, rtt := range e.rtts {
		total += rtt
	}
	s.MeanLatency = total / time.Duration(len(e.rtts))
	if len(e.rtts) > 1 {
		var diffs time.Duration
		for i := 1; i < len(e.rtts); i++ {
			d := e.rtts[i] - e.rtts[i-1]
			if d < 0 {
				d = -d
			}
			diffs += d
		}
		s.Jitter = diffs / time.Duration(len(e.rtts)-1)
	}
	return s
}
