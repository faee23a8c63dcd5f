package session

import (
	"net"
	"testing"
	"time"

	"github.com/danmuck/driftwire/internal/testutil/testlog"
)

func TestNextRetryDelayDeterministic(t *testing.T) {
	testlog.Start(t)
	cfg := RetryConfig{
		Interval:    200 * time.Millisecond,
		MaxInterval: 3 * time.Second,
		Multiplier:  1.5,
		MaxRetries:  5,
	}
	if got := NextRetryDelay(cfg, 0); got != 200*time.Millisecond {
		t.Fatalf("retries=0 got=%v", got)
	}
	if got := NextRetryDelay(cfg, 1); got != 300*time.Millisecond {
		t.Fatalf("retries=1 got=%v", got)
	}
	if got := NextRetryDelay(cfg, 2); got != 450*time.Millisecond {
		t.Fatalf("retries=2 got=%v", got)
	}
	if got := NextRetryDelay(cfg, 8); got != 3*time.Second {
		t.Fatalf("retries=8 got=%v", got)
	}
}

func TestConfigWithDefaultsFillsUnsetFields(t *testing.T) {
	testlog.Start(t)
	cfg := Config{SessionTimeout: 30 * time.Second}.WithDefaults()
	if cfg.SessionTimeout != 30*time.Second {
		t.Fatalf("explicit timeout clobbered: %v", cfg.SessionTimeout)
	}
	if cfg.HandshakeRetries != 10 {
		t.Fatalf("unexpected handshake retries=%d", cfg.HandshakeRetries)
	}
	if cfg.Retry.Interval != 200*time.Millisecond || cfg.Retry.MaxRetries != 5 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
}

func TestFlightLifecycle(t *testing.T) {
	testlog.Start(t)
	f := NewFlight()
	now := time.Unix(1700000000, 0)
	f.Track(PendingPacket{
		Seq:           1,
		Payload:       []byte("hi"),
		SentAt:        now,
		LastSentAt:    now,
		AckDeadlineAt: now.Add(200 * time.Millisecond),
	})
	item, ok := f.MarkRetry(1, now.Add(time.Second), now.Add(time.Second+300*time.Millisecond))
	if !ok {
		t.Fatalf("missing pending packet")
	}
	if item.Retries != 1 {
		t.Fatalf("unexpected retries=%d", item.Retries)
	}
	if !item.SentAt.Equal(now) {
		t.Fatalf("original send time lost: %v", item.SentAt)
	}
	acked, ok := f.Ack(1)
	if !ok {
		t.Fatalf("expected pending packet")
	}
	if string(acked.Payload) != "hi" {
		t.Fatalf("unexpected payload %q", acked.Payload)
	}
	if f.Len() != 0 {
		t.Fatalf("flight should be empty, len=%d", f.Len())
	}
	if _, ok := f.Ack(1); ok {
		t.Fatalf("ack after removal should miss")
	}
}

func TestFlightDueOrderedByDeadline(t *testing.T) {
	testlog.Start(t)
	f := NewFlight()
	now := time.Unix(1700000000, 0)
	f.Track(PendingPacket{Seq: 2, AckDeadlineAt: now.Add(100 * time.Millisecond)})
	f.Track(PendingPacket{Seq: 1, AckDeadlineAt: now.Add(300 * time.Millisecond)})
	f.Track(PendingPacket{Seq: 3, AckDeadlineAt: now.Add(time.Hour)})

	due := f.Due(now.Add(500 * time.Millisecond))
	if len(due) != 2 {
		t.Fatalf("unexpected due count=%d", len(due))
	}
	if due[0].Seq != 2 || due[1].Seq != 1 {
		t.Fatalf("unexpected due order: %d, %d", due[0].Seq, due[1].Seq)
	}
	deadline, ok := f.NextDeadline()
	if !ok || !deadline.Equal(now.Add(100*time.Millisecond)) {
		t.Fatalf("unexpected next deadline: %v ok=%v", deadline, ok)
	}
	if _, ok := f.Fail(2); !ok {
		t.Fatalf("expected to fail seq=2")
	}
	if f.Len() != 2 {
		t.Fatalf("unexpected len=%d", f.Len())
	}
}

func TestSessionAcceptDispositions(t *testing.T) {
	testlog.Start(t)
	now := time.Unix(1700000000, 0)
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7474}
	sess := NewSession(addr, StateEstablished, now)

	if got := sess.Accept(1); got != DispositionDeliver {
		t.Fatalf("seq=1 got=%v", got)
	}
	if got := sess.Accept(1); got != DispositionDuplicate {
		t.Fatalf("replayed seq=1 got=%v", got)
	}
	if got := sess.Accept(3); got != DispositionGap {
		t.Fatalf("seq=3 with cursor=2 got=%v", got)
	}
	if got := sess.Accept(2); got != DispositionDeliver {
		t.Fatalf("seq=2 got=%v", got)
	}
	if got := sess.Accept(3); got != DispositionDeliver {
		t.Fatalf("seq=3 with cursor=3 got=%v", got)
	}

	snap := sess.Snapshot()
	if snap.Delivered != 3 || snap.Duplicates != 1 || snap.Gaps != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.NextSeq != 4 {
		t.Fatalf("unexpected cursor=%d", snap.NextSeq)
	}
}

func TestSessionNextSendSeqStartsAtOne(t *testing.T) {
	testlog.Start(t)
	now := time.Unix(1700000000, 0)
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7474}
	sess := NewSession(addr, StateInitSent, now)
	if got := sess.NextSendSeq(); got != 1 {
		t.Fatalf("first seq=%d", got)
	}
	if got := sess.NextSendSeq(); got != 2 {
		t.Fatalf("second seq=%d", got)
	}
}

func TestStoreGetOrCreateIdempotent(t *testing.T) {
	testlog.Start(t)
	store := NewStore()
	now := time.Unix(1700000000, 0)
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9100}

	first, created := store.GetOrCreate(addr, now)
	if !created {
		t.Fatalf("expected creation on first sight")
	}
	if first.State() != StateAwaitingInit {
		t.Fatalf("unexpected initial state=%q", first.State())
	}
	again, created := store.GetOrCreate(addr, now.Add(time.Second))
	if created {
		t.Fatalf("second lookup should not create")
	}
	if again != first {
		t.Fatalf("expected same session instance")
	}
	if store.Len() != 1 {
		t.Fatalf("unexpected store len=%d", store.Len())
	}
	store.Remove(addr)
	if _, ok := store.Get(addr); ok {
		t.Fatalf("session should be removed")
	}
}

func TestStoreExpiredHonorsTouch(t *testing.T) {
	testlog.Start(t)
	store := NewStore()
	start := time.Unix(1700000000, 0)
	stale := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9101}
	live := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9102}

	store.GetOrCreate(stale, start)
	fresh, _ := store.GetOrCreate(live, start)
	fresh.Touch(start.Add(14 * time.Second))

	expired := store.Expired(start.Add(15*time.Second), 15*time.Second)
	if len(expired) != 1 {
		t.Fatalf("unexpected expired count=%d", len(expired))
	}
	if expired[0].Remote().Port != 9101 {
		t.Fatalf("wrong session expired: %v", expired[0].Remote())
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	testlog.Start(t)
	u := Update{Tick: 42, X: 12.5, Y: -3.25, Heading: 270}
	got, err := DecodeUpdate(EncodeUpdate(u))
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if got != u {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if _, err := DecodeUpdate([]byte{0x01, 0x02}); err == nil {
		t.Fatalf("expected length error")
	}
}
