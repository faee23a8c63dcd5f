package beacon

import (
	"net"
	"testing"
	"time"

	"github.com/danmuck/driftwire/internal/protocol"
	"github.com/danmuck/driftwire/internal/protocol/session"
	"github.com/danmuck/driftwire/internal/testutil/testlog"
)

type recordingHandler struct {
	seqs     []uint32
	payloads []string
}

func (h *recordingHandler) HandleDelivery(_ *net.UDPAddr, seq uint32, payload []byte) {
	h.seqs = append(h.seqs, seq)
	h.payloads = append(h.payloads, string(payload))
}

func testAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestHandleInitEstablishesOnce(t *testing.T) {
	testlog.Start(t)

	srv := NewServer("beacon-a", session.DefaultConfig())
	now := time.Unix(1700000000, 0)
	addr := testAddr(9200)

	reply := srv.HandleInit(addr, now)
	if reply.Type != protocol.TypeInitAck || reply.Seq != 0 {
		t.Fatalf("unexpected init reply: %+v", reply)
	}
	if srv.SessionCount() != 1 {
		t.Fatalf("unexpected session count=%d", srv.SessionCount())
	}

	again := srv.HandleInit(addr, now.Add(time.Second))
	if again.Type != protocol.TypeInitAck || again.Seq != 0 {
		t.Fatalf("unexpected re-ack: %+v", again)
	}
	if srv.SessionCount() != 1 {
		t.Fatalf("duplicate init created a session, count=%d", srv.SessionCount())
	}

	snaps := srv.Snapshot()
	if len(snaps) != 1 || snaps[0].State != session.StateEstablished {
		t.Fatalf("unexpected snapshot: %+v", snaps)
	}
}

func TestHandleDataWithoutSessionDropped(t *testing.T) {
	testlog.Start(t)

	srv := NewServer("beacon-a", session.DefaultConfig())
	reply := srv.HandleData(testAddr(9201), &protocol.Message{
		Type:    protocol.TypeData,
		Seq:     7,
		Payload: []byte("hi"),
	}, time.Unix(1700000000, 0))

	if reply != nil {
		t.Fatalf("sessionless data should be dropped, got %+v", reply)
	}
	if srv.SessionCount() != 0 {
		t.Fatalf("sessionless data created a session, count=%d", srv.SessionCount())
	}
}

func TestHandleDataDeliversOnceAndReacksDuplicates(t *testing.T) {
	testlog.Start(t)

	srv := NewServer("beacon-a", session.DefaultConfig())
	handler := &recordingHandler{}
	srv.SetDeliveryHandler(handler)
	now := time.Unix(1700000000, 0)
	addr := testAddr(9202)
	srv.HandleInit(addr, now)

	ack := srv.HandleData(addr, &protocol.Message{Type: protocol.TypeData, Seq: 1, Payload: []byte("a")}, now)
	if ack.Type != protocol.TypeDataAck || ack.Seq != 1 {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	srv.HandleData(addr, &protocol.Message{Type: protocol.TypeData, Seq: 2, Payload: []byte("b")}, now)

	replay := srv.HandleData(addr, &protocol.Message{Type: protocol.TypeData, Seq: 1, Payload: []byte("a")}, now)
	if replay.Type != protocol.TypeDataAck || replay.Seq != 1 {
		t.Fatalf("duplicate should be re-acked: %+v", replay)
	}

	gap := srv.HandleData(addr, &protocol.Message{Type: protocol.TypeData, Seq: 9, Payload: []byte("z")}, now)
	if gap.Type != protocol.TypeDataAck || gap.Seq != 9 {
		t.Fatalf("gap should be acked: %+v", gap)
	}

	if len(handler.seqs) != 2 || handler.seqs[0] != 1 || handler.seqs[1] != 2 {
		t.Fatalf("unexpected deliveries: %v", handler.seqs)
	}
	if handler.payloads[0] != "a" || handler.payloads[1] != "b" {
		t.Fatalf("unexpected payloads: %v", handler.payloads)
	}
}

func TestSweepClosesIdleSessions(t *testing.T) {
	testlog.Start(t)

	cfg := session.DefaultConfig()
	srv := NewServer("beacon-a", cfg)
	start := time.Unix(1700000000, 0)
	addr := testAddr(9203)
	srv.HandleInit(addr, start)

	if closed := srv.Sweep(start.Add(cfg.SessionTimeout - time.Second)); closed != 0 {
		t.Fatalf("premature close count=%d", closed)
	}
	if closed := srv.Sweep(start.Add(cfg.SessionTimeout)); closed != 1 {
		t.Fatalf("unexpected close count=%d", closed)
	}

	// The closed session lingers until the next sweep releases it; data to it
	// is dropped without an ack.
	snaps := srv.Snapshot()
	if len(snaps) != 1 || snaps[0].State != session.StateClosed {
		t.Fatalf("unexpected post-close snapshot: %+v", snaps)
	}
	late := srv.HandleData(addr, &protocol.Message{Type: protocol.TypeData, Seq: 3}, start.Add(cfg.SessionTimeout+time.Second))
	if late != nil {
		t.Fatalf("closed session should drop data, got %+v", late)
	}

	if closed := srv.Sweep(start.Add(cfg.SessionTimeout + 2*time.Second)); closed != 0 {
		t.Fatalf("release pass closed again, count=%d", closed)
	}
	if srv.SessionCount() != 0 {
		t.Fatalf("session not released, count=%d", srv.SessionCount())
	}

	srv.HandleInit(addr, start.Add(cfg.SessionTimeout+3*time.Second))
	if srv.SessionCount() != 1 {
		t.Fatalf("fresh init should recreate, count=%d", srv.SessionCount())
	}
	snaps = srv.Snapshot()
	if snaps[0].NextSeq != 1 {
		t.Fatalf("recreated session should reset cursor, next=%d", snaps[0].NextSeq)
	}
}

func TestInitWhileClosedStartsFresh(t *testing.T) {
	testlog.Start(t)

	cfg := session.DefaultConfig()
	srv := NewServer("beacon-a", cfg)
	start := time.Unix(1700000000, 0)
	addr := testAddr(9205)
	srv.HandleInit(addr, start)
	srv.HandleData(addr, &protocol.Message{Type: protocol.TypeData, Seq: 1, Payload: []byte("a")}, start)

	if closed := srv.Sweep(start.Add(cfg.SessionTimeout)); closed != 1 {
		t.Fatalf("unexpected close count=%d", closed)
	}

	// INIT while the closed record lingers discards it and starts over.
	reply := srv.HandleInit(addr, start.Add(cfg.SessionTimeout+time.Second))
	if reply.Type != protocol.TypeInitAck || reply.Seq != 0 {
		t.Fatalf("unexpected init reply: %+v", reply)
	}
	if srv.SessionCount() != 1 {
		t.Fatalf("unexpected session count=%d", srv.SessionCount())
	}
	snap := srv.Snapshot()[0]
	if snap.State != session.StateEstablished || snap.NextSeq != 1 || snap.Received != 0 {
		t.Fatalf("stale session survived init: %+v", snap)
	}
}

func TestHandleDropsUnexpectedTypes(t *testing.T) {
	testlog.Start(t)

	srv := NewServer("beacon-a", session.DefaultConfig())
	now := time.Unix(1700000000, 0)
	if reply := srv.Handle(testAddr(9204), &protocol.Message{Type: protocol.TypeInitAck, Seq: 0}, now); reply != nil {
		t.Fatalf("init_ack should be dropped, got %+v", reply)
	}
	if reply := srv.Handle(testAddr(9204), &protocol.Message{Type: protocol.TypeDataAck, Seq: 1}, now); reply != nil {
		t.Fatalf("data_ack should be dropped, got %+v", reply)
	}
}
