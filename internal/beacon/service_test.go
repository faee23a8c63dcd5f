package beacon

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/danmuck/driftwire/internal/protocol"
	"github.com/danmuck/driftwire/internal/testutil/testlog"
)

func startService(t *testing.T, ctx context.Context) (*Service, *net.UDPAddr, chan error) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	cfg := DefaultServiceConfig()
	cfg.Session.ReadTimeout = 50 * time.Millisecond
	cfg.Session.SweepInterval = 250 * time.Millisecond
	svc := NewServiceWithConfig(cfg)

	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx, conn)
	}()
	return svc, conn.LocalAddr().(*net.UDPAddr), done
}

func writeMsg(t *testing.T, conn *net.UDPConn, msg *protocol.Message) {
	t.Helper()
	raw, err := protocol.Encode(msg, protocol.DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn *net.UDPConn) *protocol.Message {
	t.Helper()
	buf := make([]byte, protocol.MaxDatagramBytes)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.Decode(buf[:n], protocol.DefaultLimits())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestServiceServeHandshakeAndData(t *testing.T) {
	testlog.Start(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, addr, done := startService(t, ctx)

	client, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	writeMsg(t, client, &protocol.Message{Type: protocol.TypeInit, Seq: 0})
	ack := readMsg(t, client)
	if ack.Type != protocol.TypeInitAck || ack.Seq != 0 {
		t.Fatalf("unexpected handshake reply: %+v", ack)
	}

	writeMsg(t, client, &protocol.Message{Type: protocol.TypeData, Seq: 1, Payload: []byte("hi")})
	dataAck := readMsg(t, client)
	if dataAck.Type != protocol.TypeDataAck || dataAck.Seq != 1 {
		t.Fatalf("unexpected data ack: %+v", dataAck)
	}

	// A truncated datagram must be dropped without stalling the loop.
	if _, err := client.Write([]byte{0x03, 0x00}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	writeMsg(t, client, &protocol.Message{Type: protocol.TypeData, Seq: 2, Payload: []byte("still alive")})
	next := readMsg(t, client)
	if next.Type != protocol.TypeDataAck || next.Seq != 2 {
		t.Fatalf("loop did not survive garbage: %+v", next)
	}

	if svc.Server().SessionCount() != 1 {
		t.Fatalf("unexpected session count=%d", svc.Server().SessionCount())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve exit err: %v", err)
	}
}

func TestServiceServeDropsDataWithoutSession(t *testing.T) {
	testlog.Start(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, addr, done := startService(t, ctx)

	client, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	// Sessionless data must be dropped without any reply.
	writeMsg(t, client, &protocol.Message{Type: protocol.TypeData, Seq: 5, Payload: []byte("orphan")})
	buf := make([]byte, protocol.MaxDatagramBytes)
	_ = client.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if n, readErr := client.Read(buf); readErr == nil {
		msg, _ := protocol.Decode(buf[:n], protocol.DefaultLimits())
		t.Fatalf("orphan data answered: %+v", msg)
	}

	// The loop stays healthy: a fresh handshake and data flow still work.
	writeMsg(t, client, &protocol.Message{Type: protocol.TypeInit, Seq: 0})
	ack := readMsg(t, client)
	if ack.Type != protocol.TypeInitAck || ack.Seq != 0 {
		t.Fatalf("unexpected handshake reply: %+v", ack)
	}
	writeMsg(t, client, &protocol.Message{Type: protocol.TypeData, Seq: 1, Payload: []byte("hi")})
	dataAck := readMsg(t, client)
	if dataAck.Type != protocol.TypeDataAck || dataAck.Seq != 1 {
		t.Fatalf("unexpected data ack: %+v", dataAck)
	}
	if svc.Server().SessionCount() != 1 {
		t.Fatalf("unexpected session count=%d", svc.Server().SessionCount())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve exit err: %v", err)
	}
}
