package mainchan

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/websoft9/sshcore/internal/connection"
	"github.com/websoft9/sshcore/internal/looppipe"
	"github.com/websoft9/sshcore/internal/wire"
)

func newTestConn(hook *looppipe.BPP) *connection.Connection {
	return connection.New(hook, connection.Config{OurMaxPkt: 0x8000}, zerolog.Nop(), nil)
}

func confirmOpen(t *testing.T, hookA, hookB *looppipe.BPP) {
	t.Helper()
	hookA.Deliver()
	open := hookB.InQueue().Pop()
	if open == nil || open.Type != wire.MsgChannelOpen {
		t.Fatalf("expected CHANNEL_OPEN, got %v", open)
	}
	_ = open.ReadString() // channel type
	senderID := open.ReadUint32()

	confirm := hookB.NewPktOut(wire.MsgChannelOpenConfirmation)
	confirm.WriteUint32(senderID)
	confirm.WriteUint32(7) // peer's local id -> becomes our RemoteID
	confirm.WriteUint32(0x20000)
	confirm.WriteUint32(0x8000)
	hookB.OutQueue().Push(confirm)
	hookB.Deliver()
}

func popChannelRequest(t *testing.T, hookA, hookB *looppipe.BPP) string {
	t.Helper()
	hookA.Deliver()
	pkt := hookB.InQueue().Pop()
	if pkt == nil || pkt.Type != wire.MsgChannelRequest {
		t.Fatalf("expected CHANNEL_REQUEST, got %v", pkt)
	}
	_ = pkt.ReadUint32() // recipient channel
	name := string(pkt.ReadString())
	return name
}

func replyChannel(hookA, hookB *looppipe.BPP, success bool) {
	t := wire.MsgChannelFailure
	if success {
		t = wire.MsgChannelSuccess
	}
	reply := hookB.NewPktOut(t)
	reply.WriteUint32(256) // our local id
	hookB.OutQueue().Push(reply)
	hookB.Deliver()
}

func TestMainchanShellReadyRoundTrip(t *testing.T) {
	hookA, hookB := looppipe.NewPair()
	conn := newTestConn(hookA)

	seq := New(conn, Config{NoPTY: true}, nil)
	_ = seq

	confirmOpen(t, hookA, hookB)
	if conn.FilterQueue() {
		t.Fatalf("connection unexpectedly terminated")
	}

	name := popChannelRequest(t, hookA, hookB)
	if name != wire.ReqShell {
		t.Fatalf("expected shell request (no command/subsystem configured), got %q", name)
	}

	replyChannel(hookA, hookB, true)
	if conn.FilterQueue() {
		t.Fatalf("connection unexpectedly terminated")
	}
	if !conn.MainchanReady {
		t.Fatalf("expected MainchanReady after shell request succeeds")
	}
}

func TestMainchanFallbackCommandOnPrimaryFailure(t *testing.T) {
	hookA, hookB := looppipe.NewPair()
	conn := newTestConn(hookA)

	New(conn, Config{NoPTY: true, Command: "primary-cmd", FallbackCommand: "fallback-cmd"}, nil)

	confirmOpen(t, hookA, hookB)
	conn.FilterQueue()

	name := popChannelRequest(t, hookA, hookB)
	if name != wire.ReqExec {
		t.Fatalf("expected exec request, got %q", name)
	}

	replyChannel(hookA, hookB, false) // primary fails
	conn.FilterQueue()
	if conn.MainchanReady {
		t.Fatalf("should not be ready yet, fallback not yet answered")
	}

	name = popChannelRequest(t, hookA, hookB)
	if name != wire.ReqExec {
		t.Fatalf("expected fallback exec request, got %q", name)
	}

	replyChannel(hookA, hookB, true)
	conn.FilterQueue()
	if !conn.MainchanReady {
		t.Fatalf("expected MainchanReady after fallback command succeeds")
	}
}

func TestMainchanNoFallbackDisconnects(t *testing.T) {
	hookA, hookB := looppipe.NewPair()
	conn := newTestConn(hookA)

	New(conn, Config{NoPTY: true, Command: "primary-cmd"}, nil)

	confirmOpen(t, hookA, hookB)
	conn.FilterQueue()
	popChannelRequest(t, hookA, hookB)

	replyChannel(hookA, hookB, false)
	conn.FilterQueue()
	if !hookA.Disconnected {
		t.Fatalf("expected Disconnect to have been called with no fallback configured")
	}
}

func TestMainchanExitSignalMapsToCode(t *testing.T) {
	hookA, hookB := looppipe.NewPair()
	conn := newTestConn(hookA)
	seq := New(conn, Config{NoPTY: true}, nil)

	confirmOpen(t, hookA, hookB)
	conn.FilterQueue()
	popChannelRequest(t, hookA, hookB)
	replyChannel(hookA, hookB, true)
	conn.FilterQueue()

	sigPkt := hookB.NewPktOut(wire.MsgChannelRequest)
	sigPkt.WriteUint32(256)
	sigPkt.WriteStringText(wire.ReqExitSignal)
	sigPkt.WriteBool(false)
	sigPkt.WriteStringText("TERM")
	sigPkt.WriteBool(false)
	sigPkt.WriteStringText("")
	sigPkt.WriteStringText("")
	hookB.OutQueue().Push(sigPkt)
	hookB.Deliver()
	conn.FilterQueue()

	code, ok := seq.ExitCode()
	if !ok || code != 128+15 {
		t.Fatalf("expected exit code 143 for SIGTERM, got %d ok=%v", code, ok)
	}
}
