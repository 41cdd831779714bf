// Package looppipe provides an in-memory bpp.Hook test double: two
// instances constructed by NewPair are connected back-to-back so two
// connection.Connections can be driven against each other without real
// sockets (SPEC_FULL §6), mirroring the teacher's style of building fakes
// in-package (internal/tunnel/*_test.go, internal/crypto/crypto_test.go)
// rather than importing a mocking library.
package looppipe

import (
	"github.com/websoft9/sshcore/internal/bpp"
	"github.com/websoft9/sshcore/internal/packet"
	"github.com/websoft9/sshcore/internal/wire"
)

// BPP is one end of a loopback pair.
type BPP struct {
	in    *packet.PktInQueue
	out   *packet.PktOutQueue
	free  *packet.FreeQueue
	sched *packet.Scheduler
	peer  *BPP
	seq   uint32

	// Accept, when non-nil, is the set of message types CheckUnimplemented
	// treats as recognized; nil means "accept everything" (the common case
	// for tests that aren't specifically exercising SSH_MSG_UNIMPLEMENTED).
	Accept map[packet.MsgType]bool

	Disconnected     bool
	DisconnectReason string
}

// NewPair returns two BPPs wired back-to-back.
func NewPair() (a, b *BPP) {
	a, b = newBPP(), newBPP()
	a.peer, b.peer = b, a
	return a, b
}

func newBPP() *BPP {
	free := packet.NewFreeQueue()
	return &BPP{
		in:    packet.NewPktInQueue(free),
		out:   packet.NewPktOutQueue(),
		free:  free,
		sched: packet.NewScheduler(),
	}
}

// NewPktOut implements bpp.Hook.
func (b *BPP) NewPktOut(t packet.MsgType) *packet.PktOut { return packet.NewPktOut(t) }

// InQueue implements bpp.Hook.
func (b *BPP) InQueue() *packet.PktInQueue { return b.in }

// OutQueue implements bpp.Hook.
func (b *BPP) OutQueue() *packet.PktOutQueue { return b.out }

// Scheduler implements bpp.Hook.
func (b *BPP) Scheduler() *packet.Scheduler { return b.sched }

// DrainFreed implements bpp.Hook.
func (b *BPP) DrainFreed() { b.free.Drain() }

// QueueDisconnect implements bpp.Hook: records the disconnect and enqueues
// an SSH_MSG_DISCONNECT on the out-queue as spec.md §4.2 requires.
func (b *BPP) QueueDisconnect(reason string, category bpp.DisconnectCategory) {
	b.Disconnected = true
	b.DisconnectReason = reason
	pkt := packet.NewPktOut(wire.MsgDisconnect)
	pkt.WriteUint32(0)
	pkt.WriteStringText(reason)
	pkt.WriteStringText("")
	b.out.Push(pkt)
}

// CheckUnimplemented implements bpp.Hook.
func (b *BPP) CheckUnimplemented(pkt *packet.PktIn) bool {
	if b.Accept == nil {
		return false
	}
	if b.Accept[pkt.Type] {
		return false
	}
	reply := packet.NewPktOut(wire.MsgUnimplemented)
	reply.WriteUint32(pkt.Seq)
	b.out.Push(reply)
	return true
}

// Deliver moves every packet queued on b's out-queue onto its peer's
// in-queue, simulating wire transmission, and drains the peer's scheduler
// so its wake callback (if any) fires synchronously.
func (b *BPP) Deliver() {
	for {
		out := b.out.Pop()
		if out == nil {
			break
		}
		b.peer.seq++
		in := packet.NewPktIn(out.Type, b.peer.seq, out.Bytes())
		b.peer.in.Push(in)
	}
	b.peer.sched.Drain()
}
