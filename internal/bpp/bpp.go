// Package bpp defines the abstract contract between the wire-level layer
// (cipher/MAC, key exchange, user authentication — all out of scope per
// spec.md §1) and the connection layer above it. A BPP delivers already
// decrypted, already-authenticated packets through an in-queue and accepts
// packets to serialize through an out-queue; this package only fixes that
// contract, not any transform below it.
package bpp

import (
	"github.com/websoft9/sshcore/internal/packet"
)

// DisconnectCategory groups the reason code an SSH_MSG_DISCONNECT carries.
type DisconnectCategory int

const (
	CategoryProtocolError DisconnectCategory = iota
	CategoryByApplication
)

// Hook is the contract spec.md §4.2 describes: two queues, two idempotent
// callbacks, a factory for outbound packets, and the disconnect/unimplemented
// helpers the connection layer relies on.
type Hook interface {
	// NewPktOut returns a fresh outbound packet of the given type, already
	// carrying whatever the BPP needs on serialization (e.g. nothing at this
	// layer — the hook exists so a future transport can stamp packets).
	NewPktOut(t packet.MsgType) *packet.PktOut

	// InQueue is the queue of already-decrypted inbound packets the
	// connection layer's filter/dispatch loop drains.
	InQueue() *packet.PktInQueue

	// OutQueue is the queue of outbound packets the connection layer and its
	// channels push to; the BPP's output-pending callback (attached via
	// OutQueue().SetCallback) is responsible for draining and serializing it.
	OutQueue() *packet.PktOutQueue

	// QueueDisconnect enqueues an SSH_MSG_DISCONNECT with the given reason
	// and category (spec.md §4.2, §7) and marks the connection for teardown.
	QueueDisconnect(reason string, category DisconnectCategory)

	// Scheduler returns the idempotent-callback scheduler the BPP drains
	// whenever its own I/O loop has pushed new packets (spec.md §9: the
	// process-wide pending list re-architected as an explicit, per-connection
	// context object). The connection layer attaches its in-queue wake
	// callback to it via InQueue().SetCallback.
	Scheduler() *packet.Scheduler

	// DrainFreed releases every PktIn popped from InQueue since the last
	// call, resetting each one through the free queue (spec.md §4.1). The
	// connection layer calls this once per filter_queue iteration, after
	// every packet popped that pass has been fully dispatched — this is the
	// deferred-reclamation point that lets a handler hold borrowed slices
	// into a packet body for the duration of the call that consumed it.
	DrainFreed()

	// CheckUnimplemented tests whether pkt's type is one the local side is
	// willing to receive; if not, it enqueues SSH_MSG_UNIMPLEMENTED carrying
	// pkt's sequence number and returns true, meaning the caller must drop
	// the packet without further processing (spec.md §4.2).
	CheckUnimplemented(pkt *packet.PktIn) bool
}
