// Package sshchan implements the per-channel state machine of spec.md §4.4:
// open/confirmation/failure, data and extended-data with sliding-window flow
// control, request/reply correlation, EOF and the close handshake, and the
// throttle state used for connection-wide backpressure.
package sshchan

import (
	"github.com/websoft9/sshcore/internal/packet"
	"github.com/websoft9/sshcore/internal/wire"
)

// CloseFlags is the bitmap described in spec.md §3.
type CloseFlags uint8

const (
	SentEOF CloseFlags = 1 << iota
	SentClose
	RcvdEOF
	RcvdClose
)

// ThrottleState is the three-state machine of spec.md §4.4.
type ThrottleState int

const (
	Unthrottled ThrottleState = iota
	Throttled
	Unthrottling
)

// Window-size constants (spec.md §3).
const (
	DefaultWin = 0x20000
	BigWin     = 0x40000000
)

// Client is the polymorphic consumer spec.md §3 calls "Channel": whatever
// sinks received data and reports channel-level events. The main channel
// (internal/mainchan) and any direct/forwarded-tcpip proxy both implement it.
type Client interface {
	// Send delivers received data (stderr selects CHANNEL_EXTENDED_DATA of
	// type STDERR) and returns the new size of whatever outgoing sink the
	// client buffers that data in, driving the window-growth decision of
	// spec.md §4.4.
	Send(stderr bool, data []byte) (bufsize int)
	// SendEOF is called when the peer has signalled EOF or CLOSE.
	SendEOF()
	// OpenConfirmation is called once, when an outbound channel's
	// CHANNEL_OPEN_CONFIRMATION arrives.
	OpenConfirmation()
	// OpenFailed is called once, when an outbound channel's
	// CHANNEL_OPEN_FAILURE arrives, with the human-readable reason.
	OpenFailed(msg string)
	// RcvdExitStatus reports a parsed "exit-status" request.
	RcvdExitStatus(code uint32)
	// RcvdExitSignal reports the standard-form "exit-signal" request.
	RcvdExitSignal(name string, coreDumped bool, errMsg string)
	// RcvdExitSignalNumeric reports the nonstandard numeric-form
	// "exit-signal" request (pre-3.4p1 OpenSSH, spec.md §9).
	RcvdExitSignalNumeric(signum uint32, coreDumped bool, errMsg string)
	// WantClose lets the client request channel close even though one or
	// both EOF directions are incomplete (e.g. the local PTY died).
	WantClose(sentEOF, rcvdEOF bool) bool
	// SetInputWanted toggles whether the client should keep reading fresh
	// input, driven by checkThrottle (spec.md §4.4 Throttling).
	SetInputWanted(wanted bool)
	// LogCloseMsg returns a message to surface to the user on close, or "".
	LogCloseMsg() string
	// Free releases any resources the client holds. Called exactly once,
	// when the channel is destroyed.
	Free()
}

// Owner is the narrow slice of Connection a Channel needs: sending packets,
// logging, configuration, id bookkeeping, and connection-wide throttle/
// termination hooks. Kept as an interface so sshchan never imports the
// connection package (spec.md §9: no global mutable state; explicit,
// narrow context objects instead).
type Owner interface {
	// Send pushes pkt onto the outbound queue and schedules the flush
	// callback (spec.md §4.1 Push semantics).
	Send(pkt *packet.PktOut)
	// NewPktOut builds a fresh outbound packet through the BPP hook.
	NewPktOut(t packet.MsgType) *packet.PktOut
	// OurMaxPkt is OUR_MAXPKT (spec.md §3): the upper bound this side
	// advertises for incoming packet size.
	OurMaxPkt() uint32
	// SimpleMode reports whether "simple" mode (spec.md GLOSSARY) is active.
	SimpleMode() bool
	// ThrottleAllChannels adjusts the connection-wide throttle refcount by
	// delta (spec.md §4.4 DATA/EXTENDED_DATA window management).
	ThrottleAllChannels(delta int)
	// RemoveChannel drops the channel from the connection's channel set and
	// schedules the deferred termination check (spec.md §4.4 check_close).
	RemoveChannel(localID uint32)
	// Logf logs a formatted diagnostic message at the given level
	// ("debug", "info", "warn").
	Logf(level, format string, args ...any)
}

// Channel is the per-channel record of spec.md §3.
type Channel struct {
	LocalID  uint32
	RemoteID uint32
	TypeTag  string

	HalfOpen bool
	Closes   CloseFlags

	PendingEOF bool

	ThrottlingConn     bool
	ThrottledByBacklog bool

	Outgoing Bufchain

	RemoteWindow int64
	RemoteMaxPkt uint32

	LocalWindow int32
	LocalMaxWin int32

	// RemoteLocalWindow is the value the peer last saw for our window
	// (spec.md §3): debited alongside LocalWindow on DATA/EXTENDED_DATA,
	// and used to decide when to grow LocalMaxWin adaptively.
	RemoteLocalWindow int32

	Requests RequestFIFO
	Throttle ThrottleState

	// InitialFixedWindowSize, when nonzero, puts the channel in "initial
	// fixed window" mode: set_window is a no-op until the client clears it
	// (spec.md §4.4 set_window precondition).
	InitialFixedWindowSize uint32

	// PeerIgnoresMaxPkt is a server-bug flag (spec.md §4.4 set_window):
	// when set, window growth is clamped to OUR_MAXPKT.
	PeerIgnoresMaxPkt bool

	// KeepRequestFIFOOnClose works around a known peer bug (spec.md §4.4
	// CLOSE): when true, CLOSE does not drain the outstanding-request FIFO.
	KeepRequestFIFOOnClose bool

	// Sharectx, when non-nil, means this channel is a connection-sharing
	// downstream bypass: raw packets are forwarded to it verbatim and
	// Client is never consulted (spec.md §3 invariant: exactly one of
	// Sharectx/Client is set).
	Sharectx any
	client   Client

	owner Owner
}

// New constructs a Channel bound to owner, with Client set (the common case:
// not a sharing-context channel).
func New(owner Owner, client Client) *Channel {
	return &Channel{owner: owner, client: client, Throttle: Unthrottled}
}

// SetClient assigns the Client after construction (used when the client
// needs a reference back to the Channel before it can be built, e.g. the
// main channel).
func (c *Channel) SetClient(client Client) { c.client = client }

// ChanOpenInit builds the CHANNEL_OPEN packet for an outbound channel, per
// spec.md §4.4 "Open (outbound)". The caller must have already set LocalID.
// ChanOpenInit marks the channel half-open and, if LocalWindow is still zero,
// sets LocalWindow and LocalMaxWin to DefaultWin (BigWin in simple mode);
// RemoteLocalWindow starts at the announced LocalWindow. The caller appends
// type-specific fields and pushes the returned packet.
func (c *Channel) ChanOpenInit(chanType string) *packet.PktOut {
	c.HalfOpen = true
	c.TypeTag = chanType
	if c.LocalWindow == 0 {
		if c.owner.SimpleMode() {
			c.LocalWindow = BigWin
			c.LocalMaxWin = BigWin
		} else {
			c.LocalWindow = DefaultWin
			c.LocalMaxWin = DefaultWin
		}
	}
	c.RemoteLocalWindow = c.LocalWindow
	pkt := c.owner.NewPktOut(wire.MsgChannelOpen)
	pkt.WriteStringText(chanType)
	pkt.WriteUint32(c.LocalID)
	pkt.WriteUint32(uint32(c.LocalWindow))
	pkt.WriteUint32(c.owner.OurMaxPkt())
	return pkt
}

// HandleOpenConfirmation implements spec.md §4.4 "OPEN_CONFIRMATION".
func (c *Channel) HandleOpenConfirmation(remoteID uint32, remoteWindow, remoteMaxPkt uint32) {
	if !c.HalfOpen {
		panic("sshchan: OPEN_CONFIRMATION on a channel that is not half-open")
	}
	c.RemoteID = remoteID
	c.HalfOpen = false
	c.RemoteWindow = int64(remoteWindow)
	c.RemoteMaxPkt = remoteMaxPkt
	c.client.OpenConfirmation()
	c.checkClose()
	if c.PendingEOF {
		c.tryEOF()
	}
}

// HandleOpenFailure implements spec.md §4.4 "OPEN_FAILURE". The caller
// removes the channel from the owning set after this returns.
func (c *Channel) HandleOpenFailure(reasonCode uint32, msg string) {
	if !c.HalfOpen {
		panic("sshchan: OPEN_FAILURE on a channel that is not half-open")
	}
	c.client.OpenFailed(msg)
	c.client.Free()
	c.owner.RemoveChannel(c.LocalID)
}

// HandleData implements spec.md §4.4 "DATA / EXTENDED_DATA".
func (c *Channel) HandleData(extType uint32, data []byte) {
	isStderr := extType == wire.ExtendedDataStderr

	c.LocalWindow -= int32(len(data))
	c.RemoteLocalWindow -= int32(len(data))

	if extType != 0 && !isStderr {
		// Ignore extended data whose type is neither 0 nor STDERR: debit the
		// window for the full received length above, but discard the
		// payload (spec.md §9 open question — a known deviation, preserved
		// deliberately).
		data = nil
	}

	bufsize := c.client.Send(isStderr, data)
	c.manageWindow(bufsize)
}

// manageWindow implements the window-management algorithm of spec.md §4.4
// DATA/EXTENDED_DATA, including the adaptive enlargement for high-latency
// links and the connection-wide throttle trigger.
func (c *Channel) manageWindow(bufsize int) {
	if c.RemoteLocalWindow <= 0 && c.Throttle == Unthrottled && c.LocalMaxWin < BigWin {
		c.LocalMaxWin += DefaultWin
		if c.LocalMaxWin > BigWin {
			c.LocalMaxWin = BigWin
		}
		c.owner.Logf("debug", "channel %d: adaptive window growth to %d", c.LocalID, c.LocalMaxWin)
	}

	if int32(bufsize) < c.LocalMaxWin {
		c.setWindow(c.LocalMaxWin - int32(bufsize))
	}

	overLimit := int32(bufsize) > c.LocalMaxWin || (c.owner.SimpleMode() && bufsize > 0)
	if overLimit && !c.ThrottlingConn {
		c.ThrottlingConn = true
		c.owner.ThrottleAllChannels(1)
		c.owner.Logf("warn", "channel %d: throttling connection, bufsize=%d maxwin=%d", c.LocalID, bufsize, c.LocalMaxWin)
	}
}

// setWindow implements spec.md §4.4 "set_window(newwin)".
func (c *Channel) setWindow(newwin int32) {
	if c.Closes&(RcvdEOF|SentClose) != 0 {
		return
	}
	if c.InitialFixedWindowSize != 0 {
		return
	}
	if c.PeerIgnoresMaxPkt && newwin > int32(c.owner.OurMaxPkt()) {
		newwin = int32(c.owner.OurMaxPkt())
	}

	// "Significant increase" rule: avoid per-byte WINDOW_ADJUST chatter.
	if newwin/2 >= c.LocalWindow {
		// remote_local_window only tracks what the peer has actually been
		// told, so it must not jump to newwin until the peer has seen it.
		if newwin == c.LocalMaxWin {
			// Opening the window wide: ask the peer to ack so we learn when
			// it has actually seen the enlargement, via the winadj@putty
			// request/reply round trip.
			c.sendWinAdjAck(newwin - c.LocalWindow)
			if c.Throttle != Unthrottled {
				c.Throttle = Unthrottling
			}
		} else {
			// Not opening the window all the way: throughput is bottlenecked
			// on something other than window size, so there's no need to
			// wait for an ack — pretend the peer has already seen it.
			c.RemoteLocalWindow = newwin
			c.Throttle = Throttled
		}

		pkt := c.owner.NewPktOut(wire.MsgChannelWindowAdjust)
		pkt.WriteUint32(c.RemoteID)
		pkt.WriteUint32(uint32(newwin - c.LocalWindow))
		c.owner.Send(pkt)
		c.LocalWindow = newwin
	}
}

// sendWinAdjAck sends the winadj@putty.projects.tartarus.org channel
// request used to learn when the peer has actually seen a full window
// enlargement (spec.md §4.4, §6, §9: any reply — success or failure — is an
// ack). delta is the amount the peer's view of remote_local_window advances
// by once it acks, matching what was just announced in the WINDOW_ADJUST.
func (c *Channel) sendWinAdjAck(delta int32) {
	pkt := c.owner.NewPktOut(wire.MsgChannelRequest)
	pkt.WriteUint32(c.RemoteID)
	pkt.WriteStringText(wire.ReqWinAdj)
	pkt.WriteBool(true)
	c.Requests.Push(func(reply *packet.PktIn) {
		c.RemoteLocalWindow += delta
		// Any reply (SUCCESS or FAILURE), or even none (abandoned on
		// teardown), transitions us out of Unthrottling.
		if c.Throttle == Unthrottling {
			c.Throttle = Unthrottled
		}
	})
	c.owner.Send(pkt)
}

// HandleWindowAdjust implements spec.md §4.4 "WINDOW_ADJUST".
func (c *Channel) HandleWindowAdjust(delta uint32) {
	if c.Closes&SentEOF != 0 {
		return
	}
	c.RemoteWindow += int64(delta)
	c.trySendAndUnthrottle()
}

func (c *Channel) trySendAndUnthrottle() {
	c.trySend()
}

// HandleRequest implements spec.md §4.4 "REQUEST" for exit-status and
// exit-signal; reqType/wantReply/body come from the CHANNEL_REQUEST packet
// already stripped of the local-id field. reply is called with true/false
// to send SUCCESS/FAILURE iff wantReply ends up true.
func (c *Channel) HandleRequest(reqType string, wantReply bool, body *packet.PktIn, reply func(ok bool)) {
	if c.Closes&SentClose != 0 {
		wantReply = false
	}

	handled := true
	switch reqType {
	case wire.ReqExitStatus:
		code := body.ReadUint32()
		c.client.RcvdExitStatus(code)
	case wire.ReqExitSignal:
		// Standard wire form: <string signame><bool core><string errmsg><string lang>.
		save := *body
		name := body.ReadString()
		core := body.ReadBool()
		msg := body.ReadString()
		if body.Bad() {
			// Rewind and retry as the nonstandard numeric form (spec.md §9,
			// pre-3.4p1 OpenSSH): <uint32 signum><bool core><string errmsg><string lang>.
			*body = save
			signum := body.ReadUint32()
			core2 := body.ReadBool()
			msg2 := body.ReadString()
			c.client.RcvdExitSignalNumeric(signum, core2, string(msg2))
		} else {
			c.client.RcvdExitSignal(string(name), core, string(msg))
		}
	default:
		handled = false
	}

	if wantReply {
		reply(handled)
	}
}

// HandleSuccessFailure implements spec.md §4.4 "SUCCESS / FAILURE" for
// per-channel requests.
func (c *Channel) HandleSuccessFailure(replyPkt *packet.PktIn) error {
	h, ok := c.Requests.Pop()
	if !ok {
		return ErrRequestFIFOEmpty
	}
	h(replyPkt)
	c.checkClose()
	return nil
}

// HandleEOF implements spec.md §4.4 "EOF".
func (c *Channel) HandleEOF() {
	if c.Closes&RcvdEOF != 0 {
		return
	}
	c.Closes |= RcvdEOF
	c.client.SendEOF()
	c.checkClose()
}

// HandleClose implements spec.md §4.4 "CLOSE".
func (c *Channel) HandleClose() {
	if c.Closes&RcvdEOF == 0 {
		c.Closes |= RcvdEOF
		c.client.SendEOF()
	}

	if !c.KeepRequestFIFOOnClose {
		c.Requests.DrainAbandoned()
	}

	c.Outgoing.Clear()

	if c.Closes&SentEOF == 0 {
		c.PendingEOF = true
		c.tryEOF()
	}

	c.Closes |= RcvdClose
	c.checkClose()
}

// checkClose implements spec.md §4.4 "check_close()".
func (c *Channel) checkClose() {
	if c.HalfOpen {
		return
	}
	bothEOF := c.Closes&SentEOF != 0 && c.Closes&RcvdEOF != 0
	wantsClose := c.client.WantClose(c.Closes&SentEOF != 0, c.Closes&RcvdEOF != 0)
	if (bothEOF || wantsClose) && c.Requests.Empty() && c.Closes&SentClose == 0 {
		pkt := c.owner.NewPktOut(wire.MsgChannelClose)
		pkt.WriteUint32(c.RemoteID)
		c.owner.Send(pkt)
		c.Closes |= SentEOF | SentClose
	}

	if c.Closes&SentClose != 0 && c.Closes&RcvdClose != 0 {
		c.destroy()
	}
}

// destroy implements the destruction half of spec.md §3's channel lifecycle:
// log via the client, free it, and remove the channel from the owning set
// (which itself schedules the deferred termination check per spec.md §4.4).
func (c *Channel) destroy() {
	if msg := c.client.LogCloseMsg(); msg != "" {
		c.owner.Logf("info", "channel %d closed: %s", c.LocalID, msg)
	}
	c.client.Free()
	c.owner.RemoveChannel(c.LocalID)
}

// RequestEOF signals that the client has no more outgoing data: the channel
// sends CHANNEL_EOF once whatever is already buffered has drained
// (spec.md §4.4 "try_eof()"). Used by a Client when its local data source
// (a closed PTY, a proxied socket) has hit EOF.
func (c *Channel) RequestEOF() {
	c.PendingEOF = true
	c.tryEOF()
}

// tryEOF implements spec.md §4.4 "try_eof()". Precondition: PendingEOF.
func (c *Channel) tryEOF() {
	if !c.PendingEOF {
		return
	}
	if c.HalfOpen || !c.Outgoing.Empty() {
		return
	}
	c.PendingEOF = false
	pkt := c.owner.NewPktOut(wire.MsgChannelEOF)
	pkt.WriteUint32(c.RemoteID)
	c.owner.Send(pkt)
	c.Closes |= SentEOF
	c.checkClose()
}

// trySend implements spec.md §4.4 "try_send()".
func (c *Channel) trySend() {
	for c.RemoteWindow > 0 && !c.Outgoing.Empty() {
		chunk := c.Outgoing.Size()
		if int64(chunk) > c.RemoteWindow {
			chunk = int(c.RemoteWindow)
		}
		if uint32(chunk) > c.RemoteMaxPkt {
			chunk = int(c.RemoteMaxPkt)
		}
		data := c.Outgoing.Consume(chunk)
		if len(data) == 0 {
			break
		}
		pkt := c.owner.NewPktOut(wire.MsgChannelData)
		pkt.WriteUint32(c.RemoteID)
		pkt.WriteString(data)
		c.owner.Send(pkt)
		c.RemoteWindow -= int64(len(data))
	}
	if c.Outgoing.Empty() && c.PendingEOF {
		c.tryEOF()
	}
}

// QueueOutgoing appends data to the channel's outgoing Bufchain and attempts
// to flush it immediately.
func (c *Channel) QueueOutgoing(data []byte) {
	c.Outgoing.Append(data)
	c.trySend()
}

// CheckThrottle implements spec.md §4.4 "check_throttle()".
func (c *Channel) CheckThrottle(allChannelsThrottled bool) {
	wanted := !c.ThrottledByBacklog && !allChannelsThrottled && !c.PendingEOF && c.Closes&SentEOF == 0
	c.client.SetInputWanted(wanted)
}

// Unthrottle implements spec.md §4.4 "unthrottle(bufsize)".
func (c *Channel) Unthrottle(bufsize int) {
	buflimit := int32(0)
	if !c.owner.SimpleMode() {
		buflimit = c.LocalMaxWin
	}
	if int32(bufsize) < buflimit {
		c.setWindow(buflimit - int32(bufsize))
	}
	if c.ThrottlingConn && int32(bufsize) < buflimit {
		c.ThrottlingConn = false
		c.owner.ThrottleAllChannels(-1)
	}
}
