package connection

import (
	"fmt"
	"io"

	"github.com/websoft9/sshcore/internal/bpp"
	"github.com/websoft9/sshcore/internal/packet"
	"github.com/websoft9/sshcore/internal/sshchan"
	"github.com/websoft9/sshcore/internal/wire"
)

// FilterQueue implements spec.md §4.3 "filter_queue(state)": drains and
// dispatches every packet currently on the BPP's in-queue, returning true
// only once the connection has been torn down (the caller's loop then
// exits). A protocol error on any one packet queues SSH_MSG_DISCONNECT and
// tears the whole connection down, per spec.md §7.
func (c *Connection) FilterQueue() bool {
	in := c.bpp.InQueue()
	for {
		pkt := in.Pop()
		if pkt == nil {
			break
		}
		if c.bpp.CheckUnimplemented(pkt) {
			continue
		}
		if err := c.dispatch(pkt); err != nil {
			c.log.Warn().Str("conn", c.ID).Err(err).Msg("connection: protocol error, disconnecting")
			c.bpp.QueueDisconnect(err.Error(), bpp.CategoryProtocolError)
			c.terminated = true
		}
		if c.terminated {
			break
		}
	}
	c.bpp.DrainFreed()
	return c.terminated
}

func (c *Connection) dispatch(pkt *packet.PktIn) error {
	switch pkt.Type {
	case wire.MsgDisconnect:
		return ErrPeerDisconnected
	case wire.MsgIgnore, wire.MsgDebug:
		return nil
	case wire.MsgGlobalRequest:
		return c.handleGlobalRequest(pkt)
	case wire.MsgRequestSuccess, wire.MsgRequestFailure:
		return c.handleGlobalReply(pkt)
	case wire.MsgChannelOpen:
		return c.handleChannelOpen(pkt)
	default:
		return c.handleChannelMessage(pkt)
	}
}

// handleGlobalRequest implements spec.md §4.3's GLOBAL_REQUEST case: this
// core accepts none, so every request is failed when a reply is wanted.
func (c *Connection) handleGlobalRequest(pkt *packet.PktIn) error {
	_ = pkt.ReadString() // request type, unused: nothing is accepted
	wantReply := pkt.ReadBool()
	if pkt.Bad() {
		return fmt.Errorf("%w: malformed GLOBAL_REQUEST", ErrProtocol)
	}
	if wantReply {
		c.Send(c.NewPktOut(wire.MsgRequestFailure))
	}
	return nil
}

// handleGlobalReply implements spec.md §4.3's REQUEST_SUCCESS/FAILURE case.
func (c *Connection) handleGlobalReply(pkt *packet.PktIn) error {
	h, ok := c.GlobalRequests.Pop()
	if !ok {
		return fmt.Errorf("%w: %v", ErrRequestFIFOEmpty, pkt.Type)
	}
	h(pkt)
	return nil
}

// handleChannelOpen implements spec.md §4.3's CHANNEL_OPEN dispatch.
func (c *Connection) handleChannelOpen(pkt *packet.PktIn) error {
	chanType := string(pkt.ReadString())
	remoteID := pkt.ReadUint32()
	remoteWindow := pkt.ReadUint32()
	remoteMaxPkt := pkt.ReadUint32()
	if pkt.Bad() {
		return fmt.Errorf("%w: malformed CHANNEL_OPEN", ErrProtocol)
	}

	var stream io.ReadWriteCloser
	var reasonCode uint32
	var failMsg string
	if c.cfg.OpenLimiter != nil && !c.cfg.OpenLimiter.Allow() {
		reasonCode, failMsg = wire.ReasonResourceShortage, "channel open rate limit exceeded"
	} else {
		stream, reasonCode, failMsg = c.openChannelTarget(chanType, pkt)
	}
	if stream == nil {
		out := c.NewPktOut(wire.MsgChannelOpenFailure)
		out.WriteUint32(remoteID)
		out.WriteUint32(reasonCode)
		out.WriteStringText(failMsg)
		out.WriteStringText("")
		c.Send(out)
		return nil
	}

	client := newProxyClient(stream, c)
	ch := sshchan.New(c, client)
	ch.LocalID = c.allocateLocalID()
	ch.HalfOpen = false
	ch.TypeTag = chanType
	ch.RemoteID = remoteID
	ch.RemoteWindow = int64(remoteWindow)
	ch.RemoteMaxPkt = remoteMaxPkt
	ch.LocalWindow = c.initialWindow()
	ch.LocalMaxWin = ch.LocalWindow
	ch.RemoteLocalWindow = ch.LocalWindow
	client.bind(ch)
	c.channels[ch.LocalID] = ch

	out := c.NewPktOut(wire.MsgChannelOpenConfirmation)
	out.WriteUint32(remoteID)
	out.WriteUint32(ch.LocalID)
	out.WriteUint32(uint32(ch.LocalWindow))
	out.WriteUint32(c.cfg.OurMaxPkt)
	c.Send(out)

	client.start()
	return nil
}

// openChannelTarget dispatches a CHANNEL_OPEN by type to the narrow
// forwarding hooks of SPEC_FULL §4.7/§4.8. It returns (nil, reasonCode, msg)
// on failure, matching spec.md §4.3's OPEN_FAILURE table.
func (c *Connection) openChannelTarget(chanType string, pkt *packet.PktIn) (stream io.ReadWriteCloser, reasonCode uint32, msg string) {
	switch chanType {
	case wire.ChanTypeX11:
		originAddr := string(pkt.ReadString())
		originPort := pkt.ReadUint32()
		if pkt.Bad() {
			return nil, wire.ReasonConnectFailed, "malformed x11 channel open"
		}
		if c.X11 == nil {
			return nil, wire.ReasonAdminProhibited, "X11 forwarding not available"
		}
		s, err := c.X11.OpenX11(originAddr, int(originPort))
		if err != nil {
			return nil, wire.ReasonConnectFailed, err.Error()
		}
		return s, 0, ""

	case wire.ChanTypeAuthAgent:
		if c.Agent == nil {
			return nil, wire.ReasonAdminProhibited, "agent forwarding not available"
		}
		s, err := c.Agent.OpenAgent()
		if err != nil {
			return nil, wire.ReasonConnectFailed, err.Error()
		}
		return s, 0, ""

	case wire.ChanTypeForwardedTCPIP:
		shost := string(pkt.ReadString())
		sport := pkt.ReadUint32()
		_ = pkt.ReadString() // originator address, unused
		_ = pkt.ReadUint32() // originator port, unused
		if pkt.Bad() {
			return nil, wire.ReasonConnectFailed, "malformed forwarded-tcpip channel open"
		}
		if c.Rportfwds == nil {
			return nil, wire.ReasonAdminProhibited, "remote forwarding not available"
		}
		target, ok := c.Rportfwds.Lookup(shost, int(sport))
		if !ok {
			return nil, wire.ReasonConnectFailed, "no forwarding registered for this address"
		}
		s, err := dialForward(target)
		if err != nil {
			return nil, wire.ReasonConnectFailed, err.Error()
		}
		return s, 0, ""

	default:
		return nil, wire.ReasonUnknownChannelType, "unknown channel type"
	}
}

// handleChannelMessage implements spec.md §4.3's per-channel dispatch: read
// the local id, look it up, validate half_open against the message type,
// then dispatch by type (detailed in §4.4).
func (c *Connection) handleChannelMessage(pkt *packet.PktIn) error {
	localID := pkt.ReadUint32()
	if pkt.Bad() {
		return fmt.Errorf("%w: malformed channel message, missing local id", ErrProtocol)
	}
	ch, ok := c.channels[localID]
	if !ok {
		return fmt.Errorf("%w: unknown channel %d", ErrProtocol, localID)
	}

	isOpenReply := pkt.Type == wire.MsgChannelOpenConfirmation || pkt.Type == wire.MsgChannelOpenFailure
	if ch.HalfOpen != isOpenReply {
		return fmt.Errorf("%w: message type %d invalid for channel %d's half_open state", ErrProtocol, pkt.Type, localID)
	}

	switch pkt.Type {
	case wire.MsgChannelOpenConfirmation:
		remoteID := pkt.ReadUint32()
		remoteWindow := pkt.ReadUint32()
		remoteMaxPkt := pkt.ReadUint32()
		if pkt.Bad() {
			return fmt.Errorf("%w: malformed OPEN_CONFIRMATION", ErrProtocol)
		}
		ch.HandleOpenConfirmation(remoteID, remoteWindow, remoteMaxPkt)

	case wire.MsgChannelOpenFailure:
		reasonCode := pkt.ReadUint32()
		desc := string(pkt.ReadString())
		if pkt.Bad() {
			return fmt.Errorf("%w: malformed OPEN_FAILURE", ErrProtocol)
		}
		ch.HandleOpenFailure(reasonCode, desc)

	case wire.MsgChannelData:
		data := pkt.ReadString()
		if pkt.Bad() {
			return fmt.Errorf("%w: malformed CHANNEL_DATA", ErrProtocol)
		}
		ch.HandleData(0, data)

	case wire.MsgChannelExtendedData:
		extType := pkt.ReadUint32()
		data := pkt.ReadString()
		if pkt.Bad() {
			return fmt.Errorf("%w: malformed CHANNEL_EXTENDED_DATA", ErrProtocol)
		}
		ch.HandleData(extType, data)

	case wire.MsgChannelWindowAdjust:
		delta := pkt.ReadUint32()
		if pkt.Bad() {
			return fmt.Errorf("%w: malformed CHANNEL_WINDOW_ADJUST", ErrProtocol)
		}
		ch.HandleWindowAdjust(delta)

	case wire.MsgChannelRequest:
		reqType := string(pkt.ReadString())
		wantReply := pkt.ReadBool()
		if pkt.Bad() {
			return fmt.Errorf("%w: malformed CHANNEL_REQUEST", ErrProtocol)
		}
		remoteID := ch.RemoteID
		ch.HandleRequest(reqType, wantReply, pkt, func(ok bool) {
			t := wire.MsgChannelFailure
			if ok {
				t = wire.MsgChannelSuccess
			}
			out := c.NewPktOut(t)
			out.WriteUint32(remoteID)
			c.Send(out)
		})

	case wire.MsgChannelEOF:
		ch.HandleEOF()

	case wire.MsgChannelClose:
		ch.HandleClose()

	case wire.MsgChannelSuccess, wire.MsgChannelFailure:
		if err := ch.HandleSuccessFailure(pkt); err != nil {
			return fmt.Errorf("%w: channel %d: %v", ErrProtocol, localID, err)
		}

	default:
		return fmt.Errorf("%w: unrecognized message type %d", ErrProtocol, pkt.Type)
	}
	return nil
}
