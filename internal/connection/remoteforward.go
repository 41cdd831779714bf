package connection

import (
	"fmt"

	"github.com/websoft9/sshcore/internal/packet"
	"github.com/websoft9/sshcore/internal/wire"
)

// RequestRemoteForward sends our own "tcpip-forward" GLOBAL_REQUEST (spec.md
// §4.3's GlobalRequests FIFO, used here for an outbound request instead of
// an inbound CHANNEL_REQUEST reply), registering target in Rportfwds so a
// later CHANNEL_OPEN("forwarded-tcpip") for (shost, sport) has somewhere to
// dial. Matches the teacher's role in internal/tunnel: this side is the one
// behind NAT asking a portal to forward a port back to it (autossh -R),
// done natively instead of by shelling out.
func (c *Connection) RequestRemoteForward(shost string, sport int, target RemoteForwardTarget, done func(ok bool, boundPort uint32)) error {
	if c.Rportfwds == nil {
		return fmt.Errorf("connection: no remote-forward manager configured")
	}
	if err := c.Rportfwds.Add(shost, sport, target); err != nil {
		return err
	}

	out := c.NewPktOut(wire.MsgGlobalRequest)
	out.WriteStringText("tcpip-forward")
	out.WriteBool(true)
	out.WriteStringText(shost)
	out.WriteUint32(uint32(sport))

	c.GlobalRequests.Push(func(reply *packet.PktIn) {
		if reply == nil || reply.Type == wire.MsgRequestFailure {
			c.Rportfwds.Remove(shost, sport)
			if done != nil {
				done(false, 0)
			}
			return
		}
		bound := uint32(sport)
		if sport == 0 {
			bound = reply.ReadUint32()
		}
		if done != nil {
			done(true, bound)
		}
	})
	c.Send(out)
	return nil
}

// CancelRemoteForward sends "cancel-tcpip-forward" and drops the local
// registration regardless of the peer's reply (spec.md §4.3: not a
// reply-bearing request per the glossary, so there is nothing to FIFO).
func (c *Connection) CancelRemoteForward(shost string, sport int) {
	if c.Rportfwds != nil {
		c.Rportfwds.Remove(shost, sport)
	}
	out := c.NewPktOut(wire.MsgGlobalRequest)
	out.WriteStringText("cancel-tcpip-forward")
	out.WriteBool(false)
	out.WriteStringText(shost)
	out.WriteUint32(uint32(sport))
	c.Send(out)
}
