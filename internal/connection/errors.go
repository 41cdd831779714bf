package connection

import "errors"

// Sentinel errors (SPEC_FULL §7): ErrProtocol covers every "this packet
// violates the connection protocol" condition spec.md §4.3/§4.4 call out;
// ErrPeerDisconnected marks a received SSH_MSG_DISCONNECT; ErrRequestFIFOEmpty
// mirrors sshchan's but for the connection-wide global-request FIFO
// (spec.md §4.3 REQUEST_SUCCESS/FAILURE underflow).
var (
	ErrProtocol         = errors.New("connection: protocol error")
	ErrPeerDisconnected = errors.New("connection: peer disconnected")
	ErrRequestFIFOEmpty = errors.New("connection: global request FIFO underflow")
)
