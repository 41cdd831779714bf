// Package wire holds the RFC 4254 wire constants spec.md §6 enumerates:
// message type bytes, channel-open failure reason codes, and the
// channel-request / global-request name strings the connection layer and
// channel state machine dispatch on.
package wire

import "github.com/websoft9/sshcore/internal/packet"

// Message type bytes (spec.md §6).
const (
	MsgDisconnect   packet.MsgType = 1
	MsgIgnore       packet.MsgType = 2
	MsgUnimplemented packet.MsgType = 3
	MsgDebug        packet.MsgType = 4

	MsgGlobalRequest          packet.MsgType = 80
	MsgRequestSuccess         packet.MsgType = 81
	MsgRequestFailure         packet.MsgType = 82
	MsgChannelOpen            packet.MsgType = 90
	MsgChannelOpenConfirmation packet.MsgType = 91
	MsgChannelOpenFailure     packet.MsgType = 92
	MsgChannelWindowAdjust    packet.MsgType = 93
	MsgChannelData            packet.MsgType = 94
	MsgChannelExtendedData    packet.MsgType = 95
	MsgChannelEOF             packet.MsgType = 96
	MsgChannelClose           packet.MsgType = 97
	MsgChannelRequest         packet.MsgType = 98
	MsgChannelSuccess         packet.MsgType = 99
	MsgChannelFailure         packet.MsgType = 100
)

// Channel-open failure reason codes (spec.md §6).
const (
	ReasonAdminProhibited   uint32 = 1
	ReasonConnectFailed     uint32 = 2
	ReasonUnknownChannelType uint32 = 3
	ReasonResourceShortage  uint32 = 4
)

// ReasonString renders a channel-open failure reason code the way
// spec.md §4.4's OPEN_FAILURE table requires.
func ReasonString(code uint32) string {
	switch code {
	case ReasonAdminProhibited:
		return "Administratively prohibited"
	case ReasonConnectFailed:
		return "Connect failed"
	case ReasonUnknownChannelType:
		return "Unknown channel type"
	case ReasonResourceShortage:
		return "Resource shortage"
	default:
		return unknownReasonString(code)
	}
}

func unknownReasonString(code uint32) string {
	return "unknown reason code " + itoa(code)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Extended-data type codes (spec.md §6).
const ExtendedDataStderr uint32 = 1

// STDERR identifies the extended-data type used for a channel's stderr
// stream.
const STDERR = ExtendedDataStderr

// Channel-request names (spec.md §6).
const (
	ReqPTY        = "pty-req"
	ReqX11        = "x11-req"
	ReqAuthAgent  = "auth-agent-req@openssh.com"
	ReqEnv        = "env"
	ReqShell      = "shell"
	ReqExec       = "exec"
	ReqSubsystem  = "subsystem"
	ReqBreak      = "break"
	ReqSignal     = "signal"
	ReqWinChange  = "window-change"
	ReqExitStatus = "exit-status"
	ReqExitSignal = "exit-signal"
	ReqWinAdj     = "winadj@putty.projects.tartarus.org"
	ReqSimple     = "simple@putty.projects.tartarus.org"
)

// Global-request names (spec.md §6).
const (
	GlobalTCPIPForward       = "tcpip-forward"
	GlobalCancelTCPIPForward = "cancel-tcpip-forward"
)

// Channel-open type strings (spec.md §4.3).
const (
	ChanTypeSession         = "session"
	ChanTypeX11             = "x11"
	ChanTypeForwardedTCPIP  = "forwarded-tcpip"
	ChanTypeDirectTCPIP     = "direct-tcpip"
	ChanTypeAuthAgent       = "auth-agent@openssh.com"
)
