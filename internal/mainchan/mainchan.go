// Package mainchan implements the MAINCHAN sub-state-machine of spec.md
// §4.5: once the primary channel's CHANNEL_OPEN_CONFIRMATION arrives, it
// drives the "make this look like a shell session" request chain (x11-req,
// auth-agent-req, pty-req, env, then subsystem/exec/shell with a fallback
// command), and records exit-status/exit-signal as the exit code that
// Sequencer.ExitCode returns. Grounded on the teacher's internal/terminal session-setup
// ordering, replacing its Docker-exec/PTY specifics with the RFC 4254
// request chain this core actually sends.
package mainchan

import (
	"fmt"

	"github.com/websoft9/sshcore/internal/connection"
	"github.com/websoft9/sshcore/internal/packet"
	"github.com/websoft9/sshcore/internal/sshchan"
	"github.com/websoft9/sshcore/internal/wire"
)

// EnvVar is one configured "env" request, kept as an ordered slice (not a
// map) so the request chain's order is deterministic and reproducible.
type EnvVar struct{ Name, Value string }

// Config carries the per-session settings spec.md §4.5 reads to build the
// post-open request chain.
type Config struct {
	// NCHost/NCPort select DIRECT_TCPIP mode when NCHost is non-empty:
	// stdio is tunnelled through a direct-tcpip channel instead of a shell.
	NCHost string
	NCPort int

	NoPTY         bool
	Term          string
	Width, Height int

	Env []EnvVar

	X11Forwarding       bool
	X11DisplayReachable bool

	AgentForwarding bool

	Subsystem       string
	Command         string
	FallbackCommand string
}

// Bridge is the narrow interface the main channel drives once it is ready
// for interactive traffic (spec.md SPEC_FULL §4.9's PTY bridge):
// internal/termbridge implements this against a real PTY.
type Bridge interface {
	// Attach is called once mainchan_ready becomes true.
	Attach(ch *sshchan.Channel)
	// Write delivers channel data (or stderr extended-data) to the bridge,
	// returning the new size of whatever it buffers (drives window growth).
	Write(stderr bool, data []byte) int
	// Close is called once, on channel destruction.
	Close()
}

type resize struct{ width, height int }

type step struct {
	name  string
	build func(pkt *packet.PktOut)
}

// Sequencer is the sshchan.Client implementation driving the main channel.
type Sequencer struct {
	ch   *sshchan.Channel
	conn *connection.Connection
	cfg  Config
	bridge Bridge

	directTCPIP bool

	steps     []step
	stepIndex int

	ready         bool
	eofPending    bool
	resizePending *resize

	exitCode   *uint32
	exitSignal string
}

// New constructs the main channel and sends its CHANNEL_OPEN (SESSION or
// direct-tcpip per cfg.NCHost), per spec.md §4.5.
func New(conn *connection.Connection, cfg Config, bridge Bridge) *Sequencer {
	s := &Sequencer{conn: conn, cfg: cfg, bridge: bridge, directTCPIP: cfg.NCHost != ""}

	ch := conn.NewOutboundChannel(nil)
	ch.SetClient(s)
	s.ch = ch
	conn.MainChan = ch

	var pkt *packet.PktOut
	if s.directTCPIP {
		pkt = ch.ChanOpenInit(wire.ChanTypeDirectTCPIP)
		pkt.WriteStringText(cfg.NCHost)
		pkt.WriteUint32(uint32(cfg.NCPort))
		pkt.WriteStringText("127.0.0.1")
		pkt.WriteUint32(0)
	} else {
		pkt = ch.ChanOpenInit(wire.ChanTypeSession)
	}
	conn.Send(pkt)
	return s
}

// Channel returns the underlying channel (e.g. for QueueOutgoing from a
// Bridge implementation).
func (s *Sequencer) Channel() *sshchan.Channel { return s.ch }

// Resize sends a "window-change" request once ready, or records the size to
// send once the primary command is accepted (spec.md §4.5 "any terminal
// size change that occurred between pty-req and readiness").
func (s *Sequencer) Resize(width, height int) {
	if s.directTCPIP || s.cfg.NoPTY {
		return
	}
	if !s.ready {
		s.resizePending = &resize{width, height}
		return
	}
	s.sendResize(resize{width, height})
}

// NotifyLocalEOF signals that the bridge's local data source has hit EOF,
// deferring the request if the channel isn't ready yet (spec.md §4.5
// "deliver any deferred EOF").
func (s *Sequencer) NotifyLocalEOF() {
	if !s.ready {
		s.eofPending = true
		return
	}
	s.ch.RequestEOF()
}

// ExitCode reports the process exit code once known: direct from
// "exit-status", or 128+signum from "exit-signal" (spec.md §4.5).
func (s *Sequencer) ExitCode() (uint32, bool) {
	if s.exitCode == nil {
		return 0, false
	}
	return *s.exitCode, true
}

// --- sshchan.Client ------------------------------------------------------

// OpenConfirmation implements sshchan.Client: kicks off the request chain.
func (s *Sequencer) OpenConfirmation() {
	if s.directTCPIP {
		s.markReady()
		return
	}
	s.steps = s.buildSetupSteps()
	s.advance()
}

func (s *Sequencer) buildSetupSteps() []step {
	var steps []step
	if s.cfg.X11Forwarding && s.cfg.X11DisplayReachable {
		steps = append(steps, step{
			name: wire.ReqX11,
			build: func(pkt *packet.PktOut) {
				pkt.WriteBool(false) // single connection
				pkt.WriteStringText("")
				pkt.WriteStringText("")
				pkt.WriteUint32(0)
			},
		})
	}
	if s.cfg.AgentForwarding {
		steps = append(steps, step{name: wire.ReqAuthAgent})
	}
	if !s.cfg.NoPTY {
		term := s.cfg.Term
		if term == "" {
			term = "xterm-256color"
		}
		width, height := s.cfg.Width, s.cfg.Height
		steps = append(steps, step{
			name: wire.ReqPTY,
			build: func(pkt *packet.PktOut) {
				pkt.WriteStringText(term)
				pkt.WriteUint32(uint32(width))
				pkt.WriteUint32(uint32(height))
				pkt.WriteUint32(0)
				pkt.WriteUint32(0)
				pkt.WriteStringText("")
			},
		})
	}
	for _, ev := range s.cfg.Env {
		ev := ev
		steps = append(steps, step{
			name: wire.ReqEnv,
			build: func(pkt *packet.PktOut) {
				pkt.WriteStringText(ev.Name)
				pkt.WriteStringText(ev.Value)
			},
		})
	}
	return steps
}

// advance sends the next setup step, or the primary command once the setup
// chain is exhausted.
func (s *Sequencer) advance() {
	if s.stepIndex < len(s.steps) {
		st := s.steps[s.stepIndex]
		s.sendRequest(st.name, true, st.build, func(ok bool) {
			s.stepIndex++
			s.advance()
		})
		return
	}
	s.sendPrimaryCommand()
}

func (s *Sequencer) sendPrimaryCommand() {
	name, build := s.commandRequest(s.cfg.Subsystem, s.cfg.Command)
	s.sendRequest(name, true, build, func(ok bool) {
		if ok {
			s.markReady()
			return
		}
		if s.cfg.FallbackCommand == "" {
			s.conn.Disconnect("mainchan: primary command request refused, no fallback configured")
			return
		}
		s.sendFallbackCommand()
	})
}

func (s *Sequencer) sendFallbackCommand() {
	build := func(pkt *packet.PktOut) { pkt.WriteStringText(s.cfg.FallbackCommand) }
	s.sendRequest(wire.ReqExec, true, build, func(ok bool) {
		if ok {
			s.markReady()
			return
		}
		s.conn.Disconnect("mainchan: fallback command request refused")
	})
}

// commandRequest implements spec.md §4.5 step 5's priority order.
func (s *Sequencer) commandRequest(subsystem, command string) (string, func(pkt *packet.PktOut)) {
	switch {
	case subsystem != "":
		return wire.ReqSubsystem, func(pkt *packet.PktOut) { pkt.WriteStringText(subsystem) }
	case command != "":
		return wire.ReqExec, func(pkt *packet.PktOut) { pkt.WriteStringText(command) }
	default:
		return wire.ReqShell, func(pkt *packet.PktOut) {}
	}
}

func (s *Sequencer) sendResize(r resize) {
	build := func(pkt *packet.PktOut) {
		pkt.WriteUint32(uint32(r.width))
		pkt.WriteUint32(uint32(r.height))
		pkt.WriteUint32(0)
		pkt.WriteUint32(0)
	}
	s.sendRequest(wire.ReqWinChange, false, build, nil)
}

// sendRequest issues one outbound CHANNEL_REQUEST and, when wantReply,
// correlates the answer through the channel's outstanding-request FIFO —
// the same mechanism internal/sshchan.Channel uses for its own
// winadj@putty.projects.tartarus.org acks (spec.md §4.4).
func (s *Sequencer) sendRequest(name string, wantReply bool, build func(*packet.PktOut), onReply func(ok bool)) {
	pkt := s.conn.NewPktOut(wire.MsgChannelRequest)
	pkt.WriteUint32(s.ch.RemoteID)
	pkt.WriteStringText(name)
	pkt.WriteBool(wantReply)
	if build != nil {
		build(pkt)
	}
	if wantReply {
		s.ch.Requests.Push(func(reply *packet.PktIn) {
			if reply == nil || onReply == nil {
				return // abandoned on teardown
			}
			onReply(reply.Type == wire.MsgChannelSuccess)
		})
	}
	s.conn.Send(pkt)
}

func (s *Sequencer) markReady() {
	s.ready = true
	s.conn.MainchanReady = true
	s.conn.WantUserInput = true
	if s.bridge != nil {
		s.bridge.Attach(s.ch)
	}
	if s.eofPending {
		s.eofPending = false
		s.ch.RequestEOF()
	}
	if s.resizePending != nil {
		r := *s.resizePending
		s.resizePending = nil
		s.sendResize(r)
	}
}

// Send implements sshchan.Client: deliver received data to the bridge.
func (s *Sequencer) Send(stderr bool, data []byte) int {
	if s.bridge != nil {
		return s.bridge.Write(stderr, data)
	}
	return 0
}

// SendEOF implements sshchan.Client: the bridge observes channel state via
// Write/Close; no separate signal is needed here.
func (s *Sequencer) SendEOF() {}

// OpenFailed implements sshchan.Client.
func (s *Sequencer) OpenFailed(msg string) {
	s.conn.Logf("error", "mainchan: open failed: %s", msg)
}

// RcvdExitStatus implements sshchan.Client.
func (s *Sequencer) RcvdExitStatus(code uint32) {
	c := code
	s.exitCode = &c
}

// RcvdExitSignal implements sshchan.Client (spec.md §4.5 exit-signal
// handling): reports 128+signum, or 128 for an unmapped name.
func (s *Sequencer) RcvdExitSignal(name string, coreDumped bool, errMsg string) {
	s.exitSignal = name
	code := uint32(128)
	if signum, ok := lookupSignal(name); ok {
		code += signum
	}
	s.exitCode = &code
}

// RcvdExitSignalNumeric implements sshchan.Client (the pre-3.4p1 OpenSSH
// numeric form, spec.md §9).
func (s *Sequencer) RcvdExitSignalNumeric(signum uint32, coreDumped bool, errMsg string) {
	code := 128 + signum
	s.exitCode = &code
}

// WantClose implements sshchan.Client: the main channel never forces close
// ahead of the normal EOF/CLOSE handshake.
func (s *Sequencer) WantClose(sentEOF, rcvdEOF bool) bool { return false }

// SetInputWanted implements sshchan.Client.
func (s *Sequencer) SetInputWanted(wanted bool) {}

// LogCloseMsg implements sshchan.Client.
func (s *Sequencer) LogCloseMsg() string {
	if s.exitSignal != "" {
		return fmt.Sprintf("remote process terminated by signal %s", s.exitSignal)
	}
	return ""
}

// Free implements sshchan.Client.
func (s *Sequencer) Free() {
	if s.bridge != nil {
		s.bridge.Close()
	}
}
