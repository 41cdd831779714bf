package sshchan

import (
	"testing"

	"github.com/websoft9/sshcore/internal/packet"
	"github.com/websoft9/sshcore/internal/wire"
)

// fakeOwner is a minimal Owner used across this package's tests.
type fakeOwner struct {
	sent          []*packet.PktOut
	ourMaxPkt     uint32
	simple        bool
	throttleDelta int
	removed       []uint32
}

func newFakeOwner() *fakeOwner {
	return &fakeOwner{ourMaxPkt: 0x4000}
}

func (o *fakeOwner) Send(pkt *packet.PktOut)              { o.sent = append(o.sent, pkt) }
func (o *fakeOwner) NewPktOut(t packet.MsgType) *packet.PktOut { return packet.NewPktOut(t) }
func (o *fakeOwner) OurMaxPkt() uint32                     { return o.ourMaxPkt }
func (o *fakeOwner) SimpleMode() bool                      { return o.simple }
func (o *fakeOwner) ThrottleAllChannels(delta int)          { o.throttleDelta += delta }
func (o *fakeOwner) RemoveChannel(localID uint32)           { o.removed = append(o.removed, localID) }
func (o *fakeOwner) Logf(level, format string, args ...any) {}

// fakeClient is a minimal Client recording every callback invocation.
type fakeClient struct {
	sends         [][]byte
	stderrs       []bool
	eof           bool
	openConfirmed bool
	openFailedMsg string
	exitStatus    *uint32
	exitSignal    *string
	exitSignalNum *uint32
	wantCloseFn   func(sentEOF, rcvdEOF bool) bool
	inputWanted   *bool
	freed         bool
	bufsize       int
}

func (c *fakeClient) Send(stderr bool, data []byte) int {
	c.sends = append(c.sends, append([]byte(nil), data...))
	c.stderrs = append(c.stderrs, stderr)
	return c.bufsize
}
func (c *fakeClient) SendEOF()            { c.eof = true }
func (c *fakeClient) OpenConfirmation()   { c.openConfirmed = true }
func (c *fakeClient) OpenFailed(msg string) { c.openFailedMsg = msg }
func (c *fakeClient) RcvdExitStatus(code uint32) { c.exitStatus = &code }
func (c *fakeClient) RcvdExitSignal(name string, coreDumped bool, msg string) {
	c.exitSignal = &name
}
func (c *fakeClient) RcvdExitSignalNumeric(signum uint32, coreDumped bool, msg string) {
	c.exitSignalNum = &signum
}
func (c *fakeClient) WantClose(sentEOF, rcvdEOF bool) bool {
	if c.wantCloseFn != nil {
		return c.wantCloseFn(sentEOF, rcvdEOF)
	}
	return false
}
func (c *fakeClient) SetInputWanted(wanted bool) { c.inputWanted = &wanted }
func (c *fakeClient) LogCloseMsg() string        { return "" }
func (c *fakeClient) Free()                      { c.freed = true }

func openConfirmedChannel(t *testing.T, owner *fakeOwner, client *fakeClient) *Channel {
	t.Helper()
	ch := New(owner, client)
	ch.LocalID = 256
	ch.ChanOpenInit(wire.ChanTypeSession)
	ch.RemoteLocalWindow = ch.LocalWindow
	ch.HandleOpenConfirmation(17, 0x20000, 0x8000)
	if ch.HalfOpen {
		t.Fatal("channel must not be half-open after confirmation")
	}
	return ch
}

// Scenario 1 (spec.md §8): happy-path shell data delivery.
func TestHappyPathDataDelivery(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{}
	ch := openConfirmedChannel(t, owner, client)

	ch.HandleData(0, []byte("foo\nbar\n"))

	if len(client.sends) != 1 || string(client.sends[0]) != "foo\nbar\n" {
		t.Fatalf("client.Send called with %v, want one call with foo\\nbar\\n", client.sends)
	}
	if client.stderrs[0] {
		t.Fatal("plain DATA must not be reported as stderr")
	}
	// 8 bytes out of a 0x20000 window is nowhere near the "significant
	// increase" threshold (half the window), so set_window must leave
	// local_window debited rather than replenishing it early.
	want := ch.LocalMaxWin - int32(len("foo\nbar\n"))
	if ch.LocalWindow != want {
		t.Fatalf("local_window = %#x, want %#x (debited, not replenished)", ch.LocalWindow, want)
	}
}

// Scenario 2 (spec.md §8): adaptive window growth.
func TestAdaptiveWindowGrowth(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{}
	ch := New(owner, client)
	ch.LocalID = 256
	ch.LocalWindow = DefaultWin
	ch.LocalMaxWin = DefaultWin
	ch.RemoteLocalWindow = DefaultWin
	ch.HalfOpen = false
	ch.RemoteWindow = 0x20000
	ch.RemoteMaxPkt = 0x8000

	// Simulate the peer having sent DefaultWin bytes before we reply: debit
	// RemoteLocalWindow down to <= 0 via repeated HandleData calls, which
	// should trigger one round of adaptive enlargement.
	chunk := make([]byte, 0x1000)
	for i := 0; i < DefaultWin/len(chunk); i++ {
		ch.HandleData(0, chunk)
	}

	if ch.LocalMaxWin != 0x40000 {
		t.Fatalf("local_maxwin = %#x, want %#x", ch.LocalMaxWin, 0x40000)
	}
	if len(owner.sent) == 0 {
		t.Fatal("expected at least one WINDOW_ADJUST to have been sent during enlargement")
	}
}

// spec.md §4.4 DATA/EXTENDED_DATA: extended data whose type is neither 0 nor
// STDERR is discarded but must still debit the full received length.
func TestIgnoredExtendedDataStillDebitsWindow(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{}
	ch := openConfirmedChannel(t, owner, client)
	startWindow := ch.LocalWindow
	startRemote := ch.RemoteLocalWindow

	payload := make([]byte, 37)
	ch.HandleData(2, payload) // extType 2: neither SSH_EXTENDED_DATA_STDERR nor plain DATA

	if len(client.sends) != 1 || client.sends[0] != nil {
		t.Fatalf("client.Send called with %v, want one call with a nil/empty payload", client.sends)
	}
	if client.stderrs[0] {
		t.Fatal("non-stderr extended data must not be reported as stderr")
	}
	wantWindow := startWindow - int32(len(payload))
	wantRemote := startRemote - int32(len(payload))
	// 37 bytes out of a 0x20000 window is well below the "significant
	// increase" threshold, so set_window leaves both debited rather than
	// replenishing them.
	if ch.LocalWindow != wantWindow {
		t.Fatalf("local_window = %d, want %d: ignored extended data must still debit its full length", ch.LocalWindow, wantWindow)
	}
	if ch.RemoteLocalWindow != wantRemote {
		t.Fatalf("remote_local_window = %d, want %d: ignored extended data must still debit its full length", ch.RemoteLocalWindow, wantRemote)
	}
}

// Scenario 3 (spec.md §8): outstanding requests abandoned on CLOSE, in order.
func TestRequestFIFOAbandonedOnClose(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{}
	ch := openConfirmedChannel(t, owner, client)

	var order []string
	ch.Requests.Push(func(reply *packet.PktIn) {
		if reply != nil {
			t.Error("env FOO handler should receive a nil packet")
		}
		order = append(order, "FOO")
	})
	ch.Requests.Push(func(reply *packet.PktIn) {
		if reply != nil {
			t.Error("env BAZ handler should receive a nil packet")
		}
		order = append(order, "BAZ")
	})

	ch.HandleClose()

	if len(order) != 2 || order[0] != "FOO" || order[1] != "BAZ" {
		t.Fatalf("abandoned handler order = %v, want [FOO BAZ]", order)
	}
	if !client.freed {
		t.Fatal("channel must be destroyed (client freed) once both CLOSE directions complete")
	}
	if len(owner.removed) != 1 || owner.removed[0] != ch.LocalID {
		t.Fatal("channel must be removed from the owner's set exactly once")
	}
}

// Scenario 4 (spec.md §8): exit-signal nonstandard numeric fallback.
func TestExitSignalNumericFallback(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{}
	ch := openConfirmedChannel(t, owner, client)

	raw := packet.NewPktOut(0)
	raw.WriteUint32(15)
	raw.WriteBool(false)
	raw.WriteString(nil)
	raw.WriteString(nil)
	body := packet.NewPktIn(wire.MsgChannelRequest, 0, raw.Bytes())

	ch.HandleRequest(wire.ReqExitSignal, false, body, func(ok bool) {})

	if client.exitSignalNum == nil || *client.exitSignalNum != 15 {
		t.Fatalf("expected numeric exit-signal 15, got %v", client.exitSignalNum)
	}
	if client.exitSignal != nil {
		t.Fatal("standard exit-signal handler must not have been called")
	}
}

// Window-adjust necessity invariant (spec.md §8): no WINDOW_ADJUST when
// newwin/2 < local_window.
func TestNoWindowAdjustWhenNotSignificant(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{}
	ch := openConfirmedChannel(t, owner, client)
	ch.LocalWindow = 1000
	ch.LocalMaxWin = 1000

	before := len(owner.sent)
	ch.setWindow(1500) // 1500/2 == 750 < 1000 -> must NOT send

	if len(owner.sent) != before {
		t.Fatal("set_window must not send WINDOW_ADJUST below the significant-increase threshold")
	}
	if ch.LocalWindow != 1000 {
		t.Fatal("set_window must not update LocalWindow below the significant-increase threshold: the peer was never told")
	}
}

func TestWindowAdjustSentWhenSignificant(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{}
	ch := openConfirmedChannel(t, owner, client)
	ch.LocalWindow = 100
	ch.LocalMaxWin = 5000

	before := len(owner.sent)
	ch.setWindow(1000) // 1000/2 == 500 >= 100 -> must send; newwin != local_maxwin -> pretend-acked, no winadj chanreq

	if len(owner.sent) != before+1 {
		t.Fatal("set_window must send WINDOW_ADJUST above the significant-increase threshold")
	}
	if ch.RemoteLocalWindow != 1000 {
		t.Fatal("pretend-acked path must advance remote_local_window immediately")
	}
	if ch.Throttle != Throttled {
		t.Fatal("pretend-acked path must set throttle_state to THROTTLED")
	}
}

// Window-adjust ack invariant (spec.md §4.4, §9): when set_window opens the
// window all the way to local_maxwin, remote_local_window must not advance
// until the winadj@putty request is actually acked — the peer hasn't seen
// the enlargement yet.
func TestWindowAdjustAckGatesRemoteLocalWindow(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{}
	ch := openConfirmedChannel(t, owner, client)
	ch.LocalWindow = 100
	ch.LocalMaxWin = 1000
	ch.RemoteLocalWindow = 100

	ch.setWindow(1000) // 1000 == local_maxwin -> winadj ack path

	if ch.RemoteLocalWindow != 100 {
		t.Fatalf("remote_local_window = %d, want unchanged at 100 until the winadj ack arrives", ch.RemoteLocalWindow)
	}
	if ch.Throttle != Unthrottling {
		t.Fatalf("throttle_state = %v, want Unthrottling while awaiting the winadj ack", ch.Throttle)
	}

	if err := ch.HandleSuccessFailure(nil); err != nil {
		t.Fatalf("HandleSuccessFailure: %v", err)
	}

	if ch.RemoteLocalWindow != 1000 {
		t.Fatalf("remote_local_window = %d, want 1000 once the winadj ack arrives", ch.RemoteLocalWindow)
	}
	if ch.Throttle != Unthrottled {
		t.Fatalf("throttle_state = %v, want Unthrottled once the winadj ack arrives", ch.Throttle)
	}
}

func TestThrottleAndUnthrottle(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{bufsize: 1 << 20}
	ch := openConfirmedChannel(t, owner, client)
	ch.LocalMaxWin = DefaultWin

	ch.manageWindow(1 << 20) // far over the max window
	if !ch.ThrottlingConn || owner.throttleDelta != 1 {
		t.Fatalf("expected channel to start throttling the connection, delta=%d", owner.throttleDelta)
	}

	ch.Unthrottle(0)
	if ch.ThrottlingConn || owner.throttleDelta != 0 {
		t.Fatalf("expected unthrottle to release the connection throttle, delta=%d", owner.throttleDelta)
	}
}

func TestTrySendRespectsWindowAndMaxPkt(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{}
	ch := openConfirmedChannel(t, owner, client)
	ch.RemoteWindow = 3
	ch.RemoteMaxPkt = 4

	ch.QueueOutgoing(make([]byte, 9))

	if ch.RemoteWindow != 0 {
		t.Fatalf("remote_window = %d, want 0 (fully consumed by the window cap)", ch.RemoteWindow)
	}
	if ch.Outgoing.Size() != 6 {
		t.Fatalf("bufchain size = %d, want 6 remaining (send stops once the window is exhausted)", ch.Outgoing.Size())
	}
}

func TestHandleSuccessFailureUnderflowIsProtocolError(t *testing.T) {
	owner := newFakeOwner()
	client := &fakeClient{}
	ch := openConfirmedChannel(t, owner, client)

	if err := ch.HandleSuccessFailure(nil); err != ErrRequestFIFOEmpty {
		t.Fatalf("expected ErrRequestFIFOEmpty, got %v", err)
	}
}
