// Package connection implements the SSH-2 connection-layer core of
// spec.md §4.3: the channel set, remote-forward/x11/agent dispatch, the
// global-request FIFO, and the single-goroutine filter/dispatch loop
// that drives everything below the BPP hook.
package connection

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/websoft9/sshcore/internal/bpp"
	"github.com/websoft9/sshcore/internal/packet"
	"github.com/websoft9/sshcore/internal/sshchan"
)

// firstLocalID is the fixed offset spec.md §3 requires for first-fit local
// channel-id allocation.
const firstLocalID uint32 = 256

// RemoteForwardTarget is the destination a "forwarded-tcpip" channel open
// is proxying to (spec.md SPEC_FULL §4.7).
type RemoteForwardTarget struct {
	DHost string
	DPort int
}

// RemoteForwardManager is the narrow interface the connection layer uses to
// resolve and manage remote port-forwarding registrations, keyed by
// (shost, sport) per spec.md §3 (SPEC_FULL §4.7). internal/rportfwd
// provides the concrete in-memory implementation.
type RemoteForwardManager interface {
	Lookup(shost string, sport int) (RemoteForwardTarget, bool)
	Add(shost string, sport int, target RemoteForwardTarget) error
	Remove(shost string, sport int) bool
}

// X11Opener is the narrow hook CHANNEL_OPEN("x11") dispatches to (SPEC_FULL
// §4.8). No X11 wire format is implemented in this module — out of scope
// per spec.md §1.
type X11Opener interface {
	OpenX11(originAddr string, originPort int) (io.ReadWriteCloser, error)
}

// AgentOpener is the narrow hook CHANNEL_OPEN("auth-agent@openssh.com")
// dispatches to (SPEC_FULL §4.8). No agent protocol is implemented here.
type AgentOpener interface {
	OpenAgent() (io.ReadWriteCloser, error)
}

// TerminationScheduler defers the "should this process exit" check past the
// handler that triggered it (spec.md §4.4 channel destruction, §9), so a
// connection going idle doesn't tear itself down mid-dispatch.
// internal/connwork implements this against Asynq/Redis.
type TerminationScheduler interface {
	ScheduleCheck(connID string)
}

// AuditLogger records connection teardown (spec.md §4.3 termination) outside
// the zerolog stream, for the admin-facing history internal/audit persists.
// Host-key decisions are not recorded through it. Optional: nil means no
// audit trail.
type AuditLogger interface {
	LogDisconnect(connID, reason string)
}

// Config carries the ambient settings spec.md's design notes (§9) ask to be
// explicit, constructed context rather than global state.
type Config struct {
	OurMaxPkt      uint32
	SimpleMode     bool
	Batch          bool
	ManualHostKeys []string
	OpenLimiter    *rate.Limiter
}

// Connection is the ConnState of spec.md §3: the channel set, the remote
// port-forward set, the global-request FIFO, a reference to the BPP's
// queues, the main-channel pointer, and the connection-wide flags.
type Connection struct {
	ID string

	cfg       Config
	bpp       bpp.Hook
	log       zerolog.Logger
	termSched TerminationScheduler
	audit     AuditLogger

	channels map[uint32]*sshchan.Channel

	Rportfwds RemoteForwardManager
	X11       X11Opener
	Agent     AgentOpener

	GlobalRequests sshchan.RequestFIFO

	MainChan *sshchan.Channel

	// Flags (spec.md §3).
	AllChannelsThrottled bool
	WantUserInput        bool
	MainchanReady        bool
	MainchanEOFPending    bool
	MainchanEOFSent       bool
	SessionAttempt        bool
	SSHIsSimple           bool
	Persistent            bool

	// Cached and originally-requested terminal dimensions (spec.md §3).
	TermWidth, TermHeight int
	OrigWidth, OrigHeight int

	throttleRefcount int

	wake       chan struct{}
	terminated bool

	injectMu sync.Mutex
	injects  []func()
}

// New constructs a Connection bound to the given BPP hook. termSched may be
// nil (tests and looppipe fixtures don't need deferred termination checks).
func New(hook bpp.Hook, cfg Config, log zerolog.Logger, termSched TerminationScheduler) *Connection {
	return &Connection{
		ID:        uuid.NewString(),
		cfg:       cfg,
		SSHIsSimple: cfg.SimpleMode,
		bpp:       hook,
		log:       log,
		termSched: termSched,
		channels:  make(map[uint32]*sshchan.Channel),
		wake:      make(chan struct{}, 1),
	}
}

// --- sshchan.Owner ---------------------------------------------------------

// Send implements sshchan.Owner: push pkt to the BPP's out-queue.
func (c *Connection) Send(pkt *packet.PktOut) { c.bpp.OutQueue().Push(pkt) }

// NewPktOut implements sshchan.Owner.
func (c *Connection) NewPktOut(t packet.MsgType) *packet.PktOut { return c.bpp.NewPktOut(t) }

// OurMaxPkt implements sshchan.Owner.
func (c *Connection) OurMaxPkt() uint32 { return c.cfg.OurMaxPkt }

// SimpleMode implements sshchan.Owner.
func (c *Connection) SimpleMode() bool { return c.SSHIsSimple }

// ThrottleAllChannels implements sshchan.Owner: adjusts the connection-wide
// throttle refcount and, crossing either boundary, toggles every channel's
// input-wanted state via CheckThrottle (spec.md §4.4 "Throttling").
func (c *Connection) ThrottleAllChannels(delta int) {
	before := c.throttleRefcount > 0
	c.throttleRefcount += delta
	after := c.throttleRefcount > 0
	if before == after {
		return
	}
	c.AllChannelsThrottled = after
	for _, ch := range c.channels {
		ch.CheckThrottle(c.AllChannelsThrottled)
	}
}

// RemoveChannel implements sshchan.Owner: drops the channel from the set and
// schedules the deferred termination check (spec.md §4.4 channel
// destruction).
func (c *Connection) RemoveChannel(localID uint32) {
	if c.channels[localID] == c.MainChan {
		c.MainChan = nil
	}
	delete(c.channels, localID)
	if c.termSched != nil {
		c.termSched.ScheduleCheck(c.ID)
	}
}

// CheckTermination implements connwork.Checker: the deferred decision
// RemoveChannel schedules via termSched. A connection with no open channels
// and no Persistent flag set has nothing left to do (spec.md §4.4, §9) and
// is disconnected; anything else (a new channel opened in the meantime, or
// Persistent) is left alone.
func (c *Connection) CheckTermination() {
	c.Inject(func() {
		if c.Persistent || len(c.channels) > 0 {
			return
		}
		c.Disconnect("connection idle: no channels remain open")
	})
}

// Logf implements sshchan.Owner via zerolog.
func (c *Connection) Logf(level, format string, args ...any) {
	var ev *zerolog.Event
	switch level {
	case "debug":
		ev = c.log.Debug()
	case "warn":
		ev = c.log.Warn()
	case "error":
		ev = c.log.Error()
	default:
		ev = c.log.Info()
	}
	ev.Str("conn", c.ID).Msgf(format, args...)
}

// --- channel set -------------------------------------------------------

// allocateLocalID implements spec.md §3's "first-fit starting at 256".
func (c *Connection) allocateLocalID() uint32 {
	id := firstLocalID
	for {
		if _, exists := c.channels[id]; !exists {
			return id
		}
		id++
	}
}

// NewOutboundChannel allocates a local id and constructs a half-open channel
// ready for ChanOpenInit (spec.md §4.4 "Open (outbound)").
func (c *Connection) NewOutboundChannel(client sshchan.Client) *sshchan.Channel {
	ch := sshchan.New(c, client)
	ch.LocalID = c.allocateLocalID()
	c.channels[ch.LocalID] = ch
	return ch
}

// Channel looks up a channel by local id.
func (c *Connection) Channel(localID uint32) (*sshchan.Channel, bool) {
	ch, ok := c.channels[localID]
	return ch, ok
}

// initialWindow returns the window size new inbound channels are opened
// with (spec.md §3: DEFAULT_WIN, or BIG_WIN in simple mode).
func (c *Connection) initialWindow() int32 {
	if c.SSHIsSimple {
		return sshchan.BigWin
	}
	return sshchan.DefaultWin
}

// Disconnect queues SSH_MSG_DISCONNECT and tears the connection down, for
// callers above the dispatch loop (e.g. internal/mainchan aborting a failed
// command chain per spec.md §4.5) that need the same teardown path
// FilterQueue takes on a protocol error.
func (c *Connection) Disconnect(reason string) {
	c.bpp.QueueDisconnect(reason, bpp.CategoryByApplication)
	c.terminated = true
	if c.audit != nil {
		c.audit.LogDisconnect(c.ID, reason)
	}
	c.Wake()
}

// SetAuditLogger attaches the audit trail (internal/audit's PocketBase
// writer, typically), constructed after the Connection since it needs the
// connection's own ID.
func (c *Connection) SetAuditLogger(a AuditLogger) { c.audit = a }

// Wake schedules a filter_queue pass, coalescing concurrent callers exactly
// like an IdempotentCallback (spec.md §9's "single suspension point"): a
// second call while one is already pending is a no-op.
func (c *Connection) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Inject schedules fn to run on the connection's own goroutine at the next
// wake. This is the only channel through which a foreign goroutine (a PTY
// reader, a proxied destination socket) may affect connection or channel
// state — spec.md §5's "no two handlers ever run concurrently" is preserved
// by never mutating that state from anywhere but here (SPEC_FULL §5).
func (c *Connection) Inject(fn func()) {
	c.injectMu.Lock()
	c.injects = append(c.injects, fn)
	c.injectMu.Unlock()
	c.Wake()
}

func (c *Connection) drainInjects() {
	c.injectMu.Lock()
	batch := c.injects
	c.injects = nil
	c.injectMu.Unlock()
	for _, fn := range batch {
		fn()
	}
}

// Run is the connection's single cooperative task (spec.md §4.3, §5): it
// blocks on the coalesced wake signal and calls FilterQueue on each tick
// until the connection is torn down or ctx is cancelled.
func (c *Connection) Run(ctx context.Context) {
	cb := packet.NewCallback(c.bpp.Scheduler(), c.Wake)
	c.bpp.InQueue().SetCallback(cb)
	c.Wake() // a BPP may already have packets queued before Run starts
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
		c.drainInjects()
		if c.FilterQueue() {
			return
		}
	}
}
