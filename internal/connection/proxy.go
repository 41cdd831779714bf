package connection

import (
	"fmt"
	"io"
	"net"

	"github.com/websoft9/sshcore/internal/sshchan"
)

// dialForward opens the destination side of a "forwarded-tcpip" channel
// (SPEC_FULL §4.7), adapted from the teacher's internal/tunnel.forwardConn
// dialing style.
func dialForward(target RemoteForwardTarget) (io.ReadWriteCloser, error) {
	addr := fmt.Sprintf("%s:%d", target.DHost, target.DPort)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connection: dial forward target %s: %w", addr, err)
	}
	return conn, nil
}

// proxyClient implements sshchan.Client by bridging a Channel to a raw
// io.ReadWriteCloser — the common shape of the three narrow forwarding
// hooks (remote port-forward, X11, agent) this core dispatches
// CHANNEL_OPEN to, per SPEC_FULL §4.7/§4.8: none of these channel types
// carry their own sub-protocol here, they are opaque byte pipes.
//
// The stream's read loop runs on its own goroutine, per spec.md §5's
// design note adapted for Go: it never touches Channel or Connection state
// directly, only through Connection.Inject.
type proxyClient struct {
	conn   *Connection
	ch     *sshchan.Channel
	stream io.ReadWriteCloser
	closed bool
}

func newProxyClient(stream io.ReadWriteCloser, conn *Connection) *proxyClient {
	return &proxyClient{conn: conn, stream: stream}
}

func (p *proxyClient) bind(ch *sshchan.Channel) { p.ch = ch }

// start launches the stream's read loop once the channel is fully wired.
func (p *proxyClient) start() { go p.pump() }

func (p *proxyClient) pump() {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.stream.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			p.conn.Inject(func() { p.ch.QueueOutgoing(chunk) })
		}
		if err != nil {
			p.conn.Inject(func() { p.ch.RequestEOF() })
			return
		}
	}
}

// Send implements sshchan.Client: data received over the SSH channel is
// written straight to the destination stream. The write completes before
// Send returns, so nothing stays buffered and the reported size is 0.
func (p *proxyClient) Send(stderr bool, data []byte) int {
	_, _ = p.stream.Write(data)
	return 0
}

func (p *proxyClient) SendEOF() { _ = p.stream.Close() }

func (p *proxyClient) OpenConfirmation() {}
func (p *proxyClient) OpenFailed(string) {}

func (p *proxyClient) RcvdExitStatus(uint32)                      {}
func (p *proxyClient) RcvdExitSignal(string, bool, string)        {}
func (p *proxyClient) RcvdExitSignalNumeric(uint32, bool, string) {}

func (p *proxyClient) WantClose(sentEOF, rcvdEOF bool) bool { return p.closed }
func (p *proxyClient) SetInputWanted(bool)                  {}
func (p *proxyClient) LogCloseMsg() string                  { return "" }

func (p *proxyClient) Free() {
	p.closed = true
	_ = p.stream.Close()
}
