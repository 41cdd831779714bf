// Package termbridge implements mainchan.Bridge for a real local PTY,
// adapted from the teacher's internal/terminal.LocalSession: instead of
// bridging a PTY to a raw *websocket.Conn, it bridges a PTY to the main
// channel's QueueOutgoing/stdin pump via connection.Inject, so the PTY's
// reader goroutine never touches connection or channel state directly
// (spec.md §5, SPEC_FULL §4.9).
package termbridge

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/websoft9/sshcore/internal/connection"
	"github.com/websoft9/sshcore/internal/sshchan"
)

// PTYBridge drives a local command's PTY as the peer of the main channel.
type PTYBridge struct {
	conn *connection.Connection

	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	ch     *sshchan.Channel
	closed bool
}

// New starts the given command under a PTY. The command is not attached to
// the main channel until Attach is called (mainchan_ready, per spec.md
// §4.5), so stdout/stderr produced before readiness is buffered by the PTY
// itself rather than lost.
func New(conn *connection.Connection, name string, args ...string) (*PTYBridge, error) {
	cmd := exec.Command(name, args...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("termbridge: start %s: %w", name, err)
	}
	b := &PTYBridge{conn: conn, cmd: cmd, ptmx: ptmx}
	return b, nil
}

// Attach implements mainchan.Bridge: starts the PTY->channel pump. Channel
// mutation happens only inside the injected closure, on the connection's own
// goroutine (spec.md §5).
func (b *PTYBridge) Attach(ch *sshchan.Channel) {
	b.mu.Lock()
	b.ch = ch
	b.mu.Unlock()

	go b.pumpFromPTY()
}

func (b *PTYBridge) pumpFromPTY() {
	buf := make([]byte, 32*1024)
	for {
		n, err := b.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			b.conn.Inject(func() {
				b.mu.Lock()
				ch := b.ch
				b.mu.Unlock()
				if ch != nil {
					ch.QueueOutgoing(chunk)
				}
			})
		}
		if err != nil {
			b.conn.Inject(func() {
				b.mu.Lock()
				ch := b.ch
				b.mu.Unlock()
				if ch != nil {
					ch.RequestEOF()
				}
			})
			return
		}
	}
}

// Write implements mainchan.Bridge: channel data (stdin) is written straight
// to the PTY master. The returned size drives window growth (spec.md §4.4);
// a PTY has no application-level buffer to report, so 0 is always returned.
func (b *PTYBridge) Write(stderr bool, data []byte) int {
	_, _ = b.ptmx.Write(data)
	return 0
}

// Resize changes the PTY window size. It is not part of mainchan.Bridge and
// mainchan's Sequencer.Resize does not call it; that only sends the peer a
// window-change request.
func (b *PTYBridge) Resize(rows, cols uint16) error {
	return pty.Setsize(b.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close implements mainchan.Bridge: kills the subprocess and releases the
// PTY master once, on channel destruction.
func (b *PTYBridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	if b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
	_ = b.ptmx.Close()
	_ = b.cmd.Wait()
}

var _ io.Closer = (*PTYBridge)(nil)
