package sshchan

// Bufchain is a channel's unbounded outbound byte FIFO (spec.md GLOSSARY):
// data queued by the channel's client waiting for remote window before it
// can be sent as CHANNEL_DATA.
type Bufchain struct {
	chunks [][]byte
	size   int
}

// Size returns the total number of buffered bytes.
func (b *Bufchain) Size() int { return b.size }

// Empty reports whether there is nothing buffered.
func (b *Bufchain) Empty() bool { return b.size == 0 }

// Append adds p to the tail of the chain. p is copied so the caller may
// reuse its buffer immediately.
func (b *Bufchain) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	cp := append([]byte(nil), p...)
	b.chunks = append(b.chunks, cp)
	b.size += len(cp)
}

// Consume removes and returns up to n bytes from the head of the chain.
func (b *Bufchain) Consume(n int) []byte {
	if n <= 0 || b.size == 0 {
		return nil
	}
	if n > b.size {
		n = b.size
	}
	out := make([]byte, 0, n)
	for n > 0 && len(b.chunks) > 0 {
		head := b.chunks[0]
		if len(head) <= n {
			out = append(out, head...)
			n -= len(head)
			b.chunks = b.chunks[1:]
		} else {
			out = append(out, head[:n]...)
			b.chunks[0] = head[n:]
			n = 0
		}
	}
	b.size -= len(out)
	return out
}

// Clear discards every buffered byte (used when the peer closes and further
// window will never arrive, spec.md §4.4 CLOSE handling).
func (b *Bufchain) Clear() {
	b.chunks = nil
	b.size = 0
}
