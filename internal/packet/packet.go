// Package packet implements the binary packet format and packet-queue data
// structure of spec.md §3/§4.1: PktIn/PktOut, their intrusive queue nodes,
// and the idempotent-callback scheduler the queues attach to.
package packet

import "encoding/binary"

// MsgType is an SSH-2 message type byte (spec.md §6).
type MsgType byte

// PktIn is a received packet: a message type, a sequence number, and a
// readable body. Reads are cursor-based and set a sticky error flag on
// short reads, mirroring the original's binary-source cursor.
type PktIn struct {
	Type MsgType
	Seq  uint32

	body []byte
	pos  int
	bad  bool

	// intrusive queue link
	next, prev *PktIn
	linked     bool

	// formalSize is the queue-accounting size charged against the queue's
	// total_size invariant (spec.md §3); for PktIn this is the wire size of
	// the packet body plus its header.
	formalSize int
}

// NewPktIn builds a PktIn around body, which is owned by the cursor for the
// lifetime of the packet (until it is freed via the free queue).
func NewPktIn(t MsgType, seq uint32, body []byte) *PktIn {
	return &PktIn{
		Type:       t,
		Seq:        seq,
		body:       body,
		formalSize: len(body) + 5,
	}
}

// Bad reports whether any read on this packet has failed (ran past the end
// of the body). Once set it is sticky: further reads keep returning zero
// values.
func (p *PktIn) Bad() bool { return p.bad }

// Remaining returns the number of unread bytes in the body.
func (p *PktIn) Remaining() int { return len(p.body) - p.pos }

func (p *PktIn) need(n int) bool {
	if p.bad || p.Remaining() < n {
		p.bad = true
		return false
	}
	return true
}

// ReadByte reads a single byte (used for the SSH `bool` and `byte` wire
// types).
func (p *PktIn) ReadByte() byte {
	if !p.need(1) {
		return 0
	}
	b := p.body[p.pos]
	p.pos++
	return b
}

// ReadBool reads the SSH `bool` wire type: one byte, nonzero is true.
func (p *PktIn) ReadBool() bool { return p.ReadByte() != 0 }

// ReadUint32 reads a big-endian uint32.
func (p *PktIn) ReadUint32() uint32 {
	if !p.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(p.body[p.pos:])
	p.pos += 4
	return v
}

// ReadString reads the SSH `string` wire type: a uint32 length prefix
// followed by that many bytes. The returned slice borrows directly from the
// packet body — valid for the lifetime of the packet (through the deferred
// free described in spec.md §4.1), and must not be retained past that.
func (p *PktIn) ReadString() []byte {
	n := p.ReadUint32()
	if !p.need(int(n)) {
		return nil
	}
	s := p.body[p.pos : p.pos+int(n)]
	p.pos += int(n)
	return s
}

// ReadRestRaw returns every remaining unread byte without advancing past the
// end. CHANNEL_DATA does not use it: its payload is a length-prefixed string,
// read with ReadString.
func (p *PktIn) ReadRestRaw() []byte {
	if p.bad {
		return nil
	}
	rest := p.body[p.pos:]
	p.pos = len(p.body)
	return rest
}

// reset clears all fields so a freed PktIn cannot be mistaken for live data;
// called by the free queue's drain step.
func (p *PktIn) reset() {
	p.body = nil
	p.pos = 0
	p.bad = false
	p.next, p.prev = nil, nil
	p.linked = false
}

// PktOut is an outbound packet under construction: a type and an appendable
// buffer, plus an optional downstream identifier used by connection sharing
// to route a packet without it ever reaching a live Channel.
type PktOut struct {
	Type MsgType
	buf  []byte

	// Downstream, when non-nil, identifies a sharing-context recipient this
	// packet should be routed to verbatim instead of being dispatched
	// locally. Left nil for ordinary packets.
	Downstream any

	next, prev *PktOut
	linked     bool
	formalSize int
}

// NewPktOut starts building an outbound packet of the given type.
func NewPktOut(t MsgType) *PktOut {
	p := &PktOut{Type: t}
	p.formalSize = 5 // revised as bytes are appended; see updateFormalSize
	return p
}

func (p *PktOut) updateFormalSize() { p.formalSize = len(p.buf) + 5 }

// WriteByte appends a single raw byte.
func (p *PktOut) WriteByte(b byte) {
	p.buf = append(p.buf, b)
	p.updateFormalSize()
}

// WriteBool appends the SSH `bool` wire type.
func (p *PktOut) WriteBool(b bool) {
	if b {
		p.WriteByte(1)
	} else {
		p.WriteByte(0)
	}
}

// WriteUint32 appends a big-endian uint32.
func (p *PktOut) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	p.buf = append(p.buf, b[:]...)
	p.updateFormalSize()
}

// WriteString appends the SSH `string` wire type: uint32 length then bytes.
func (p *PktOut) WriteString(s []byte) {
	p.WriteUint32(uint32(len(s)))
	p.buf = append(p.buf, s...)
	p.updateFormalSize()
}

// WriteStringText is a convenience wrapper for string-typed fields.
func (p *PktOut) WriteStringText(s string) { p.WriteString([]byte(s)) }

// WriteRaw appends bytes with no length prefix (used to build the header of
// packets whose trailing layout depends on already-written fields, e.g. the
// message type byte itself is implicit and handled by the BPP on
// serialization).
func (p *PktOut) WriteRaw(b []byte) {
	p.buf = append(p.buf, b...)
	p.updateFormalSize()
}

// Bytes returns the accumulated body (everything after the message type
// byte, which the BPP prefixes on the wire).
func (p *PktOut) Bytes() []byte { return p.buf }
