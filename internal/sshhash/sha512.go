// Package sshhash implements the big-endian SHA-512 block compression
// function and a streaming sink around it, named in spec.md §2 as part of
// the algorithmic core. No other package in this module imports it;
// internal/hostkey receives fingerprints already computed by its caller.
// It is a from-scratch block-level implementation
// rather than a wrapper over crypto/sha512, mirroring the original core's own
// hand-rolled hash primitive.
package sshhash

import "encoding/binary"

const (
	blockSize  = 128
	digestSize = 64
)

var k512 = [80]uint64{
	0x428a2f98d728ae22, 0x7137449123ef65cd, 0xb5c0fbcfec4d3b2f, 0xe9b5dba58189dbbc,
	0x3956c25bf348b538, 0x59f111f1b605d019, 0x923f82a4af194f9b, 0xab1c5ed5da6d8118,
	0xd807aa98a3030242, 0x12835b0145706fbe, 0x243185be4ee4b28c, 0x550c7dc3d5ffb4e2,
	0x72be5d74f27b896f, 0x80deb1fe3b1696b1, 0x9bdc06a725c71235, 0xc19bf174cf692694,
	0xe49b69c19ef14ad2, 0xefbe4786384f25e3, 0x0fc19dc68b8cd5b5, 0x240ca1cc77ac9c65,
	0x2de92c6f592b0275, 0x4a7484aa6ea6e483, 0x5cb0a9dcbd41fbd4, 0x76f988da831153b5,
	0x983e5152ee66dfab, 0xa831c66d2db43210, 0xb00327c898fb213f, 0xbf597fc7beef0ee4,
	0xc6e00bf33da88fc2, 0xd5a79147930aa725, 0x06ca6351e003826f, 0x142929670a0e6e70,
	0x27b70a8546d22ffc, 0x2e1b21385c26c926, 0x4d2c6dfc5ac42aed, 0x53380d139d95b3df,
	0x650a73548baf63de, 0x766a0abb3c77b2a8, 0x81c2c92e47edaee6, 0x92722c851482353b,
	0xa2bfe8a14cf10364, 0xa81a664bbc423001, 0xc24b8b70d0f89791, 0xc76c51a30654be30,
	0xd192e819d6ef5218, 0xd69906245565a910, 0xf40e35855771202a, 0x106aa07032bbd1b8,
	0x19a4c116b8d2d0c8, 0x1e376c085141ab53, 0x2748774cdf8eeb99, 0x34b0bcb5e19b48a8,
	0x391c0cb3c5c95a63, 0x4ed8aa4ae3418acb, 0x5b9cca4f7763e373, 0x682e6ff3d6b2b8a3,
	0x748f82ee5defb2fc, 0x78a5636f43172f60, 0x84c87814a1f0ab72, 0x8cc702081a6439ec,
	0x90befffa23631e28, 0xa4506cebde82bde9, 0xbef9a3f7b2c67915, 0xc67178f2e372532b,
	0xca273eceea26619c, 0xd186b8c721c0c207, 0xeada7dd6cde0eb1e, 0xf57d4f7fee6ed178,
	0x06f067aa72176fba, 0x0a637dc5a2c898a6, 0x113f9804bef90dae, 0x1b710b35131c471b,
	0x28db77f523047d84, 0x32caab7b40c72493, 0x3c9ebe0a15c9bebc, 0x431d67c49c100d4c,
	0x4cc5d4becb3e42b6, 0x597f299cfc657e2a, 0x5fcb6fab3ad6faec, 0x6c44198c4a475817,
}

var iv512 = [8]uint64{
	0x6a09e667f3bcc908, 0xbb67ae8584caa73b, 0x3c6ef372fe94f82b, 0xa54ff53a5f1d36f1,
	0x510e527fade682d1, 0x9b05688c2b3e6c1f, 0x1f83d9abfb41bd6b, 0x5be0cd19137e2179,
}

func rotr(x uint64, n uint) uint64 { return (x >> n) | (x << (64 - n)) }

// block512 is the core big-endian block-compression step, taking a 128-byte
// block and folding it into state. This is the function spec.md §2 calls out
// by name as part of the shared algorithmic core.
func block512(state *[8]uint64, blk []byte) {
	var w [80]uint64
	for i := 0; i < 16; i++ {
		w[i] = binary.BigEndian.Uint64(blk[i*8:])
	}
	for i := 16; i < 80; i++ {
		s0 := rotr(w[i-15], 1) ^ rotr(w[i-15], 8) ^ (w[i-15] >> 7)
		s1 := rotr(w[i-2], 19) ^ rotr(w[i-2], 61) ^ (w[i-2] >> 6)
		w[i] = w[i-16] + s0 + w[i-7] + s1
	}

	a, b, c, d, e, f, g, h := state[0], state[1], state[2], state[3], state[4], state[5], state[6], state[7]
	for i := 0; i < 80; i++ {
		S1 := rotr(e, 14) ^ rotr(e, 18) ^ rotr(e, 41)
		ch := (e & f) ^ (^e & g)
		temp1 := h + S1 + ch + k512[i] + w[i]
		S0 := rotr(a, 28) ^ rotr(a, 34) ^ rotr(a, 39)
		maj := (a & b) ^ (a & c) ^ (b & c)
		temp2 := S0 + maj

		h = g
		g = f
		f = e
		e = d + temp1
		d = c
		c = b
		b = a
		a = temp1 + temp2
	}

	state[0] += a
	state[1] += b
	state[2] += c
	state[3] += d
	state[4] += e
	state[5] += f
	state[6] += g
	state[7] += h
}

// Sink is a streaming SHA-512 sink: Write accumulates bytes, compressing
// each full 128-byte block as it fills, and Sum512 finalizes with the
// standard big-endian length-padding.
type Sink struct {
	state   [8]uint64
	buf     [blockSize]byte
	buflen  int
	written uint64 // total bytes written, for the length suffix
}

// NewSink returns a Sink ready to accept Write calls.
func NewSink() *Sink {
	s := &Sink{}
	s.state = iv512
	return s
}

func (s *Sink) Write(p []byte) (int, error) {
	n := len(p)
	s.written += uint64(n)

	if s.buflen > 0 {
		room := blockSize - s.buflen
		if room > len(p) {
			room = len(p)
		}
		copy(s.buf[s.buflen:], p[:room])
		s.buflen += room
		p = p[room:]
		if s.buflen == blockSize {
			block512(&s.state, s.buf[:])
			s.buflen = 0
		}
	}

	for len(p) >= blockSize {
		block512(&s.state, p[:blockSize])
		p = p[blockSize:]
	}

	if len(p) > 0 {
		copy(s.buf[s.buflen:], p)
		s.buflen += len(p)
	}
	return n, nil
}

// Sum512 finalizes a copy of the current state and returns the 64-byte
// digest. The Sink is not mutated, so Write may continue to be called after
// (matching the streaming sink contract of spec.md §2).
func (s *Sink) Sum512() [digestSize]byte {
	// Copy so the caller can keep writing after Sum512, as a streaming sink
	// implies.
	state := s.state
	var tail [blockSize * 2]byte
	copy(tail[:], s.buf[:s.buflen])
	tail[s.buflen] = 0x80
	bitLen := s.written * 8

	padded := tail[:]
	if s.buflen >= blockSize-16 {
		padded = tail[:blockSize*2]
	} else {
		padded = tail[:blockSize]
	}
	binary.BigEndian.PutUint64(padded[len(padded)-8:], bitLen)
	// SHA-512 uses a 128-bit length field; the high 64 bits are always zero
	// for any message this core will ever hash.
	binary.BigEndian.PutUint64(padded[len(padded)-16:len(padded)-8], 0)

	for off := 0; off < len(padded); off += blockSize {
		block512(&state, padded[off:off+blockSize])
	}

	var out [digestSize]byte
	for i, w := range state {
		binary.BigEndian.PutUint64(out[i*8:], w)
	}
	return out
}

// Sum512 hashes p in one call.
func Sum512(p []byte) [digestSize]byte {
	s := NewSink()
	_, _ = s.Write(p)
	return s.Sum512()
}
