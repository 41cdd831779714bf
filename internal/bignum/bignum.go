// Package bignum implements the fixed-radix multi-precision integer
// arithmetic the connection core needs for host-key and certificate checks:
// modular exponentiation, modular multiplication, addition, subtraction,
// comparison and bit-count.
//
// This is the "algorithmic core" named in the core's component list — it is
// intentionally not a thin wrapper over math/big. The wire-level key exchange
// and signature algorithms that would consume this package sit below the BPP
// hook and are out of scope here. No other package in this module imports
// it; internal/hostkey works on fingerprints and key blobs as strings.
package bignum

import "fmt"

// wordBits is the size of one limb. 32-bit limbs keep intermediate products
// (two limbs wide) inside a uint64 without a second wide-word type.
const wordBits = 32

// Int is an arbitrary-precision non-negative integer stored as little-endian
// 32-bit limbs, least significant limb first. The zero value is the integer
// zero.
type Int struct {
	limbs []uint32 // no trailing zero limbs, except len==0 represents 0
}

// FromUint64 builds an Int from a uint64.
func FromUint64(v uint64) *Int {
	n := &Int{}
	if v == 0 {
		return n
	}
	n.limbs = append(n.limbs, uint32(v), uint32(v>>32))
	return n.normalize()
}

// FromBytes builds an Int from a big-endian byte slice.
func FromBytes(b []byte) *Int {
	n := &Int{}
	limbCount := (len(b) + 3) / 4
	n.limbs = make([]uint32, limbCount)
	for i, bi := 0, len(b)-1; bi >= 0; i, bi = i+1, bi-1 {
		n.limbs[i/4] |= uint32(b[bi]) << (uint(i%4) * 8)
	}
	return n.normalize()
}

// Bytes returns the big-endian two's-complement-free (unsigned) encoding,
// with no leading zero byte beyond what is needed to represent the value.
func (n *Int) Bytes() []byte {
	bits := n.BitLen()
	if bits == 0 {
		return []byte{0}
	}
	size := (bits + 7) / 8
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		limb := n.limbAt(i / 4)
		out[size-1-i] = byte(limb >> (uint(i%4) * 8))
	}
	return out
}

func (n *Int) limbAt(i int) uint32 {
	if i >= len(n.limbs) {
		return 0
	}
	return n.limbs[i]
}

// normalize strips high zero limbs so that len(limbs)==0 uniquely represents 0.
func (n *Int) normalize() *Int {
	l := len(n.limbs)
	for l > 0 && n.limbs[l-1] == 0 {
		l--
	}
	n.limbs = n.limbs[:l]
	return n
}

// BitLen returns the number of bits required to represent n, i.e. the "bit
// count" operation spec.md §2 names explicitly.
func (n *Int) BitLen() int {
	if len(n.limbs) == 0 {
		return 0
	}
	top := n.limbs[len(n.limbs)-1]
	bits := (len(n.limbs) - 1) * wordBits
	for top != 0 {
		bits++
		top >>= 1
	}
	return bits
}

// IsZero reports whether n == 0.
func (n *Int) IsZero() bool { return len(n.limbs) == 0 }

// Cmp returns -1, 0 or +1 as n is less than, equal to, or greater than m.
func (n *Int) Cmp(m *Int) int {
	if len(n.limbs) != len(m.limbs) {
		if len(n.limbs) < len(m.limbs) {
			return -1
		}
		return 1
	}
	for i := len(n.limbs) - 1; i >= 0; i-- {
		if n.limbs[i] != m.limbs[i] {
			if n.limbs[i] < m.limbs[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Add returns n+m.
func Add(n, m *Int) *Int {
	size := len(n.limbs)
	if len(m.limbs) > size {
		size = len(m.limbs)
	}
	out := make([]uint32, size+1)
	var carry uint64
	for i := 0; i < size; i++ {
		sum := uint64(n.limbAt(i)) + uint64(m.limbAt(i)) + carry
		out[i] = uint32(sum)
		carry = sum >> wordBits
	}
	out[size] = uint32(carry)
	return (&Int{limbs: out}).normalize()
}

// Sub returns n-m. It panics if m > n: this package only models the
// non-negative integers the host-key / certificate checks need.
func Sub(n, m *Int) *Int {
	if n.Cmp(m) < 0 {
		panic("bignum: Sub underflow")
	}
	out := make([]uint32, len(n.limbs))
	var borrow int64
	for i := range n.limbs {
		diff := int64(n.limbAt(i)) - int64(m.limbAt(i)) - borrow
		if diff < 0 {
			diff += 1 << wordBits
			borrow = 1
		} else {
			borrow = 0
		}
		out[i] = uint32(diff)
	}
	return (&Int{limbs: out}).normalize()
}

// mulSimple returns n*m with schoolbook long multiplication. Used internally
// by ModMul/ModPow; not exported because callers almost always want the
// reduced result.
func mulSimple(n, m *Int) *Int {
	if n.IsZero() || m.IsZero() {
		return &Int{}
	}
	out := make([]uint32, len(n.limbs)+len(m.limbs))
	for i, ni := range n.limbs {
		if ni == 0 {
			continue
		}
		var carry uint64
		for j, mj := range m.limbs {
			prod := uint64(ni)*uint64(mj) + uint64(out[i+j]) + carry
			out[i+j] = uint32(prod)
			carry = prod >> wordBits
		}
		k := i + len(m.limbs)
		for carry != 0 {
			sum := uint64(out[k]) + carry
			out[k] = uint32(sum)
			carry = sum >> wordBits
			k++
		}
	}
	return (&Int{limbs: out}).normalize()
}

// divMod returns (n/m, n%m) via long division. mod is non-negative modular
// reduction is built on this.
func divMod(n, m *Int) (q, r *Int) {
	if m.IsZero() {
		panic("bignum: division by zero")
	}
	r = &Int{}
	bits := n.BitLen()
	qLimbs := make([]uint32, len(n.limbs))
	for i := bits - 1; i >= 0; i-- {
		r = shiftLeft1(r)
		if bitAt(n, i) {
			r = setBit0(r)
		}
		if r.Cmp(m) >= 0 {
			r = Sub(r, m)
			qLimbs[i/wordBits] |= 1 << uint(i%wordBits)
		}
	}
	q = (&Int{limbs: qLimbs}).normalize()
	return q, r
}

func bitAt(n *Int, i int) bool {
	limb := n.limbAt(i / wordBits)
	return (limb>>uint(i%wordBits))&1 == 1
}

func shiftLeft1(n *Int) *Int {
	out := make([]uint32, len(n.limbs)+1)
	var carry uint32
	for i, l := range n.limbs {
		out[i] = (l << 1) | carry
		carry = l >> (wordBits - 1)
	}
	out[len(n.limbs)] = carry
	return (&Int{limbs: out}).normalize()
}

func setBit0(n *Int) *Int {
	limbs := append([]uint32(nil), n.limbs...)
	if len(limbs) == 0 {
		limbs = append(limbs, 0)
	}
	limbs[0] |= 1
	return (&Int{limbs: limbs}).normalize()
}

// Mod returns n mod m.
func Mod(n, m *Int) *Int {
	_, r := divMod(n, m)
	return r
}

// ModMul returns (n*m) mod modulus.
func ModMul(n, m, modulus *Int) *Int {
	return Mod(mulSimple(n, m), modulus)
}

// ModPow returns base^exp mod modulus via left-to-right square-and-multiply.
// modulus must be non-zero; exp is treated as non-negative.
func ModPow(base, exp, modulus *Int) *Int {
	if modulus.IsZero() {
		panic("bignum: ModPow with zero modulus")
	}
	result := FromUint64(1)
	b := Mod(base, modulus)
	bits := exp.BitLen()
	for i := bits - 1; i >= 0; i-- {
		result = ModMul(result, result, modulus)
		if bitAt(exp, i) {
			result = ModMul(result, b, modulus)
		}
	}
	return result
}

func (n *Int) String() string {
	return fmt.Sprintf("%x", n.Bytes())
}
