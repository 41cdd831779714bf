package bignum

import "testing"

func TestAddSub(t *testing.T) {
	a := FromUint64(1<<32 + 5)
	b := FromUint64(7)
	sum := Add(a, b)
	if sum.Cmp(FromUint64(1<<32+12)) != 0 {
		t.Fatalf("Add: got %s", sum)
	}
	diff := Sub(sum, b)
	if diff.Cmp(a) != 0 {
		t.Fatalf("Sub: got %s, want %s", diff, a)
	}
}

func TestCmp(t *testing.T) {
	if FromUint64(3).Cmp(FromUint64(5)) >= 0 {
		t.Fatal("3 should be < 5")
	}
	if FromUint64(5).Cmp(FromUint64(3)) <= 0 {
		t.Fatal("5 should be > 3")
	}
	if FromUint64(5).Cmp(FromUint64(5)) != 0 {
		t.Fatal("5 should equal 5")
	}
}

func TestBitLen(t *testing.T) {
	cases := []struct {
		v    uint64
		bits int
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 2}, {255, 8}, {256, 9},
	}
	for _, c := range cases {
		if got := FromUint64(c.v).BitLen(); got != c.bits {
			t.Errorf("BitLen(%d) = %d, want %d", c.v, got, c.bits)
		}
	}
}

func TestModMul(t *testing.T) {
	n := FromUint64(123456789)
	m := FromUint64(987654321)
	mod := FromUint64(1000000007)
	got := ModMul(n, m, mod)
	want := FromUint64((123456789 * 987654321) % 1000000007)
	if got.Cmp(want) != 0 {
		t.Fatalf("ModMul = %s, want %s", got, want)
	}
}

func TestModPow(t *testing.T) {
	// 7^560 mod 561 should be 1 (561 is a Carmichael number).
	got := ModPow(FromUint64(7), FromUint64(560), FromUint64(561))
	if got.Cmp(FromUint64(1)) != 0 {
		t.Fatalf("ModPow(7,560,561) = %s, want 1", got)
	}

	// base^1 mod m == base mod m
	got = ModPow(FromUint64(17), FromUint64(1), FromUint64(1000))
	if got.Cmp(FromUint64(17)) != 0 {
		t.Fatalf("ModPow(17,1,1000) = %s, want 17", got)
	}

	// base^0 mod m == 1 for m>1
	got = ModPow(FromUint64(17), FromUint64(0), FromUint64(1000))
	if got.Cmp(FromUint64(1)) != 0 {
		t.Fatalf("ModPow(17,0,1000) = %s, want 1", got)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0xff, 0xfe}
	n := FromBytes(b)
	got := n.Bytes()
	if len(got) != len(b) {
		t.Fatalf("Bytes len = %d, want %d (%x)", len(got), len(b), got)
	}
	for i := range b {
		if got[i] != b[i] {
			t.Fatalf("Bytes = %x, want %x", got, b)
		}
	}
}

func TestModLargerThanModulus(t *testing.T) {
	got := Mod(FromUint64(1000), FromUint64(7))
	if got.Cmp(FromUint64(1000%7)) != 0 {
		t.Fatalf("Mod = %s, want %d", got, 1000%7)
	}
}
