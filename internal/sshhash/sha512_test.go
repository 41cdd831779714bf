package sshhash

import (
	"crypto/sha512"
	"testing"
)

func TestSum512MatchesStdlib(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("abc"),
		[]byte("the quick brown fox jumps over the lazy dog"),
		make([]byte, 1000),
		make([]byte, 128),
		make([]byte, 127),
		make([]byte, 112),
		make([]byte, 113),
	}
	for _, c := range cases {
		got := Sum512(c)
		want := sha512.Sum512(c)
		if got != want {
			t.Errorf("Sum512(%d bytes) = %x, want %x", len(c), got, want)
		}
	}
}

func TestSinkStreaming(t *testing.T) {
	data := make([]byte, 500)
	for i := range data {
		data[i] = byte(i)
	}
	s := NewSink()
	// Write in uneven chunks to exercise the buffering path.
	chunks := [][]byte{data[:10], data[10:100], data[100:101], data[101:500]}
	for _, c := range chunks {
		_, _ = s.Write(c)
	}
	got := s.Sum512()
	want := sha512.Sum512(data)
	if got != want {
		t.Fatalf("streamed Sum512 = %x, want %x", got, want)
	}
}

func TestSinkContinuesAfterSum(t *testing.T) {
	s := NewSink()
	_, _ = s.Write([]byte("abc"))
	first := s.Sum512()
	if first != sha512.Sum512([]byte("abc")) {
		t.Fatalf("first Sum512 mismatch")
	}
	_, _ = s.Write([]byte("def"))
	second := s.Sum512()
	if second != sha512.Sum512([]byte("abcdef")) {
		t.Fatalf("second Sum512 mismatch")
	}
}
