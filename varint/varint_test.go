package varint_test

import (
	"testing"

	"github.com/saitolume/h3engine/varint"
)

func TestRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 37, 63, 64, 15293, 16383, 16384, 494878333, 1073741823, 1073741824, 151288809941952652, varint.Max}
	for _, v := range values {
		dst, err := varint.Append(nil, v)
		if err != nil {
			t.Fatalf("Append(%d): %v", v, err)
		}
		n, err := varint.Len(v)
		if err != nil {
			t.Fatalf("Len(%d): %v", v, err)
		}
		if len(dst) != n {
			t.Fatalf("Len(%d)=%d but Append produced %d bytes", v, n, len(dst))
		}
		got, consumed, err := varint.Decode(dst)
		if err != nil {
			t.Fatalf("Decode(%x): %v", dst, err)
		}
		if got != v || consumed != n {
			t.Fatalf("round trip mismatch: want (%d,%d) got (%d,%d)", v, n, got, consumed)
		}
	}
}

func TestDecodeIncomplete(t *testing.T) {
	// 2-byte class, only 1 byte supplied.
	_, _, err := varint.Decode([]byte{0x40})
	inc, ok := err.(varint.Incomplete)
	if !ok {
		t.Fatalf("expected Incomplete, got %v", err)
	}
	if inc.Need != 2 || inc.Have != 1 {
		t.Fatalf("unexpected Incomplete: %+v", inc)
	}
}

func TestDecodeEmpty(t *testing.T) {
	_, _, err := varint.Decode(nil)
	if err != varint.ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := varint.Append(nil, varint.Max+1)
	if err != varint.ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestSizeOfFirstByteClasses(t *testing.T) {
	cases := map[byte]int{
		0x00: 1,
		0x3f: 1,
		0x40: 2,
		0x7f: 2,
		0x80: 4,
		0xbf: 4,
		0xc0: 8,
		0xff: 8,
	}
	for b, want := range cases {
		if got := varint.SizeOfFirstByte(b); got != want {
			t.Errorf("SizeOfFirstByte(%#x) = %d, want %d", b, got, want)
		}
	}
}

// Known RFC 9000 appendix A.1 examples.
func TestKnownEncodings(t *testing.T) {
	cases := []struct {
		value uint64
		bytes []byte
	}{
		{151288809941952652, []byte{0xc2, 0x19, 0x7c, 0x5e, 0xff, 0x14, 0xe8, 0x8c}},
		{494878333, []byte{0x9d, 0x7f, 0x3e, 0x7d}},
		{15293, []byte{0x7b, 0xbd}},
		{37, []byte{0x25}},
	}
	for _, c := range cases {
		got, err := varint.Append(nil, c.value)
		if err != nil {
			t.Fatalf("Append(%d): %v", c.value, err)
		}
		if string(got) != string(c.bytes) {
			t.Errorf("Append(%d) = % x, want % x", c.value, got, c.bytes)
		}
		v, n, err := varint.Decode(c.bytes)
		if err != nil || v != c.value || n != len(c.bytes) {
			t.Errorf("Decode(% x) = (%d,%d,%v), want (%d,%d,nil)", c.bytes, v, n, err, c.value, len(c.bytes))
		}
	}
}
