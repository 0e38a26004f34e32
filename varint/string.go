package varint

import (
	"bytes"
	"io"

	"golang.org/x/net/http2/hpack"
)

// PrefixBits is the number of low bits of the first length byte that carry
// the varint prefix; HTTP/3 framing and QPACK each reserve different top
// bits for flags (H flag for Huffman, S/N/T flags for QPACK instructions),
// so the caller supplies how many bits remain for the length prefix.
type PrefixBits uint8

// EncodeString appends a length-prefixed string to dst. The payload is
// QPACK/HPACK-Huffman-encoded (sharing HPACK's static table, RFC 9204
// §4.1.2) whenever doing so is smaller, and hflagBit is then OR'd into the
// length prefix's first byte; otherwise the raw bytes follow with the flag
// clear.
func EncodeString(dst []byte, s string, prefix PrefixBits, hflagBit byte) []byte {
	huffLen := hpack.HuffmanEncodeLength(s)
	if huffLen < uint64(len(s)) {
		dst = appendPrefixedLen(dst, huffLen, prefix, hflagBit)
		return hpack.HuffmanEncode(dst, s)
	}
	dst = appendPrefixedLen(dst, uint64(len(s)), prefix, 0)
	return append(dst, s...)
}

func appendPrefixedLen(dst []byte, length uint64, prefix PrefixBits, flagBit byte) []byte {
	mask := byte(1<<prefix) - 1
	if length < uint64(mask) {
		return append(dst, flagBit|byte(length))
	}
	dst = append(dst, flagBit|mask)
	rem := length - uint64(mask)
	for rem >= 128 {
		dst = append(dst, byte(rem%128+128))
		rem /= 128
	}
	return append(dst, byte(rem))
}

// DecodeString reads a length-prefixed, possibly Huffman-encoded string
// from src, where the first byte's flagBit marks Huffman encoding and
// prefix is the number of remaining length-prefix bits in that byte.
// It returns the decoded string and the number of bytes of src consumed.
func DecodeString(src []byte, prefix PrefixBits, flagBit byte) (string, int, error) {
	if len(src) == 0 {
		return "", 0, ErrInvalid
	}
	huffman := src[0]&flagBit != 0
	length, n, err := decodePrefixedLen(src, prefix)
	if err != nil {
		return "", 0, err
	}
	if len(src) < n+int(length) {
		return "", 0, Incomplete{Need: n + int(length), Have: len(src)}
	}
	raw := src[n : n+int(length)]
	total := n + int(length)
	if !huffman {
		return string(raw), total, nil
	}
	var buf bytes.Buffer
	if err := hpack.HuffmanDecode(&buf, raw); err != nil {
		return "", 0, err
	}
	return buf.String(), total, nil
}

func decodePrefixedLen(src []byte, prefix PrefixBits) (uint64, int, error) {
	mask := byte(1<<prefix) - 1
	v := uint64(src[0] & mask)
	if v < uint64(mask) {
		return v, 1, nil
	}
	m := uint64(0)
	i := 1
	for {
		if i >= len(src) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := src[i]
		i++
		if m >= 63 {
			return 0, 0, ErrTooLarge
		}
		v += uint64(b&0x7f) << m
		m += 7
		if b&0x80 == 0 {
			break
		}
	}
	return v, i, nil
}
