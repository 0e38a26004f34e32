package qpack

import "github.com/saitolume/h3engine/varint"

// Field-line opcodes for the header block itself, distinct
// from the encoder/decoder-stream instruction opcodes in instructions.go.
const (
	indexedFieldMarker      = 0x80 // 1Sxxxxxx
	indexedFieldStatic      = 0x40
	literalNameRefMarker    = 0x40 // 01NSxxxx
	literalNameRefNever     = 0x20
	literalNameRefStatic    = 0x10
	literalNoNameRefMarker  = 0x20 // 001Nxxxx
	literalNoNameRefNever   = 0x10
	indexedPostBaseMarker   = 0x10 // 0001xxxx
	literalPostBaseMarker   = 0x00 // 0000Nxxx
	literalPostBaseNever    = 0x08
)

// appendPrefix writes the Header Data Prefix: largest_reference as an
// 8-bit-prefix integer, followed by a sign bit and a 7-bit-prefix delta
// encoding base relative to largestRef.
func appendPrefix(dst []byte, largestRef, base uint64) []byte {
	dst = appendPrefixedInt(dst, largestRef, 8, 0)
	if base >= largestRef {
		return appendPrefixedInt(dst, base-largestRef, 7, 0x00)
	}
	return appendPrefixedInt(dst, largestRef-base, 7, 0x80)
}

// decodePrefix parses the Header Data Prefix from the start of buf,
// returning the largest reference, the resolved base index, and bytes
// consumed.
func decodePrefix(buf []byte) (largestRef, base uint64, consumed int, err error) {
	largestRef, n1, err := decodePrefixedInt(buf, 8)
	if err != nil {
		return 0, 0, 0, err
	}
	signByte := buf[n1]
	sign := signByte&0x80 != 0
	delta, n2, err := decodePrefixedInt(buf[n1:], 7)
	if err != nil {
		return 0, 0, 0, err
	}
	if sign {
		base = largestRef - delta
	} else {
		base = largestRef + delta
	}
	return largestRef, base, n1 + n2, nil
}

// appendIndexedOrPostBase appends an Indexed Header Field (relative to
// base, rel = base - absIdx) or, if absIdx was only just inserted in this
// same header block (so it lies beyond base), an Indexed Header Field
// With Post-Base Index (pb = absIdx - base - 1), per the rel/postbase
// resolution formulas this package's decoder uses.
func appendIndexedOrPostBase(dst []byte, absIdx, base uint64, static bool) []byte {
	if static {
		return appendPrefixedInt(dst, absIdx, 6, indexedFieldMarker|indexedFieldStatic)
	}
	if absIdx <= base {
		rel := base - absIdx
		return appendPrefixedInt(dst, rel, 6, indexedFieldMarker)
	}
	pb := absIdx - base - 1
	return appendPrefixedInt(dst, pb, 4, indexedPostBaseMarker)
}

func appendLiteralWithNameRef(dst []byte, static bool, absIdx, base uint64, value string, never bool) []byte {
	marker := byte(literalNameRefMarker)
	if never {
		marker |= literalNameRefNever
	}
	if static {
		marker |= literalNameRefStatic
		dst = appendPrefixedInt(dst, absIdx, 4, marker)
	} else {
		rel := base - absIdx
		dst = appendPrefixedInt(dst, rel, 4, marker)
	}
	return varint.EncodeString(dst, value, 7, 0x80)
}

func appendLiteralWithoutNameRef(dst []byte, name, value string, never bool) []byte {
	marker := byte(literalNoNameRefMarker)
	if never {
		marker |= literalNoNameRefNever
	}
	dst = append(dst, marker)
	dst = varint.EncodeString(dst, name, 7, 0x80)
	return varint.EncodeString(dst, value, 7, 0x80)
}

// resolvedField is one field line after relative/postbase resolution.
type resolvedField struct {
	header Header
}

// decodeFieldLines parses every field line in buf against the (already
// up to date) dynamic table, resolving relative and post-base indices
// using base.
func decodeFieldLines(table *DynamicTable, buf []byte, base uint64) ([]Header, error) {
	var out []Header
	for len(buf) > 0 {
		first := buf[0]
		switch {
		case first&0x80 != 0: // Indexed Header Field
			static := first&0x40 != 0
			rel, n, err := decodePrefixedInt(buf, 6)
			if err != nil {
				return nil, ErrDecompressionFailed
			}
			buf = buf[n:]
			var h Header
			if static {
				sh, ok := staticGet(rel)
				if !ok {
					return nil, ErrDecompressionFailed
				}
				h = sh
			} else {
				absIdx := base - rel
				dh, err := table.Get(absIdx)
				if err != nil {
					return nil, ErrDecompressionFailed
				}
				h = dh
			}
			out = append(out, h)

		case first&0x40 != 0: // Literal With Name Reference
			never := first&literalNameRefNever != 0
			static := first&literalNameRefStatic != 0
			_ = never
			rel, n, err := decodePrefixedInt(buf, 4)
			if err != nil {
				return nil, ErrDecompressionFailed
			}
			buf = buf[n:]
			var name string
			if static {
				sh, ok := staticGet(rel)
				if !ok {
					return nil, ErrDecompressionFailed
				}
				name = sh.Name
			} else {
				absIdx := base - rel
				dh, err := table.Get(absIdx)
				if err != nil {
					return nil, ErrDecompressionFailed
				}
				name = dh.Name
			}
			value, m, err := varint.DecodeString(buf, 7, 0x80)
			if err != nil {
				return nil, ErrDecompressionFailed
			}
			buf = buf[m:]
			out = append(out, Header{Name: name, Value: value})

		case first&0x20 != 0: // Literal Without Name Reference
			buf = buf[1:]
			name, n, err := varint.DecodeString(buf, 7, 0x80)
			if err != nil {
				return nil, ErrDecompressionFailed
			}
			buf = buf[n:]
			value, m, err := varint.DecodeString(buf, 7, 0x80)
			if err != nil {
				return nil, ErrDecompressionFailed
			}
			buf = buf[m:]
			out = append(out, Header{Name: name, Value: value})

		case first&0x10 != 0: // Indexed Header Field With Post-Base Index
			pb, n, err := decodePrefixedInt(buf, 4)
			if err != nil {
				return nil, ErrDecompressionFailed
			}
			buf = buf[n:]
			absIdx := base + pb + 1
			h, err := table.Get(absIdx)
			if err != nil {
				return nil, ErrDecompressionFailed
			}
			out = append(out, h)

		default: // Literal With Post-Base Name Reference
			pb, n, err := decodePrefixedInt(buf, 3)
			if err != nil {
				return nil, ErrDecompressionFailed
			}
			buf = buf[n:]
			absIdx := base + pb + 1
			dh, err := table.Get(absIdx)
			if err != nil {
				return nil, ErrDecompressionFailed
			}
			value, m, err := varint.DecodeString(buf, 7, 0x80)
			if err != nil {
				return nil, ErrDecompressionFailed
			}
			buf = buf[m:]
			out = append(out, Header{Name: dh.Name, Value: value})
		}
	}
	return out, nil
}
