// Package frame implements the HTTP/3 frame codec (RFC 9114 §7): a
// variable-integer framed wire format of (type, length, payload) tuples
// layered directly on top of the varint package.
package frame

import (
	"errors"
	"fmt"

	"github.com/saitolume/h3engine/varint"
)

// Type identifies an HTTP/3 frame's wire type.
type Type uint64

// Frame type values, RFC 9114 §7.2.
const (
	TypeData        Type = 0x00
	TypeHeaders     Type = 0x01
	TypeCancelPush  Type = 0x03
	TypeSettings    Type = 0x04
	TypePushPromise Type = 0x05
	TypeGoAway      Type = 0x07
	TypeMaxPushID   Type = 0x0d
)

// Reserved frame types that MUST never appear on the wire (RFC 9114 §7.2.8,
// carried over from HTTP/2 frame types that have no HTTP/3 meaning).
var reservedTypes = map[Type]bool{
	0x02: true,
	0x06: true,
	0x08: true,
	0x09: true,
}

// IsReserved reports whether t is one of the frame types HTTP/3 reserves.
func IsReserved(t Type) bool {
	return reservedTypes[t]
}

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeHeaders:
		return "HEADERS"
	case TypeCancelPush:
		return "CANCEL_PUSH"
	case TypeSettings:
		return "SETTINGS"
	case TypePushPromise:
		return "PUSH_PROMISE"
	case TypeGoAway:
		return "GOAWAY"
	case TypeMaxPushID:
		return "MAX_PUSH_ID"
	default:
		if IsReserved(t) {
			return fmt.Sprintf("RESERVED(%#x)", uint64(t))
		}
		return fmt.Sprintf("UNKNOWN(%#x)", uint64(t))
	}
}

// Frame is the common interface every parsed or constructed HTTP/3 frame
// satisfies. Values are owned; once returned from a Decoder or constructed by
// hand they have no further dependency on the source buffer.
type Frame interface {
	// Type returns the frame's wire type.
	Type() Type
	// PayloadLen returns the declared/encoded length of the frame payload,
	// i.e. the value that would appear in the length field.
	PayloadLen() uint64
	// AppendTo serializes type|length|payload onto dst and returns the
	// extended slice.
	AppendTo(dst []byte) ([]byte, error)
}

// WireLen returns size(type) + size(length) + length for f, i.e. the total
// number of bytes f.AppendTo would append.
func WireLen(f Frame) (uint64, error) {
	tn, err := varint.Len(uint64(f.Type()))
	if err != nil {
		return 0, err
	}
	ln, err := varint.Len(f.PayloadLen())
	if err != nil {
		return 0, err
	}
	return uint64(tn) + uint64(ln) + f.PayloadLen(), nil
}

func appendHeader(dst []byte, t Type, length uint64) ([]byte, error) {
	dst, err := varint.Append(dst, uint64(t))
	if err != nil {
		return dst, err
	}
	return varint.Append(dst, length)
}

// DataFrame carries a slice of the request/response body (RFC 9114 §7.2.1).
type DataFrame struct {
	Payload []byte
}

func (f *DataFrame) Type() Type           { return TypeData }
func (f *DataFrame) PayloadLen() uint64   { return uint64(len(f.Payload)) }
func (f *DataFrame) AppendTo(dst []byte) ([]byte, error) {
	dst, err := appendHeader(dst, TypeData, f.PayloadLen())
	if err != nil {
		return dst, err
	}
	return append(dst, f.Payload...), nil
}

// HeadersFrame carries a QPACK-compressed header block (RFC 9114 §7.2.2).
// The header block is opaque to the frame codec; QPACK owns decoding it.
type HeadersFrame struct {
	HeaderBlock []byte
}

func (f *HeadersFrame) Type() Type         { return TypeHeaders }
func (f *HeadersFrame) PayloadLen() uint64 { return uint64(len(f.HeaderBlock)) }
func (f *HeadersFrame) AppendTo(dst []byte) ([]byte, error) {
	dst, err := appendHeader(dst, TypeHeaders, f.PayloadLen())
	if err != nil {
		return dst, err
	}
	return append(dst, f.HeaderBlock...), nil
}

// CancelPushFrame identifies a push ID the peer should not (or no longer
// should) push (RFC 9114 §7.2.3). Recognized by type only; see spec non-goal
// on push/priority semantics.
type CancelPushFrame struct {
	PushID uint64
}

func (f *CancelPushFrame) Type() Type         { return TypeCancelPush }
func (f *CancelPushFrame) PayloadLen() uint64 { n, _ := varint.Len(f.PushID); return uint64(n) }
func (f *CancelPushFrame) AppendTo(dst []byte) ([]byte, error) {
	dst, err := appendHeader(dst, TypeCancelPush, f.PayloadLen())
	if err != nil {
		return dst, err
	}
	return varint.Append(dst, f.PushID)
}

// PushPromiseFrame carries a promised push ID and its QPACK header block
// (RFC 9114 §7.2.5). Recognized by type only; push is rejected elsewhere.
type PushPromiseFrame struct {
	PushID      uint64
	HeaderBlock []byte
}

func (f *PushPromiseFrame) Type() Type { return TypePushPromise }
func (f *PushPromiseFrame) PayloadLen() uint64 {
	n, _ := varint.Len(f.PushID)
	return uint64(n) + uint64(len(f.HeaderBlock))
}
func (f *PushPromiseFrame) AppendTo(dst []byte) ([]byte, error) {
	dst, err := appendHeader(dst, TypePushPromise, f.PayloadLen())
	if err != nil {
		return dst, err
	}
	dst, err = varint.Append(dst, f.PushID)
	if err != nil {
		return dst, err
	}
	return append(dst, f.HeaderBlock...), nil
}

// GoAwayFrame signals the largest stream/push ID the sender will process
// (RFC 9114 §7.2.6). Frame-type recognition only; see spec non-goal.
type GoAwayFrame struct {
	ID uint64
}

func (f *GoAwayFrame) Type() Type         { return TypeGoAway }
func (f *GoAwayFrame) PayloadLen() uint64 { n, _ := varint.Len(f.ID); return uint64(n) }
func (f *GoAwayFrame) AppendTo(dst []byte) ([]byte, error) {
	dst, err := appendHeader(dst, TypeGoAway, f.PayloadLen())
	if err != nil {
		return dst, err
	}
	return varint.Append(dst, f.ID)
}

// MaxPushIDFrame raises the maximum push ID the server may use (RFC 9114
// §7.2.7). Frame-type recognition only; see spec non-goal.
type MaxPushIDFrame struct {
	ID uint64
}

func (f *MaxPushIDFrame) Type() Type         { return TypeMaxPushID }
func (f *MaxPushIDFrame) PayloadLen() uint64 { n, _ := varint.Len(f.ID); return uint64(n) }
func (f *MaxPushIDFrame) AppendTo(dst []byte) ([]byte, error) {
	dst, err := appendHeader(dst, TypeMaxPushID, f.PayloadLen())
	if err != nil {
		return dst, err
	}
	return varint.Append(dst, f.ID)
}

// UnknownFrame retains the raw type and payload of a frame type this codec
// does not recognize, so a caller can pass it through or count it without
// losing information. Unknown frame types are never an error by themselves
// (RFC 9114 §9, "extensible frame types").
type UnknownFrame struct {
	RawType Type
	Payload []byte
}

func (f *UnknownFrame) Type() Type         { return f.RawType }
func (f *UnknownFrame) PayloadLen() uint64 { return uint64(len(f.Payload)) }
func (f *UnknownFrame) AppendTo(dst []byte) ([]byte, error) {
	dst, err := appendHeader(dst, f.RawType, f.PayloadLen())
	if err != nil {
		return dst, err
	}
	return append(dst, f.Payload...), nil
}

// ErrShortPeek is returned by PeekType/PeekLength when fewer bytes are
// available than are needed to decode the field being peeked.
var ErrShortPeek = errors.New("frame: short peek buffer")

// PeekType decodes a frame type VarInt from the start of b without
// consuming it logically (b is not mutated). Requires at least 1 byte.
func PeekType(b []byte) (Type, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrShortPeek
	}
	v, n, err := varint.Decode(b)
	if err != nil {
		return 0, 0, err
	}
	return Type(v), n, nil
}

// PeekLength decodes the length VarInt that follows a frame's type field.
// off is the offset in b where the length field starts (i.e. the number of
// bytes PeekType consumed).
func PeekLength(b []byte, off int) (uint64, int, error) {
	if off > len(b) {
		return 0, 0, ErrShortPeek
	}
	v, n, err := varint.Decode(b[off:])
	if err != nil {
		return 0, 0, err
	}
	return v, n, nil
}
