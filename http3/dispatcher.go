package http3

import (
	"io"

	"github.com/saitolume/h3engine/frame"
)

// StreamRole classifies a QUIC stream for dispatch purposes, determined
// once per stream at its first byte (unidirectional) or by direction and
// parity (bidirectional request streams).
type StreamRole int

const (
	RoleUnknown StreamRole = iota
	RoleControl
	RoleQPACKEncoder
	RoleQPACKDecoder
	RolePush
	RoleRequest
)

func (r StreamRole) String() string {
	switch r {
	case RoleControl:
		return "control"
	case RoleQPACKEncoder:
		return "qpack-encoder"
	case RoleQPACKDecoder:
		return "qpack-decoder"
	case RolePush:
		return "push"
	case RoleRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Unidirectional stream type markers (the first varint byte of a
// uni-stream); concrete values come from the HTTP/3 and QPACK specs.
const (
	StreamTypeControl      = 0x00
	StreamTypePush         = 0x01
	StreamTypeQPACKEncoder = 0x02
	StreamTypeQPACKDecoder = 0x03
)

func roleForStreamType(t uint64) StreamRole {
	switch t {
	case StreamTypeControl:
		return RoleControl
	case StreamTypePush:
		return RolePush
	case StreamTypeQPACKEncoder:
		return RoleQPACKEncoder
	case StreamTypeQPACKDecoder:
		return RoleQPACKDecoder
	default:
		return RoleUnknown
	}
}

// Handler is a dispatcher participant: it declares interest in a set of
// frame types, and is invoked once per delivered frame of one of those
// types. Handlers interested in every type (nil Interests) run first, in
// their registration order; type-specific handlers run after them, in their
// own registration order. Registration order between the two groups does
// not change which group runs first.
type Handler interface {
	Interests() []frame.Type
	HandleFrame(streamID uint64, role StreamRole, seq int, f frame.Frame) *Error
}

// Dispatcher reads as many whole frames as are available from a stream
// reader and routes each to every handler that registered interest in its
// type, stopping at the first handler-signalled error.
type Dispatcher struct {
	role    StreamRole
	dec     *frame.Decoder
	seq     int
	byType  map[frame.Type][]Handler
	allType []Handler // handlers interested in every type (e.g. FrameCounter, ProtocolEnforcer)
}

// NewDispatcher creates a Dispatcher for a stream of the given role.
func NewDispatcher(role StreamRole, opts frame.Options) *Dispatcher {
	return &Dispatcher{
		role:   role,
		dec:    frame.NewDecoder(opts),
		byType: make(map[frame.Type][]Handler),
	}
}

// AddHandler registers handler for every frame type it declares interest
// in. A handler whose Interests() returns nil is treated as interested in
// every type.
func (d *Dispatcher) AddHandler(h Handler) {
	interests := h.Interests()
	if len(interests) == 0 {
		d.allType = append(d.allType, h)
		return
	}
	for _, t := range interests {
		d.byType[t] = append(d.byType[t], h)
	}
}

// OnReadReady reads from r until it would block, parsing and delivering as
// many complete frames as are available. nread reports how many bytes were
// consumed from r this call.
func (d *Dispatcher) OnReadReady(streamID uint64, r io.Reader) (nread int, herr *Error) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.dec.Feed(buf[:n])
			nread += n
		}
		for {
			f, ok, derr := d.dec.Decode()
			if derr != nil {
				return nread, connError(ErrorFrameError, derr.Error())
			}
			if !ok {
				break
			}
			if e := d.deliver(streamID, f); e != nil {
				return nread, e
			}
		}
		if err != nil {
			return nread, nil
		}
		if n == 0 {
			return nread, nil
		}
	}
}

func (d *Dispatcher) deliver(streamID uint64, f frame.Frame) *Error {
	seq := d.seq
	d.seq++
	for _, h := range d.allType {
		if e := h.HandleFrame(streamID, d.role, seq, f); e != nil {
			return e
		}
	}
	for _, h := range d.byType[f.Type()] {
		if e := h.HandleFrame(streamID, d.role, seq, f); e != nil {
			return e
		}
	}
	return nil
}
