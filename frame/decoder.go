package frame

import (
	"github.com/saitolume/h3engine/varint"
)

// Phase names the incremental parser's state as it walks a frame's wire
// header: PhaseType (type varint) -> PhaseLength (length varint) ->
// PhasePayload (payload bytes) -> (deliver) -> PhaseType.
type Phase int

const (
	PhaseType Phase = iota
	PhaseLength
	PhasePayload
)

// Options configure how a Decoder parses SETTINGS frames and bounds
// payload sizes; the zero value uses sane defaults.
type Options struct {
	// MaxSettings caps the number of (id, value) pairs ParseSettings
	// accepts per SETTINGS frame.
	MaxSettings int
	// MaxFrameLen, if non-zero, rejects any declared frame length above
	// this many bytes with ErrFrameTooLarge, guarding against memory
	// exhaustion from a hostile length field.
	MaxFrameLen uint64
}

// ErrFrameTooLarge is returned by Decoder.Decode when a declared frame
// length exceeds Options.MaxFrameLen.
var ErrFrameTooLarge = &FrameLengthError{}

// FrameLengthError reports a frame whose declared length exceeded a limit.
type FrameLengthError struct {
	Type Type
	Len  uint64
	Max  uint64
}

func (e *FrameLengthError) Error() string {
	return e.Type.String() + " frame too large"
}

// Decoder is the per-stream incremental frame parser. It owns no I/O:
// callers append newly-available bytes with Feed and then call Decode
// repeatedly until it reports "not enough data yet", which lets a single
// stream's worth of frames be decoded no matter how the underlying bytes
// are chunked.
type Decoder struct {
	opts Options

	buf   []byte // bytes not yet attributed to a delivered frame
	phase Phase

	typ       Type
	typLen    int
	length    uint64
	lengthLen int
}

// NewDecoder creates a Decoder with the given options.
func NewDecoder(opts Options) *Decoder {
	return &Decoder{opts: opts}
}

// Feed appends newly-read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Pending reports how many unconsumed bytes are buffered.
func (d *Decoder) Pending() int { return len(d.buf) }

// Decode attempts to produce the next complete frame from previously Fed
// bytes. It returns (frame, true, nil) once a full frame is available,
// (nil, false, nil) when more bytes are needed, or (nil, false, err) on a
// hard parse error (e.g. a SETTINGS frame whose length claims more bytes
// than the configured maximum). Settings parse errors (truncation,
// excessive count) are NOT returned as err here; they are reported via the
// parsed SettingsFrame's ParseError field so the caller can classify them,
// the same way a malformed-but-recognizable frame is still "delivered" to
// handlers for them to act on.
func (d *Decoder) Decode() (Frame, bool, error) {
	switch d.phase {
	case PhaseType:
		t, n, err := PeekType(d.buf)
		if err != nil {
			return nil, false, nil // incomplete or empty; wait for more
		}
		d.typ = t
		d.typLen = n
		d.phase = PhaseLength
		fallthrough
	case PhaseLength:
		length, n, err := PeekLength(d.buf, d.typLen)
		if err != nil {
			return nil, false, nil
		}
		if d.opts.MaxFrameLen > 0 && length > d.opts.MaxFrameLen {
			return nil, false, &FrameLengthError{Type: d.typ, Len: length, Max: d.opts.MaxFrameLen}
		}
		d.length = length
		d.lengthLen = n
		d.phase = PhasePayload
		fallthrough
	case PhasePayload:
		total := d.typLen + d.lengthLen + int(d.length)
		if len(d.buf) < total {
			return nil, false, nil
		}
		payload := make([]byte, d.length)
		copy(payload, d.buf[d.typLen+d.lengthLen:total])
		f, err := d.build(d.typ, d.length, payload)
		d.buf = d.buf[total:]
		d.phase = PhaseType
		if err != nil {
			return nil, false, err
		}
		return f, true, nil
	}
	return nil, false, nil
}

func (d *Decoder) build(t Type, length uint64, payload []byte) (Frame, error) {
	switch t {
	case TypeData:
		return &DataFrame{Payload: payload}, nil
	case TypeHeaders:
		return &HeadersFrame{HeaderBlock: payload}, nil
	case TypeCancelPush:
		id, _, err := varint.Decode(payload)
		if err != nil {
			return nil, err
		}
		return &CancelPushFrame{PushID: id}, nil
	case TypeSettings:
		return ParseSettings(payload, length, d.opts.MaxSettings)
	case TypePushPromise:
		id, n, err := varint.Decode(payload)
		if err != nil {
			return nil, err
		}
		return &PushPromiseFrame{PushID: id, HeaderBlock: payload[n:]}, nil
	case TypeGoAway:
		id, _, err := varint.Decode(payload)
		if err != nil {
			return nil, err
		}
		return &GoAwayFrame{ID: id}, nil
	case TypeMaxPushID:
		id, _, err := varint.Decode(payload)
		if err != nil {
			return nil, err
		}
		return &MaxPushIDFrame{ID: id}, nil
	default:
		return &UnknownFrame{RawType: t, Payload: payload}, nil
	}
}

// TryParse is a one-shot convenience over Decoder for tests and simple
// callers: it attempts to parse exactly one frame from b and reports how
// many bytes of b were consumed. It returns ok=false if b does not yet
// contain a complete frame.
func TryParse(b []byte, opts Options) (f Frame, consumed int, ok bool, err error) {
	d := NewDecoder(opts)
	d.Feed(b)
	before := d.Pending()
	f, ok, err = d.Decode()
	if !ok {
		return nil, 0, false, err
	}
	consumed = before - d.Pending()
	return f, consumed, true, nil
}
