package frame

import (
	"fmt"

	"github.com/saitolume/h3engine/varint"
)

// SettingID identifies one (id, value) pair inside a SETTINGS frame.
type SettingID uint64

// Recognized setting identifiers. IDs not in this set are
// parsed but ignored, per RFC 9114 §7.2.4.1.
const (
	SettingHeaderTableSize     SettingID = 0x01
	SettingMaxFieldSectionSize SettingID = 0x06
	SettingQPACKBlockedStreams SettingID = 0x07
	SettingNumPlaceholders     SettingID = 0x09
)

func (id SettingID) String() string {
	switch id {
	case SettingHeaderTableSize:
		return "HEADER_TABLE_SIZE"
	case SettingMaxFieldSectionSize:
		return "MAX_FIELD_SECTION_SIZE"
	case SettingQPACKBlockedStreams:
		return "QPACK_BLOCKED_STREAMS"
	case SettingNumPlaceholders:
		return "NUM_PLACEHOLDERS"
	default:
		return fmt.Sprintf("SETTING(%#x)", uint64(id))
	}
}

// ParseErrorKind classifies why a SETTINGS frame failed to parse, so the
// caller (the settings handler / protocol enforcer) can choose the right
// H3_* error code.
type ParseErrorKind int

const (
	// ParseErrorNone means the frame parsed cleanly.
	ParseErrorNone ParseErrorKind = iota
	// ParseErrorTruncated means a value VarInt started but did not fit
	// within the declared frame length ("invalid SETTINGS frame").
	ParseErrorTruncated
	// ParseErrorExcessive means more than maxSettings pairs were present.
	ParseErrorExcessive
)

// SettingsFrame carries a sequence of (id, value) pairs (RFC 9114 §7.2.4).
// Pairs holds every parsed pair in wire order; pairs whose id is not one of
// the constants above are kept there too (for pass-through/metrics) but are
// never consulted by the settings handler.
type SettingsFrame struct {
	Pairs []SettingPair

	// ParseError records why parsing stopped early, if it did.
	// ParseErrorNone if the frame is entirely well-formed.
	ParseError ParseErrorKind
}

// SettingPair is one (id, value) entry of a SETTINGS frame.
type SettingPair struct {
	ID    SettingID
	Value uint64
}

func (f *SettingsFrame) Type() Type { return TypeSettings }

func (f *SettingsFrame) PayloadLen() uint64 {
	var n uint64
	for _, p := range f.Pairs {
		idn, _ := varint.Len(uint64(p.ID))
		vn, _ := varint.Len(p.Value)
		n += uint64(idn) + uint64(vn)
	}
	return n
}

func (f *SettingsFrame) AppendTo(dst []byte) ([]byte, error) {
	dst, err := appendHeader(dst, TypeSettings, f.PayloadLen())
	if err != nil {
		return dst, err
	}
	for _, p := range f.Pairs {
		dst, err = varint.Append(dst, uint64(p.ID))
		if err != nil {
			return dst, err
		}
		dst, err = varint.Append(dst, p.Value)
		if err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// Get returns the value for a recognized id and whether it was present.
func (f *SettingsFrame) Get(id SettingID) (uint64, bool) {
	for _, p := range f.Pairs {
		if p.ID == id {
			return p.Value, true
		}
	}
	return 0, false
}

// IsValid reports whether the frame parsed without truncation or excess.
func (f *SettingsFrame) IsValid() bool { return f.ParseError == ParseErrorNone }

// defaultMaxSettings is the number of pairs ParseSettings accepts before
// reporting ParseErrorExcessive when the caller passes no positive
// max_settings value of its own.
const defaultMaxSettings = 128

// ParseSettings decodes a SETTINGS payload of exactly payloadLen bytes from
// the front of b. b must contain at least payloadLen bytes (the caller,
// typically the incremental frame decoder, only invokes this once the full
// payload has arrived). maxSettings is the configured cap; pass 0 to use a sane built-in default.
func ParseSettings(b []byte, payloadLen uint64, maxSettings int) (*SettingsFrame, error) {
	if maxSettings <= 0 {
		maxSettings = defaultMaxSettings
	}
	if uint64(len(b)) < payloadLen {
		return nil, ErrShortPeek
	}
	b = b[:payloadLen]
	f := &SettingsFrame{}
	for len(b) > 0 {
		if len(f.Pairs) >= maxSettings {
			f.ParseError = ParseErrorExcessive
			return f, nil
		}
		id, n, err := varint.Decode(b)
		if err != nil {
			// A boundary with no value, or a malformed varint: the pair
			// stream did not consume exactly `length` bytes.
			f.ParseError = ParseErrorTruncated
			return f, nil
		}
		b = b[n:]
		if len(b) == 0 {
			// id present but no room for its value.
			f.ParseError = ParseErrorTruncated
			return f, nil
		}
		value, n, err := varint.Decode(b)
		if err != nil {
			f.ParseError = ParseErrorTruncated
			return f, nil
		}
		b = b[n:]
		f.Pairs = append(f.Pairs, SettingPair{ID: SettingID(id), Value: value})
	}
	return f, nil
}
