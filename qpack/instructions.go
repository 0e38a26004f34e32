package qpack

import (
	"github.com/saitolume/h3engine/varint"
)

// Encoder-stream instruction opcodes. Bit layout here is a
// deliberate simplification of RFC 9204's tightly packed encoding: every
// string literal (name or value) is written as its own standalone
// varint-string (H-flag + 7-bit length prefix), even in the few places the
// real wire format folds the H-flag into a neighboring opcode byte. This
// costs at most one extra byte per instruction and keeps every string
// encode/decode path in this package identical; see DESIGN.md.
const (
	insertWithNameRefMarker    = 0x80 // 1Sxxxxxx
	insertWithNameRefStatic    = 0x40
	insertWithoutNameRefMarker = 0x40 // standalone opcode byte, no packed bits
	duplicateMarker            = 0x00 // 000xxxxx
	setCapacityMarker          = 0x20 // 001xxxxx
)

// EncInstruction is one encoder-stream instruction: a mutation the sender's
// encoder makes to its dynamic table, which the receiver's decoder must
// replay in order to keep its mirror table in sync.
type EncInstruction interface{ isEncInstruction() }

// InsertWithNameRef inserts a new entry whose name is a reference into the
// static or dynamic table, and whose value is a literal.
type InsertWithNameRef struct {
	Static    bool
	NameIndex uint64
	Value     string
}

// InsertWithoutNameRef inserts a new entry whose name and value are both
// literals.
type InsertWithoutNameRef struct {
	Name, Value string
}

// DuplicateInstr duplicates the dynamic table entry at Index.
type DuplicateInstr struct{ Index uint64 }

// SetCapacityInstr changes the dynamic table's byte budget.
type SetCapacityInstr struct{ Capacity uint64 }

func (InsertWithNameRef) isEncInstruction()    {}
func (InsertWithoutNameRef) isEncInstruction() {}
func (DuplicateInstr) isEncInstruction()       {}
func (SetCapacityInstr) isEncInstruction()     {}

// AppendEncInstruction serializes instr onto dst.
func AppendEncInstruction(dst []byte, instr EncInstruction) []byte {
	switch v := instr.(type) {
	case InsertWithNameRef:
		marker := byte(insertWithNameRefMarker)
		if v.Static {
			marker |= insertWithNameRefStatic
		}
		dst = appendPrefixedInt(dst, v.NameIndex, 6, marker)
		return varint.EncodeString(dst, v.Value, 7, 0x80)
	case InsertWithoutNameRef:
		// Name has no integer to pack the opcode into, so unlike
		// InsertWithNameRef the opcode gets its own byte and Name is a fully
		// standalone varint-string; this keeps the opcode bit from sharing a
		// byte with a Huffman flag that EncodeString may legitimately clear.
		dst = append(dst, insertWithoutNameRefMarker)
		dst = varint.EncodeString(dst, v.Name, 7, 0x80)
		return varint.EncodeString(dst, v.Value, 7, 0x80)
	case DuplicateInstr:
		return appendPrefixedInt(dst, v.Index, 5, duplicateMarker)
	case SetCapacityInstr:
		return appendPrefixedInt(dst, v.Capacity, 5, setCapacityMarker)
	default:
		return dst
	}
}

// EncInstructionDecoder incrementally parses encoder-stream instructions,
// the way frame.Decoder parses frames: Feed appends bytes, Decode drains as
// many complete instructions as are available.
type EncInstructionDecoder struct {
	buf []byte
}

func (d *EncInstructionDecoder) Feed(b []byte) { d.buf = append(d.buf, b...) }
func (d *EncInstructionDecoder) Pending() int  { return len(d.buf) }

func (d *EncInstructionDecoder) Decode() (EncInstruction, bool, error) {
	if len(d.buf) == 0 {
		return nil, false, nil
	}
	first := d.buf[0]
	switch {
	case first&0x80 != 0: // Insert With Name Reference
		static := first&insertWithNameRefStatic != 0
		idx, n, err := decodePrefixedInt(d.buf, 6)
		if err != nil {
			return nil, false, nil
		}
		value, m, err := varint.DecodeString(d.buf[n:], 7, 0x80)
		if err != nil {
			return nil, false, nil
		}
		total := n + m
		d.buf = d.buf[total:]
		return InsertWithNameRef{Static: static, NameIndex: idx, Value: value}, true, nil
	case first&0x40 != 0: // Insert Without Name Reference
		if len(d.buf) < 2 {
			return nil, false, nil
		}
		name, n, err := varint.DecodeString(d.buf[1:], 7, 0x80)
		if err != nil {
			return nil, false, nil
		}
		value, m, err := varint.DecodeString(d.buf[1+n:], 7, 0x80)
		if err != nil {
			return nil, false, nil
		}
		total := 1 + n + m
		d.buf = d.buf[total:]
		return InsertWithoutNameRef{Name: name, Value: value}, true, nil
	case first&0x20 != 0: // Dynamic Table Size Update
		cap, n, err := decodePrefixedInt(d.buf, 5)
		if err != nil {
			return nil, false, nil
		}
		d.buf = d.buf[n:]
		return SetCapacityInstr{Capacity: cap}, true, nil
	default: // Duplicate
		idx, n, err := decodePrefixedInt(d.buf, 5)
		if err != nil {
			return nil, false, nil
		}
		d.buf = d.buf[n:]
		return DuplicateInstr{Index: idx}, true, nil
	}
}

// Decoder-stream instruction opcodes.
const (
	headerAckMarker    = 0x80 // 1xxxxxxx
	streamCancelMarker = 0x40 // 01xxxxxx
	tableSyncMarker    = 0x00 // 00xxxxxx
)

// DecInstruction is one decoder-stream instruction: feedback from the
// receiver's decoder back to the sender's encoder.
type DecInstruction interface{ isDecInstruction() }

// HeaderAck acknowledges that StreamID's header block has been fully
// decoded; the encoder can release its references for that block.
type HeaderAck struct{ StreamID uint64 }

// StreamCancellation reports that StreamID was reset/cancelled before its
// header block was decoded; the encoder releases references the same way
// it would on HeaderAck.
type StreamCancellation struct{ StreamID uint64 }

// TableStateSync reports an increment to the decoder's observed insert
// count, independent of any specific stream's header block.
type TableStateSync struct{ InsertCountIncrement uint64 }

func (HeaderAck) isDecInstruction()           {}
func (StreamCancellation) isDecInstruction()  {}
func (TableStateSync) isDecInstruction()      {}

// AppendDecInstruction serializes instr onto dst.
func AppendDecInstruction(dst []byte, instr DecInstruction) []byte {
	switch v := instr.(type) {
	case HeaderAck:
		return appendPrefixedInt(dst, v.StreamID, 7, headerAckMarker)
	case StreamCancellation:
		return appendPrefixedInt(dst, v.StreamID, 6, streamCancelMarker)
	case TableStateSync:
		return appendPrefixedInt(dst, v.InsertCountIncrement, 6, tableSyncMarker)
	default:
		return dst
	}
}

// DecInstructionDecoder incrementally parses decoder-stream instructions.
type DecInstructionDecoder struct {
	buf []byte
}

func (d *DecInstructionDecoder) Feed(b []byte) { d.buf = append(d.buf, b...) }
func (d *DecInstructionDecoder) Pending() int  { return len(d.buf) }

func (d *DecInstructionDecoder) Decode() (DecInstruction, bool, error) {
	if len(d.buf) == 0 {
		return nil, false, nil
	}
	first := d.buf[0]
	switch {
	case first&0x80 != 0:
		id, n, err := decodePrefixedInt(d.buf, 7)
		if err != nil {
			return nil, false, nil
		}
		d.buf = d.buf[n:]
		return HeaderAck{StreamID: id}, true, nil
	case first&0x40 != 0:
		id, n, err := decodePrefixedInt(d.buf, 6)
		if err != nil {
			return nil, false, nil
		}
		d.buf = d.buf[n:]
		return StreamCancellation{StreamID: id}, true, nil
	default:
		inc, n, err := decodePrefixedInt(d.buf, 6)
		if err != nil {
			return nil, false, nil
		}
		d.buf = d.buf[n:]
		return TableStateSync{InsertCountIncrement: inc}, true, nil
	}
}
