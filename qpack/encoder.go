package qpack

import "strings"

// HeaderBlockReferences records the span of dynamic table entries a single
// encoded header block referenced, so the encoder knows exactly which
// entries to release once the decoder acknowledges it.
type HeaderBlockReferences struct {
	Smallest, Largest uint64
	Present           bool
}

// Encoder turns header sets into QPACK header blocks, opportunistically
// growing its dynamic table and queuing the encoder-stream instructions
// needed to keep a remote decoder's mirror table in sync.
type Encoder struct {
	table *DynamicTable

	// largestKnownReceivedIndex is the encoder's belief about how far the
	// remote decoder has caught up, advanced by HandleAck as
	// acknowledgements and table-sync instructions arrive on the decoder
	// stream.
	largestKnownReceivedIndex uint64

	instructions []byte // encoder-stream bytes queued for the next DrainInstructions

	refs map[uint64]HeaderBlockReferences // stream ID -> reference span
}

// NewEncoder creates an Encoder backed by a fresh dynamic table of the
// given byte capacity.
func NewEncoder(maxTableSize uint64) *Encoder {
	return &Encoder{
		table: NewDynamicTable(maxTableSize),
		refs:  make(map[uint64]HeaderBlockReferences),
	}
}

// Table exposes the underlying dynamic table, mainly for tests.
func (e *Encoder) Table() *DynamicTable { return e.table }

// EncodeHeaderBlock encodes headers for streamID, returning the bytes to
// place on the request/response stream (prefix followed by field lines).
// Any new dynamic table entries it creates are queued as encoder-stream
// instructions, retrievable with DrainInstructions. never suppresses
// dynamic indexing for sensitive fields (e.g. auth headers), matching the
// "literal never indexed" path of the six-step algorithm.
func (e *Encoder) EncodeHeaderBlock(streamID uint64, headers []Header, never func(name string) bool) []byte {
	base := e.table.InsertedCount()
	var largestRef uint64
	var smallestRef, largestRefUsed uint64
	haveRef := false

	ref := func(absIdx uint64) {
		if err := e.table.Ref(absIdx); err != nil {
			return
		}
		if !haveRef {
			smallestRef, largestRefUsed, haveRef = absIdx, absIdx, true
		} else {
			if absIdx < smallestRef {
				smallestRef = absIdx
			}
			if absIdx > largestRefUsed {
				largestRefUsed = absIdx
			}
		}
		if absIdx+1 > largestRef {
			largestRef = absIdx + 1
		}
	}

	var body []byte
	for _, h := range headers {
		name := strings.ToLower(h.Name)
		value := h.Value
		neverThis := never != nil && never(name)

		// Step 1: exact match in the static table.
		if idx, ok := staticLookupExact(name, value); ok {
			body = appendIndexedOrPostBase(body, uint64(idx), base, true)
			continue
		}

		// Step 2: exact match in the dynamic table.
		if idx, ok := e.table.LookupExact(name, value); ok {
			if e.table.ShouldDuplicate(idx) {
				if newIdx, err := e.table.Duplicate(idx); err == nil {
					e.queue(DuplicateInstr{Index: idx})
					idx = newIdx
				}
			}
			ref(idx)
			body = appendIndexedOrPostBase(body, idx, base, false)
			continue
		}

		// Step 3: name match in the static table, insert with name ref.
		if idx, ok := staticLookupName(name); ok && !neverThis {
			if newIdx, err := e.table.Insert(name, value); err == nil {
				e.queue(InsertWithNameRef{Static: true, NameIndex: uint64(idx), Value: value})
				ref(newIdx)
				body = appendIndexedOrPostBase(body, newIdx, base, false)
				continue
			}
			body = appendLiteralWithNameRef(body, true, uint64(idx), base, value, neverThis)
			continue
		}

		// Step 4: name match in the dynamic table, insert with name ref.
		if idx, ok := e.table.LookupName(name); ok {
			nameIdx := idx
			if e.table.ShouldDuplicate(idx) {
				if newNameIdx, err := e.table.Duplicate(idx); err == nil {
					e.queue(DuplicateInstr{Index: idx})
					nameIdx = newNameIdx
				}
			}
			if !neverThis {
				if newIdx, err := e.table.Insert(name, value); err == nil {
					e.queue(InsertWithNameRef{Static: false, NameIndex: nameIdx, Value: value})
					ref(newIdx)
					body = appendIndexedOrPostBase(body, newIdx, base, false)
					continue
				}
			}
			body = appendLiteralWithNameRef(body, false, nameIdx, base, value, neverThis)
			continue
		}

		// Step 5: no name match anywhere; insert a wholly new entry.
		if !neverThis {
			if newIdx, err := e.table.Insert(name, value); err == nil {
				e.queue(InsertWithoutNameRef{Name: name, Value: value})
				ref(newIdx)
				body = appendIndexedOrPostBase(body, newIdx, base, false)
				continue
			}
		}

		// Step 6: literal, no table interaction at all.
		body = appendLiteralWithoutNameRef(body, name, value, neverThis)
	}

	if haveRef {
		e.refs[streamID] = HeaderBlockReferences{Smallest: smallestRef, Largest: largestRefUsed, Present: true}
	}

	out := appendPrefix(nil, largestRef, base)
	return append(out, body...)
}

func (e *Encoder) queue(instr EncInstruction) {
	e.instructions = AppendEncInstruction(e.instructions, instr)
}

// DrainInstructions returns and clears the encoder-stream bytes
// accumulated since the last call, for the caller to write to the
// encoder's unidirectional stream.
func (e *Encoder) DrainInstructions() []byte {
	out := e.instructions
	e.instructions = nil
	return out
}

// HandleAck applies a decoder-stream instruction received from the peer,
// releasing references and advancing the encoder's view of how far the
// remote decoder has caught up.
func (e *Encoder) HandleAck(instr DecInstruction) {
	switch v := instr.(type) {
	case HeaderAck:
		e.releaseStream(v.StreamID)
	case StreamCancellation:
		e.releaseStream(v.StreamID)
	case TableStateSync:
		e.largestKnownReceivedIndex += v.InsertCountIncrement
	}
}

func (e *Encoder) releaseStream(streamID uint64) {
	r, ok := e.refs[streamID]
	if !ok {
		return
	}
	e.table.Release(r.Smallest, r.Largest)
	delete(e.refs, streamID)
	if r.Largest+1 > e.largestKnownReceivedIndex {
		e.largestKnownReceivedIndex = r.Largest + 1
	}
}
