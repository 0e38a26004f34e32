package qpack

// decodeRequest is a header block whose decode is stalled on dynamic table
// entries the encoder hasn't sent yet.
type decodeRequest struct {
	streamID   uint64
	largestRef uint64
	base       uint64
	body       []byte
	done       func([]Header, error)
}

// Decoder mirrors a remote Encoder's dynamic table by replaying its
// encoder-stream instructions, and resolves header blocks against that
// mirror, blocking a block's decode until the table has caught up to the
// insert count the block's prefix demands.
type Decoder struct {
	table      *DynamicTable
	maxBlocked int
	blocked    []*decodeRequest
	invalid    bool

	acks []byte // decoder-stream bytes queued for the next DrainAcks
}

// NewDecoder creates a Decoder backed by a fresh mirror table of the given
// byte capacity, blocking at most maxBlocked header blocks concurrently.
func NewDecoder(maxTableSize uint64, maxBlocked int) *Decoder {
	return &Decoder{
		table:      NewDynamicTable(maxTableSize),
		maxBlocked: maxBlocked,
	}
}

// Table exposes the underlying mirror table, mainly for tests.
func (d *Decoder) Table() *DynamicTable { return d.table }

// Invalid reports whether a prior malformed encoder-stream instruction has
// poisoned this decoder; every further operation fails with
// ErrDecoderInvalid.
func (d *Decoder) Invalid() bool { return d.invalid }

// ApplyEncoderInstruction replays one encoder-stream instruction against
// the mirror table and then re-checks every blocked header block, since a
// single insert can be exactly what multiple blocked streams were waiting
// on. A malformed instruction invalidates the decoder and aborts every
// still-blocked request with the error that instruction produced; calls
// after that fail with ErrDecoderInvalid.
func (d *Decoder) ApplyEncoderInstruction(instr EncInstruction) error {
	if d.invalid {
		return ErrDecoderInvalid
	}
	var err error
	switch v := instr.(type) {
	case InsertWithNameRef:
		var name string
		if v.Static {
			h, ok := staticGet(v.NameIndex)
			if !ok {
				err = ErrDecompressionFailed
				break
			}
			name = h.Name
		} else {
			h, gerr := d.table.Get(v.NameIndex)
			if gerr != nil {
				err = ErrDecompressionFailed
				break
			}
			name = h.Name
		}
		_, err = d.table.Insert(name, v.Value)
	case InsertWithoutNameRef:
		_, err = d.table.Insert(v.Name, v.Value)
	case DuplicateInstr:
		_, err = d.table.Duplicate(v.Index)
	case SetCapacityInstr:
		err = d.table.SetMaxSize(v.Capacity)
	}
	if err != nil {
		d.invalid = true
		d.abortBlocked(err)
		return err
	}
	d.unblock()
	return nil
}

func (d *Decoder) unblock() {
	if len(d.blocked) == 0 {
		return
	}
	remaining := d.blocked[:0]
	for _, req := range d.blocked {
		if d.table.InsertedCount() < req.largestRef {
			remaining = append(remaining, req)
			continue
		}
		headers, err := decodeFieldLines(d.table, req.body, req.base)
		if err == nil {
			d.queueAck(HeaderAck{StreamID: req.streamID})
		}
		req.done(headers, err)
	}
	d.blocked = remaining
}

func (d *Decoder) abortBlocked(err error) {
	for _, req := range d.blocked {
		req.done(nil, err)
	}
	d.blocked = nil
}

// DecodeHeaderBlock parses block for streamID. If the dynamic table hasn't
// yet caught up to the block's required insert count, the request is
// queued and done is called later (from a subsequent ApplyEncoderInstruction)
// instead of synchronously; blocked reports which case happened.
func (d *Decoder) DecodeHeaderBlock(streamID uint64, block []byte, done func([]Header, error)) (blocked bool, err error) {
	if d.invalid {
		return false, ErrDecoderInvalid
	}
	largestRef, base, n, err := decodePrefix(block)
	if err != nil {
		return false, ErrDecompressionFailed
	}
	body := block[n:]

	if d.table.InsertedCount() < largestRef {
		if len(d.blocked) >= d.maxBlocked {
			return false, ErrTooManyBlockedStreams
		}
		d.blocked = append(d.blocked, &decodeRequest{
			streamID: streamID, largestRef: largestRef, base: base, body: body, done: done,
		})
		return true, nil
	}

	headers, derr := decodeFieldLines(d.table, body, base)
	if derr == nil {
		d.queueAck(HeaderAck{StreamID: streamID})
	}
	done(headers, derr)
	return false, derr
}

// CancelStream tells the decoder that streamID was abandoned before its
// header block (if any) was decoded: any queued decode is dropped and a
// Stream Cancellation instruction is queued for the remote encoder.
func (d *Decoder) CancelStream(streamID uint64) {
	d.queueAck(StreamCancellation{StreamID: streamID})
	remaining := d.blocked[:0]
	for _, req := range d.blocked {
		if req.streamID == streamID {
			continue
		}
		remaining = append(remaining, req)
	}
	d.blocked = remaining
}

func (d *Decoder) queueAck(instr DecInstruction) {
	d.acks = AppendDecInstruction(d.acks, instr)
}

// DrainAcks returns and clears the decoder-stream bytes accumulated since
// the last call, for the caller to write to the decoder's unidirectional
// stream.
func (d *Decoder) DrainAcks() []byte {
	out := d.acks
	d.acks = nil
	return out
}
