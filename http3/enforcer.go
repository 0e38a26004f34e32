package http3

import (
	"sync/atomic"

	"github.com/saitolume/h3engine/frame"
)

// reservedFrameType reports whether t is one of the HTTP/3 reserved frame
// types (0x02, 0x06, 0x08, 0x09), which must never appear on the wire.
func reservedFrameType(t frame.Type) bool { return frame.IsReserved(t) }

// ProtocolEnforcer is a dispatcher handler with interest in every frame
// type; it enforces control-stream legality: SETTINGS must
// be first and unique on the control stream, and DATA/HEADERS/PUSH_PROMISE
// and reserved types never appear there; reserved types are also rejected
// on request streams.
type ProtocolEnforcer struct {
	seenControlFrame bool
	seenSettings     bool
}

func (e *ProtocolEnforcer) Interests() []frame.Type { return nil }

func (e *ProtocolEnforcer) HandleFrame(streamID uint64, role StreamRole, seq int, f frame.Frame) *Error {
	t := f.Type()

	if role == RoleRequest && reservedFrameType(t) {
		return streamError(ErrorFrameUnexpected, "reserved frame type on request stream")
	}

	if role != RoleControl {
		return nil
	}

	first := !e.seenControlFrame
	e.seenControlFrame = true

	if first && t != frame.TypeSettings {
		return connError(ErrorMissingSettings, "first frame on control stream was not SETTINGS")
	}

	switch {
	case t == frame.TypeSettings:
		if e.seenSettings {
			return connError(ErrorFrameUnexpected, "second SETTINGS frame on control stream")
		}
		e.seenSettings = true
	case t == frame.TypeData, t == frame.TypeHeaders, t == frame.TypePushPromise, reservedFrameType(t):
		return connError(ErrorFrameUnexpected, "illegal frame type on control stream: "+t.String())
	}
	return nil
}

// FrameCounter is a dispatcher handler registering interest in every
// type; it tallies a per-type count and a shared connection-wide total.
type FrameCounter struct {
	byType map[frame.Type]*uint64
	total  uint64
}

// NewFrameCounter creates an empty FrameCounter.
func NewFrameCounter() *FrameCounter {
	return &FrameCounter{byType: make(map[frame.Type]*uint64)}
}

func (c *FrameCounter) Interests() []frame.Type { return nil }

func (c *FrameCounter) HandleFrame(streamID uint64, role StreamRole, seq int, f frame.Frame) *Error {
	t := f.Type()
	p, ok := c.byType[t]
	if !ok {
		var v uint64
		p = &v
		c.byType[t] = p
	}
	atomic.AddUint64(p, 1)
	atomic.AddUint64(&c.total, 1)
	return nil
}

// Count returns the number of frames of type t seen so far.
func (c *FrameCounter) Count(t frame.Type) uint64 {
	p, ok := c.byType[t]
	if !ok {
		return 0
	}
	return atomic.LoadUint64(p)
}

// Total returns the number of frames of any type seen so far.
func (c *FrameCounter) Total() uint64 { return atomic.LoadUint64(&c.total) }
