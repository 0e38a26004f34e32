package http3

import "github.com/saitolume/h3engine/frame"

// goAwayGenerator emits a single GOAWAY frame carrying id, then reports
// done. Frame-type recognition only: no draining
// state machine is built around it.
type goAwayGenerator struct {
	id    uint64
	armed bool
	done  bool
}

func (g *goAwayGenerator) arm(id uint64) { g.id, g.armed = id, true }

func (g *goAwayGenerator) IsDone() bool { return g.done }

func (g *goAwayGenerator) GenerateFrame() (frame.Frame, bool) {
	if g.done || !g.armed {
		return nil, false
	}
	g.done = true
	return &frame.GoAwayFrame{ID: g.id}, true
}

// goAwayHandler is a dispatcher handler for the single recognized GOAWAY
// frame type; it forwards the carried ID to onGoAway, a thin pass-through
// for a caller to build connection-draining behavior on top of.
type goAwayHandler struct {
	onGoAway func(id uint64)
}

func (h *goAwayHandler) Interests() []frame.Type { return []frame.Type{frame.TypeGoAway} }

func (h *goAwayHandler) HandleFrame(streamID uint64, role StreamRole, seq int, f frame.Frame) *Error {
	ga, ok := f.(*frame.GoAwayFrame)
	if !ok {
		return nil
	}
	if h.onGoAway != nil {
		h.onGoAway(ga.ID)
	}
	return nil
}
