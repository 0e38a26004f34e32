package http3

import (
	"io"

	"github.com/saitolume/h3engine/frame"
)

// Generator produces frames for a write-side stream incrementally:
// GenerateFrame returns the next frame to write, if any, and IsDone
// reports whether this generator has nothing further to ever contribute.
type Generator interface {
	GenerateFrame() (frame.Frame, bool)
	IsDone() bool
}

// Collector owns an ordered list of generators and, on a write-ready
// signal, drains each non-done generator in order, serializing every
// frame it produces to w.
type Collector struct {
	generators []Generator
}

// NewCollector creates a Collector over gens, in drain order.
func NewCollector(gens ...Generator) *Collector {
	return &Collector{generators: gens}
}

// AddGenerator appends g to the end of the drain order. Safe to call after
// draining has started; a generator added after earlier ones have gone
// IsDone still gets its turn on the next Drain.
func (c *Collector) AddGenerator(g Generator) {
	c.generators = append(c.generators, g)
}

// Drain writes every frame currently available from the collector's
// generators to w, returning the number of bytes written and whether
// every generator is now done.
func (c *Collector) Drain(w io.Writer) (written int, allDone bool, err error) {
	allDone = true
	for _, g := range c.generators {
		for {
			f, ok := g.GenerateFrame()
			if !ok {
				break
			}
			buf, ferr := f.AppendTo(nil)
			if ferr != nil {
				return written, false, ferr
			}
			n, werr := w.Write(buf)
			written += n
			if werr != nil {
				return written, false, werr
			}
		}
		if !g.IsDone() {
			allDone = false
		}
	}
	return written, allDone, nil
}

// HeaderFramer emits a HEADERS frame for a single QPACK-encoded header
// block, once, as soon as the block is available.
type HeaderFramer struct {
	block []byte
	ready bool
	done  bool
}

// NewHeaderFramer creates a HeaderFramer with no block yet armed;
// SetHeaderBlock must be called before it will produce anything.
func NewHeaderFramer() *HeaderFramer { return &HeaderFramer{} }

// SetHeaderBlock arms the single HEADERS frame this framer will emit.
func (g *HeaderFramer) SetHeaderBlock(block []byte) {
	g.block = block
	g.ready = true
}

func (g *HeaderFramer) IsDone() bool { return g.done }

func (g *HeaderFramer) GenerateFrame() (frame.Frame, bool) {
	if g.done || !g.ready {
		return nil, false
	}
	g.done = true
	return &frame.HeadersFrame{HeaderBlock: g.block}, true
}

// DataFramer slices a write-side byte source into DATA frames of bounded
// size. It refuses to produce anything while gate (typically "has the
// response HEADERS frame been sent yet") returns false, enforcing the
// HEADERS-before-DATA ordering invariant.
type DataFramer struct {
	src     io.Reader
	gate    func() bool
	maxSize int
	eof     bool
}

// NewDataFramer creates a DataFramer reading from src, bounded at maxSize
// bytes per frame, producing nothing until gate returns true.
func NewDataFramer(src io.Reader, gate func() bool, maxSize int) *DataFramer {
	if maxSize <= 0 {
		maxSize = 16 * 1024
	}
	return &DataFramer{src: src, gate: gate, maxSize: maxSize}
}

func (g *DataFramer) IsDone() bool { return g.eof }

func (g *DataFramer) GenerateFrame() (frame.Frame, bool) {
	if g.eof || (g.gate != nil && !g.gate()) {
		return nil, false
	}
	buf := make([]byte, g.maxSize)
	n, err := g.src.Read(buf)
	if n == 0 {
		if err != nil {
			g.eof = true
		}
		return nil, false
	}
	if err != nil {
		g.eof = true
	}
	return &frame.DataFrame{Payload: buf[:n]}, true
}
