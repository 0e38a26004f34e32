// Package vio bridges a QUIC stream's bytes to read/write virtual I/O
// objects the HTTP/3 engine's session and transaction state machines drive,
// generalizing the cooperative I/O-core VIO/VConnection pattern (a
// continuation registers interest in NBytes of I/O and is notified by
// event, rather than blocking a thread) into a single-owner
// goroutine-and-channel model.
package vio

import "io"

// Kind identifies the four event classes an Adaptor can raise.
type Kind int

const (
	ReadReady Kind = iota
	ReadComplete
	WriteReady
	WriteComplete
)

func (k Kind) String() string {
	switch k {
	case ReadReady:
		return "READ_READY"
	case ReadComplete:
		return "READ_COMPLETE"
	case WriteReady:
		return "WRITE_READY"
	case WriteComplete:
		return "WRITE_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered to a Continuation when a VIO makes progress or
// finishes.
type Event struct {
	Kind   Kind
	NBytes int64
	Err    error
}

// Continuation is whatever owns a VIO and wants to hear about its
// progress -- a transaction's dispatcher or collector, in practice.
type Continuation interface {
	HandleEvent(Event)
}

// State is the Adaptor's lifecycle: Open until do_io_close (or an
// unrecoverable I/O error), then permanently Closed.
type State int

const (
	Open State = iota
	Closed
)

// VIO tracks how much of a requested transfer has completed, the same
// ntodo/ndone accounting the I/O core uses so the owning transaction never
// needs to inspect the adaptor's internal buffers directly.
type VIO struct {
	NBytes int64
	NDone  int64
	Cont   Continuation
}

// NTodo returns the number of bytes still outstanding.
func (v *VIO) NTodo() int64 {
	if v == nil {
		return 0
	}
	return v.NBytes - v.NDone
}

// Scheduler defers a function call onto the connection's single owner
// goroutine. Adaptor never calls a Continuation directly from within
// DoIORead/DoIOWrite/Encourage*; every event is posted through here so
// handler code never races the goroutine that invoked it.
type Scheduler interface {
	Post(func())
}

// StreamReader and StreamWriter are the only two operations the adaptor
// needs from a QUIC stream, decoupling this package from any one QUIC
// library's stream type.
type StreamReader interface {
	Read(p []byte) (int, error)
}

type StreamWriter interface {
	Write(p []byte) (int, error)
}

// Adaptor bridges one QUIC stream's bytes to a read VIO and a write VIO.
// It holds at most one pending event of each kind; further encourage calls
// while an event of that kind is already scheduled are silently coalesced
// until the event fires.
type Adaptor struct {
	sched Scheduler
	r     StreamReader
	w     StreamWriter

	state State

	readVIO *VIO
	readBuf io.Writer

	writeVIO    *VIO
	writeReader io.Reader

	pending [4]bool // indexed by Kind
}

// NewAdaptor creates an Adaptor over r/w, posting scheduled events through
// sched.
func NewAdaptor(sched Scheduler, r StreamReader, w StreamWriter) *Adaptor {
	return &Adaptor{sched: sched, r: r, w: w}
}

// State reports the adaptor's current lifecycle state.
func (a *Adaptor) State() State { return a.state }

// DoIORead arms a read of up to nbytes, appending stream bytes into buf as
// they arrive, and returns the VIO tracking its progress. Pass nbytes < 0
// for "read until EOF".
func (a *Adaptor) DoIORead(cont Continuation, nbytes int64, buf io.Writer) *VIO {
	a.readVIO = &VIO{NBytes: nbytes, Cont: cont}
	a.readBuf = buf
	a.pumpRead()
	return a.readVIO
}

// DoIOWrite arms a write of up to nbytes, draining reader and forwarding
// the bytes to the stream, and returns the VIO tracking its progress.
func (a *Adaptor) DoIOWrite(cont Continuation, nbytes int64, reader io.Reader) *VIO {
	a.writeVIO = &VIO{NBytes: nbytes, Cont: cont}
	a.writeReader = reader
	a.pumpWrite()
	return a.writeVIO
}

// DoIOClose transitions the adaptor to Closed. Idempotent: closing an
// already-closed adaptor does nothing further. Events already scheduled
// before the close still fire, and EncourageRead/EncourageWrite do nothing
// afterward; DoIORead and DoIOWrite do not check the state, so calling
// either after a close still arms a VIO and touches the stream.
func (a *Adaptor) DoIOClose() {
	a.state = Closed
}

// EncourageRead tells the adaptor new bytes may be available on the
// underlying stream. A no-op while a read event is already pending, while
// there is no armed read VIO, or once the adaptor is closed.
func (a *Adaptor) EncourageRead() {
	if a.state == Closed || a.readVIO == nil {
		return
	}
	if a.pending[ReadReady] || a.pending[ReadComplete] {
		return
	}
	a.pumpRead()
}

// EncourageWrite tells the adaptor the underlying stream can accept more
// bytes. Coalesces the same way EncourageRead does.
func (a *Adaptor) EncourageWrite() {
	if a.state == Closed || a.writeVIO == nil {
		return
	}
	if a.pending[WriteReady] || a.pending[WriteComplete] {
		return
	}
	a.pumpWrite()
}

func (a *Adaptor) pumpRead() {
	todo := a.readVIO.NTodo()
	if todo <= 0 && a.readVIO.NBytes >= 0 {
		return
	}
	size := todo
	if size <= 0 || size > 64*1024 {
		size = 64 * 1024
	}
	chunk := make([]byte, size)
	n, err := a.r.Read(chunk)
	if n > 0 {
		a.readBuf.Write(chunk[:n])
		a.readVIO.NDone += int64(n)
	}
	switch {
	case err == io.EOF:
		a.state = Closed
		a.scheduleRead(ReadComplete, int64(n), nil)
	case err != nil:
		a.state = Closed
		a.scheduleRead(ReadComplete, int64(n), err)
	case a.readVIO.NBytes >= 0 && a.readVIO.NTodo() == 0:
		a.scheduleRead(ReadComplete, int64(n), nil)
	case n > 0:
		a.scheduleRead(ReadReady, int64(n), nil)
	}
}

func (a *Adaptor) pumpWrite() {
	todo := a.writeVIO.NTodo()
	if todo <= 0 && a.writeVIO.NBytes >= 0 {
		return
	}
	size := todo
	if size <= 0 || size > 64*1024 {
		size = 64 * 1024
	}
	chunk := make([]byte, size)
	n, rerr := a.writeReader.Read(chunk)
	if n > 0 {
		if _, werr := a.w.Write(chunk[:n]); werr != nil {
			a.state = Closed
			a.scheduleWrite(WriteComplete, 0, werr)
			return
		}
		a.writeVIO.NDone += int64(n)
	}
	switch {
	case rerr != nil && rerr != io.EOF:
		a.state = Closed
		a.scheduleWrite(WriteComplete, int64(n), rerr)
	case a.writeVIO.NTodo() == 0 || rerr == io.EOF:
		a.scheduleWrite(WriteComplete, int64(n), nil)
	case n > 0:
		a.scheduleWrite(WriteReady, int64(n), nil)
	}
}

func (a *Adaptor) scheduleRead(kind Kind, n int64, err error) {
	a.pending[kind] = true
	cont := a.readVIO.Cont
	ev := Event{Kind: kind, NBytes: n, Err: err}
	a.sched.Post(func() {
		a.pending[kind] = false
		if cont != nil {
			cont.HandleEvent(ev)
		}
	})
}

func (a *Adaptor) scheduleWrite(kind Kind, n int64, err error) {
	a.pending[kind] = true
	cont := a.writeVIO.Cont
	ev := Event{Kind: kind, NBytes: n, Err: err}
	a.sched.Post(func() {
		a.pending[kind] = false
		if cont != nil {
			cont.HandleEvent(ev)
		}
	})
}
