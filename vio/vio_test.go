package vio

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type fakeScheduler struct {
	queue []func()
}

func (s *fakeScheduler) Post(f func()) { s.queue = append(s.queue, f) }

func (s *fakeScheduler) Run() {
	for len(s.queue) > 0 {
		f := s.queue[0]
		s.queue = s.queue[1:]
		f()
	}
}

type recordingCont struct {
	events []Event
}

func (c *recordingCont) HandleEvent(e Event) { c.events = append(c.events, e) }

type countingReader struct {
	r     io.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

func TestDoIOReadCompletesWhenNBytesReached(t *testing.T) {
	sched := &fakeScheduler{}
	src := bytes.NewReader([]byte("hello"))
	a := NewAdaptor(sched, src, nil)

	var buf bytes.Buffer
	cont := &recordingCont{}
	vio := a.DoIORead(cont, 5, &buf)
	sched.Run()

	if buf.String() != "hello" {
		t.Fatalf("got %q", buf.String())
	}
	if vio.NTodo() != 0 {
		t.Fatalf("expected NTodo 0, got %d", vio.NTodo())
	}
	if len(cont.events) != 1 || cont.events[0].Kind != ReadComplete {
		t.Fatalf("expected one ReadComplete event, got %+v", cont.events)
	}
}

func TestDoIOReadUntilEOF(t *testing.T) {
	sched := &fakeScheduler{}
	src := bytes.NewReader([]byte("abc"))
	a := NewAdaptor(sched, src, nil)

	var buf bytes.Buffer
	cont := &recordingCont{}
	a.DoIORead(cont, -1, &buf)
	sched.Run()
	// The first pump drains every available byte without yet observing
	// EOF, so it reports ReadReady; the caller keeps pumping until the
	// stream actually returns io.EOF.
	a.EncourageRead()
	sched.Run()

	if buf.String() != "abc" {
		t.Fatalf("got %q", buf.String())
	}
	last := cont.events[len(cont.events)-1]
	if last.Kind != ReadComplete {
		t.Fatalf("expected ReadComplete on EOF, got %+v", cont.events)
	}
	if a.State() != Closed {
		t.Fatal("expected adaptor closed after EOF")
	}
}

func TestEncourageReadCoalescesWhilePending(t *testing.T) {
	sched := &fakeScheduler{}
	r := &countingReader{r: bytes.NewReader([]byte("x"))}
	a := NewAdaptor(sched, r, nil)

	var buf bytes.Buffer
	cont := &recordingCont{}
	a.DoIORead(cont, 10, &buf) // first pump consumes "x", schedules ReadReady
	readsAfterFirst := r.reads

	a.EncourageRead() // event still pending delivery: must be a no-op
	a.EncourageRead()

	if r.reads != readsAfterFirst {
		t.Fatalf("expected EncourageRead to coalesce, got %d extra reads", r.reads-readsAfterFirst)
	}

	sched.Run() // delivers the ReadReady event and clears pending[ReadReady]

	if len(cont.events) != 1 || cont.events[0].Kind != ReadReady {
		t.Fatalf("expected a single ReadReady event, got %+v", cont.events)
	}
}

func TestDoIOCloseIsIdempotent(t *testing.T) {
	sched := &fakeScheduler{}
	a := NewAdaptor(sched, bytes.NewReader(nil), nil)

	a.DoIOClose()
	if a.State() != Closed {
		t.Fatal("expected Closed after first DoIOClose")
	}
	a.DoIOClose()
	if a.State() != Closed {
		t.Fatal("expected Closed after second DoIOClose")
	}
}

func TestEncourageReadNoOpAfterClose(t *testing.T) {
	sched := &fakeScheduler{}
	r := &countingReader{r: bytes.NewReader([]byte("data"))}
	a := NewAdaptor(sched, r, nil)

	var buf bytes.Buffer
	a.DoIORead(&recordingCont{}, 4, &buf)
	sched.Run()

	a.DoIOClose()
	before := r.reads
	a.EncourageRead()
	if r.reads != before {
		t.Fatal("EncourageRead must not touch the stream once closed")
	}
}

func TestDoIOWriteDrainsReaderToStream(t *testing.T) {
	sched := &fakeScheduler{}
	var out bytes.Buffer
	a := NewAdaptor(sched, nil, writerFunc(func(p []byte) (int, error) { return out.Write(p) }))

	cont := &recordingCont{}
	src := bytes.NewReader([]byte("payload"))
	vio := a.DoIOWrite(cont, 7, src)
	sched.Run()

	if out.String() != "payload" {
		t.Fatalf("got %q", out.String())
	}
	if vio.NTodo() != 0 {
		t.Fatalf("expected NTodo 0, got %d", vio.NTodo())
	}
	if len(cont.events) != 1 || cont.events[0].Kind != WriteComplete {
		t.Fatalf("expected one WriteComplete event, got %+v", cont.events)
	}
}

func TestDoIOWritePropagatesStreamError(t *testing.T) {
	sched := &fakeScheduler{}
	wantErr := errors.New("stream reset")
	a := NewAdaptor(sched, nil, writerFunc(func(p []byte) (int, error) { return 0, wantErr }))

	cont := &recordingCont{}
	a.DoIOWrite(cont, 3, bytes.NewReader([]byte("abc")))
	sched.Run()

	if len(cont.events) != 1 || cont.events[0].Err != wantErr {
		t.Fatalf("expected WriteComplete carrying %v, got %+v", wantErr, cont.events)
	}
	if a.State() != Closed {
		t.Fatal("expected adaptor closed on write error")
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
