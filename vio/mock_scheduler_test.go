package vio

import (
	"testing"

	"github.com/golang/mock/gomock"
)

// MockScheduler is a hand-written gomock-style mock of Scheduler, in the
// shape mockgen would produce for a one-method interface. It records every
// posted closure and runs it in FIFO order on Flush, the same behavior
// fakeScheduler in vio_test.go gives; it holds a gomock controller but
// registers no call expectations on it.
type MockScheduler struct {
	ctrl  *gomock.Controller
	queue []func()
}

func NewMockScheduler(ctrl *gomock.Controller) *MockScheduler {
	return &MockScheduler{ctrl: ctrl}
}

func (m *MockScheduler) Post(f func()) {
	m.queue = append(m.queue, f)
}

func (m *MockScheduler) Flush() {
	for len(m.queue) > 0 {
		f := m.queue[0]
		m.queue = m.queue[1:]
		f()
	}
}

func TestAdaptorPostsThroughMockScheduler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sched := NewMockScheduler(ctrl)
	a := NewAdaptor(sched, nil, writerFunc(func(p []byte) (int, error) { return len(p), nil }))

	cont := &recordingCont{}
	a.DoIOWrite(cont, 3, &constReader{b: []byte("abc")})

	if len(sched.queue) != 1 {
		t.Fatalf("expected exactly one posted closure, got %d", len(sched.queue))
	}
	sched.Flush()

	if len(cont.events) != 1 || cont.events[0].Kind != WriteComplete {
		t.Fatalf("expected one WriteComplete event, got %+v", cont.events)
	}
}

type constReader struct {
	b   []byte
	off int
}

func (r *constReader) Read(p []byte) (int, error) {
	n := copy(p, r.b[r.off:])
	r.off += n
	if r.off == len(r.b) {
		return n, nil
	}
	return n, nil
}
