package http3

import (
	"bytes"
	"io"
	"sync"

	"github.com/saitolume/h3engine/frame"
	"github.com/saitolume/h3engine/qpack"
	"github.com/saitolume/h3engine/vio"
)

// Header is a single decoded or to-be-encoded request/response field.
type Header = qpack.Header

// TransactionState is a request/response stream's lifecycle: Open while
// either direction can still produce frames, Closed once both sides have
// finished or the stream was reset. Events delivered after Closed are
// absorbed silently rather than causing an error.
type TransactionState int

const (
	TransactionOpen TransactionState = iota
	TransactionClosed
)

// collectorReader adapts a Collector's push-style Drain(io.Writer) into
// the pull-style io.Reader vio.Adaptor.DoIOWrite expects, buffering
// whatever a single Drain call produces until the adaptor has consumed it.
type collectorReader struct {
	c   *Collector
	buf bytes.Buffer
}

func newCollectorReader(c *Collector) *collectorReader {
	return &collectorReader{c: c}
}

// Read drains the collector into its internal buffer whenever that buffer
// runs dry, and serves from it otherwise. Returns io.EOF once the
// collector's generators report allDone and no buffered bytes remain.
func (r *collectorReader) Read(p []byte) (int, error) {
	if r.buf.Len() == 0 {
		_, allDone, err := r.c.Drain(&r.buf)
		if err != nil {
			return 0, err
		}
		if r.buf.Len() == 0 {
			if allDone {
				return 0, io.EOF
			}
			return 0, nil
		}
	}
	return r.buf.Read(p)
}

// Transaction is one bidirectional request/response stream: a dispatcher
// decoding inbound frames, a collector generating outbound ones, and a
// pair of vio.Adaptor instances gluing each direction to the underlying
// QUIC stream. All of its methods besides pumpRead run on the owning
// Session's event-loop goroutine.
type Transaction struct {
	session *Session
	id      uint64
	stream  io.ReadWriter

	mu    sync.Mutex
	state TransactionState

	dispatcher *Dispatcher

	headersDone bool
	gotHeaders  func([]Header)
	gotData     func([]byte)

	respHeaders   *HeaderFramer
	respData      *DataFramer
	respCollector *Collector
	respReader    *collectorReader
	writeAdaptor  *vio.Adaptor
	writeVIOArmed bool
	headersSent   bool

	onClose func(*Error)
}

func newTransaction(s *Session, id uint64, stream io.ReadWriter) *Transaction {
	tx := &Transaction{session: s, id: id, stream: stream}

	tx.dispatcher = NewDispatcher(RoleRequest, frame.Options{})
	tx.dispatcher.AddHandler(&ProtocolEnforcer{})
	tx.dispatcher.AddHandler(&transactionHeaderHandler{tx: tx})
	tx.dispatcher.AddHandler(&transactionDataHandler{tx: tx})

	tx.writeAdaptor = vio.NewAdaptor(s, nil, stream)

	return tx
}

// OnHeaders registers a callback invoked once when the request or
// response header block for this transaction finishes decoding.
func (tx *Transaction) OnHeaders(f func([]Header)) { tx.gotHeaders = f }

// OnData registers a callback invoked for each DATA frame payload
// received on this transaction.
func (tx *Transaction) OnData(f func([]byte)) { tx.gotData = f }

// OnClose registers a callback invoked when the transaction transitions
// to Closed, carrying the error that caused it (nil on a clean close).
func (tx *Transaction) OnClose(f func(*Error)) { tx.onClose = f }

// SendHeaders QPACK-encodes headers and arms the outbound HEADERS frame.
// Must be called before SendData for the HEADERS-before-DATA ordering
// invariant to hold; DataFramer additionally gates on it defensively.
func (tx *Transaction) SendHeaders(headers []Header, never func(name string) bool) {
	block := tx.session.qpackEnc.EncodeHeaderBlock(tx.id, headers, never)
	tx.session.flushQPACKEncoder()

	tx.ensureCollector()
	tx.respHeaders.SetHeaderBlock(block)
	tx.headersSent = true
	tx.pokeWrite()
}

// SendBody arms src as this transaction's outbound DATA source, bounded
// to maxFrameSize bytes per frame (0 for the DataFramer's own default).
// The DataFramer refuses to produce anything until SendHeaders has run,
// regardless of call order between the two.
func (tx *Transaction) SendBody(src io.Reader, maxFrameSize int) {
	tx.respData = NewDataFramer(src, func() bool { return tx.headersSent }, maxFrameSize)
	tx.ensureCollector()
	tx.respCollector.AddGenerator(tx.respData)
	tx.pokeWrite()
}

func (tx *Transaction) ensureCollector() {
	if tx.respCollector != nil {
		return
	}
	if tx.respHeaders == nil {
		tx.respHeaders = NewHeaderFramer()
	}
	tx.respCollector = NewCollector(tx.respHeaders)
	tx.respReader = newCollectorReader(tx.respCollector)
}

func (tx *Transaction) pokeWrite() {
	tx.ensureCollector()
	if tx.writeAdaptor.State() == vio.Open && tx.writeVIOArmed {
		tx.writeAdaptor.EncourageWrite()
		return
	}
	tx.writeVIOArmed = true
	tx.writeAdaptor.DoIOWrite(tx, -1, tx.respReader)
}

// HandleEvent implements vio.Continuation for the write-side adaptor.
func (tx *Transaction) HandleEvent(ev vio.Event) {
	switch ev.Kind {
	case vio.WriteComplete:
		if ev.Err != nil {
			tx.closeWithError(streamError(ErrorInternalError, ev.Err.Error()))
			return
		}
		tx.maybeClose()
	case vio.WriteReady:
		// more to drain; EncourageWrite on the next outbound poke handles it.
	}
}

// pumpRead is the per-stream read goroutine: it blocks on the raw stream
// and posts every chunk to the session's owner goroutine for decoding.
func (tx *Transaction) pumpRead() {
	buf := make([]byte, 4096)
	for {
		n, err := tx.stream.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			done := make(chan struct{})
			tx.session.Post(func() {
				defer close(done)
				if _, herr := tx.dispatcher.OnReadReady(tx.id, bytes.NewReader(chunk)); herr != nil {
					tx.closeWithError(herr)
				}
			})
			<-done
		}
		if err != nil {
			if err != io.EOF {
				done := make(chan struct{})
				tx.session.Post(func() {
					tx.closeWithError(streamError(ErrorRequestIncomplete, err.Error()))
					close(done)
				})
				<-done
			}
			return
		}
	}
}

func (tx *Transaction) maybeClose() {
	if tx.headersDone && (tx.respCollector == nil || tx.writeAdaptor.State() == vio.Closed) {
		tx.closeWithError(nil)
	}
}

func (tx *Transaction) closeWithError(err *Error) {
	tx.mu.Lock()
	if tx.state == TransactionClosed {
		tx.mu.Unlock()
		return
	}
	tx.state = TransactionClosed
	tx.mu.Unlock()

	tx.writeAdaptor.DoIOClose()
	tx.session.qpackDec.CancelStream(tx.id)
	tx.session.flushQPACKDecoderAcks()

	tx.session.mu.Lock()
	delete(tx.session.transactions, tx.id)
	tx.session.mu.Unlock()

	if tx.onClose != nil {
		tx.onClose(err)
	}
}

// transactionHeaderHandler decodes each HEADERS frame's header block
// through QPACK as the frame arrives, queuing the request on the decoder's
// blocked list when the dynamic table hasn't caught up yet.
type transactionHeaderHandler struct{ tx *Transaction }

func (h *transactionHeaderHandler) Interests() []frame.Type { return []frame.Type{frame.TypeHeaders} }

func (h *transactionHeaderHandler) HandleFrame(streamID uint64, role StreamRole, seq int, f frame.Frame) *Error {
	hf, ok := f.(*frame.HeadersFrame)
	if !ok {
		return nil
	}
	tx := h.tx
	_, err := tx.session.qpackDec.DecodeHeaderBlock(tx.id, hf.HeaderBlock, func(headers []Header, derr error) {
		if derr != nil {
			tx.closeWithError(connError(ErrorQPACKDecompressionFailed, derr.Error()))
			return
		}
		tx.session.flushQPACKDecoderAcks()
		tx.headersDone = true
		if tx.gotHeaders != nil {
			tx.gotHeaders(headers)
		}
		tx.maybeClose()
	})
	if err != nil {
		return connError(ErrorQPACKDecompressionFailed, err.Error())
	}
	return nil
}

// transactionDataHandler forwards DATA frame payloads to the transaction's
// registered callback as they arrive.
type transactionDataHandler struct{ tx *Transaction }

func (h *transactionDataHandler) Interests() []frame.Type { return []frame.Type{frame.TypeData} }

func (h *transactionDataHandler) HandleFrame(streamID uint64, role StreamRole, seq int, f frame.Frame) *Error {
	df, ok := f.(*frame.DataFrame)
	if !ok {
		return nil
	}
	if h.tx.gotData != nil {
		h.tx.gotData(df.Payload)
	}
	return nil
}
