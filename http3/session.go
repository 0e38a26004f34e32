package http3

import (
	"bytes"
	"context"
	"io"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/saitolume/h3engine/frame"
	"github.com/saitolume/h3engine/qpack"
	"github.com/saitolume/h3engine/varint"
)

// Session owns everything scoped to one QUIC connection: the local and
// remote QPACK instances, the control-stream dispatcher/collector, and the
// set of active transactions. Every mutation to session or
// transaction state happens on the session's single owner goroutine; other
// goroutines (accept loops, stream readers) communicate with it only by
// posting closures through Post, the Go realization of the cooperative
// single-threaded-per-connection model.
type Session struct {
	conn     quic.Connection
	isServer bool
	settings Settings

	peerSettings     Settings
	peerSettingsDone bool

	qpackEnc *qpack.Encoder
	qpackDec *qpack.Decoder

	controlOut        quic.SendStream
	controlCollector  *Collector
	settingsFramer    *SettingsFramer
	remoteControlDisp *Dispatcher

	qpackEncOut quic.SendStream // our encoder instructions -> peer's decoder
	qpackDecOut quic.SendStream // our decoder acks -> peer's encoder

	goAway       goAwayGenerator
	onGoAwayFunc func(uint64)

	http09        bool
	http09Handler func(*HTTP09Request) []byte

	mu           sync.Mutex // guards transactions only; everything else is owner-goroutine-confined
	transactions map[uint64]*Transaction

	events chan func()

	log *logrus.Entry
}

// NewSession creates a Session over an established QUIC connection. If
// settings is the zero value, protocol defaults (dynamic table and
// blocking disabled) are advertised.
func NewSession(conn quic.Connection, isServer bool, settings Settings) *Session {
	s := &Session{
		conn:         conn,
		isServer:     isServer,
		settings:     settings,
		qpackEnc:     qpack.NewEncoder(settings.HeaderTableSize),
		qpackDec:     qpack.NewDecoder(settings.HeaderTableSize, maxBlockedStreamsDefault(settings)),
		transactions: make(map[uint64]*Transaction),
		events:       make(chan func(), 64),
		log:          logrus.WithField("component", "http3.session"),
	}
	s.settingsFramer = NewSettingsFramer(settings, isServer)
	s.controlCollector = NewCollector(s.settingsFramer, &s.goAway)
	return s
}

func writeStreamTypeMarker(w quic.SendStream, t int) error {
	buf, err := varint.Append(nil, uint64(t))
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func maxBlockedStreamsDefault(s Settings) int {
	if s.QPACKBlockedStreams == 0 {
		return 16
	}
	return int(s.QPACKBlockedStreams)
}

// Post defers f onto the session's owner goroutine, implementing
// vio.Scheduler for every Adaptor this session creates.
func (s *Session) Post(f func()) {
	s.events <- f
}

// EnableHTTP09 opts the session into recognizing a bare HTTP/0.9 request
// line on a bidirectional stream before HTTP/3 framing begins. handler
// produces the response body for a parsed request; every bidirectional
// stream is then treated as HTTP/0.9 instead of HTTP/3 framing.
func (s *Session) EnableHTTP09(handler func(*HTTP09Request) []byte) {
	s.http09 = true
	s.http09Handler = handler
}

// OnGoAway registers a callback invoked whenever a GOAWAY frame is
// received from the peer.
func (s *Session) OnGoAway(f func(id uint64)) { s.onGoAwayFunc = f }

// SendGoAway queues a GOAWAY frame carrying id on the local control
// stream. Frame-type recognition only: no draining state machine runs
// around it.
func (s *Session) SendGoAway(id uint64) {
	s.Post(func() {
		s.goAway.arm(id)
		s.flushControl()
	})
}

// Run drives the session's accept loops and owner event loop until ctx is
// cancelled or an unrecoverable connection error occurs.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if err := s.openLocalUniStreams(ctx); err != nil {
		return err
	}
	s.flushControl()

	g.Go(func() error { return s.acceptUniStreams(ctx) })
	g.Go(func() error { return s.acceptBidiStreams(ctx) })
	g.Go(func() error { return s.eventLoop(ctx) })

	return g.Wait()
}

// openLocalUniStreams opens the three required local unidirectional
// streams (control, QPACK encoder, QPACK decoder) and writes each one's
// type marker. All three are attempted even if an earlier one fails, so a
// caller sees every stream-creation failure at once rather than only the
// first.
func (s *Session) openLocalUniStreams(ctx context.Context) error {
	var merr *multierror.Error

	controlStream, err := s.conn.OpenUniStreamSync(ctx)
	if err != nil {
		merr = multierror.Append(merr, err)
	} else {
		s.controlOut = controlStream
		if err := writeStreamTypeMarker(controlStream, StreamTypeControl); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	encStream, err := s.conn.OpenUniStreamSync(ctx)
	if err != nil {
		merr = multierror.Append(merr, err)
	} else {
		s.qpackEncOut = encStream
		if err := writeStreamTypeMarker(encStream, StreamTypeQPACKEncoder); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	decStream, err := s.conn.OpenUniStreamSync(ctx)
	if err != nil {
		merr = multierror.Append(merr, err)
	} else {
		s.qpackDecOut = decStream
		if err := writeStreamTypeMarker(decStream, StreamTypeQPACKDecoder); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	if merr.ErrorOrNil() != nil {
		return connError(ErrorStreamCreationError, merr.Error())
	}
	return nil
}

func (s *Session) eventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-s.events:
			f()
		}
	}
}

func (s *Session) acceptUniStreams(ctx context.Context) error {
	for {
		str, err := s.conn.AcceptUniStream(ctx)
		if err != nil {
			return err
		}
		go s.classifyAndPumpUniStream(ctx, str)
	}
}

func (s *Session) classifyAndPumpUniStream(ctx context.Context, str quic.ReceiveStream) {
	var first [8]byte
	n, err := io.ReadFull(str, first[:1])
	if err != nil || n == 0 {
		return
	}
	t, tn, err := varint.Decode(first[:1])
	if err != nil {
		// multi-byte stream type varint: read remaining bytes of its class
		need := varint.SizeOfFirstByte(first[0])
		if need > 1 {
			io.ReadFull(str, first[1:need])
			t, tn, err = varint.Decode(first[:need])
		}
	}
	_ = tn
	if err != nil {
		return
	}
	role := roleForStreamType(t)

	switch role {
	case RoleControl:
		done := make(chan struct{})
		s.Post(func() {
			s.remoteControlDisp = NewDispatcher(RoleControl, frame.Options{})
			enforcer := &ProtocolEnforcer{}
			counter := NewFrameCounter()
			settingsHandler := NewSettingsHandler(s.applyPeerSettings)
			s.remoteControlDisp.AddHandler(enforcer)
			s.remoteControlDisp.AddHandler(counter)
			s.remoteControlDisp.AddHandler(settingsHandler)
			s.remoteControlDisp.AddHandler(&goAwayHandler{onGoAway: s.onGoAwayFunc})
			close(done)
		})
		<-done
		s.pumpDispatcherStream(str, 0, func() *Dispatcher { return s.remoteControlDisp })

	case RoleQPACKEncoder:
		s.pumpQPACKEncoderStream(str)

	case RoleQPACKDecoder:
		s.pumpQPACKDecoderStream(str)

	case RolePush:
		if s.isServer {
			str.CancelRead(quic.StreamErrorCode(ErrorIDError))
		}

	default:
		// unknown stream type: drop without closing the connection.
	}
}

func (s *Session) pumpDispatcherStream(r io.Reader, streamID uint64, dispatcher func() *Dispatcher) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			done := make(chan struct{})
			s.Post(func() {
				defer close(done)
				if _, herr := dispatcher().OnReadReady(streamID, bytes.NewReader(chunk)); herr != nil {
					s.teardown(herr)
				}
			})
			<-done
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) pumpQPACKEncoderStream(r io.Reader) {
	var dec qpack.EncInstructionDecoder
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			done := make(chan struct{})
			s.Post(func() {
				defer close(done)
				dec.Feed(chunk)
				for dec.Pending() > 0 {
					instr, ok, derr := dec.Decode()
					if derr != nil {
						s.teardown(connError(ErrorQPACKEncoderStreamError, derr.Error()))
						return
					}
					if !ok {
						break
					}
					if aerr := s.qpackDec.ApplyEncoderInstruction(instr); aerr != nil {
						s.teardown(connError(ErrorQPACKDecompressionFailed, aerr.Error()))
						return
					}
				}
				s.flushQPACKDecoderAcks()
			})
			<-done
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) pumpQPACKDecoderStream(r io.Reader) {
	var dec qpack.DecInstructionDecoder
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			done := make(chan struct{})
			s.Post(func() {
				defer close(done)
				dec.Feed(chunk)
				for dec.Pending() > 0 {
					instr, ok, derr := dec.Decode()
					if derr != nil {
						s.teardown(connError(ErrorQPACKDecoderStreamError, derr.Error()))
						return
					}
					if !ok {
						break
					}
					s.qpackEnc.HandleAck(instr)
				}
			})
			<-done
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) acceptBidiStreams(ctx context.Context) error {
	for {
		str, err := s.conn.AcceptStream(ctx)
		if err != nil {
			return err
		}

		if s.http09 {
			go s.serveHTTP09Stream(str)
			continue
		}

		id := uint64(str.StreamID())
		done := make(chan struct{})
		var tx *Transaction
		s.Post(func() {
			tx = newTransaction(s, id, str)
			s.mu.Lock()
			s.transactions[id] = tx
			s.mu.Unlock()
			close(done)
		})
		<-done
		go tx.pumpRead()
	}
}

// serveHTTP09Stream handles one bidirectional stream as a bare HTTP/0.9
// exchange: one request line in, one unframed body out, stream closed. It
// never touches session or transaction state, so it runs independently of
// the owner goroutine.
func (s *Session) serveHTTP09Stream(str quic.Stream) {
	defer str.Close()

	req, err := ParseHTTP09Request(str)
	if err != nil {
		s.log.WithError(err).Warn("malformed HTTP/0.9 request")
		return
	}

	var body []byte
	if s.http09Handler != nil {
		body = s.http09Handler(req)
	}
	if err := WriteHTTP09Response(str, body); err != nil {
		s.log.WithError(err).Warn("failed to write HTTP/0.9 response")
	}
}

func (s *Session) applyPeerSettings(settings Settings) *Error {
	s.peerSettings = settings
	s.peerSettingsDone = true
	if settings.HeaderTableSize != 0 {
		s.qpackEnc.Table().SetMaxSize(settings.HeaderTableSize)
	}
	return nil
}

// flushControl drains the local control-stream collector (SETTINGS once,
// GOAWAY whenever armed) to the control stream.
func (s *Session) flushControl() {
	if s.controlOut == nil {
		return
	}
	s.controlCollector.Drain(s.controlOut)
}

// flushQPACKEncoder drains any encoder-stream instructions queued by a
// recent EncodeHeaderBlock call to the encoder unidirectional stream.
func (s *Session) flushQPACKEncoder() {
	if s.qpackEncOut == nil {
		return
	}
	if b := s.qpackEnc.DrainInstructions(); len(b) > 0 {
		s.qpackEncOut.Write(b)
	}
}

// flushQPACKDecoderAcks drains any Header Acknowledgement / Stream
// Cancellation instructions queued by the decoder to the decoder
// unidirectional stream.
func (s *Session) flushQPACKDecoderAcks() {
	if s.qpackDecOut == nil {
		return
	}
	if b := s.qpackDec.DrainAcks(); len(b) > 0 {
		s.qpackDecOut.Write(b)
	}
}

// teardown tears the whole session down and broadcasts err to every
// transaction. Must run on the owner goroutine.
func (s *Session) teardown(err *Error) {
	s.log.WithError(err).Warn("tearing down session")
	s.mu.Lock()
	txs := make([]*Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		txs = append(txs, tx)
	}
	s.mu.Unlock()
	for _, tx := range txs {
		tx.closeWithError(err)
	}
	code := quic.ApplicationErrorCode(err.Code)
	s.conn.CloseWithError(code, err.Reason)
}
