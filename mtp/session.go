package mtp

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/atomic"

	liblog "github.com/droidxfer/go-mtp/log"
)

type DebugFlags struct {
	MTP   bool
	USB   bool
	Data  bool
	Event bool
}

// Session is the MTP session engine. It owns the transport, serializes
// transactions under a mutex so exactly one is in flight, allocates
// transaction IDs, and translates response codes into errors.
type Session struct {
	t *Transport

	mu  sync.Mutex
	sid uint32
	tid uint32
	// open is set between a successful OpenSession and CloseSession.
	open bool

	broken *atomic.Bool

	// DrainTimeout bounds the bulk drain after a cancelled or failed
	// transaction. Devices ignoring CancelRequest keep streaming; when
	// the drain cannot finish in time the session is marked broken.
	DrainTimeout time.Duration

	// StrictPropLists makes mismatched property codes in
	// GetObjectPropertyList replies an error instead of a counted
	// quirk.
	StrictPropLists bool

	// Quirks counts tolerated device deviations.
	Quirks *atomic.Int64

	infoOnce sync.Once
	info     *DeviceInfo
	infoErr  error

	events *dispatcher

	log      *liblog.ChildLogger
	eventLog *liblog.ChildLogger
}

// NewSession wraps an open connection. Open must be called before any
// storage operation.
func NewSession(conn Conn, debug DebugFlags) *Session {
	children := liblog.PrepareChildren(liblog.Root, debug.USB, debug.MTP, debug.Data, debug.Event)
	return &Session{
		t:            NewTransport(conn, children.USB, children.Data),
		broken:       atomic.NewBool(false),
		DrainTimeout: 2 * time.Second,
		Quirks:       atomic.NewInt64(0),
		events:       newDispatcher(children.Event),
		log:          children.MTP,
		eventLog:     children.Event,
	}
}

// Transport exposes the framing layer, mostly for tests.
func (s *Session) Transport() *Transport {
	return s.t
}

// nextTID allocates a transaction ID, stepping over the values
// reserved for OpenSession and unknown-length markers on wrap.
func (s *Session) nextTID() uint32 {
	tid := s.tid
	s.tid++
	if s.tid == 0 || s.tid == 0xFFFFFFFF {
		s.tid = 1
	}
	return tid
}

// Open starts the session. It retries once through a close when the
// device reports the session as already opened, which Android does
// after an unclean host exit.
func (s *Session) Open() error {
	err := s.openSession()
	if err == RCError(RC_SessionAlreadyOpened) {
		// Closing works even without a valid session on Android.
		s.closeSession()
		err = s.openSession()
	}
	return err
}

func (s *Session) openSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return fmt.Errorf("mtp: session already open")
	}

	// Session IDs avoid 0x00000000 and 0xFFFFFFFF.
	sid := uint32(rand.Int31()) | 1

	var req, rep Container
	req.Code = OC_OpenSession
	req.TransactionID = 0
	req.Param = []uint32{sid}
	if err := s.transact(&req, &rep, nil, nil, 0); err != nil {
		return err
	}

	s.sid = sid
	s.tid = 1
	s.open = true
	return nil
}

// Close ends the session and the event listener. Closing an already
// closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()

	var err error
	if open {
		err = s.closeSession()
	}
	s.events.stop()
	return err
}

func (s *Session) closeSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req, rep Container
	req.Code = OC_CloseSession
	if s.open {
		req.TransactionID = s.nextTID()
	}
	err := s.transact(&req, &rep, nil, nil, 0)
	s.open = false
	return err
}

// RunTransaction runs one MTP transaction: the command in req, an
// optional outbound data phase streamed from src (writeSize bytes), or
// an inbound one piped to dest, and the response into rep. A non-OK
// response comes back as RCError. dest and src cannot both be set.
func (s *Session) RunTransaction(req *Container, rep *Container,
	dest io.Writer, src io.Reader, writeSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken.Load() {
		return ErrSessionBroken
	}
	if s.open {
		req.SessionID = s.sid
		req.TransactionID = s.nextTID()
	}

	err := s.transact(req, rep, dest, src, writeSize)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrCancelled) {
		return s.abort(req.TransactionID, err)
	}
	var terr *TransportError
	if errors.As(err, &terr) {
		return s.abort(req.TransactionID, err)
	}
	var serr SyncError
	if errors.As(err, &serr) {
		// Lost framing cannot be recovered mid-session.
		s.broken.Store(true)
		s.log.Errorf("fatal: %v; marking session broken", err)
	}
	return err
}

// abort cancels the in-flight transaction and drains the bulk pipe so
// the next command starts on a container boundary.
func (s *Session) abort(tid uint32, cause error) error {
	s.log.Debugf("aborting transaction %d: %v", tid, cause)
	if err := s.t.CancelTransaction(tid, s.DrainTimeout); err != nil {
		s.broken.Store(true)
		s.log.Errorf("cancel drain failed: %v; marking session broken", err)
	}
	return cause
}

// transact is RunTransaction without locking or failure policy.
func (s *Session) transact(req *Container, rep *Container,
	dest io.Writer, src io.Reader, writeSize int64) error {
	if s.log.IsDebug() {
		s.log.Debugf("request %s %v", getName(OC_names, int(req.Code)), req.Param)
	}

	if err := s.t.SendCommand(req); err != nil {
		s.log.Debugf("send command failed: %v", err)
		return err
	}

	if src != nil {
		if err := s.t.SendData(req.Code, req.TransactionID, src, writeSize); err != nil {
			return err
		}
	}

	var data [rwBufSize]byte
	var h containerHeader
	rest, err := s.t.readHeader(data[:], &h)
	if err != nil {
		return err
	}

	// Some devices push events over the bulk pipe between phases;
	// route them to the listener instead of the request path.
	for h.Type == USB_CONTAINER_EVENT {
		var ev Container
		if err := unmarshalParams(&h, rest, &ev); err != nil {
			return err
		}
		s.events.dispatch(Event{Code: ev.Code, TransactionID: ev.TransactionID, Params: ev.Param})
		if rest, err = s.t.readHeader(data[:], &h); err != nil {
			return err
		}
	}

	var unexpectedData bool
	var finalPacket []byte
	if h.Type == USB_CONTAINER_DATA {
		if h.TransactionID != req.TransactionID {
			return SyncError(fmt.Sprintf(
				"mtp: data phase tid %#x, want %#x", h.TransactionID, req.TransactionID))
		}
		if dest == nil {
			dest = &NullWriter{}
			unexpectedData = true
			s.log.Debugf("discarding unexpected data %#x bytes", h.Length)
		}
		s.log.Debugf("data %#x bytes", h.Length)

		var n int64
		n, finalPacket, err = s.t.ReadData(&h, rest, dest)
		if err != nil {
			return err
		}
		s.log.Debugf("data phase carried %d payload bytes", n)

		h = containerHeader{}
		if len(finalPacket) > 0 {
			// The terminating packet already held the response.
			if err := unmarshalHeader(finalPacket, &h); err != nil {
				return err
			}
			rest = finalPacket[hdrLen:]
			if int(h.Length) < len(finalPacket) {
				rest = finalPacket[hdrLen:h.Length]
			}
		} else {
			if rest, err = s.t.readHeader(data[:], &h); err != nil {
				return err
			}
		}
	}

	if h.Type != USB_CONTAINER_RESPONSE {
		return SyncError(fmt.Sprintf(
			"mtp: got container type %d (%s) in response, want RESPONSE",
			h.Type, getName(USB_names, int(h.Type))))
	}
	if err := unmarshalParams(&h, rest, rep); err != nil {
		return err
	}
	if s.log.IsDebug() {
		s.log.Debugf("response %s %v", getName(RC_names, int(rep.Code)), rep.Param)
	}
	if unexpectedData {
		return SyncError(fmt.Sprintf(
			"mtp: unexpected data for code %s", getName(OC_names, int(req.Code))))
	}
	if s.open && rep.TransactionID != req.TransactionID {
		return SyncError(fmt.Sprintf(
			"mtp: response tid %#x, want %#x", rep.TransactionID, req.TransactionID))
	}
	rep.SessionID = req.SessionID
	if rep.Code != RC_OK {
		return RCError(rep.Code)
	}
	return nil
}

// Broken reports whether a failed drain or lost transaction
// synchronization has poisoned the session.
func (s *Session) Broken() bool {
	return s.broken.Load()
}
