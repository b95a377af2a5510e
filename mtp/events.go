package mtp

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	liblog "github.com/droidxfer/go-mtp/log"
)

// Event is a device-originated notification from the interrupt
// endpoint: object added or removed, store (un)mounted, property
// changed.
type Event struct {
	Code          uint16
	TransactionID uint32
	Params        []uint32
}

type EventHandler func(Event)

type dispatcher struct {
	mu       sync.Mutex
	handlers []EventHandler
	stopped  *atomic.Bool
	log      *liblog.ChildLogger
}

func newDispatcher(log *liblog.ChildLogger) *dispatcher {
	return &dispatcher{
		stopped: atomic.NewBool(false),
		log:     log,
	}
}

func (d *dispatcher) register(h EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

func (d *dispatcher) dispatch(ev Event) {
	if d.stopped.Load() {
		return
	}
	d.log.Debugf("event %v", ev)
	d.mu.Lock()
	handlers := make([]EventHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (d *dispatcher) stop() {
	d.stopped.Store(true)
}

// OnEvent registers a callback for device events. Callbacks run on the
// listener goroutine, or on the goroutine running a transaction when
// the device sends the event over the bulk pipe, and must not block.
func (s *Session) OnEvent(h EventHandler) {
	s.events.register(h)
}

// event listener backoff bounds
const (
	eventBackoffMin = 50 * time.Millisecond
	eventBackoffMax = 5 * time.Second
)

// ListenEvents starts the background reader on the interrupt endpoint.
// It survives spurious short reads and transient transport errors with
// doubling backoff, and terminates when the session closes.
func (s *Session) ListenEvents() {
	go s.eventLoop()
}

func (s *Session) eventLoop() {
	conn := s.t.Conn()
	backoff := eventBackoffMin
	buf := make([]byte, rwBufSize)

	for !s.events.stopped.Load() {
		n, err := conn.InterruptIn(buf)
		if err != nil {
			if s.events.stopped.Load() {
				return
			}
			s.eventLog.Debugf("interrupt read: %v; backing off %v", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > eventBackoffMax {
				backoff = eventBackoffMax
			}
			continue
		}
		backoff = eventBackoffMin

		if n < hdrLen {
			// Devices emit stray short packets; skip them.
			s.eventLog.Debugf("short interrupt packet of %d bytes", n)
			continue
		}

		var h containerHeader
		if err := unmarshalHeader(buf[:n], &h); err != nil {
			s.eventLog.Warningf("bad event container: %v", err)
			continue
		}
		if h.Type != USB_CONTAINER_EVENT {
			s.eventLog.Warningf("container type %s on interrupt endpoint",
				getName(USB_names, int(h.Type)))
			continue
		}
		var ev Container
		if err := unmarshalParams(&h, buf[hdrLen:n], &ev); err != nil {
			s.eventLog.Warningf("bad event params: %v", err)
			continue
		}
		s.events.dispatch(Event{
			Code:          ev.Code,
			TransactionID: ev.TransactionID,
			Params:        ev.Param,
		})
	}
}
