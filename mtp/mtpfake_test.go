package mtp

import (
	"fmt"
	"sync"
	"time"
)

// fakeConn simulates the device end of the bulk pipe for engine tests.
// Host-to-device bytes are reassembled into containers and handed to
// the scripted handler; device-to-host traffic is a queue of packets
// that BulkIn coalesces the way libusb would.
type fakeConn struct {
	mps int

	mu sync.Mutex

	// writes records the size of every BulkOut transfer, ZLPs
	// included.
	writes []int

	// assembly state for host containers
	outBuf []byte

	// received collects the reassembled host containers.
	received []fakeContainer

	// packets queued for BulkIn. A zero-length element is a ZLP.
	packets [][]byte

	// events queued for InterruptIn.
	events [][]byte

	// handle runs device logic per completed host container.
	handle func(c fakeContainer)

	cancels []uint32
	halts   []bool

	timeout time.Duration
}

type fakeContainer struct {
	hdr     containerHeader
	payload []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{mps: 512}
}

func (f *fakeConn) params(c fakeContainer) []uint32 {
	var ps []uint32
	for i := 0; i+4 <= len(c.payload); i += 4 {
		ps = append(ps, byteOrder.Uint32(c.payload[i:]))
	}
	return ps
}

func (f *fakeConn) BulkOut(buf []byte) (int, error) {
	f.mu.Lock()
	f.writes = append(f.writes, len(buf))
	f.outBuf = append(f.outBuf, buf...)
	var done []fakeContainer
	for len(f.outBuf) >= hdrLen {
		var h containerHeader
		if err := unmarshalHeader(f.outBuf, &h); err != nil {
			f.mu.Unlock()
			return 0, err
		}
		if uint32(len(f.outBuf)) < h.Length {
			break
		}
		c := fakeContainer{hdr: h, payload: append([]byte(nil), f.outBuf[hdrLen:h.Length]...)}
		f.received = append(f.received, c)
		done = append(done, c)
		f.outBuf = f.outBuf[h.Length:]
	}
	handler := f.handle
	f.mu.Unlock()

	if handler != nil {
		for _, c := range done {
			handler(c)
		}
	}
	return len(buf), nil
}

func (f *fakeConn) BulkIn(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.packets) == 0 {
		return 0, fmt.Errorf("%w: fake pipe empty", ErrTimeout)
	}

	n := 0
	for len(f.packets) > 0 {
		p := f.packets[0]
		if n+len(p) > len(buf) {
			break
		}
		copy(buf[n:], p)
		n += len(p)
		f.packets = f.packets[1:]
		if len(p) < f.mps {
			// Short packet (or ZLP) ends the transfer.
			break
		}
	}
	return n, nil
}

func (f *fakeConn) InterruptIn(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return 0, fmt.Errorf("%w: no events", ErrTimeout)
	}
	ev := f.events[0]
	f.events = f.events[1:]
	copy(buf, ev)
	return len(ev), nil
}

func (f *fakeConn) CancelRequest(tid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, tid)
	return nil
}

func (f *fakeConn) GetDeviceStatus() (uint16, error) {
	return RC_OK, nil
}

func (f *fakeConn) ClearHalt(in bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halts = append(f.halts, in)
	return nil
}

func (f *fakeConn) BulkInMaxPacket() int  { return f.mps }
func (f *fakeConn) BulkOutMaxPacket() int { return f.mps }

func (f *fakeConn) SetTimeout(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = d
}

func (f *fakeConn) Close() error { return nil }

// queue splits a serialized container into wire packets and appends
// them to the inbound queue, with a trailing ZLP when the length is an
// exact multiple of the packet size.
func (f *fakeConn) queue(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(b) >= f.mps {
		f.packets = append(f.packets, append([]byte(nil), b[:f.mps]...))
		b = b[f.mps:]
	}
	if len(b) > 0 {
		f.packets = append(f.packets, append([]byte(nil), b...))
	} else {
		f.packets = append(f.packets, []byte{})
	}
}

func (f *fakeConn) queueResponse(code uint16, tid uint32, params ...uint32) {
	f.queue(buildContainer(USB_CONTAINER_RESPONSE, code, tid, paramBytes(params)))
}

func (f *fakeConn) queueData(code uint16, tid uint32, payload []byte) {
	f.queue(buildContainer(USB_CONTAINER_DATA, code, tid, payload))
}

func buildContainer(typ, code uint16, tid uint32, payload []byte) []byte {
	h := containerHeader{
		Length:        uint32(hdrLen + len(payload)),
		Type:          typ,
		Code:          code,
		TransactionID: tid,
	}
	buf := marshalHeader(nil, &h)
	return append(buf, payload...)
}

func paramBytes(params []uint32) []byte {
	var b []byte
	for _, p := range params {
		var w [4]byte
		byteOrder.PutUint32(w[:], p)
		b = append(b, w[:]...)
	}
	return b
}

func newTestSession(f *fakeConn) *Session {
	return NewSession(f, DebugFlags{})
}
