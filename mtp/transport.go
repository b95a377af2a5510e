package mtp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// Conn is the byte-oriented access a USB backend provides: the bulk
// endpoint pair, the interrupt endpoint, and the class control
// requests directed at the MTP interface. Implementations must allow
// the interrupt endpoint to be read concurrently with bulk traffic.
type Conn interface {
	BulkOut(buf []byte) (int, error)
	BulkIn(buf []byte) (int, error)
	InterruptIn(buf []byte) (int, error)

	// CancelRequest issues the class CancelRequest (0x64) control
	// transfer for the given transaction.
	CancelRequest(tid uint32) error

	// GetDeviceStatus issues the class GetDeviceStatus (0x67)
	// control transfer and returns the status code.
	GetDeviceStatus() (uint16, error)

	// ClearHalt recovers a stalled bulk endpoint.
	ClearHalt(in bool) error

	BulkInMaxPacket() int
	BulkOutMaxPacket() int

	// SetTimeout applies to subsequent bulk transfers.
	SetTimeout(d time.Duration)

	Close() error
}

// ErrStall is returned (wrapped) by backends when an endpoint halts.
var ErrStall = errors.New("mtp: endpoint stalled")

// The linux usb stack can move 16kb per call, according to libusb.
const rwBufSize = 0x4000

// Transport frames PTP containers over a Conn: it sends outbound
// containers as one packet-sized first write followed by 16 KiB bulk
// writes, terminates exact-multiple
// transfers with a ZLP, and reassembles inbound containers from their
// declared length or, for unknown-length data phases, until a short
// packet.
type Transport struct {
	conn Conn

	// SeparateHeader sends the data-phase header in its own bulk
	// write. Some responders read the header and payload with
	// distinct calls and lose payload bytes otherwise.
	SeparateHeader bool

	usbLog  logger
	dataLog logger
}

type logger interface {
	Debugf(format string, args ...interface{})
	IsDebug() bool
}

func NewTransport(conn Conn, usbLog, dataLog logger) *Transport {
	return &Transport{conn: conn, usbLog: usbLog, dataLog: dataLog}
}

func (t *Transport) Conn() Conn {
	return t.conn
}

func (t *Transport) Close() error {
	return t.conn.Close()
}

func (t *Transport) dataPrint(dir string, data []byte) {
	if t.dataLog == nil || !t.dataLog.IsDebug() {
		return
	}
	t.dataLog.Debugf("%s %#x bytes:\n%s", dir, len(data), hexDumpString(data))
}

// bulkOut writes buf, clearing a halted endpoint and retrying once.
func (t *Transport) bulkOut(buf []byte) (int, error) {
	n, err := t.conn.BulkOut(buf)
	if errors.Is(err, ErrStall) {
		if cerr := t.conn.ClearHalt(false); cerr != nil {
			return n, &TransportError{Op: "clear-halt out", Err: cerr}
		}
		n, err = t.conn.BulkOut(buf)
	}
	if err != nil {
		return n, &TransportError{Op: "bulk-out", Err: err}
	}
	t.dataPrint("send", buf)
	return n, nil
}

func (t *Transport) bulkIn(buf []byte) (int, error) {
	n, err := t.conn.BulkIn(buf)
	if errors.Is(err, ErrStall) {
		if cerr := t.conn.ClearHalt(true); cerr != nil {
			return n, &TransportError{Op: "clear-halt in", Err: cerr}
		}
		n, err = t.conn.BulkIn(buf)
	}
	if err != nil {
		return n, &TransportError{Op: "bulk-in", Err: err}
	}
	if n > 0 {
		t.dataPrint("recv", buf[:n])
	}
	return n, nil
}

// SendCommand emits a command container.
func (t *Transport) SendCommand(c *Container) error {
	buf, err := marshalCommand(c)
	if err != nil {
		return err
	}
	if _, err := t.bulkOut(buf); err != nil {
		return err
	}
	// A command container never fills a packet, so no ZLP.
	return nil
}

// SendData emits the data phase of a transaction: one container whose
// payload is streamed from src. size is the logical payload size; the
// container length field saturates at 0xFFFFFFFF for larger transfers.
func (t *Transport) SendData(code uint16, tid uint32, src io.Reader, size int64) error {
	packetSize := t.conn.BulkOutMaxPacket()

	hdr := containerHeader{
		Type:          USB_CONTAINER_DATA,
		Code:          code,
		TransactionID: tid,
	}
	if size+hdrLen > unknownLength {
		hdr.Length = unknownLength
	} else {
		hdr.Length = uint32(size + hdrLen)
	}

	// First write carries the header, padded with payload up to one
	// packet unless the responder needs the header alone.
	first := make([]byte, 0, packetSize)
	first = marshalHeader(first, &hdr)
	written := int64(0)
	if !t.SeparateHeader {
		cpSize := int64(packetSize - hdrLen)
		if cpSize > size {
			cpSize = size
		}
		if cpSize > 0 {
			fill := bytes.NewBuffer(first)
			if _, err := io.CopyN(fill, src, cpSize); err != nil {
				return err
			}
			first = fill.Bytes()
			written = cpSize
		}
	}
	lastTransfer, err := t.bulkOut(first)
	if err != nil {
		return err
	}

	var buf [rwBufSize]byte
	for written < size {
		toread := buf[:]
		if int64(len(toread)) > size-written {
			toread = buf[:size-written]
		}

		// Fill the chunk completely so every transfer but the last
		// stays packet-aligned; a short bulk write mid-container would
		// end the transfer early on the device side.
		m, rerr := io.ReadFull(src, toread)
		if m > 0 {
			w, werr := t.bulkOut(buf[:m])
			written += int64(w)
			lastTransfer = w
			if werr != nil {
				return werr
			}
		}
		if rerr != nil {
			if (rerr == io.EOF || rerr == io.ErrUnexpectedEOF) && written == size {
				break
			}
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				return io.ErrUnexpectedEOF
			}
			return rerr
		}
	}

	if lastTransfer%packetSize == 0 {
		// Terminate the exact-multiple transfer.
		if _, err := t.bulkOut(buf[:0]); err != nil {
			return err
		}
	}
	return nil
}

// readHeader fetches one packet and splits off the container header.
// dest must hold at least one max-size packet.
func (t *Transport) readHeader(dest []byte, h *containerHeader) (rest []byte, err error) {
	n, err := t.bulkIn(dest[:t.conn.BulkInMaxPacket()])
	if err != nil {
		return nil, err
	}
	if err := unmarshalHeader(dest[:n], h); err != nil {
		return nil, err
	}
	return dest[hdrLen:n], nil
}

// ReadData consumes the remainder of a data phase whose header has
// already been read, piping payload into w. It returns the payload
// byte count and, for the XHCI quirk where the terminating packet
// already carries the next container, that packet's bytes.
func (t *Transport) ReadData(h *containerHeader, rest []byte, w io.Writer) (n int64, finalPacket []byte, err error) {
	packetSize := t.conn.BulkInMaxPacket()

	if len(rest) > 0 {
		if _, err := w.Write(rest); err != nil {
			return 0, nil, err
		}
		n += int64(len(rest))
	}

	if h.Length != unknownLength {
		want, err := h.payloadLen()
		if err != nil {
			return n, nil, err
		}
		for n < int64(want) {
			var buf [rwBufSize]byte
			toread := buf[:]
			if int64(len(toread)) > int64(want)-n {
				toread = buf[:int64(want)-n]
			}
			m, err := t.bulkIn(toread)
			if m > 0 {
				if _, werr := w.Write(buf[:m]); werr != nil {
					return n, nil, werr
				}
				n += int64(m)
			}
			if err != nil {
				return n, nil, err
			}
			if m == 0 {
				return n, nil, SyncError(fmt.Sprintf(
					"mtp: data phase ended %d bytes short of %d", int64(want)-n, want))
			}
		}
		if (n+hdrLen)%int64(packetSize) == 0 {
			return t.finishAlignedRead(n, w)
		}
		return n, nil, nil
	}

	// Unknown length: consume until a short packet.
	if len(rest)+hdrLen < packetSize {
		return n, nil, nil
	}
	var buf [rwBufSize]byte
	for {
		m, err := t.bulkIn(buf[:])
		if m > 0 {
			if _, werr := w.Write(buf[:m]); werr != nil {
				return n, nil, werr
			}
			n += int64(m)
		}
		if err != nil {
			return n, nil, err
		}
		if m < len(buf) {
			break
		}
	}
	if n%int64(packetSize) == 0 {
		return t.finishAlignedRead(n, w)
	}
	return n, nil, nil
}

// finishAlignedRead absorbs the packet terminating an exact-multiple
// transfer. It should be a ZLP, but on Linux + XHCI the response
// container shows up instead; hand it back for the caller to inspect.
func (t *Transport) finishAlignedRead(n int64, w io.Writer) (int64, []byte, error) {
	var buf [rwBufSize]byte
	m, err := t.bulkIn(buf[:])
	if err != nil {
		return n, nil, err
	}
	if t.usbLog != nil {
		t.usbLog.Debugf("expected null packet, read %d bytes", m)
	}
	return n, buf[:m], nil
}

// Drain discards pending bulk-in data after a cancel, data and response
// containers alike, until a read times out on the empty pipe. It fails
// when the device is still sending once the deadline has passed.
func (t *Transport) Drain(deadline time.Duration) error {
	t.conn.SetTimeout(deadline)
	defer t.conn.SetTimeout(0)

	end := time.Now().Add(deadline)
	var buf [rwBufSize]byte
	for {
		_, err := t.conn.BulkIn(buf[:])
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				return nil
			}
			if errors.Is(err, ErrStall) {
				return t.conn.ClearHalt(true)
			}
			return &TransportError{Op: "drain", Err: err}
		}
		if time.Now().After(end) {
			return &TransportError{Op: "drain", Err: ErrTimeout}
		}
	}
}

// CancelTransaction issues the class CancelRequest for tid and drains
// whatever the device was still sending.
func (t *Transport) CancelTransaction(tid uint32, drainDeadline time.Duration) error {
	if err := t.conn.CancelRequest(tid); err != nil {
		return &TransportError{Op: "cancel-request", Err: err}
	}
	return t.Drain(drainDeadline)
}
