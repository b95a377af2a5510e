package mtp

import (
	"fmt"
)

// containerHeader is the 12-byte prefix of every PTP container:
// total length (header included), container type, operation/response/
// event code, transaction ID. All little-endian.
type containerHeader struct {
	Length        uint32
	Type          uint16
	Code          uint16
	TransactionID uint32
}

const hdrLen = 2*2 + 2*4

// maxParams is the parameter limit of command and response
// containers. Events carry at most three.
const maxParams = 5
const maxEventParams = 3

// unknownLength marks a data phase whose byte count the device does
// not announce; the transfer ends at a short packet instead.
const unknownLength = 0xFFFFFFFF

func (h *containerHeader) payloadLen() (int, error) {
	if h.Length == unknownLength {
		return 0, nil
	}
	if h.Length < hdrLen {
		return 0, MalformedError(
			fmt.Sprintf("mtp: container length %d below header size", h.Length))
	}
	return int(h.Length) - hdrLen, nil
}

func (h *containerHeader) validate() error {
	switch h.Type {
	case USB_CONTAINER_COMMAND, USB_CONTAINER_DATA,
		USB_CONTAINER_RESPONSE, USB_CONTAINER_EVENT:
	default:
		return MalformedError(
			fmt.Sprintf("mtp: unknown container type %d", h.Type))
	}
	_, err := h.payloadLen()
	return err
}

// marshalHeader appends the header to buf.
func marshalHeader(buf []byte, h *containerHeader) []byte {
	var b [hdrLen]byte
	byteOrder.PutUint32(b[0:], h.Length)
	byteOrder.PutUint16(b[4:], h.Type)
	byteOrder.PutUint16(b[6:], h.Code)
	byteOrder.PutUint32(b[8:], h.TransactionID)
	return append(buf, b[:]...)
}

func unmarshalHeader(data []byte, h *containerHeader) error {
	if len(data) < hdrLen {
		return MalformedError(
			fmt.Sprintf("mtp: %d bytes cannot hold a container header", len(data)))
	}
	h.Length = byteOrder.Uint32(data[0:])
	h.Type = byteOrder.Uint16(data[4:])
	h.Code = byteOrder.Uint16(data[6:])
	h.TransactionID = byteOrder.Uint32(data[8:])
	return h.validate()
}

// marshalCommand serializes a command container with its parameters.
func marshalCommand(c *Container) ([]byte, error) {
	if len(c.Param) > maxParams {
		return nil, fmt.Errorf("mtp: %d params exceed container limit", len(c.Param))
	}
	h := containerHeader{
		Length:        uint32(hdrLen + 4*len(c.Param)),
		Type:          USB_CONTAINER_COMMAND,
		Code:          c.Code,
		TransactionID: c.TransactionID,
	}
	buf := make([]byte, 0, hdrLen+4*maxParams)
	buf = marshalHeader(buf, &h)
	for _, p := range c.Param {
		var b [4]byte
		byteOrder.PutUint32(b[:], p)
		buf = append(buf, b[:]...)
	}
	return buf, nil
}

// unmarshalParams extracts the u32 parameter block following a header.
func unmarshalParams(h *containerHeader, rest []byte, c *Container) error {
	restLen, err := h.payloadLen()
	if err != nil {
		return err
	}
	if restLen > len(rest) {
		return MalformedError(fmt.Sprintf(
			"mtp: header declares %#x payload bytes, have %#x", restLen, len(rest)))
	}
	limit := maxParams
	if h.Type == USB_CONTAINER_EVENT {
		limit = maxEventParams
	}
	nParam := restLen / 4
	if nParam > limit {
		return MalformedError(fmt.Sprintf(
			"mtp: %d params exceed container limit", nParam))
	}

	c.Type = h.Type
	c.Code = h.Code
	c.TransactionID = h.TransactionID
	c.Param = nil
	for i := 0; i < nParam; i++ {
		c.Param = append(c.Param, byteOrder.Uint32(rest[4*i:]))
	}
	return nil
}
