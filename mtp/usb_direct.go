package mtp

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hanwen/usb"
)

// directConn is the libusb-direct Conn, for hosts where the gousb
// backend is unavailable. It drives the raw endpoints through
// hanwen/usb's synchronous API.
type directConn struct {
	h   *usb.DeviceHandle
	dev *usb.Device

	claimed    bool
	devDescr   usb.DeviceDescriptor
	ifaceDescr usb.InterfaceDescriptor

	sendEP  byte
	fetchEP byte
	eventEP byte

	mu      sync.Mutex
	timeout time.Duration
}

func mapDirectError(err error) error {
	if err == nil {
		return nil
	}
	var uerr usb.Error
	if errors.As(err, &uerr) {
		switch uerr {
		case usb.ERROR_PIPE:
			return fmt.Errorf("%w: %v", ErrStall, err)
		case usb.ERROR_TIMEOUT:
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}
	return err
}

// classifyEndpoints picks the MTP endpoint triple out of an alt
// setting: bulk-in, bulk-out and interrupt-in. ok is false when any of
// the three is missing.
func classifyEndpoints(a *usb.InterfaceDescriptor) (send, fetch, event byte, ok bool) {
	for _, ep := range a.EndPoints {
		switch {
		case ep.Direction() == usb.ENDPOINT_IN && ep.TransferType() == usb.TRANSFER_TYPE_INTERRUPT:
			event = ep.EndpointAddress
		case ep.Direction() == usb.ENDPOINT_IN && ep.TransferType() == usb.TRANSFER_TYPE_BULK:
			fetch = ep.EndpointAddress
		case ep.Direction() == usb.ENDPOINT_OUT && ep.TransferType() == usb.TRANSFER_TYPE_BULK:
			send = ep.EndpointAddress
		}
	}
	return send, fetch, event, send > 0 && fetch > 0 && event > 0
}

func (c *directConn) deadlineMs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout == 0 {
		return int(defaultTimeout / time.Millisecond)
	}
	return int(c.timeout / time.Millisecond)
}

func (c *directConn) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

func (c *directConn) BulkOut(buf []byte) (int, error) {
	n, err := c.h.BulkTransfer(c.sendEP, buf, c.deadlineMs())
	return n, mapDirectError(err)
}

func (c *directConn) BulkIn(buf []byte) (int, error) {
	n, err := c.h.BulkTransfer(c.fetchEP, buf, c.deadlineMs())
	return n, mapDirectError(err)
}

func (c *directConn) InterruptIn(buf []byte) (int, error) {
	n, err := c.h.InterruptTransfer(c.eventEP, buf, 30*1000)
	return n, mapDirectError(err)
}

func (c *directConn) CancelRequest(tid uint32) error {
	var payload [6]byte
	byteOrder.PutUint16(payload[0:], EC_CancelTransaction)
	byteOrder.PutUint32(payload[2:], tid)
	_, err := c.h.ControlTransfer(
		usb.ENDPOINT_OUT|usb.REQUEST_TYPE_CLASS|usb.RECIPIENT_INTERFACE,
		USB_REQ_CancelRequest, 0, uint16(c.ifaceDescr.InterfaceNumber),
		payload[:], c.deadlineMs())
	return mapDirectError(err)
}

func (c *directConn) GetDeviceStatus() (uint16, error) {
	var payload [4]byte
	_, err := c.h.ControlTransfer(
		usb.ENDPOINT_IN|usb.REQUEST_TYPE_CLASS|usb.RECIPIENT_INTERFACE,
		USB_REQ_GetDeviceStatus, 0, uint16(c.ifaceDescr.InterfaceNumber),
		payload[:], c.deadlineMs())
	if err != nil {
		return 0, mapDirectError(err)
	}
	return byteOrder.Uint16(payload[2:]), nil
}

func (c *directConn) ClearHalt(in bool) error {
	ep := c.sendEP
	if in {
		ep = c.fetchEP
	}
	return mapDirectError(c.h.ClearHalt(ep))
}

func (c *directConn) BulkInMaxPacket() int {
	return c.dev.GetMaxPacketSize(c.fetchEP)
}

func (c *directConn) BulkOutMaxPacket() int {
	return c.dev.GetMaxPacketSize(c.sendEP)
}

func (c *directConn) Close() error {
	if c.h == nil {
		return nil
	}
	if c.claimed {
		c.h.ReleaseInterface(c.ifaceDescr.InterfaceNumber)
		c.claimed = false
	}
	err := c.h.Close()
	c.h = nil
	if c.dev != nil {
		c.dev.Unref()
		c.dev = nil
	}
	return err
}

// ID is the manufacturer, product and serial, for matching devices
// against a user pattern. The device must be open.
func (c *directConn) ID() (string, error) {
	if c.h == nil {
		return "", fmt.Errorf("mtp: ID: device not open")
	}
	var ids []string
	for _, b := range []byte{
		c.devDescr.Manufacturer,
		c.devDescr.Product,
		c.devDescr.SerialNumber,
	} {
		s, err := c.h.GetStringDescriptorASCII(b)
		if err != nil {
			return "", err
		}
		ids = append(ids, s)
	}
	return strings.Join(ids, " "), nil
}

// FindDevicesDirect scans the bus with libusb and returns unopened
// candidates: alt settings exposing the MTP endpoint triple.
func FindDevicesDirect(ctx *usb.Context) ([]*directConn, error) {
	l, err := ctx.GetDeviceList()
	if err != nil {
		return nil, err
	}
	defer l.Done()

	var cands []*directConn
	for _, d := range l {
		dd, err := d.GetDeviceDescriptor()
		if err != nil {
			continue
		}

		for i := byte(0); i < dd.NumConfigurations; i++ {
			cdesc, err := d.GetConfigDescriptor(i)
			if err != nil {
				continue
			}
			for _, iface := range cdesc.Interfaces {
				for _, a := range iface.AltSetting {
					send, fetch, event, ok := classifyEndpoints(&a)
					if !ok {
						continue
					}
					cands = append(cands, &directConn{
						dev:        d.Ref(),
						devDescr:   *dd,
						ifaceDescr: a,
						sendEP:     send,
						fetchEP:    fetch,
						eventEP:    event,
					})
				}
			}
		}
	}
	return cands, nil
}

// Open claims the interface and, when the interface has a string
// descriptor, requires that string to contain "MTP". Interfaces
// without a string are accepted unchecked.
func (c *directConn) Open() error {
	if c.h != nil {
		return fmt.Errorf("mtp: already open")
	}

	var err error
	c.h, err = c.dev.Open()
	if err != nil {
		return err
	}

	if err := c.h.ClaimInterface(c.ifaceDescr.InterfaceNumber); err != nil {
		c.Close()
		return err
	}
	c.claimed = true

	if c.ifaceDescr.InterfaceStringIndex == 0 {
		// Some devices have no interface string; nothing further is
		// checked for them.
		return nil
	}
	iface, err := c.h.GetStringDescriptorASCII(c.ifaceDescr.InterfaceStringIndex)
	if err != nil {
		c.Close()
		return err
	}
	if !strings.Contains(iface, "MTP") {
		c.Close()
		return fmt.Errorf("mtp: no MTP in interface string %q", iface)
	}
	return nil
}
