package mtp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
)

// usbConn is the gousb-backed Conn. It owns the claimed interface and
// the three MTP endpoints.
type usbConn struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	sendEP  *gousb.OutEndpoint
	fetchEP *gousb.InEndpoint
	eventEP *gousb.InEndpoint

	ifaceNum int

	mu      sync.Mutex
	timeout time.Duration
}

const defaultTimeout = 2 * time.Second

// mapUSBError folds gousb's transfer errors into the transport's
// sentinel errors.
func mapUSBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gousb.ErrorPipe) {
		return fmt.Errorf("%w: %v", ErrStall, err)
	}
	if errors.Is(err, gousb.ErrorTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (c *usbConn) deadline() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout == 0 {
		return defaultTimeout
	}
	return c.timeout
}

func (c *usbConn) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

func (c *usbConn) BulkOut(buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.deadline())
	defer cancel()
	n, err := c.sendEP.WriteContext(ctx, buf)
	return n, mapUSBError(err)
}

func (c *usbConn) BulkIn(buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.deadline())
	defer cancel()
	n, err := c.fetchEP.ReadContext(ctx, buf)
	return n, mapUSBError(err)
}

func (c *usbConn) InterruptIn(buf []byte) (int, error) {
	// The interrupt endpoint idles until the device has something to
	// say; give it a long leash so the listener does not spin.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := c.eventEP.ReadContext(ctx, buf)
	return n, mapUSBError(err)
}

// CancelRequest is the class control transfer aborting the transaction
// in flight: the CancelTransaction event code followed by the tid.
func (c *usbConn) CancelRequest(tid uint32) error {
	var payload [6]byte
	byteOrder.PutUint16(payload[0:], EC_CancelTransaction)
	byteOrder.PutUint32(payload[2:], tid)
	_, err := c.dev.Control(
		gousb.ControlOut|gousb.ControlClass|gousb.ControlInterface,
		USB_REQ_CancelRequest, 0, uint16(c.ifaceNum), payload[:])
	return mapUSBError(err)
}

func (c *usbConn) GetDeviceStatus() (uint16, error) {
	var payload [4]byte
	_, err := c.dev.Control(
		gousb.ControlIn|gousb.ControlClass|gousb.ControlInterface,
		USB_REQ_GetDeviceStatus, 0, uint16(c.ifaceNum), payload[:])
	if err != nil {
		return 0, mapUSBError(err)
	}
	return byteOrder.Uint16(payload[2:]), nil
}

// ClearHalt issues the standard CLEAR_FEATURE(ENDPOINT_HALT) request
// on the stalled bulk endpoint.
func (c *usbConn) ClearHalt(in bool) error {
	ep := uint16(c.sendEP.Desc.Address)
	if in {
		ep = uint16(c.fetchEP.Desc.Address)
	}
	_, err := c.dev.Control(
		gousb.ControlOut|gousb.ControlStandard|gousb.ControlEndpoint,
		1 /* CLEAR_FEATURE */, 0 /* ENDPOINT_HALT */, ep, nil)
	return mapUSBError(err)
}

func (c *usbConn) BulkInMaxPacket() int {
	return c.fetchEP.Desc.MaxPacketSize
}

func (c *usbConn) BulkOutMaxPacket() int {
	return c.sendEP.Desc.MaxPacketSize
}

func (c *usbConn) Close() error {
	if c.intf != nil {
		c.intf.Close()
		c.intf = nil
	}
	if c.cfg != nil {
		c.cfg.Close()
		c.cfg = nil
	}
	if c.dev != nil {
		c.dev.Close()
		c.dev = nil
	}
	if c.ctx != nil {
		c.ctx.Close()
		c.ctx = nil
	}
	return nil
}

// ID is the manufacturer, product and serial, for matching devices
// against a user pattern.
func (c *usbConn) ID() (string, error) {
	var parts []string
	for _, get := range []func() (string, error){
		c.dev.Manufacturer,
		c.dev.Product,
		c.dev.SerialNumber,
	} {
		s, err := get()
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " "), nil
}

// Devices that speak MTP behind a vendor-specific interface class and
// no interface string. Keyed by (vid, pid).
var usbQuirkAllowList = map[[2]gousb.ID]string{
	{0x04e8, 0x6860}: "Samsung Galaxy (MTP)",
	{0x18d1, 0x4ee1}: "Google Nexus/Pixel (MTP)",
	{0x18d1, 0x4ee2}: "Google Nexus/Pixel (MTP+ADB)",
	{0x2717, 0xff40}: "Xiaomi Mi (MTP)",
}

// mtpSetting inspects one alt setting: usable when it exposes the
// bulk-in/bulk-out/interrupt-in triple and either carries the still
// image capture class or the device is on the allow-list.
func mtpSetting(desc *gousb.DeviceDesc, s gousb.InterfaceSetting) bool {
	var bulkIn, bulkOut, intrIn bool
	for _, ep := range s.Endpoints {
		switch {
		case ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeBulk:
			bulkIn = true
		case ep.Direction == gousb.EndpointDirectionOut && ep.TransferType == gousb.TransferTypeBulk:
			bulkOut = true
		case ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeInterrupt:
			intrIn = true
		}
	}
	if !bulkIn || !bulkOut || !intrIn {
		return false
	}
	if s.Class == gousb.ClassPTP {
		return true
	}
	_, allowed := usbQuirkAllowList[[2]gousb.ID{desc.Vendor, desc.Product}]
	return allowed
}

// openEndpoints claims the first MTP-looking interface of dev.
func openEndpoints(ctx *gousb.Context, dev *gousb.Device) (*usbConn, error) {
	for cfgNum, cfgDesc := range dev.Desc.Configs {
		for _, ifaceDesc := range cfgDesc.Interfaces {
			for _, alt := range ifaceDesc.AltSettings {
				if !mtpSetting(dev.Desc, alt) {
					continue
				}

				cfg, err := dev.Config(cfgNum)
				if err != nil {
					return nil, fmt.Errorf("mtp: open config %d: %w", cfgNum, err)
				}
				intf, err := cfg.Interface(alt.Number, alt.Alternate)
				if err != nil {
					cfg.Close()
					return nil, fmt.Errorf("mtp: claim interface %d: %w", alt.Number, err)
				}

				c := &usbConn{
					ctx:      ctx,
					dev:      dev,
					cfg:      cfg,
					intf:     intf,
					ifaceNum: alt.Number,
				}
				for _, ep := range alt.Endpoints {
					var err error
					switch {
					case ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeBulk:
						c.fetchEP, err = intf.InEndpoint(ep.Number)
					case ep.Direction == gousb.EndpointDirectionOut && ep.TransferType == gousb.TransferTypeBulk:
						c.sendEP, err = intf.OutEndpoint(ep.Number)
					case ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeInterrupt:
						c.eventEP, err = intf.InEndpoint(ep.Number)
					}
					if err != nil {
						c.Close()
						return nil, fmt.Errorf("mtp: open endpoint %d: %w", ep.Number, err)
					}
				}
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("mtp: no MTP interface on %s", dev.Desc)
}
