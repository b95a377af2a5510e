package mtp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/gousb"
	"github.com/hanwen/usb"
)

// FindDevice scans the bus for MTP devices, opens the match, and
// returns a ready Conn. pattern is a regexp matched against the
// manufacturer/product/serial string; empty matches anything, more
// than one match is an error.
func FindDevice(pattern string) (Conn, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		for _, cfg := range desc.Configs {
			for _, iface := range cfg.Interfaces {
				for _, alt := range iface.AltSettings {
					if mtpSetting(desc, alt) {
						return true
					}
				}
			}
		}
		return false
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("mtp: bus scan: %w", err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("mtp: no MTP devices found; try replugging the device")
	}

	type candidate struct {
		conn *usbConn
		id   string
	}
	var found []candidate
	for _, dev := range devs {
		c, err := openEndpoints(ctx, dev)
		if err != nil {
			dev.Close()
			continue
		}
		id, err := c.ID()
		if err != nil {
			id = fmt.Sprintf("%v", dev.Desc)
		}
		if pattern != "" && re.FindString(id) == "" {
			c.ctx = nil // the context is shared; close it once, below
			c.Close()
			continue
		}
		found = append(found, candidate{conn: c, id: id})
	}

	if len(found) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("mtp: no device matched %q", pattern)
	}
	if len(found) > 1 {
		var ids []string
		for _, f := range found {
			f.conn.ctx = nil
			f.conn.Close()
			ids = append(ids, f.id)
		}
		ctx.Close()
		return nil, fmt.Errorf("mtp: ambiguous devices: %s", strings.Join(ids, ", "))
	}
	return found[0].conn, nil
}

// FindDeviceDirect is FindDevice over the libusb-direct backend, for
// hosts where gousb is unavailable.
func FindDeviceDirect(pattern string) (Conn, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	ctx := usb.NewContext()
	cands, err := FindDevicesDirect(ctx)
	if err != nil {
		ctx.Exit()
		return nil, fmt.Errorf("mtp: bus scan: %w", err)
	}
	if len(cands) == 0 {
		ctx.Exit()
		return nil, fmt.Errorf("mtp: no MTP devices found; try replugging the device")
	}

	type candidate struct {
		conn *directConn
		id   string
	}
	var found []candidate
	for _, c := range cands {
		if err := c.Open(); err != nil {
			continue
		}
		id, err := c.ID()
		if err != nil {
			c.Close()
			continue
		}
		if pattern != "" && re.FindString(id) == "" {
			c.Close()
			continue
		}
		found = append(found, candidate{conn: c, id: id})
	}

	if len(found) == 0 {
		ctx.Exit()
		return nil, fmt.Errorf("mtp: no device matched %q", pattern)
	}
	if len(found) > 1 {
		var ids []string
		for _, f := range found {
			f.conn.Close()
			ids = append(ids, f.id)
		}
		ctx.Exit()
		return nil, fmt.Errorf("mtp: ambiguous devices: %s", strings.Join(ids, ", "))
	}
	return found[0].conn, nil
}

// Connect finds a device, opens a session on it and starts the event
// listener. The caller owns the returned session and must Close it.
func Connect(pattern string, debug DebugFlags) (*Session, error) {
	conn, err := FindDevice(pattern)
	if err != nil {
		return nil, err
	}
	return connect(conn, debug)
}

// ConnectDirect is Connect over the libusb-direct backend.
func ConnectDirect(pattern string, debug DebugFlags) (*Session, error) {
	conn, err := FindDeviceDirect(pattern)
	if err != nil {
		return nil, err
	}
	return connect(conn, debug)
}

func connect(conn Conn, debug DebugFlags) (*Session, error) {
	s := NewSession(conn, debug)
	if err := s.Open(); err != nil {
		s.t.Close()
		return nil, err
	}
	s.ListenEvents()
	return s, nil
}
