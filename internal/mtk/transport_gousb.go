package mtk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// usbCommClass is the USB interface class BootROM/Preloader/DA devices
// enumerate under while the DA protocol is running.
const usbCommClass = gousb.ClassComm

// USBEndpoints is a real Endpoints implementation backed by gousb (which
// wraps libusb). It claims interface 0 and holds the bulk IN/OUT endpoint
// pair for the lifetime of the transfer, following the usual claim/use/
// release discipline for a USB bulk device.
type USBEndpoints struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	epIn   *gousb.InEndpoint
	epOut  *gousb.OutEndpoint
	timeout time.Duration
}

// OpenUSBEndpoints enumerates devices by vendor ID, picks the first one
// whose descriptor lists a CDC-COMM class interface setting in any
// configuration, and claims interface 0 of configuration 1 with its bulk
// IN/OUT endpoint pair (spec.md §4.1, §6).
func OpenUSBEndpoints(vendorID gousb.ID, timeout time.Duration) (*USBEndpoints, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != vendorID {
			return false
		}
		for _, cfg := range desc.Configs {
			for _, intf := range cfg.Interfaces {
				for _, alt := range intf.AltSettings {
					if alt.Class == usbCommClass {
						return true
					}
				}
			}
		}
		return false
	})
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("enumerating USB devices: %w", err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("no MediaTek device found (vendor 0x%04x, CDC-comm class)", vendorID)
	}
	dev := devs[0]
	for _, extra := range devs[1:] {
		extra.Close()
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("setting auto-detach: %w", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("claiming USB config: %w", err)
	}

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("claiming USB interface 0: %w", err)
	}

	epIn, epOut, err := findBulkEndpoints(intf)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}

	return &USBEndpoints{
		ctx: ctx, dev: dev, cfg: cfg, intf: intf,
		epIn: epIn, epOut: epOut, timeout: timeout,
	}, nil
}

func findBulkEndpoints(intf *gousb.Interface) (*gousb.InEndpoint, *gousb.OutEndpoint, error) {
	var inAddr, outAddr gousb.EndpointAddress
	var haveIn, haveOut bool

	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			inAddr = ep.Address
			haveIn = true
		} else {
			outAddr = ep.Address
			haveOut = true
		}
	}
	if !haveIn || !haveOut {
		return nil, nil, fmt.Errorf("no bulk IN/OUT endpoint pair on interface 0")
	}

	epIn, err := intf.InEndpoint(int(inAddr) & 0x0F)
	if err != nil {
		return nil, nil, fmt.Errorf("opening bulk IN endpoint: %w", err)
	}
	epOut, err := intf.OutEndpoint(int(outAddr) & 0x0F)
	if err != nil {
		return nil, nil, fmt.Errorf("opening bulk OUT endpoint: %w", err)
	}
	return epIn, epOut, nil
}

// ReadBulk performs a single bounded bulk IN transfer.
func (u *USBEndpoints) ReadBulk(buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
	defer cancel()
	return u.epIn.ReadContext(ctx, buf)
}

// WriteBulk performs a single bounded bulk OUT transfer.
func (u *USBEndpoints) WriteBulk(buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
	defer cancel()
	return u.epOut.WriteContext(ctx, buf)
}

// Close releases the interface, config, and device handle, and tears down
// the USB context, in that order (spec.md §5 "Resource lifecycle").
func (u *USBEndpoints) Close() error {
	u.intf.Close()
	if err := u.cfg.Close(); err != nil {
		u.dev.Close()
		u.ctx.Close()
		return fmt.Errorf("releasing USB config: %w", err)
	}
	if err := u.dev.Close(); err != nil {
		u.ctx.Close()
		return fmt.Errorf("closing USB device: %w", err)
	}
	return u.ctx.Close()
}
