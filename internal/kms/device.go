// Package kms is the firmware KMS control plane: it negotiates CRTC, plane
// and connector state for displays driven by the VideoCore firmware and
// turns committed state into firmware property requests.
package kms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/tinyrange/fkms/internal/mailbox"
	"github.com/tinyrange/fkms/internal/smi"
)

// DefaultMaxRefreshRate is the refresh ceiling applied when Config leaves
// it unset. Higher rates give little benefit.
const DefaultMaxRefreshRate = 85

const irqName = "vc4 firmware kms"

type Config struct {
	// MaxRefreshRate rejects modes above this many Hz.
	MaxRefreshRate int
	// HDMIEvenTimings rejects HDMI modes with odd horizontal timings. Set
	// on BCM2711.
	HDMIEvenTimings bool
	// OnEvent is called after each event completes. It may run on the
	// interrupt path and must not commit.
	OnEvent func(*Event)
}

// IRQLine is a shared interrupt line. *chipset.SharedLine implements it.
type IRQLine interface {
	RequestIRQ(name string, fn func() bool) error
	FreeIRQ(name string)
}

// Platform is what Bind needs from its environment.
type Platform struct {
	Firmware  mailbox.Transport
	Registers smi.Registers
	IRQ       IRQLine
}

// Device is a bound firmware KMS instance.
type Device struct {
	cfg  Config
	fw   *mailbox.Client
	regs smi.Registers
	irq  IRQLine

	// kHz per HDMI port, zero when unlimited.
	maxPixelClock [2]uint32

	commitMu sync.Mutex
	stateMu  sync.RWMutex
	// eventMu is shared between the commit and interrupt paths. It guards
	// vblank state and the flip slot of every CRTC.
	eventMu sync.Mutex

	nextID  uint32
	version uint64
	unbound bool

	displays []*Display
	router   *Router
}

func (d *Device) allocID() uint32 {
	d.nextID++
	return d.nextID
}

// Bind discovers the firmware displays and builds their objects. Firmware
// failures during discovery fall back to defaults and are logged; a display
// that cannot be built is skipped.
func Bind(ctx context.Context, cfg Config, p Platform) (*Device, error) {
	if p.Firmware == nil {
		return nil, errors.New("kms: no firmware transport")
	}
	if cfg.MaxRefreshRate == 0 {
		cfg.MaxRefreshRate = DefaultMaxRefreshRate
	}
	d := &Device{
		cfg:  cfg,
		fw:   mailbox.NewClient(p.Firmware),
		regs: p.Registers,
		irq:  p.IRQ,
	}

	num, err := d.fw.NumDisplays(ctx)
	if err != nil {
		// Firmware predating the query drives a single display.
		slog.Warn("fkms: unable to determine number of displays, assuming 1", "error", err)
		num = 1
	}
	if num > MaxDisplays {
		slog.Warn("fkms: firmware reports more displays than it can number, clamping",
			"reported", num, "max", MaxDisplays)
		num = MaxDisplays
	}

	dcfg, err := d.fw.DisplayConfig(ctx)
	if err != nil {
		slog.Warn("fkms: unable to read display config, no pixel clock limit", "error", err)
	} else {
		// Reported in Hz, compared against mode clocks in kHz.
		d.maxPixelClock[0] = dcfg.MaxPixelClock[0] / 1000
		d.maxPixelClock[1] = dcfg.MaxPixelClock[1] / 1000
	}

	crtcs := make([]*Crtc, num)
	for i := uint32(0); i < num; i++ {
		number, err := d.fw.DisplayID(ctx, i)
		if err != nil {
			slog.Error("fkms: failed to get display id", "index", i, "error", err)
			number = i
		}
		disp, err := d.createScreen(ctx, int(i), number)
		if err != nil {
			slog.Error("fkms: failed to create display", "index", i, "error", err)
			continue
		}
		d.displays = append(d.displays, disp)
		crtcs[i] = disp.Crtc
	}

	if num == 0 {
		slog.Warn("fkms: no displays found")
		return d, nil
	}

	d.router = newRouter(d.regs, crtcs)
	switch {
	case d.regs == nil:
		slog.Error("fkms: interrupt registers not mapped, vblank will not be signalled")
	case d.irq == nil:
		slog.Error("fkms: no interrupt line, vblank will not be signalled")
	default:
		d.regs.Write32(smi.SMICS, 0)
		if err := d.irq.RequestIRQ(irqName, d.router.HandleInterrupt); err != nil {
			slog.Error("fkms: failed to register interrupt", "error", err)
		}
	}

	slog.Info("fkms: bound", "displays", len(d.displays),
		"max_pixel_clock_khz", fmt.Sprintf("%d/%d", d.maxPixelClock[0], d.maxPixelClock[1]))
	return d, nil
}

func (d *Device) createScreen(ctx context.Context, index int, number uint32) (*Display, error) {
	if number > math.MaxUint8 {
		return nil, fmt.Errorf("kms: display number %d out of range", number)
	}
	for _, other := range d.displays {
		if other.Number == number {
			return nil, fmt.Errorf("kms: display number %d already used by %s", number, other)
		}
	}

	disp := &Display{Index: index, Number: number, Type: DisplayTypeOf(number)}

	// Blank the console framebuffer the firmware brought up.
	if err := d.fw.BlankDisplay(ctx, uint32(index), true); err != nil {
		slog.Warn("fkms: blank firmware framebuffer failed", "index", index, "error", err)
	}

	disp.Crtc = newCrtc(d, disp)
	for t := PlanePrimary; t <= PlaneCursor; t++ {
		disp.Planes[t] = newPlane(d, disp, t)
	}
	disp.Encoder = newEncoder(d, disp)
	disp.Connector = newConnector(d, disp)

	slog.Debug("fkms: created display", "display", disp.String(), "type", disp.Type,
		"connector", disp.Connector.Name())
	return disp, nil
}

// Unbind stops honouring the interrupt and completes any pending flip.
func (d *Device) Unbind() {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	if d.unbound {
		return
	}
	d.unbound = true

	if d.router != nil && d.regs != nil && d.irq != nil {
		d.irq.FreeIRQ(irqName)
	}
	for _, disp := range d.displays {
		c := disp.Crtc
		c.vblankOff()
		c.dev.eventMu.Lock()
		ev := c.flip
		c.flip = nil
		if ev != nil {
			c.vblankPutLocked()
		}
		seq, ts := c.vblank.count, c.vblank.time
		c.dev.eventMu.Unlock()
		if ev != nil {
			c.sendEvent(ev, seq, ts)
		}
	}
	slog.Info("fkms: unbound")
}

// Displays returns the displays built by Bind in enumeration order.
func (d *Device) Displays() []*Display {
	return append([]*Display(nil), d.displays...)
}

// Display returns the display with enumeration index i.
func (d *Device) Display(i int) (*Display, bool) {
	for _, disp := range d.displays {
		if disp.Index == i {
			return disp, true
		}
	}
	return nil, false
}

// Object finds a CRTC, plane or connector by id.
func (d *Device) Object(id uint32) (Commitable, bool) {
	for _, disp := range d.displays {
		if disp.Crtc.id == id {
			return disp.Crtc, true
		}
		if disp.Connector.id == id {
			return disp.Connector, true
		}
		for _, p := range disp.Planes {
			if p.id == id {
				return p, true
			}
		}
	}
	return nil, false
}

// MaxPixelClock returns the per-HDMI-port ceiling in kHz.
func (d *Device) MaxPixelClock() [2]uint32 { return d.maxPixelClock }

// Router returns the interrupt demultiplexer, or nil without displays.
func (d *Device) Router() *Router { return d.router }
