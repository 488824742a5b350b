// Package fwemu emulates the display side of the VideoCore firmware: the
// property mailbox tags used by firmware KMS and the SMI register block the
// firmware rings on vblank.
package fwemu

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyrange/fkms/internal/chipset"
	"github.com/tinyrange/fkms/internal/mailbox"
)

// Default base address of the SMI block on BCM283x.
const DefaultBase = 0x7e600000

// Protocol selects how vblank is signalled through the doorbell registers.
type Protocol int

const (
	// ProtocolLegacy raises one interrupt for every display and never
	// writes the SMI_NEW tag.
	ProtocolLegacy Protocol = iota
	// ProtocolMulti rings a tagged doorbell per display.
	ProtocolMulti
)

func (p Protocol) String() string {
	if p == ProtocolMulti {
		return "multi"
	}
	return "legacy"
}

// Display is one attached output.
type Display struct {
	// ID is the firmware display number (0..8).
	ID uint32
	// Timing is returned by GET_DISPLAY_TIMING. Nil reports no fixed mode.
	Timing *mailbox.Timings
	// EDID is served block by block by GET_EDID_BLOCK_DISPLAY.
	EDID []byte
}

// Config describes the emulated firmware.
type Config struct {
	Base     uint64
	Protocol Protocol

	// MaxPixelClock is reported by GET_DISPLAY_CFG in Hz.
	MaxPixelClock [2]uint32

	Displays []Display
	// NumDisplays overrides the count reported by GET_NUM_DISPLAYS when
	// non-zero.
	NumDisplays uint32

	// FailNumDisplays leaves GET_NUM_DISPLAYS unanswered like firmware
	// predating the tag.
	FailNumDisplays bool
	// FailDisplayID answers GET_DISPLAY_ID with an error status.
	FailDisplayID bool
}

type displayState struct {
	power   bool
	timing  mailbox.Timings
	planes  map[uint8]mailbox.SetPlane
	vblanks uint64
}

// Emulator implements mailbox.Transport and the SMI register block.
type Emulator struct {
	mu sync.Mutex

	cfg Config
	irq chipset.LineInterrupt

	smics uint32
	dsw   [2]uint32

	displays map[uint32]*displayState

	// Firmware console framebuffer blanking, by display index.
	selected uint32
	console  map[uint32]bool

	calls map[mailbox.Tag]int
}

// New creates an emulator raising irq on vblank.
func New(cfg Config, irq chipset.LineInterrupt) *Emulator {
	if cfg.Base == 0 {
		cfg.Base = DefaultBase
	}
	if irq == nil {
		irq = chipset.LineInterruptDetached()
	}
	e := &Emulator{
		cfg:      cfg,
		irq:      irq,
		displays: make(map[uint32]*displayState),
		console:  make(map[uint32]bool),
		calls:    make(map[mailbox.Tag]int),
	}
	for _, d := range cfg.Displays {
		e.displays[d.ID] = &displayState{planes: make(map[uint8]mailbox.SetPlane)}
	}
	return e
}

// Call implements mailbox.Transport.
func (e *Emulator) Call(ctx context.Context, buf []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(buf) > mailbox.MaxBufferSize {
		return nil, fmt.Errorf("fwemu: buffer of %d bytes exceeds %d", len(buf), mailbox.MaxBufferSize)
	}

	resp := append([]byte{}, buf...)

	e.mu.Lock()
	defer e.mu.Unlock()

	status := uint32(mailbox.FIRMWARE_STATUS_SUCCESS)
	err := mailbox.WalkRequest(resp, func(rt mailbox.RequestTag) error {
		e.calls[rt.Tag]++
		value := resp[rt.Offset : rt.Offset+rt.Size]
		handled, ok := e.handleTag(rt.Tag, value)
		if !ok {
			status = mailbox.FIRMWARE_STATUS_ERROR
			return nil
		}
		if handled {
			mailbox.MarkTagResponse(resp, rt.Offset, uint32(rt.Size))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fwemu: %w", err)
	}
	mailbox.SetBufferStatus(resp, status)
	return resp, nil
}

// handleTag processes one tag in place. handled is false for tags the
// emulated firmware does not know; ok is false when the request fails.
// Must be called with lock held.
func (e *Emulator) handleTag(tag mailbox.Tag, value []byte) (handled, ok bool) {
	u32 := func(off int) uint32 {
		if off+4 > len(value) {
			return 0
		}
		return binary.LittleEndian.Uint32(value[off:])
	}
	put := func(off int, v uint32) {
		if off+4 <= len(value) {
			binary.LittleEndian.PutUint32(value[off:], v)
		}
	}

	switch tag {
	case mailbox.FIRMWARE_FRAMEBUFFER_GET_NUM_DISPLAYS:
		if e.cfg.FailNumDisplays {
			return false, true
		}
		n := uint32(len(e.cfg.Displays))
		if e.cfg.NumDisplays != 0 {
			n = e.cfg.NumDisplays
		}
		put(0, n)

	case mailbox.FIRMWARE_FRAMEBUFFER_GET_DISPLAY_ID:
		idx := u32(0)
		if e.cfg.FailDisplayID || idx >= uint32(len(e.cfg.Displays)) {
			return true, false
		}
		put(0, e.cfg.Displays[idx].ID)

	case mailbox.FIRMWARE_GET_DISPLAY_CFG:
		if len(value) < mailbox.DisplayConfigSize {
			return true, false
		}
		cfg := mailbox.DisplayConfig{MaxPixelClock: e.cfg.MaxPixelClock}
		cfg.Encode(value)

	case mailbox.FIRMWARE_FRAMEBUFFER_SET_DISPLAY_NUM:
		e.selected = u32(0)

	case mailbox.FIRMWARE_FRAMEBUFFER_BLANK:
		e.console[e.selected] = u32(0) != 0

	case mailbox.FIRMWARE_GET_DISPLAY_TIMING:
		if len(value) < mailbox.TimingsSize {
			return true, false
		}
		req := mailbox.ParseTimings(value)
		out := mailbox.Timings{Display: req.Display}
		if d := e.display(uint32(req.Display)); d != nil && d.Timing != nil {
			out = *d.Timing
			out.Display = req.Display
		}
		out.Encode(value)

	case mailbox.FIRMWARE_GET_EDID_BLOCK_DISPLAY:
		if len(value) < mailbox.GetEDIDSize {
			return true, false
		}
		block, id := u32(0), u32(4)
		d := e.display(id)
		if d == nil || len(d.EDID) < int(block+1)*mailbox.EDIDBlockSize {
			return true, false
		}
		copy(value[8:], d.EDID[block*mailbox.EDIDBlockSize:])

	case mailbox.FIRMWARE_SET_TIMING:
		if len(value) < mailbox.TimingsSize {
			return true, false
		}
		t := mailbox.ParseTimings(value)
		st := e.displays[uint32(t.Display)]
		if st == nil {
			return true, false
		}
		st.timing = t
		slog.Debug("fwemu: set timing", "display", t.Display, "clock", t.Clock,
			"hdisplay", t.HDisplay, "vdisplay", t.VDisplay, "flags", fmt.Sprintf("0x%x", t.Flags))

	case mailbox.FIRMWARE_SET_DISPLAY_POWER:
		st := e.displays[u32(0)]
		if st == nil {
			return true, false
		}
		st.power = u32(4) != 0

	case mailbox.FIRMWARE_SET_PLANE:
		if len(value) < mailbox.SetPlaneSize {
			return true, false
		}
		p := mailbox.ParseSetPlane(value)
		st := e.displays[uint32(p.Display)]
		if st == nil {
			return true, false
		}
		if p.ImageType == 0 {
			delete(st.planes, p.PlaneID)
		} else {
			st.planes[p.PlaneID] = p
		}

	default:
		return false, true
	}
	return true, true
}

func (e *Emulator) display(id uint32) *Display {
	for i := range e.cfg.Displays {
		if e.cfg.Displays[i].ID == id {
			return &e.cfg.Displays[i]
		}
	}
	return nil
}

var _ mailbox.Transport = (*Emulator)(nil)
