package kms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyrange/fkms/internal/mailbox"
	"github.com/tinyrange/fkms/internal/modes"
)

// CrtcState is the negotiated state of one display pipeline.
type CrtcState struct {
	crtc    *Crtc
	version uint64

	Active  bool
	Mode    modes.Mode
	Margins Margins
	// Event completes when this commit reaches the screen.
	Event *Event

	modeChanged       bool
	activeChanged     bool
	connectorsChanged bool
}

func (s *CrtcState) Crtc() *Crtc { return s.crtc }

// NeedsModeset reports whether the commit reprograms the timing.
func (s *CrtcState) NeedsModeset() bool {
	return s.modeChanged || s.activeChanged || s.connectorsChanged
}

func (s *CrtcState) duplicate() *CrtcState {
	dup := *s
	dup.Event = nil
	dup.modeChanged, dup.activeChanged, dup.connectorsChanged = false, false, false
	return &dup
}

// Crtc drives the timing of one firmware display.
type Crtc struct {
	dev     *Device
	id      uint32
	index   int
	number  uint32
	display *Display

	// guarded by dev.stateMu
	state *CrtcState

	// guarded by dev.eventMu
	vblank vblank
	flip   *Event
}

func newCrtc(dev *Device, d *Display) *Crtc {
	c := &Crtc{
		dev:     dev,
		id:      dev.allocID(),
		index:   d.Index,
		number:  d.Number,
		display: d,
	}
	c.vblank.wait = make(chan struct{})
	c.state = &CrtcState{crtc: c}
	return c
}

func (c *Crtc) ID() uint32        { return c.id }
func (c *Crtc) Kind() ObjectKind  { return KindCrtc }
func (c *Crtc) Name() string      { return fmt.Sprintf("[CRTC:%d:crtc-%d]", c.id, c.index) }
func (c *Crtc) Index() int        { return c.index }
func (c *Crtc) Display() *Display { return c.display }

func (c *Crtc) addTo(s *AtomicState) { s.CrtcState(c) }

// State returns the current state. It must not be modified.
func (c *Crtc) State() *CrtcState {
	c.dev.stateMu.RLock()
	defer c.dev.stateMu.RUnlock()
	return c.state
}

// ModeValid checks m against the limits of this display.
func (c *Crtc) ModeValid(m modes.Mode) modes.Status {
	if m.Flags&modes.FlagDblScan != 0 {
		slog.Debug("fkms: doublescan mode rejected", "crtc", c.index)
		return modes.StatusNoDblScan
	}

	if m.VRefresh() > c.dev.cfg.MaxRefreshRate {
		return modes.StatusBadVValue
	}

	port := hdmiPort(c.number)
	if port >= 0 {
		if max := c.dev.maxPixelClock[port]; max != 0 && m.Clock > max {
			return modes.StatusClockHigh
		}
	}

	if c.dev.cfg.HDMIEvenTimings && port >= 0 && m.Flags&modes.FlagDblClk == 0 {
		odd := m.HDisplay |
			(m.HSyncStart - m.HDisplay) |
			(m.HSyncEnd - m.HSyncStart) |
			(m.HTotal - m.HSyncEnd)
		if odd&1 != 0 {
			slog.Debug("fkms: odd timing rejected", "crtc", c.index,
				"hdisplay", m.HDisplay, "hsync_start", m.HSyncStart,
				"hsync_end", m.HSyncEnd, "htotal", m.HTotal)
			return modes.StatusHIllegal
		}
	}

	return modes.StatusOK
}

// check pulls the TV margins of the routed connector into the CRTC state.
func (c *Crtc) check(s *AtomicState, cs *CrtcState) error {
	if conn := s.connectorFor(c); conn != nil {
		cs.Margins = conn.Margins
	}
	return nil
}

// timings builds the SET_TIMING request for the current state.
func (c *Crtc) timings() mailbox.Timings {
	m := c.state.Mode
	frame := modes.AVIInfoFrameFromMode(m)

	t := mailbox.Timings{
		Display:     uint8(c.number),
		VideoIDCode: uint16(frame.VideoCode),
		Clock:       m.Clock,
		HDisplay:    m.HDisplay,
		HSyncStart:  m.HSyncStart,
		HSyncEnd:    m.HSyncEnd,
		HTotal:      m.HTotal,
		HSkew:       m.HSkew,
		VDisplay:    m.VDisplay,
		VSyncStart:  m.VSyncStart,
		VSyncEnd:    m.VSyncEnd,
		VTotal:      m.VTotal,
		VScan:       m.VScan,
		VRefresh:    uint16(m.VRefresh()),
	}
	if m.Flags&modes.FlagPHSync != 0 {
		t.Flags |= mailbox.TIMINGS_FLAGS_H_SYNC_POS
	}
	if m.Flags&modes.FlagPVSync != 0 {
		t.Flags |= mailbox.TIMINGS_FLAGS_V_SYNC_POS
	}

	switch frame.PictureAspect {
	case modes.Aspect4_3:
		t.Flags |= mailbox.TIMINGS_FLAGS_ASPECT_4_3
	case modes.Aspect16_9:
		t.Flags |= mailbox.TIMINGS_FLAGS_ASPECT_16_9
	case modes.Aspect64_27:
		t.Flags |= mailbox.TIMINGS_FLAGS_ASPECT_64_27
	case modes.Aspect256_135:
		t.Flags |= mailbox.TIMINGS_FLAGS_ASPECT_256_135
	default:
		t.Flags |= mailbox.TIMINGS_FLAGS_ASPECT_NONE
	}

	if m.Flags&modes.FlagInterlace != 0 {
		t.Flags |= mailbox.TIMINGS_FLAGS_INTERLACE
	}
	if m.Flags&modes.FlagDblClk != 0 {
		t.Flags |= mailbox.TIMINGS_FLAGS_DBL_CLK
	}

	if !c.display.Encoder.HDMIMonitor() {
		t.Flags |= mailbox.TIMINGS_FLAGS_DVI
		return t
	}

	defaultLimited := modes.DefaultRGBQuantRange(m) == modes.QuantLimited
	switch c.display.Connector.state.BroadcastRGB {
	case BroadcastRGBAuto:
		// CEA-861-E 5.1 default encoding.
		if defaultLimited {
			t.Flags |= mailbox.TIMINGS_FLAGS_RGB_LIMITED
		}
	default:
		limited := c.display.Connector.state.BroadcastRGB == BroadcastRGBLimited
		if limited {
			t.Flags |= mailbox.TIMINGS_FLAGS_RGB_LIMITED
		}
		// The AVI infoframe may not signal the opposite of the range a
		// VIC implies, so drop the VIC.
		if limited != defaultLimited {
			t.VideoIDCode = 0
		}
	}
	return t
}

func (c *Crtc) modeSet(ctx context.Context) {
	t := c.timings()
	slog.Debug("fkms: set mode", "display", c.number, "mode", c.state.Mode.String(),
		"vic", t.VideoIDCode, "flags", fmt.Sprintf("%#x", t.Flags))
	if err := c.dev.fw.SetTiming(ctx, t); err != nil {
		slog.Error("fkms: set timing failed", "display", c.number, "error", err)
	}
}

// disable turns vblank off and blanks every plane; the firmware has no
// CRTC level blanking. Pending events are completed since no flip will
// follow.
func (c *Crtc) disable(ctx context.Context) {
	slog.Debug("fkms: vblanks off", "crtc", c.index)

	c.dev.eventMu.Lock()
	c.vblank.enabled = false
	c.wakeLocked()
	pending := c.flip
	if pending != nil {
		c.flip = nil
		c.vblankPutLocked()
	}
	c.dev.eventMu.Unlock()

	for _, p := range c.display.Planes {
		p.disable(ctx)
	}

	c.dev.eventMu.Lock()
	ev := c.state.Event
	c.state.Event = nil
	seq := c.vblank.count
	c.dev.eventMu.Unlock()

	now := time.Now()
	if pending != nil {
		c.sendEvent(pending, seq, now)
	}
	if ev != nil {
		c.sendEvent(ev, seq, now)
	}
}

// consumeEvent moves the commit's event to the flip slot, to be completed
// by the next vblank interrupt.
func (c *Crtc) consumeEvent() {
	if c.state.Event == nil {
		return
	}

	c.dev.eventMu.Lock()
	ev := c.state.Event
	c.state.Event = nil
	seq := c.vblank.count
	if err := c.vblankGetLocked(); err != nil {
		c.dev.eventMu.Unlock()
		slog.Warn("fkms: no vblank for event, completing now", "crtc", c.index, "error", err)
		c.sendEvent(ev, seq, time.Time{})
		return
	}
	stale := c.flip
	if stale != nil {
		c.vblankPutLocked()
	}
	c.flip = ev
	c.dev.eventMu.Unlock()

	if stale != nil {
		slog.Error("fkms: flip slot already occupied", "crtc", c.index)
		c.sendEvent(stale, seq, time.Time{})
	}
}

// enable turns vblank on before any plane is unblanked so a flip cannot
// complete before it can be signalled.
func (c *Crtc) enable(ctx context.Context) {
	slog.Debug("fkms: vblanks on", "crtc", c.index)
	c.vblankOn()
	c.consumeEvent()

	for _, p := range c.display.Planes {
		ps := p.state
		if ps.FB != nil && ps.Crtc == c {
			p.setBlank(ctx, !ps.visible)
		}
	}
}

func (c *Crtc) flush(old *CrtcState) {
	if c.state.Active && old.Active && c.state.Event != nil {
		c.consumeEvent()
	}
}

// handlePageFlip completes the event waiting for this vblank, if any.
func (c *Crtc) handlePageFlip() {
	c.dev.eventMu.Lock()
	ev := c.flip
	if ev == nil {
		c.dev.eventMu.Unlock()
		return
	}
	c.flip = nil
	c.vblankPutLocked()
	seq, ts := c.vblank.count, c.vblank.time
	c.dev.eventMu.Unlock()

	c.sendEvent(ev, seq, ts)
}

// FlipPending reports whether an event is waiting for the next vblank.
func (c *Crtc) FlipPending() bool {
	c.dev.eventMu.Lock()
	defer c.dev.eventMu.Unlock()
	return c.flip != nil
}

func (c *Crtc) pendingFlip() *Event {
	c.dev.eventMu.Lock()
	defer c.dev.eventMu.Unlock()
	return c.flip
}
