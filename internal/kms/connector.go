package kms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyrange/fkms/internal/edid"
	"github.com/tinyrange/fkms/internal/mailbox"
	"github.com/tinyrange/fkms/internal/modes"
)

type ConnectorType int

const (
	ConnectorHDMIA ConnectorType = iota
	ConnectorDSI
	ConnectorComposite
)

func (t ConnectorType) String() string {
	switch t {
	case ConnectorDSI:
		return "DSI"
	case ConnectorComposite:
		return "Composite"
	default:
		return "HDMI-A"
	}
}

// ConnectorStatus is the result of Detect.
type ConnectorStatus int

const (
	StatusConnected ConnectorStatus = iota + 1
	StatusDisconnected
	StatusUnknown
)

func (s ConnectorStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// BroadcastRGB overrides the RGB quantisation range sent to HDMI sinks.
type BroadcastRGB uint8

const (
	BroadcastRGBAuto BroadcastRGB = iota
	BroadcastRGBFull
	BroadcastRGBLimited
)

func (b BroadcastRGB) String() string {
	switch b {
	case BroadcastRGBAuto:
		return "Automatic"
	case BroadcastRGBFull:
		return "Full"
	case BroadcastRGBLimited:
		return "Limited 16:235"
	default:
		return fmt.Sprintf("broadcast-rgb(%d)", uint8(b))
	}
}

// ParseBroadcastRGB accepts the property enum names.
func ParseBroadcastRGB(s string) (BroadcastRGB, error) {
	for _, b := range []BroadcastRGB{BroadcastRGBAuto, BroadcastRGBFull, BroadcastRGBLimited} {
		if b.String() == s {
			return b, nil
		}
	}
	switch s {
	case "auto":
		return BroadcastRGBAuto, nil
	case "full":
		return BroadcastRGBFull, nil
	case "limited":
		return BroadcastRGBLimited, nil
	}
	return 0, fmt.Errorf("%w: broadcast RGB %q", ErrInvalidProperty, s)
}

// MaxMargin is the upper bound of each TV margin property.
const MaxMargin = 100

// ConnectorState is the negotiated state of one connector.
type ConnectorState struct {
	connector *Connector
	version   uint64

	Crtc         *Crtc
	BroadcastRGB BroadcastRGB
	Margins      Margins
}

func (s *ConnectorState) Connector() *Connector { return s.connector }

func (s *ConnectorState) duplicate() *ConnectorState {
	dup := *s
	return &dup
}

// lcdMode is the official DSI panel timing, used for DSI and composite
// displays when the firmware does not report one.
var lcdMode = modes.Mode{
	Name:       "800x480",
	Clock:      25979400 / 1000,
	HDisplay:   800,
	HSyncStart: 800 + 1,
	HSyncEnd:   800 + 1 + 2,
	HTotal:     800 + 1 + 2 + 46,
	VDisplay:   480,
	VSyncStart: 480 + 7,
	VSyncEnd:   480 + 7 + 2,
	VTotal:     480 + 7 + 2 + 21,
	Type:       modes.TypeDriver | modes.TypePreferred,
}

// Connector exposes the modes of one firmware display.
type Connector struct {
	dev     *Device
	id      uint32
	typ     ConnectorType
	number  uint32
	crtc    *Crtc
	encoder *Encoder

	interlaceAllowed  bool
	doublescanAllowed bool

	mu     sync.Mutex
	edid   []byte
	probed []modes.Mode

	// guarded by dev.stateMu
	state *ConnectorState
}

func newConnector(dev *Device, d *Display) *Connector {
	c := &Connector{
		dev:     dev,
		id:      dev.allocID(),
		number:  d.Number,
		crtc:    d.Crtc,
		encoder: d.Encoder,
	}
	switch d.Type {
	case DisplayDSI:
		c.typ = ConnectorDSI
	case DisplayTVDAC:
		c.typ = ConnectorComposite
		c.interlaceAllowed = true
	default:
		c.typ = ConnectorHDMIA
		c.interlaceAllowed = true
	}
	c.state = &ConnectorState{connector: c}
	return c
}

func (c *Connector) ID() uint32          { return c.id }
func (c *Connector) Kind() ObjectKind    { return KindConnector }
func (c *Connector) Type() ConnectorType { return c.typ }
func (c *Connector) Encoder() *Encoder   { return c.encoder }

// Crtc returns the only CRTC the connector can be routed to.
func (c *Connector) Crtc() *Crtc { return c.crtc }

func (c *Connector) Name() string {
	return fmt.Sprintf("[CONNECTOR:%d:%s-%d]", c.id, c.typ, c.crtc.index)
}

func (c *Connector) addTo(s *AtomicState) { s.ConnectorState(c) }

// State returns the current state. It must not be modified.
func (c *Connector) State() *ConnectorState {
	c.dev.stateMu.RLock()
	defer c.dev.stateMu.RUnlock()
	return c.state
}

// Detect always reports connected; the firmware has no hotplug query on
// this path.
func (c *Connector) Detect(ctx context.Context) ConnectorStatus {
	return StatusConnected
}

// firmwareMode returns the fixed mode the firmware reports, if any.
func (c *Connector) firmwareMode(ctx context.Context) (modes.Mode, bool) {
	t, err := c.dev.fw.DisplayTiming(ctx, c.number)
	if err != nil {
		slog.Debug("fkms: no firmware timing", "display", c.number, "error", err)
		return modes.Mode{}, false
	}
	if t.Clock == 0 {
		return modes.Mode{}, false
	}
	return modeFromTimings(t), true
}

func modeFromTimings(t mailbox.Timings) modes.Mode {
	m := modes.Mode{
		Name:       "FIXED_MODE",
		Type:       modes.TypeDriver | modes.TypePreferred,
		Clock:      t.Clock,
		HDisplay:   t.HDisplay,
		HSyncStart: t.HSyncStart,
		HSyncEnd:   t.HSyncEnd,
		HTotal:     t.HTotal,
		VDisplay:   t.VDisplay,
		VSyncStart: t.VSyncStart,
		VSyncEnd:   t.VSyncEnd,
		VTotal:     t.VTotal,
		VScan:      t.VScan,
	}
	if t.Flags&mailbox.TIMINGS_FLAGS_H_SYNC_POS != 0 {
		m.Flags |= modes.FlagPHSync
	} else {
		m.Flags |= modes.FlagNHSync
	}
	if t.Flags&mailbox.TIMINGS_FLAGS_V_SYNC_POS != 0 {
		m.Flags |= modes.FlagPVSync
	} else {
		m.Flags |= modes.FlagNVSync
	}
	if t.Flags&mailbox.TIMINGS_FLAGS_INTERLACE != 0 {
		m.Flags |= modes.FlagInterlace
	}
	return m
}

// GetModes returns the unfiltered modes of the sink: the firmware's fixed
// mode if it has one, otherwise the panel default for DSI and composite or
// the EDID modes. DSI and composite sinks have no EDID.
func (c *Connector) GetModes(ctx context.Context) []modes.Mode {
	if m, ok := c.firmwareMode(ctx); ok {
		slog.Debug("fkms: firmware mode", "display", c.number, "mode", m.String())
		return []modes.Mode{m}
	}

	if c.typ == ConnectorDSI || c.typ == ConnectorComposite {
		return []modes.Mode{lcdMode}
	}

	blob, err := edid.Read(func(block int) ([edid.BlockSize]byte, error) {
		return c.dev.fw.EDIDBlock(ctx, uint32(block), c.number)
	})
	var parsed *edid.EDID
	if err != nil {
		slog.Warn("fkms: read EDID failed", "display", c.number, "error", err)
		blob = nil
	} else if parsed, err = edid.Parse(blob); err != nil {
		slog.Warn("fkms: parse EDID failed", "display", c.number, "error", err)
		parsed, blob = nil, nil
	}

	c.encoder.hdmiMonitor.Store(edid.DetectHDMIMonitor(parsed))
	c.mu.Lock()
	c.edid = blob
	c.mu.Unlock()

	if parsed == nil {
		return nil
	}
	return append([]modes.Mode(nil), parsed.Modes...)
}

// validate checks m against the connector capabilities and the CRTC.
func (c *Connector) validate(m modes.Mode) modes.Status {
	if st := m.ValidateBasic(); st != modes.StatusOK {
		return st
	}
	if m.Flags&modes.FlagInterlace != 0 && !c.interlaceAllowed {
		return modes.StatusNoInterlace
	}
	if m.Flags&modes.FlagDblScan != 0 && !c.doublescanAllowed {
		return modes.StatusNoDblScan
	}
	return c.crtc.ModeValid(m)
}

// Probe refreshes the mode list and returns the modes that passed
// validation. Rejected modes are kept with their status in ProbedModes.
func (c *Connector) Probe(ctx context.Context) []modes.Mode {
	list := c.GetModes(ctx)
	if len(list) == 0 && c.Detect(ctx) == StatusConnected {
		list = modes.NoEDIDModes(1024, 768)
	}

	var ok []modes.Mode
	for i := range list {
		if list[i].Name == "" {
			list[i].SetName()
		}
		list[i].Status = c.validate(list[i])
		if list[i].Status == modes.StatusOK {
			ok = append(ok, list[i])
		} else {
			slog.Debug("fkms: mode rejected", "connector", c.Name(), "mode", list[i].String(), "status", list[i].Status)
		}
	}

	c.mu.Lock()
	c.probed = list
	c.mu.Unlock()
	return ok
}

// Modes returns the valid modes found by the last Probe.
func (c *Connector) Modes() []modes.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ok []modes.Mode
	for _, m := range c.probed {
		if m.Status == modes.StatusOK {
			ok = append(ok, m)
		}
	}
	return ok
}

// ProbedModes returns every mode of the last Probe with its status.
func (c *Connector) ProbedModes() []modes.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]modes.Mode(nil), c.probed...)
}

// PreferredMode returns the first preferred valid mode, or the first valid
// mode.
func (c *Connector) PreferredMode() (modes.Mode, bool) {
	list := c.Modes()
	for _, m := range list {
		if m.Type&modes.TypePreferred != 0 {
			return m, true
		}
	}
	if len(list) > 0 {
		return list[0], true
	}
	return modes.Mode{}, false
}

// EDID returns the blob read by the last probe, or nil.
func (c *Connector) EDID() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.edid...)
}
