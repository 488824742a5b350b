package config

import (
	"fmt"
	"strings"

	"github.com/tinyrange/fkms/internal/devices/fwemu"
	"github.com/tinyrange/fkms/internal/edid"
	"github.com/tinyrange/fkms/internal/mailbox"
	"github.com/tinyrange/fkms/internal/modes"
)

// EmulatorConfig describes the firmware the simulator talks to.
type EmulatorConfig struct {
	// Protocol is legacy or multi.
	Protocol string `yaml:"protocol"`
	// MaxPixelClock is reported per HDMI port in Hz. Zero entries are
	// reported as zero (no ceiling).
	MaxPixelClock []uint32 `yaml:"maxPixelClock,flow,omitempty"`

	Displays []DisplayConfig `yaml:"displays"`

	FailNumDisplays bool `yaml:"failNumDisplays,omitempty"`
	FailDisplayID   bool `yaml:"failDisplayID,omitempty"`
}

// DisplayConfig is one emulated output. A display either reports a fixed
// firmware timing (FixedVIC) or serves an EDID built from Monitor.
type DisplayConfig struct {
	ID       uint32         `yaml:"id"`
	FixedVIC uint8          `yaml:"fixedVIC,omitempty"`
	Monitor  *MonitorConfig `yaml:"monitor,omitempty"`
}

type MonitorConfig struct {
	Manufacturer string  `yaml:"manufacturer"`
	Product      uint16  `yaml:"product,omitempty"`
	Name         string  `yaml:"name,omitempty"`
	PreferredVIC uint8   `yaml:"preferredVIC"`
	VICs         []uint8 `yaml:"vics,flow,omitempty"`
	HDMI         bool    `yaml:"hdmi,omitempty"`
}

func (e *EmulatorConfig) normalize() {
	if e.Protocol == "" {
		e.Protocol = fwemu.ProtocolMulti.String()
	}
	if len(e.Displays) == 0 {
		e.Displays = []DisplayConfig{{
			ID: 2,
			Monitor: &MonitorConfig{
				Manufacturer: "RPI",
				Name:         "fkms-sim",
				PreferredVIC: 16,
				VICs:         []uint8{16, 4, 2},
				HDMI:         true,
			},
		}}
	}
	for i := range e.Displays {
		if m := e.Displays[i].Monitor; m != nil && m.Manufacturer == "" {
			m.Manufacturer = "RPI"
		}
	}
}

func (e EmulatorConfig) validate() error {
	if _, err := parseProtocol(e.Protocol); err != nil {
		return err
	}
	if len(e.MaxPixelClock) > 2 {
		return fmt.Errorf("maxPixelClock has %d entries, want at most 2", len(e.MaxPixelClock))
	}
	seen := make(map[uint32]bool)
	for i, d := range e.Displays {
		if d.ID > 8 {
			return fmt.Errorf("display %d: id %d out of range 0..8", i, d.ID)
		}
		if seen[d.ID] {
			return fmt.Errorf("display %d: duplicate id %d", i, d.ID)
		}
		seen[d.ID] = true
		if d.FixedVIC != 0 {
			if _, ok := modes.VICMode(d.FixedVIC); !ok {
				return fmt.Errorf("display %d: unknown fixedVIC %d", i, d.FixedVIC)
			}
		}
		if d.Monitor != nil {
			if _, ok := modes.VICMode(d.Monitor.PreferredVIC); !ok {
				return fmt.Errorf("display %d: unknown preferredVIC %d", i, d.Monitor.PreferredVIC)
			}
		}
	}
	return nil
}

func parseProtocol(s string) (fwemu.Protocol, error) {
	switch strings.ToLower(s) {
	case "legacy":
		return fwemu.ProtocolLegacy, nil
	case "multi":
		return fwemu.ProtocolMulti, nil
	default:
		return 0, fmt.Errorf("protocol %q must be legacy or multi", s)
	}
}

// Firmware builds the emulator configuration, encoding monitor EDIDs.
func (e EmulatorConfig) Firmware(base uint64) (fwemu.Config, error) {
	proto, err := parseProtocol(e.Protocol)
	if err != nil {
		return fwemu.Config{}, err
	}
	cfg := fwemu.Config{
		Base:            base,
		Protocol:        proto,
		FailNumDisplays: e.FailNumDisplays,
		FailDisplayID:   e.FailDisplayID,
	}
	copy(cfg.MaxPixelClock[:], e.MaxPixelClock)

	for _, d := range e.Displays {
		disp := fwemu.Display{ID: d.ID}
		if d.FixedVIC != 0 {
			m, ok := modes.VICMode(d.FixedVIC)
			if !ok {
				return fwemu.Config{}, fmt.Errorf("display %d: unknown fixedVIC %d", d.ID, d.FixedVIC)
			}
			t := fixedTiming(m)
			disp.Timing = &t
		}
		if mon := d.Monitor; mon != nil {
			preferred, ok := modes.VICMode(mon.PreferredVIC)
			if !ok {
				return fwemu.Config{}, fmt.Errorf("display %d: unknown preferredVIC %d", d.ID, mon.PreferredVIC)
			}
			blob, err := edid.Build(edid.Monitor{
				Manufacturer: mon.Manufacturer,
				ProductCode:  mon.Product,
				Name:         mon.Name,
				Preferred:    preferred,
				VICs:         mon.VICs,
				HDMI:         mon.HDMI,
			})
			if err != nil {
				return fwemu.Config{}, fmt.Errorf("display %d: %w", d.ID, err)
			}
			disp.EDID = blob
		}
		cfg.Displays = append(cfg.Displays, disp)
	}
	return cfg, nil
}

func fixedTiming(m modes.Mode) mailbox.Timings {
	t := mailbox.Timings{
		Clock:      m.Clock,
		HDisplay:   m.HDisplay,
		HSyncStart: m.HSyncStart,
		HSyncEnd:   m.HSyncEnd,
		HTotal:     m.HTotal,
		HSkew:      m.HSkew,
		VDisplay:   m.VDisplay,
		VSyncStart: m.VSyncStart,
		VSyncEnd:   m.VSyncEnd,
		VTotal:     m.VTotal,
		VScan:      m.VScan,
		VRefresh:   uint16(m.VRefresh()),
	}
	if m.Flags&modes.FlagPHSync != 0 {
		t.Flags |= mailbox.TIMINGS_FLAGS_H_SYNC_POS
	}
	if m.Flags&modes.FlagPVSync != 0 {
		t.Flags |= mailbox.TIMINGS_FLAGS_V_SYNC_POS
	}
	if m.Flags&modes.FlagInterlace != 0 {
		t.Flags |= mailbox.TIMINGS_FLAGS_INTERLACE
	}
	return t
}
