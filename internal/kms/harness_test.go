package kms

import (
	"context"
	"testing"

	"github.com/tinyrange/fkms/internal/chipset"
	"github.com/tinyrange/fkms/internal/devices/fwemu"
	"github.com/tinyrange/fkms/internal/edid"
	"github.com/tinyrange/fkms/internal/format"
	"github.com/tinyrange/fkms/internal/mailbox"
	"github.com/tinyrange/fkms/internal/modes"
)

const testIRQ = 48

// testRig is a device bound to an emulated firmware over the chipset.
type testRig struct {
	emu   *fwemu.Emulator
	lines *chipset.LineSet
	dev   *Device
}

func buildEDID(preferred modes.Mode, vics ...uint8) ([]byte, error) {
	return edid.Build(edid.Monitor{
		Manufacturer: "RPI",
		ProductCode:  1,
		Name:         "test",
		Preferred:    preferred,
		VICs:         vics,
		HDMI:         true,
	})
}

func hdmiEDID(t *testing.T, hdmi bool) []byte {
	t.Helper()
	preferred, _ := modes.VICMode(16)
	blob, err := edid.Build(edid.Monitor{
		Manufacturer: "RPI",
		ProductCode:  1,
		Name:         "test",
		Preferred:    preferred,
		VICs:         []uint8{16 | 0x80, 4, 2},
		HDMI:         hdmi,
	})
	if err != nil {
		t.Fatalf("edid.Build: %v", err)
	}
	return blob
}

func newRig(t *testing.T, fw fwemu.Config, cfg Config) *testRig {
	t.Helper()
	b := chipset.NewBuilder()
	lines := b.Lines()
	emu := fwemu.New(fw, lines.AllocateLine(testIRQ))
	if err := b.RegisterDevice("fwemu", emu); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	cs, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	dev, err := Bind(context.Background(), cfg, Platform{
		Firmware:  emu,
		Registers: cs.Window(emu.Base()),
		IRQ:       lines.Line(testIRQ),
	})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	t.Cleanup(dev.Unbind)
	return &testRig{emu: emu, lines: lines, dev: dev}
}

// dualHDMI has two HDMI sinks signalled with tagged doorbells.
func dualHDMI(t *testing.T) fwemu.Config {
	return fwemu.Config{
		Protocol:      fwemu.ProtocolMulti,
		MaxPixelClock: [2]uint32{340000000, 300000000},
		Displays: []fwemu.Display{
			{ID: DISPLAY_HDMI0, EDID: hdmiEDID(t, true)},
			{ID: DISPLAY_HDMI1, EDID: hdmiEDID(t, true)},
		},
	}
}

func testFB(w, h uint32) *Framebuffer {
	return &Framebuffer{
		Width:   w,
		Height:  h,
		Format:  format.DRM_FORMAT_XRGB8888,
		Pitches: [4]uint32{w * 4},
		Addr:    0x3e000000,
	}
}

// modeset routes the connector, sets the preferred mode and shows fb on the
// primary plane of disp.
func (r *testRig) modeset(t *testing.T, disp *Display, fb *Framebuffer, ev *Event) {
	t.Helper()
	ctx := context.Background()
	conn := disp.Connector
	if len(conn.Probe(ctx)) == 0 {
		t.Fatalf("%s has no modes", conn.Name())
	}
	mode, ok := conn.PreferredMode()
	if !ok {
		t.Fatalf("%s has no preferred mode", conn.Name())
	}

	s := r.dev.NewAtomicState()
	s.ConnectorState(conn).Crtc = disp.Crtc
	cs := s.CrtcState(disp.Crtc)
	cs.Active = true
	cs.Mode = mode
	cs.Event = ev
	ps := s.PlaneState(disp.Primary())
	ps.Crtc = disp.Crtc
	ps.FB = fb
	ps.SrcW, ps.SrcH = fb.Width<<16, fb.Height<<16
	ps.CrtcW, ps.CrtcH = uint32(mode.HDisplay), uint32(mode.VDisplay)
	if err := r.dev.Commit(ctx, s, CommitAllowModeset); err != nil {
		t.Fatalf("modeset commit: %v", err)
	}
}

func (r *testRig) planes(disp *Display) map[uint8]mailbox.SetPlane {
	return r.emu.Planes(disp.Number)
}
