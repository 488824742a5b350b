package kms

import (
	"context"
	"errors"
	"testing"

	"github.com/tinyrange/fkms/internal/devices/fwemu"
	"github.com/tinyrange/fkms/internal/mailbox"
	"github.com/tinyrange/fkms/internal/smi"
)

func TestBindDiscovery(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	displays := r.dev.Displays()
	if len(displays) != 2 {
		t.Fatalf("expected 2 displays, got %d", len(displays))
	}
	for i, want := range []uint32{DISPLAY_HDMI0, DISPLAY_HDMI1} {
		disp := displays[i]
		if disp.Index != i || disp.Number != want || disp.Type != DisplayTMDS {
			t.Fatalf("display %d: %+v", i, disp)
		}
		if !r.emu.ConsoleBlanked(uint32(i)) {
			t.Fatalf("firmware console on %s not blanked", disp)
		}
		for _, obj := range []Commitable{disp.Crtc, disp.Connector, disp.Primary()} {
			got, ok := r.dev.Object(obj.ID())
			if !ok || got != obj {
				t.Fatalf("Object(%d) = %v", obj.ID(), got)
			}
		}
	}
	if got, ok := r.dev.Display(1); !ok || got != displays[1] {
		t.Fatalf("Display(1) = %v", got)
	}
	if _, ok := r.dev.Object(1000); ok {
		t.Fatalf("unknown id resolved")
	}
}

func TestBindFirmwareFailures(t *testing.T) {
	fw := dualHDMI(t)
	fw.FailNumDisplays = true
	fw.FailDisplayID = true
	r := newRig(t, fw, Config{})

	displays := r.dev.Displays()
	if len(displays) != 1 {
		t.Fatalf("expected a single display, got %d", len(displays))
	}
	// The enumeration index stands in for the missing display number.
	if displays[0].Number != 0 || displays[0].Type != DisplayDSI {
		t.Fatalf("unexpected display %+v", displays[0])
	}
}

func TestBindClampsDisplayCount(t *testing.T) {
	fw := fwemu.Config{Protocol: fwemu.ProtocolMulti, NumDisplays: 1000}
	for id := uint32(0); id < MaxDisplays; id++ {
		fw.Displays = append(fw.Displays, fwemu.Display{ID: id})
	}
	r := newRig(t, fw, Config{})

	if n := len(r.dev.Displays()); n != MaxDisplays {
		t.Fatalf("expected %d displays, got %d", MaxDisplays, n)
	}
	if n := r.emu.Calls(mailbox.FIRMWARE_FRAMEBUFFER_GET_DISPLAY_ID); n != MaxDisplays {
		t.Fatalf("queried %d display ids", n)
	}
}

func TestBindSkipsBadDisplays(t *testing.T) {
	fw := fwemu.Config{
		Protocol: fwemu.ProtocolMulti,
		Displays: []fwemu.Display{
			{ID: DISPLAY_HDMI0},
			{ID: DISPLAY_HDMI0},
			{ID: 300},
		},
	}
	r := newRig(t, fw, Config{})
	displays := r.dev.Displays()
	if len(displays) != 1 || displays[0].Index != 0 {
		t.Fatalf("expected only the first display, got %v", displays)
	}

	// A doorbell for the missing display is acknowledged and ignored.
	r.emu.SetDoorbell(0, smi.SMI_NEW)
	r.emu.Vblank(1)
	if handled, _ := r.lines.Stats(testIRQ); handled != 1 {
		t.Fatalf("interrupt not claimed")
	}
	if r.emu.Doorbell(1) != smi.SMI_NEW {
		t.Fatalf("doorbell not acknowledged: %#x", r.emu.Doorbell(1))
	}
}

func TestInterruptPerDisplay(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	first, second := r.dev.Displays()[0], r.dev.Displays()[1]
	ev := NewEvent(1)
	r.modeset(t, first, testFB(1920, 1080), ev)
	r.modeset(t, second, testFB(1920, 1080), nil)

	if !first.Crtc.FlipPending() || first.Crtc.VblankRefs() != 1 {
		t.Fatalf("event not queued for vblank")
	}

	// Display 1's doorbell is tagged but has no pending bit.
	const idle = smi.SMI_NEW | 0x100
	r.emu.SetDoorbell(1, idle)

	r.emu.Vblank(0)
	select {
	case <-ev.Done():
	default:
		t.Fatalf("event not delivered")
	}
	if ev.Crtc() != 0 || ev.Sequence() != 1 || ev.Deliveries() != 1 {
		t.Fatalf("event crtc %d sequence %d deliveries %d", ev.Crtc(), ev.Sequence(), ev.Deliveries())
	}
	if first.Crtc.VblankRefs() != 0 {
		t.Fatalf("vblank reference leaked")
	}
	if r.emu.Doorbell(0) != 0xABCD0000 {
		t.Fatalf("doorbell not acknowledged: %#x", r.emu.Doorbell(0))
	}
	if r.emu.Doorbell(1) != idle {
		t.Fatalf("idle doorbell rewritten: %#x", r.emu.Doorbell(1))
	}
	if n, _ := second.Crtc.VblankCount(); n != 0 {
		t.Fatalf("second display saw %d vblanks", n)
	}

	r.emu.Vblank(1)
	if n, _ := second.Crtc.VblankCount(); n != 1 {
		t.Fatalf("second display saw %d vblanks", n)
	}
	if n, _ := first.Crtc.VblankCount(); n != 1 {
		t.Fatalf("first display saw %d vblanks", n)
	}
}

func TestInterruptLegacy(t *testing.T) {
	fw := dualHDMI(t)
	fw.Protocol = fwemu.ProtocolLegacy
	r := newRig(t, fw, Config{})
	first, second := r.dev.Displays()[0], r.dev.Displays()[1]
	r.modeset(t, first, testFB(1920, 1080), nil)
	r.modeset(t, second, testFB(1920, 1080), nil)

	// An untagged doorbell broadcasts each interrupt to every display.
	for want := uint64(1); want <= 2; want++ {
		r.emu.SetDoorbell(0, 0x00000001)
		r.emu.Raise()
		for _, disp := range []*Display{first, second} {
			if n, _ := disp.Crtc.VblankCount(); n != want {
				t.Fatalf("%s saw %d vblanks after %d interrupts", disp, n, want)
			}
		}
	}
	if r.emu.Doorbell(0) != 0x00000001 {
		t.Fatalf("legacy doorbell rewritten: %#x", r.emu.Doorbell(0))
	}
	if handled, _ := r.lines.Stats(testIRQ); handled != 2 {
		t.Fatalf("handled %d interrupts", handled)
	}
}

func TestSpuriousInterrupt(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	if r.dev.Router().HandleInterrupt() {
		t.Fatalf("claimed an interrupt with no cause bits")
	}

	// Cause bits without a tagged doorbell: legacy path, nothing enabled.
	r.emu.Raise()
	handled, spurious := r.lines.Stats(testIRQ)
	if handled != 1 || spurious != 0 {
		t.Fatalf("stats %d/%d", handled, spurious)
	}
}

func TestUnbind(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	disp := r.dev.Displays()[0]
	ev := NewEvent(7)
	r.modeset(t, disp, testFB(1920, 1080), ev)

	r.dev.Unbind()
	select {
	case <-ev.Done():
	default:
		t.Fatalf("pending flip not completed on unbind")
	}
	if disp.Crtc.VblankEnabled() {
		t.Fatalf("vblank still on")
	}

	r.emu.Vblank()
	if _, spurious := r.lines.Stats(testIRQ); spurious != 1 {
		t.Fatalf("handler still registered")
	}
	if err := r.dev.Commit(context.Background(), r.dev.NewAtomicState(), 0); !errors.Is(err, ErrUnbound) {
		t.Fatalf("expected ErrUnbound, got %v", err)
	}
	if ev.Deliveries() != 1 {
		t.Fatalf("event delivered %d times", ev.Deliveries())
	}
}
