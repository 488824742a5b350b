package kms

import (
	"context"
	"testing"

	"github.com/tinyrange/fkms/internal/devices/fwemu"
	"github.com/tinyrange/fkms/internal/mailbox"
	"github.com/tinyrange/fkms/internal/modes"
)

func testMode(clock uint32, hdisplay, htotal, vtotal uint16) modes.Mode {
	return modes.Mode{
		Clock:      clock,
		HDisplay:   hdisplay,
		HSyncStart: hdisplay + 16,
		HSyncEnd:   hdisplay + 32,
		HTotal:     htotal,
		VDisplay:   600,
		VSyncStart: 601,
		VSyncEnd:   604,
		VTotal:     vtotal,
	}
}

func TestModeValid(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{HDMIEvenTimings: true})
	hdmi0, hdmi1 := r.dev.Displays()[0].Crtc, r.dev.Displays()[1].Crtc

	if got := r.dev.MaxPixelClock(); got != [2]uint32{340000, 300000} {
		t.Fatalf("MaxPixelClock = %v", got)
	}

	dblscan := testMode(40000, 800, 1000, 1000)
	dblscan.Flags |= modes.FlagDblScan
	odd := testMode(40000, 801, 1000, 1000)
	oddDoubled := odd
	oddDoubled.Flags |= modes.FlagDblClk

	tests := []struct {
		name string
		crtc *Crtc
		mode modes.Mode
		want modes.Status
	}{
		{"60Hz", hdmi0, testMode(60000, 800, 1000, 1000), modes.StatusOK},
		{"90Hz", hdmi0, testMode(90000, 800, 1000, 1000), modes.StatusBadVValue},
		{"doublescan", hdmi0, dblscan, modes.StatusNoDblScan},
		{"over port 0 clock", hdmi0, testMode(341000, 800, 10000, 1000), modes.StatusClockHigh},
		{"port 1 only", hdmi0, testMode(320000, 800, 10000, 1000), modes.StatusOK},
		{"over port 1 clock", hdmi1, testMode(320000, 800, 10000, 1000), modes.StatusClockHigh},
		{"odd timing", hdmi0, odd, modes.StatusHIllegal},
		{"odd doubled", hdmi0, oddDoubled, modes.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.crtc.ModeValid(tt.mode); got != tt.want {
				t.Fatalf("ModeValid = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestModeValidRefreshCeiling(t *testing.T) {
	m := testMode(90000, 800, 1000, 1000)
	r := newRig(t, dualHDMI(t), Config{MaxRefreshRate: 100})
	if got := r.dev.Displays()[0].Crtc.ModeValid(m); got != modes.StatusOK {
		t.Fatalf("90Hz with a 100Hz ceiling: %s", got)
	}
}

func TestNoPixelClockLimit(t *testing.T) {
	fw := dualHDMI(t)
	fw.MaxPixelClock = [2]uint32{}
	r := newRig(t, fw, Config{})
	if got := r.dev.Displays()[0].Crtc.ModeValid(testMode(600000, 800, 10000, 1000)); got != modes.StatusOK {
		t.Fatalf("unlimited clock rejected: %s", got)
	}
}

func TestSetTimingFlags(t *testing.T) {
	vic16, _ := modes.VICMode(16)
	base := uint32(mailbox.TIMINGS_FLAGS_H_SYNC_POS | mailbox.TIMINGS_FLAGS_V_SYNC_POS | mailbox.TIMINGS_FLAGS_ASPECT_16_9)

	tests := []struct {
		name      string
		hdmi      bool
		broadcast BroadcastRGB
		flags     uint32
		vic       uint16
	}{
		{"auto", true, BroadcastRGBAuto, base | mailbox.TIMINGS_FLAGS_RGB_LIMITED, 16},
		{"limited", true, BroadcastRGBLimited, base | mailbox.TIMINGS_FLAGS_RGB_LIMITED, 16},
		{"full drops vic", true, BroadcastRGBFull, base, 0},
		{"dvi", false, BroadcastRGBAuto, base | mailbox.TIMINGS_FLAGS_DVI, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw := fwemu.Config{
				Protocol: fwemu.ProtocolMulti,
				Displays: []fwemu.Display{{ID: DISPLAY_HDMI0, EDID: hdmiEDID(t, tt.hdmi)}},
			}
			r := newRig(t, fw, Config{})
			disp := r.dev.Displays()[0]

			s := r.dev.NewAtomicState()
			if err := disp.Connector.SetProperty(s, "Broadcast RGB", uint64(tt.broadcast)); err != nil {
				t.Fatalf("Broadcast RGB: %v", err)
			}
			if err := r.dev.Commit(context.Background(), s, 0); err != nil {
				t.Fatalf("Commit: %v", err)
			}
			r.modeset(t, disp, testFB(1920, 1080), nil)

			if disp.Encoder.HDMIMonitor() != tt.hdmi {
				t.Fatalf("HDMIMonitor = %v", disp.Encoder.HDMIMonitor())
			}
			got := r.emu.Timing(DISPLAY_HDMI0)
			if got.Flags != tt.flags || got.VideoIDCode != tt.vic {
				t.Fatalf("flags %#x vic %d, want %#x vic %d", got.Flags, got.VideoIDCode, tt.flags, tt.vic)
			}
			if got.Clock != vic16.Clock || got.HTotal != vic16.HTotal || got.VTotal != vic16.VTotal || got.VRefresh != 60 {
				t.Fatalf("timing %+v", got)
			}
			if !r.emu.Power(DISPLAY_HDMI0) {
				t.Fatalf("display not powered")
			}
		})
	}
}

func TestInterlacedTiming(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	disp := r.dev.Displays()[0]
	r.modeset(t, disp, testFB(1920, 1080), nil)

	vic5, _ := modes.VICMode(5)
	s := r.dev.NewAtomicState()
	s.CrtcState(disp.Crtc).Mode = vic5
	if err := r.dev.Commit(context.Background(), s, 0); err == nil {
		t.Fatalf("mode change without modeset flag accepted")
	}
	if err := r.dev.Commit(context.Background(), s, CommitAllowModeset); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got := r.emu.Timing(DISPLAY_HDMI0)
	if got.Flags&mailbox.TIMINGS_FLAGS_INTERLACE == 0 || got.VideoIDCode != 5 {
		t.Fatalf("flags %#x vic %d", got.Flags, got.VideoIDCode)
	}
}
