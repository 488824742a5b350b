package kms

import (
	"context"
	"errors"
	"testing"

	"github.com/tinyrange/fkms/internal/format"
	"github.com/tinyrange/fkms/internal/mailbox"
)

func TestRotationSimplify(t *testing.T) {
	supported := Rotate0 | ReflectX | ReflectY
	tests := []struct {
		in, want Rotation
	}{
		{Rotate0, Rotate0},
		{Rotate0 | ReflectX, Rotate0 | ReflectX},
		{Rotate180, Rotate0 | ReflectX | ReflectY},
		{Rotate180 | ReflectX, Rotate0 | ReflectY},
		{Rotate180 | ReflectX | ReflectY, Rotate0},
	}
	for _, tt := range tests {
		if got := tt.in.simplify(supported); got != tt.want {
			t.Errorf("simplify(%#x) = %#x, want %#x", tt.in, got, tt.want)
		}
	}

	if (Rotate90).valid() || (Rotate0 | Rotate180).valid() || Rotation(0).valid() {
		t.Fatalf("invalid rotations accepted")
	}
}

func TestPlaneIDs(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	displays := r.dev.Displays()
	if len(displays) != 2 {
		t.Fatalf("expected 2 displays, got %d", len(displays))
	}
	for _, disp := range displays {
		for i, p := range disp.Planes {
			if want := uint8(i + disp.Index*PlanesPerCrtc); p.FirmwareID() != want {
				t.Fatalf("%s firmware id %d, want %d", p.Name(), p.FirmwareID(), want)
			}
			if p.Type() != PlaneType(i) {
				t.Fatalf("%s has type %s", p.Name(), p.Type())
			}
		}
	}
}

func TestPlaneRecord(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	disp := r.dev.Displays()[0]
	fb := testFB(1920, 1080)
	r.modeset(t, disp, fb, nil)

	got, ok := r.planes(disp)[0]
	if !ok {
		t.Fatalf("primary plane not on screen: %+v", r.planes(disp))
	}
	want := mailbox.SetPlane{
		Display:   DISPLAY_HDMI0,
		PlaneID:   0,
		ImageType: format.VC_IMAGE_XRGB8888,
		Layer:     -127,
		Width:     1920,
		Height:    1080,
		Pitch:     1920 * 4,
		SrcW:      1920 << 16,
		SrcH:      1080 << 16,
		DstW:      1920,
		DstH:      1080,
		Alpha:     0xff,
		NumPlanes: 1,
		Planes:    [4]uint32{fb.Addr},
	}
	if got != want {
		t.Fatalf("SET_PLANE mismatch:\n got %+v\nwant %+v", got, want)
	}
	if rec := disp.Primary().State().Record(); rec != want {
		t.Fatalf("stored record differs: %+v", rec)
	}
}

func TestPlaneTransformAndMargins(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	disp := r.dev.Displays()[0]
	r.modeset(t, disp, testFB(1920, 1080), nil)

	s := r.dev.NewAtomicState()
	p := disp.Primary()
	if err := p.SetProperty(s, "rotation", uint64(Rotate180)); err != nil {
		t.Fatalf("rotation: %v", err)
	}
	if err := p.SetProperty(s, "alpha", 0x8000); err != nil {
		t.Fatalf("alpha: %v", err)
	}
	for _, name := range []string{"left margin", "right margin"} {
		if err := disp.Connector.SetProperty(s, name, 96); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if err := r.dev.Commit(context.Background(), s, 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := r.planes(disp)[0]
	if got.Transform != mailbox.TRANSFORM_FLIP_HRIZ|mailbox.TRANSFORM_FLIP_VERT {
		t.Fatalf("transform %#x", got.Transform)
	}
	if got.Alpha != 0x80 {
		t.Fatalf("alpha %#x", got.Alpha)
	}
	if got.DstX != 96 || got.DstW != 1920-192 || got.DstH != 1080 {
		t.Fatalf("margins not applied: %d,%d %dx%d", got.DstX, got.DstY, got.DstW, got.DstH)
	}
	if m := disp.Crtc.State().Margins; m.Left != 96 || m.Right != 96 {
		t.Fatalf("CRTC margins %+v", m)
	}
}

func TestPlaneZPos(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	disp := r.dev.Displays()[0]
	r.modeset(t, disp, testFB(1920, 1080), nil)

	s := r.dev.NewAtomicState()
	for _, p := range disp.Planes[1:] {
		ps := s.PlaneState(p)
		ps.Crtc = disp.Crtc
		ps.FB = testFB(64, 64)
		ps.SrcW, ps.SrcH = 64<<16, 64<<16
		ps.CrtcW, ps.CrtcH = 64, 64
	}
	// Overlay and cursor share a zpos; the lower id wins.
	s.PlaneState(disp.Planes[PlanePrimary]).ZPos = 5
	s.PlaneState(disp.Planes[PlaneOverlay]).ZPos = 2
	s.PlaneState(disp.Planes[PlaneCursor]).ZPos = 2
	if err := r.dev.Commit(context.Background(), s, 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	planes := r.planes(disp)
	if len(planes) != 3 {
		t.Fatalf("expected 3 planes on screen, got %d", len(planes))
	}
	want := map[uint8]int8{0: 2, 1: -127, 2: 1}
	for id, layer := range want {
		if planes[id].Layer != layer {
			t.Fatalf("plane %d on layer %d, want %d", id, planes[id].Layer, layer)
		}
	}
}

func TestPlaneCheckErrors(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	first, second := r.dev.Displays()[0], r.dev.Displays()[1]
	r.modeset(t, first, testFB(1920, 1080), nil)

	tests := []struct {
		name  string
		apply func(ps *PlaneState)
		err   error
	}{
		{"fb without crtc", func(ps *PlaneState) { ps.Crtc = nil }, ErrInvalidGeometry},
		{"foreign crtc", func(ps *PlaneState) { ps.Crtc = second.Crtc }, ErrInvalidGeometry},
		{"source outside fb", func(ps *PlaneState) { ps.SrcX = 1 << 16 }, ErrInvalidGeometry},
		{"destination out of range", func(ps *PlaneState) { ps.CrtcX = 1 << 20 }, ErrInvalidGeometry},
		{"pitch out of range", func(ps *PlaneState) {
			fb := *ps.FB
			fb.Pitches[0] = 1 << 16
			ps.FB = &fb
		}, ErrInvalidGeometry},
		{"column height out of range", func(ps *PlaneState) {
			fb := *ps.FB
			fb.Format = format.DRM_FORMAT_NV12
			fb.Modifier = format.BroadcomModifier(format.DRM_FORMAT_MOD_BROADCOM_SAND128, 1<<16)
			fb.Pitches = [4]uint32{128, 128}
			fb.Offsets = [4]uint32{0, 1920 * 1080}
			ps.FB = &fb
		}, ErrInvalidGeometry},
		{"unknown format", func(ps *PlaneState) {
			fb := *ps.FB
			fb.Format = 0x20202020
			ps.FB = &fb
		}, format.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := r.dev.NewAtomicState()
			tt.apply(s.PlaneState(first.Primary()))
			err := r.dev.Commit(context.Background(), s, CommitTestOnly|CommitAllowModeset)
			var verr *ValidationError
			if !errors.As(err, &verr) || !errors.Is(err, tt.err) {
				t.Fatalf("expected validation error wrapping %v, got %v", tt.err, err)
			}
			if verr.Object != first.Primary() {
				t.Fatalf("error blamed on %s", verr.Object.Name())
			}
		})
	}
}

func TestPlaneProperties(t *testing.T) {
	r := newRig(t, dualHDMI(t), Config{})
	p := r.dev.Displays()[0].Planes[PlaneOverlay]
	s := r.dev.NewAtomicState()

	if err := p.SetProperty(s, "CRTC_X", uint64(0xffffffffffffffe0)); err != nil {
		t.Fatalf("CRTC_X: %v", err)
	}
	if v, _ := p.Property(s, "CRTC_X"); int64(v) != -32 {
		t.Fatalf("CRTC_X read back %d", int64(v))
	}
	if v, _ := p.Property(nil, "CRTC_X"); v != 0 {
		t.Fatalf("current state modified before commit")
	}
	for name, value := range map[string]uint64{
		"alpha":          0x10000,
		"rotation":       uint64(Rotate90),
		"zpos":           128,
		"COLOR_ENCODING": 3,
		"COLOR_RANGE":    2,
		"bogus":          0,
	} {
		if err := p.SetProperty(s, name, value); !errors.Is(err, ErrInvalidProperty) {
			t.Fatalf("%s=%d: expected ErrInvalidProperty, got %v", name, value, err)
		}
	}
}
