package modes

import "testing"

func TestVRefresh(t *testing.T) {
	m1080p, _ := VICMode(16)
	if got := m1080p.VRefresh(); got != 60 {
		t.Fatalf("1080p refresh = %d, want 60", got)
	}

	m1080i, _ := VICMode(5)
	if got := m1080i.VRefresh(); got != 60 {
		t.Fatalf("1080i refresh = %d, want 60", got)
	}

	dbl := m1080p
	dbl.Flags |= FlagDblScan
	if got := dbl.VRefresh(); got != 30 {
		t.Fatalf("doublescan refresh = %d, want 30", got)
	}

	if got := (Mode{Clock: 1000}).VRefresh(); got != 0 {
		t.Fatalf("empty mode refresh = %d", got)
	}
}

func TestMatchCEA(t *testing.T) {
	m, ok := VICMode(16)
	if !ok {
		t.Fatalf("VIC 16 missing")
	}
	m.PictureAspect = AspectNone
	if vic := MatchCEA(m); vic != 16 {
		t.Fatalf("MatchCEA = %d, want 16", vic)
	}

	// 59.94 Hz variant.
	m.Clock = 148352
	if vic := MatchCEA(m); vic != 16 {
		t.Fatalf("MatchCEA(59.94) = %d, want 16", vic)
	}

	m.PictureAspect = Aspect64_27
	m.Clock = 148500
	if vic := MatchCEA(m); vic != 76 {
		t.Fatalf("MatchCEA(64:27) = %d, want 76", vic)
	}

	m.Flags = FlagNHSync | FlagNVSync
	if vic := MatchCEA(m); vic != 0 {
		t.Fatalf("polarity mismatch matched VIC %d", vic)
	}

	if vic := MatchCEA(EstablishedModes[11]); vic != 0 {
		t.Fatalf("1024x768 matched VIC %d", vic)
	}
}

func TestAVIInfoFrame(t *testing.T) {
	m, _ := VICMode(3)
	m.PictureAspect = AspectNone
	f := AVIInfoFrameFromMode(m)
	// VIC 2 and 3 share timings; without an aspect the 4:3 code wins.
	if f.VideoCode != 2 || f.PictureAspect != Aspect4_3 {
		t.Fatalf("unexpected infoframe %+v", f)
	}

	m.PictureAspect = Aspect16_9
	f = AVIInfoFrameFromMode(m)
	if f.VideoCode != 3 || f.PictureAspect != Aspect16_9 {
		t.Fatalf("unexpected infoframe %+v", f)
	}

	f = AVIInfoFrameFromMode(EstablishedModes[0])
	if f.VideoCode != 0 || f.PictureAspect != AspectNone {
		t.Fatalf("unexpected infoframe for DMT mode %+v", f)
	}
}

func TestDefaultRGBQuantRange(t *testing.T) {
	vga, _ := VICMode(1)
	if DefaultRGBQuantRange(vga) != QuantFull {
		t.Fatalf("VIC 1 should default to full range")
	}
	hd, _ := VICMode(4)
	if DefaultRGBQuantRange(hd) != QuantLimited {
		t.Fatalf("VIC 4 should default to limited range")
	}
	if DefaultRGBQuantRange(EstablishedModes[11]) != QuantFull {
		t.Fatalf("DMT modes should default to full range")
	}
}

func TestSameTiming(t *testing.T) {
	a, _ := VICMode(4)
	b := a
	b.Name = "FIXED_MODE"
	b.Type = TypePreferred
	b.Status = StatusClockHigh
	if !SameTiming(a, b) {
		t.Fatalf("expected same timing")
	}
	b.HTotal++
	if SameTiming(a, b) {
		t.Fatalf("expected different timing")
	}
	if a.Name != "1280x720" {
		t.Fatalf("unexpected name %q", a.Name)
	}
}
