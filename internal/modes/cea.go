package modes

// CEA-861 video identification codes for the timings a Raspberry Pi HDMI
// port can drive. Entries sharing a timing differ only by picture aspect;
// the first entry wins when the mode carries no aspect.
type ceaMode struct {
	vic  uint8
	mode Mode
}

func cea(vic uint8, clock uint32, h, v [4]uint16, flags Flag, aspect Aspect) ceaMode {
	m := Mode{
		Clock:    clock,
		HDisplay: h[0], HSyncStart: h[1], HSyncEnd: h[2], HTotal: h[3],
		VDisplay: v[0], VSyncStart: v[1], VSyncEnd: v[2], VTotal: v[3],
		Flags:         flags,
		Type:          TypeDriver,
		PictureAspect: aspect,
	}
	m.SetName()
	return ceaMode{vic: vic, mode: m}
}

const (
	pp  = FlagPHSync | FlagPVSync
	nn  = FlagNHSync | FlagNVSync
	ppi = pp | FlagInterlace
)

var ceaModes = []ceaMode{
	cea(1, 25175, [4]uint16{640, 656, 752, 800}, [4]uint16{480, 490, 492, 525}, nn, Aspect4_3),
	cea(2, 27000, [4]uint16{720, 736, 798, 858}, [4]uint16{480, 489, 495, 525}, nn, Aspect4_3),
	cea(3, 27000, [4]uint16{720, 736, 798, 858}, [4]uint16{480, 489, 495, 525}, nn, Aspect16_9),
	cea(4, 74250, [4]uint16{1280, 1390, 1430, 1650}, [4]uint16{720, 725, 730, 750}, pp, Aspect16_9),
	cea(5, 74250, [4]uint16{1920, 2008, 2052, 2200}, [4]uint16{1080, 1084, 1094, 1125}, ppi, Aspect16_9),
	cea(16, 148500, [4]uint16{1920, 2008, 2052, 2200}, [4]uint16{1080, 1084, 1089, 1125}, pp, Aspect16_9),
	cea(17, 27000, [4]uint16{720, 732, 796, 864}, [4]uint16{576, 581, 586, 625}, nn, Aspect4_3),
	cea(18, 27000, [4]uint16{720, 732, 796, 864}, [4]uint16{576, 581, 586, 625}, nn, Aspect16_9),
	cea(19, 74250, [4]uint16{1280, 1720, 1760, 1980}, [4]uint16{720, 725, 730, 750}, pp, Aspect16_9),
	cea(20, 74250, [4]uint16{1920, 2448, 2492, 2640}, [4]uint16{1080, 1084, 1094, 1125}, ppi, Aspect16_9),
	cea(31, 148500, [4]uint16{1920, 2448, 2492, 2640}, [4]uint16{1080, 1084, 1089, 1125}, pp, Aspect16_9),
	cea(32, 74250, [4]uint16{1920, 2558, 2602, 2750}, [4]uint16{1080, 1084, 1089, 1125}, pp, Aspect16_9),
	cea(33, 74250, [4]uint16{1920, 2448, 2492, 2640}, [4]uint16{1080, 1084, 1089, 1125}, pp, Aspect16_9),
	cea(34, 74250, [4]uint16{1920, 2008, 2052, 2200}, [4]uint16{1080, 1084, 1089, 1125}, pp, Aspect16_9),
	cea(63, 297000, [4]uint16{1920, 2008, 2052, 2200}, [4]uint16{1080, 1084, 1089, 1125}, pp, Aspect16_9),
	cea(65, 59400, [4]uint16{1280, 3040, 3080, 3300}, [4]uint16{720, 725, 730, 750}, pp, Aspect64_27),
	cea(69, 74250, [4]uint16{1280, 1390, 1430, 1650}, [4]uint16{720, 725, 730, 750}, pp, Aspect64_27),
	cea(76, 148500, [4]uint16{1920, 2008, 2052, 2200}, [4]uint16{1080, 1084, 1089, 1125}, pp, Aspect64_27),
	cea(93, 297000, [4]uint16{3840, 5116, 5204, 5500}, [4]uint16{2160, 2168, 2178, 2250}, pp, Aspect16_9),
	cea(94, 297000, [4]uint16{3840, 4896, 4984, 5280}, [4]uint16{2160, 2168, 2178, 2250}, pp, Aspect16_9),
	cea(95, 297000, [4]uint16{3840, 4016, 4104, 4400}, [4]uint16{2160, 2168, 2178, 2250}, pp, Aspect16_9),
	cea(96, 594000, [4]uint16{3840, 4896, 4984, 5280}, [4]uint16{2160, 2168, 2178, 2250}, pp, Aspect16_9),
	cea(97, 594000, [4]uint16{3840, 4016, 4104, 4400}, [4]uint16{2160, 2168, 2178, 2250}, pp, Aspect16_9),
	cea(98, 297000, [4]uint16{4096, 5116, 5204, 5500}, [4]uint16{2160, 2168, 2178, 2250}, pp, Aspect256_135),
}

// VICMode returns the timing for a video identification code.
func VICMode(vic uint8) (Mode, bool) {
	for _, c := range ceaModes {
		if c.vic == vic {
			return c.mode, true
		}
	}
	return Mode{}, false
}

// vicAspect returns the picture aspect implied by vic.
func vicAspect(vic uint8) Aspect {
	m, ok := VICMode(vic)
	if !ok {
		return AspectNone
	}
	return m.PictureAspect
}

const syncFlags = FlagPHSync | FlagNHSync | FlagPVSync | FlagNVSync | FlagInterlace | FlagDblClk

func sameGeometry(a, b Mode) bool {
	return a.HDisplay == b.HDisplay && a.HSyncStart == b.HSyncStart &&
		a.HSyncEnd == b.HSyncEnd && a.HTotal == b.HTotal &&
		a.VDisplay == b.VDisplay && a.VSyncStart == b.VSyncStart &&
		a.VSyncEnd == b.VSyncEnd && a.VTotal == b.VTotal &&
		a.Flags&syncFlags == b.Flags&syncFlags
}

func clockClose(a, b uint32) bool {
	if a > b {
		return a-b <= 1
	}
	return b-a <= 1
}

// clockMatches accepts the nominal clock or, for rates that are a multiple
// of 6 Hz, the 1000/1001 NTSC variant.
func clockMatches(clock uint32, c Mode) bool {
	if clockClose(clock, c.Clock) {
		return true
	}
	if c.VRefresh()%6 != 0 {
		return false
	}
	alt := uint32((uint64(c.Clock)*1000 + 500) / 1001)
	return clockClose(clock, alt)
}

// MatchCEA returns the video identification code for m, or 0 if m is not a
// CEA-861 timing.
func MatchCEA(m Mode) uint8 {
	if m.Clock == 0 {
		return 0
	}
	for _, c := range ceaModes {
		if !sameGeometry(m, c.mode) {
			continue
		}
		if m.PictureAspect != AspectNone && m.PictureAspect != c.mode.PictureAspect {
			continue
		}
		if !clockMatches(m.Clock, c.mode) {
			continue
		}
		return c.vic
	}
	return 0
}

// QuantRange is the RGB quantisation range of an HDMI stream.
type QuantRange uint8

const (
	QuantFull QuantRange = iota
	QuantLimited
)

// DefaultRGBQuantRange follows CEA-861-E 5.1: every CEA timing except VIC 1
// defaults to limited range.
func DefaultRGBQuantRange(m Mode) QuantRange {
	if MatchCEA(m) > 1 {
		return QuantLimited
	}
	return QuantFull
}

// AVIInfoFrame carries the fields of the HDMI AVI infoframe the firmware
// needs to program the timing.
type AVIInfoFrame struct {
	VideoCode     uint8
	PictureAspect Aspect
}

// AVIInfoFrameFromMode derives the AVI infoframe for m.
func AVIInfoFrameFromMode(m Mode) AVIInfoFrame {
	f := AVIInfoFrame{VideoCode: MatchCEA(m), PictureAspect: m.PictureAspect}
	if f.PictureAspect == AspectNone && f.VideoCode != 0 {
		f.PictureAspect = vicAspect(f.VideoCode)
	}
	return f
}
