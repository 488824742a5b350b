// Package modes holds the display mode record shared by the firmware timing
// codec, EDID decoding and CRTC validation.
package modes

import "fmt"

// Flag is a bitmask of DRM_MODE_FLAG_* values.
type Flag uint32

const (
	FlagPHSync    Flag = 1 << 0
	FlagNHSync    Flag = 1 << 1
	FlagPVSync    Flag = 1 << 2
	FlagNVSync    Flag = 1 << 3
	FlagInterlace Flag = 1 << 4
	FlagDblScan   Flag = 1 << 5
	FlagCSync     Flag = 1 << 6
	FlagDblClk    Flag = 1 << 12
)

// Type is a bitmask of DRM_MODE_TYPE_* values.
type Type uint32

const (
	TypePreferred Type = 1 << 3
	TypeUserDef   Type = 1 << 5
	TypeDriver    Type = 1 << 6
)

// Aspect is the HDMI picture aspect ratio signalled in the AVI infoframe.
type Aspect uint8

const (
	AspectNone Aspect = iota
	Aspect4_3
	Aspect16_9
	Aspect64_27
	Aspect256_135
)

func (a Aspect) String() string {
	switch a {
	case Aspect4_3:
		return "4:3"
	case Aspect16_9:
		return "16:9"
	case Aspect64_27:
		return "64:27"
	case Aspect256_135:
		return "256:135"
	default:
		return "none"
	}
}

// Status is the result of validating a mode (MODE_*).
type Status int

const (
	StatusOK Status = iota
	StatusHIllegal
	StatusVIllegal
	StatusBadVValue
	StatusClockHigh
	StatusNoInterlace
	StatusNoDblScan
	StatusBad
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusHIllegal:
		return "H_ILLEGAL"
	case StatusVIllegal:
		return "V_ILLEGAL"
	case StatusBadVValue:
		return "BAD_VVALUE"
	case StatusClockHigh:
		return "CLOCK_HIGH"
	case StatusNoInterlace:
		return "NO_INTERLACE"
	case StatusNoDblScan:
		return "NO_DBLESCAN"
	default:
		return "BAD"
	}
}

// Mode is a display timing. Clock is the pixel clock in kHz.
type Mode struct {
	Name string

	Clock                                         uint32
	HDisplay, HSyncStart, HSyncEnd, HTotal, HSkew uint16
	VDisplay, VSyncStart, VSyncEnd, VTotal, VScan uint16

	Flags         Flag
	Type          Type
	PictureAspect Aspect

	// Status is filled in when a probed mode is validated.
	Status Status
}

// VRefresh returns the vertical refresh rate in Hz rounded to the nearest
// integer, or 0 for a mode without totals.
func (m Mode) VRefresh() int {
	if m.HTotal == 0 || m.VTotal == 0 {
		return 0
	}
	num := uint64(m.Clock) * 1000
	den := uint64(m.HTotal) * uint64(m.VTotal)
	if m.Flags&FlagInterlace != 0 {
		num *= 2
	}
	if m.Flags&FlagDblScan != 0 {
		den *= 2
	}
	if m.VScan > 1 {
		den *= uint64(m.VScan)
	}
	return int((num + den/2) / den)
}

// SetName fills in the conventional "WxH" or "WxHi" name.
func (m *Mode) SetName() {
	m.Name = fmt.Sprintf("%dx%d", m.HDisplay, m.VDisplay)
	if m.Flags&FlagInterlace != 0 {
		m.Name += "i"
	}
}

// SameTiming reports whether a and b describe the same timing, ignoring
// name, type, aspect and status.
func SameTiming(a, b Mode) bool {
	a.Name, b.Name = "", ""
	a.Type, b.Type = 0, 0
	a.PictureAspect, b.PictureAspect = 0, 0
	a.Status, b.Status = 0, 0
	return a == b
}

// String formats m as a modeline.
func (m Mode) String() string {
	return fmt.Sprintf("%q: %d %d %d %d %d %d %d %d %d %d 0x%x 0x%x",
		m.Name, m.VRefresh(), m.Clock,
		m.HDisplay, m.HSyncStart, m.HSyncEnd, m.HTotal,
		m.VDisplay, m.VSyncStart, m.VSyncEnd, m.VTotal,
		uint32(m.Type), uint32(m.Flags))
}

// ValidateBasic checks that the timing fields are ordered and non-zero.
func (m Mode) ValidateBasic() Status {
	if m.Clock == 0 {
		return StatusBad
	}
	if m.HDisplay == 0 || m.HSyncStart < m.HDisplay || m.HSyncEnd < m.HSyncStart || m.HTotal < m.HSyncEnd {
		return StatusHIllegal
	}
	if m.VDisplay == 0 || m.VSyncStart < m.VDisplay || m.VSyncEnd < m.VSyncStart || m.VTotal < m.VSyncEnd {
		return StatusVIllegal
	}
	return StatusOK
}
