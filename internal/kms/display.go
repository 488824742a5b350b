package kms

import (
	"fmt"
)

// Firmware display numbers. The mapping to output type is fixed by the
// firmware.
const (
	DISPLAY_MAIN_LCD    = 0
	DISPLAY_AUX_LCD     = 1
	DISPLAY_HDMI0       = 2
	DISPLAY_VEC         = 3
	DISPLAY_FORCE_LCD   = 4
	DISPLAY_FORCE_TV    = 5
	DISPLAY_FORCE_OTHER = 6
	DISPLAY_HDMI1       = 7
	DISPLAY_FORCE_TV2   = 8
)

// PlanesPerCrtc is the number of planes created for each display.
const PlanesPerCrtc = 3

// DisplayType is the encoder category of a firmware display.
type DisplayType int

const (
	DisplayNone DisplayType = iota
	DisplayDSI
	DisplayTMDS
	DisplayTVDAC
)

func (t DisplayType) String() string {
	switch t {
	case DisplayDSI:
		return "DSI"
	case DisplayTMDS:
		return "TMDS"
	case DisplayTVDAC:
		return "TVDAC"
	default:
		return "None"
	}
}

// MaxDisplays is the number of firmware display numbers.
const MaxDisplays = DISPLAY_FORCE_TV2 + 1

var displayTypes = [MaxDisplays]DisplayType{
	DISPLAY_MAIN_LCD:    DisplayDSI, // DSI or DPI
	DISPLAY_AUX_LCD:     DisplayDSI,
	DISPLAY_HDMI0:       DisplayTMDS,
	DISPLAY_VEC:         DisplayTVDAC,
	DISPLAY_FORCE_LCD:   DisplayNone,
	DISPLAY_FORCE_TV:    DisplayNone,
	DISPLAY_FORCE_OTHER: DisplayNone,
	DISPLAY_HDMI1:       DisplayTMDS,
	DISPLAY_FORCE_TV2:   DisplayNone,
}

var displayNames = [MaxDisplays]string{
	DISPLAY_MAIN_LCD:    "MAIN_LCD",
	DISPLAY_AUX_LCD:     "AUX_LCD",
	DISPLAY_HDMI0:       "HDMI0",
	DISPLAY_VEC:         "VEC",
	DISPLAY_FORCE_LCD:   "FORCE_LCD",
	DISPLAY_FORCE_TV:    "FORCE_TV",
	DISPLAY_FORCE_OTHER: "FORCE_OTHER",
	DISPLAY_HDMI1:       "HDMI1",
	DISPLAY_FORCE_TV2:   "FORCE_TV2",
}

// DisplayTypeOf returns the type of firmware display number n.
func DisplayTypeOf(n uint32) DisplayType {
	if n >= uint32(len(displayTypes)) {
		return DisplayNone
	}
	return displayTypes[n]
}

// DisplayName returns the firmware name of display number n.
func DisplayName(n uint32) string {
	if n >= uint32(len(displayNames)) {
		return fmt.Sprintf("DISPLAY_%d", n)
	}
	return displayNames[n]
}

// hdmiPort returns the GET_DISPLAY_CFG slot of an HDMI display, or -1.
func hdmiPort(n uint32) int {
	switch n {
	case DISPLAY_HDMI0:
		return 0
	case DISPLAY_HDMI1:
		return 1
	default:
		return -1
	}
}

// Display groups the objects created for one firmware display.
type Display struct {
	// Index is the position in the firmware's display enumeration. It
	// selects the doorbell register and the plane id range.
	Index int
	// Number is the firmware display number (0..8).
	Number uint32
	Type   DisplayType

	Crtc      *Crtc
	Encoder   *Encoder
	Connector *Connector
	// Planes holds the primary, overlay and cursor plane.
	Planes [PlanesPerCrtc]*Plane
}

func (d *Display) String() string {
	return fmt.Sprintf("display %d (%s)", d.Index, DisplayName(d.Number))
}

// Primary returns the primary plane.
func (d *Display) Primary() *Plane { return d.Planes[PlanePrimary] }
