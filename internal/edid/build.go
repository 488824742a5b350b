package edid

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/fkms/internal/modes"
)

// Monitor describes a sink for Build.
type Monitor struct {
	Manufacturer string // three upper case letters
	ProductCode  uint16
	Name         string

	// Preferred is emitted as the first detailed timing.
	Preferred modes.Mode
	// VICs are advertised in a CEA video data block.
	VICs []uint8
	// HDMI adds the HDMI vendor specific data block.
	HDMI bool
}

// Build encodes m as an EDID 1.3 blob. A CEA extension is appended when the
// monitor advertises VICs or HDMI support.
func Build(m Monitor) ([]byte, error) {
	if len(m.Manufacturer) != 3 {
		return nil, fmt.Errorf("edid: manufacturer %q must be three letters", m.Manufacturer)
	}
	if m.Preferred.Clock == 0 {
		return nil, fmt.Errorf("edid: monitor %q has no preferred timing", m.Name)
	}

	base := make([]byte, BlockSize)
	copy(base, header)
	var id uint16
	for _, c := range []byte(m.Manufacturer) {
		if c < 'A' || c > 'Z' {
			return nil, fmt.Errorf("edid: manufacturer %q must be upper case", m.Manufacturer)
		}
		id = id<<5 | uint16(c-'A'+1)
	}
	binary.BigEndian.PutUint16(base[8:10], id)
	binary.LittleEndian.PutUint16(base[10:12], m.ProductCode)
	base[18] = 1
	base[19] = 3
	base[20] = 0x80 // digital input
	base[24] = 0x0a // RGB, preferred timing is native

	if err := putDetailedTiming(base[54:72], m.Preferred); err != nil {
		return nil, err
	}
	putNameDescriptor(base[72:90], m.Name)

	withCEA := len(m.VICs) > 0 || m.HDMI
	if withCEA {
		base[126] = 1
	}
	seal(base)
	if !withCEA {
		return base, nil
	}

	ext := make([]byte, BlockSize)
	ext[0] = extensionCEA
	ext[1] = 3
	off := 4
	if len(m.VICs) > 0 {
		if len(m.VICs) > 31 {
			return nil, fmt.Errorf("edid: too many VICs (%d)", len(m.VICs))
		}
		ext[off] = ceaTagVideo<<5 | byte(len(m.VICs))
		copy(ext[off+1:], m.VICs)
		off += 1 + len(m.VICs)
	}
	if m.HDMI {
		// OUI followed by a 1.0.0.0 source physical address.
		ext[off] = ceaTagVendor<<5 | 5
		ext[off+1] = hdmiOUI & 0xff
		ext[off+2] = (hdmiOUI >> 8) & 0xff
		ext[off+3] = (hdmiOUI >> 16) & 0xff
		ext[off+4] = 0x10
		ext[off+5] = 0x00
		off += 6
	}
	ext[2] = byte(off)
	seal(ext)

	return append(base, ext...), nil
}

func seal(block []byte) {
	block[BlockSize-1] = 0
	block[BlockSize-1] = -checksum(block)
}

func putDetailedTiming(d []byte, m modes.Mode) error {
	if m.Clock%10 != 0 {
		return fmt.Errorf("edid: clock %d kHz not a multiple of 10", m.Clock)
	}
	vdisplay, vsyncStart, vsyncEnd, vtotal := m.VDisplay, m.VSyncStart, m.VSyncEnd, m.VTotal
	if m.Flags&modes.FlagInterlace != 0 {
		vdisplay /= 2
		vsyncStart /= 2
		vsyncEnd /= 2
		vtotal = (vtotal - 1) / 2
	}

	hblank := m.HTotal - m.HDisplay
	vblank := vtotal - vdisplay
	hso := m.HSyncStart - m.HDisplay
	hspw := m.HSyncEnd - m.HSyncStart
	vso := vsyncStart - vdisplay
	vspw := vsyncEnd - vsyncStart

	binary.LittleEndian.PutUint16(d[0:2], uint16(m.Clock/10))
	d[2] = byte(m.HDisplay)
	d[3] = byte(hblank)
	d[4] = byte(m.HDisplay>>8)<<4 | byte(hblank>>8)&0x0f
	d[5] = byte(vdisplay)
	d[6] = byte(vblank)
	d[7] = byte(vdisplay>>8)<<4 | byte(vblank>>8)&0x0f
	d[8] = byte(hso)
	d[9] = byte(hspw)
	d[10] = byte(vso&0x0f)<<4 | byte(vspw&0x0f)
	d[11] = byte(hso>>8)<<6 | byte(hspw>>8)&0x03<<4 | byte(vso>>4)&0x03<<2 | byte(vspw>>4)&0x03

	flags := byte(0x18)
	if m.Flags&modes.FlagPHSync != 0 {
		flags |= 0x02
	}
	if m.Flags&modes.FlagPVSync != 0 {
		flags |= 0x04
	}
	if m.Flags&modes.FlagInterlace != 0 {
		flags |= 0x80
	}
	d[17] = flags
	return nil
}

func putNameDescriptor(d []byte, name string) {
	d[3] = 0xfc
	text := d[5:18]
	for i := range text {
		text[i] = ' '
	}
	n := copy(text, name)
	if n < len(text) {
		text[n] = '\n'
	}
}
