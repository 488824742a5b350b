// Package edid decodes the parts of an EDID 1.3/1.4 blob (with CEA-861
// extensions) needed to build a connector's mode list.
package edid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tinyrange/fkms/internal/modes"
)

const (
	BlockSize = 128

	maxExtensions = 4

	extensionCEA = 0x02

	ceaTagVideo  = 2
	ceaTagVendor = 3

	// IEEE OUI of the HDMI Licensing vendor specific data block.
	hdmiOUI = 0x000c03
)

var (
	ErrInvalidHeader = errors.New("edid: invalid header")
	ErrChecksum      = errors.New("edid: bad checksum")
	ErrShort         = errors.New("edid: short blob")
)

var header = []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// EDID is a decoded monitor description.
type EDID struct {
	Manufacturer string
	ProductCode  uint16
	Version      uint8
	Revision     uint8

	// HDMI is set when a CEA extension carries the HDMI vendor block.
	HDMI bool

	// Modes lists the detailed, established and short video descriptor
	// timings in blob order. The first detailed timing is preferred.
	Modes []modes.Mode

	Raw []byte
}

func checksum(block []byte) byte {
	var sum byte
	for _, b := range block {
		sum += b
	}
	return sum
}

// ValidBlock reports whether block has a zero checksum and, for block 0, the
// fixed header.
func ValidBlock(block []byte, index int) error {
	if len(block) < BlockSize {
		return ErrShort
	}
	if index == 0 && !bytes.Equal(block[:8], header) {
		return ErrInvalidHeader
	}
	if checksum(block[:BlockSize]) != 0 {
		return fmt.Errorf("%w: block %d", ErrChecksum, index)
	}
	return nil
}

// Parse decodes a blob made of a base block followed by its extensions.
func Parse(data []byte) (*EDID, error) {
	if err := ValidBlock(data, 0); err != nil {
		return nil, err
	}

	e := &EDID{
		Manufacturer: manufacturer(binary.BigEndian.Uint16(data[8:10])),
		ProductCode:  binary.LittleEndian.Uint16(data[10:12]),
		Version:      data[18],
		Revision:     data[19],
		Raw:          data,
	}

	preferred := true
	for off := 54; off < 126; off += 18 {
		m, ok := parseDetailedTiming(data[off : off+18])
		if !ok {
			continue
		}
		if preferred {
			m.Type |= modes.TypePreferred
			preferred = false
		}
		e.Modes = append(e.Modes, m)
	}

	est := uint32(data[35])<<16 | uint32(data[36])<<8 | uint32(data[37])
	for i := range modes.EstablishedModes {
		if est&(1<<(23-i)) == 0 {
			continue
		}
		if m := modes.EstablishedModes[i]; m.Clock != 0 {
			e.Modes = append(e.Modes, m)
		}
	}

	for i := 1; (i+1)*BlockSize <= len(data); i++ {
		ext := data[i*BlockSize : (i+1)*BlockSize]
		if ext[0] != extensionCEA {
			continue
		}
		e.parseCEA(ext)
	}
	return e, nil
}

func manufacturer(v uint16) string {
	return string([]byte{
		byte('A' - 1 + (v>>10)&0x1f),
		byte('A' - 1 + (v>>5)&0x1f),
		byte('A' - 1 + v&0x1f),
	})
}

// parseDetailedTiming decodes an 18 byte detailed timing descriptor. Display
// descriptors (pixel clock zero) report false.
func parseDetailedTiming(d []byte) (modes.Mode, bool) {
	clock := uint32(binary.LittleEndian.Uint16(d[0:2])) * 10
	if clock == 0 {
		return modes.Mode{}, false
	}

	hactive := uint16(d[2]) | uint16(d[4]&0xf0)<<4
	hblank := uint16(d[3]) | uint16(d[4]&0x0f)<<8
	vactive := uint16(d[5]) | uint16(d[7]&0xf0)<<4
	vblank := uint16(d[6]) | uint16(d[7]&0x0f)<<8
	hso := uint16(d[8]) | uint16(d[11]&0xc0)<<2
	hspw := uint16(d[9]) | uint16(d[11]&0x30)<<4
	vso := uint16(d[10]>>4) | uint16(d[11]&0x0c)<<2
	vspw := uint16(d[10]&0x0f) | uint16(d[11]&0x03)<<4

	if hactive == 0 || vactive == 0 || hspw == 0 || vspw == 0 {
		return modes.Mode{}, false
	}

	m := modes.Mode{
		Clock:      clock,
		HDisplay:   hactive,
		HSyncStart: hactive + hso,
		HSyncEnd:   hactive + hso + hspw,
		HTotal:     hactive + hblank,
		VDisplay:   vactive,
		VSyncStart: vactive + vso,
		VSyncEnd:   vactive + vso + vspw,
		VTotal:     vactive + vblank,
		Type:       modes.TypeDriver,
	}

	flags := d[17]
	if flags&0x18 == 0x18 {
		if flags&0x02 != 0 {
			m.Flags |= modes.FlagPHSync
		} else {
			m.Flags |= modes.FlagNHSync
		}
		if flags&0x04 != 0 {
			m.Flags |= modes.FlagPVSync
		} else {
			m.Flags |= modes.FlagNVSync
		}
	}
	if flags&0x80 != 0 {
		// Descriptors carry field timings; the mode describes the frame.
		m.Flags |= modes.FlagInterlace
		m.VDisplay *= 2
		m.VSyncStart *= 2
		m.VSyncEnd *= 2
		m.VTotal = m.VTotal*2 + 1
	}
	m.SetName()
	return m, true
}

func (e *EDID) parseCEA(ext []byte) {
	dtdStart := int(ext[2])
	if dtdStart < 4 || dtdStart > 127 {
		dtdStart = 127
	}

	for off := 4; off < dtdStart; {
		tag := ext[off] >> 5
		length := int(ext[off] & 0x1f)
		if off+1+length > dtdStart {
			break
		}
		payload := ext[off+1 : off+1+length]
		switch tag {
		case ceaTagVideo:
			for _, svd := range payload {
				vic := svd
				if vic&0x7f <= 64 {
					vic &= 0x7f
				}
				if m, ok := modes.VICMode(vic); ok {
					e.Modes = append(e.Modes, m)
				}
			}
		case ceaTagVendor:
			if length >= 3 {
				oui := uint32(payload[0]) | uint32(payload[1])<<8 | uint32(payload[2])<<16
				if oui == hdmiOUI {
					e.HDMI = true
				}
			}
		}
		off += 1 + length
	}

	for off := dtdStart; off+18 <= 127; off += 18 {
		m, ok := parseDetailedTiming(ext[off : off+18])
		if !ok {
			break
		}
		e.Modes = append(e.Modes, m)
	}
}

// DetectHDMIMonitor reports whether the blob advertises HDMI support. A nil
// or invalid blob is treated as a DVI sink.
func DetectHDMIMonitor(e *EDID) bool {
	return e != nil && e.HDMI
}
