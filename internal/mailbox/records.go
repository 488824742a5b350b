package mailbox

import "encoding/binary"

// Values for the SetPlane transform field.
const (
	TRANSFORM_NO_ROTATE  = 0
	TRANSFORM_ROTATE_180 = 1 << 1
	TRANSFORM_FLIP_HRIZ  = 1 << 16
	TRANSFORM_FLIP_VERT  = 1 << 17
)

// Flags carried in Timings.Flags.
const (
	TIMINGS_FLAGS_H_SYNC_POS = 1 << 0
	TIMINGS_FLAGS_H_SYNC_NEG = 0
	TIMINGS_FLAGS_V_SYNC_POS = 1 << 1
	TIMINGS_FLAGS_V_SYNC_NEG = 0
	TIMINGS_FLAGS_INTERLACE  = 1 << 2

	TIMINGS_FLAGS_ASPECT_MASK    = 0xf << 4
	TIMINGS_FLAGS_ASPECT_NONE    = 0 << 4
	TIMINGS_FLAGS_ASPECT_4_3     = 1 << 4
	TIMINGS_FLAGS_ASPECT_16_9    = 2 << 4
	TIMINGS_FLAGS_ASPECT_64_27   = 3 << 4
	TIMINGS_FLAGS_ASPECT_256_135 = 4 << 4

	// Limited range RGB. Clear means full range.
	TIMINGS_FLAGS_RGB_LIMITED = 1 << 8
	// DVI sink; infoframes are suppressed.
	TIMINGS_FLAGS_DVI = 1 << 9
	// Pixel doubled mode.
	TIMINGS_FLAGS_DBL_CLK = 1 << 10
)

// Payload sizes of the fixed-layout records.
const (
	SetPlaneSize      = 60
	TimingsSize       = 36
	DisplayPowerSize  = 8
	EDIDBlockSize     = 128
	GetEDIDSize       = 8 + EDIDBlockSize
	DisplayConfigSize = 8
	u32Size           = 4
)

// SetPlane is the SET_PLANE request payload.
type SetPlane struct {
	Display   uint8
	PlaneID   uint8
	ImageType uint8
	Layer     int8

	Width  uint16
	Height uint16

	Pitch  uint16
	VPitch uint16

	SrcX uint32 // 16.16 fixed point
	SrcY uint32
	SrcW uint32
	SrcH uint32

	DstX int16
	DstY int16
	DstW uint16
	DstH uint16

	Alpha         uint8
	NumPlanes     uint8
	IsVU          uint8
	ColorEncoding uint8

	Planes [4]uint32 // bus address of each sub-plane

	Transform uint32
}

// Encode writes the record into data, which must be at least SetPlaneSize bytes.
func (p *SetPlane) Encode(data []byte) {
	data[0] = p.Display
	data[1] = p.PlaneID
	data[2] = p.ImageType
	data[3] = uint8(p.Layer)
	binary.LittleEndian.PutUint16(data[4:6], p.Width)
	binary.LittleEndian.PutUint16(data[6:8], p.Height)
	binary.LittleEndian.PutUint16(data[8:10], p.Pitch)
	binary.LittleEndian.PutUint16(data[10:12], p.VPitch)
	binary.LittleEndian.PutUint32(data[12:16], p.SrcX)
	binary.LittleEndian.PutUint32(data[16:20], p.SrcY)
	binary.LittleEndian.PutUint32(data[20:24], p.SrcW)
	binary.LittleEndian.PutUint32(data[24:28], p.SrcH)
	binary.LittleEndian.PutUint16(data[28:30], uint16(p.DstX))
	binary.LittleEndian.PutUint16(data[30:32], uint16(p.DstY))
	binary.LittleEndian.PutUint16(data[32:34], p.DstW)
	binary.LittleEndian.PutUint16(data[34:36], p.DstH)
	data[36] = p.Alpha
	data[37] = p.NumPlanes
	data[38] = p.IsVU
	data[39] = p.ColorEncoding
	for i, addr := range p.Planes {
		binary.LittleEndian.PutUint32(data[40+i*4:44+i*4], addr)
	}
	binary.LittleEndian.PutUint32(data[56:60], p.Transform)
}

// Bytes returns a freshly encoded copy of the record.
func (p *SetPlane) Bytes() []byte {
	data := make([]byte, SetPlaneSize)
	p.Encode(data)
	return data
}

// ParseSetPlane decodes a SET_PLANE payload.
func ParseSetPlane(data []byte) SetPlane {
	p := SetPlane{
		Display:       data[0],
		PlaneID:       data[1],
		ImageType:     data[2],
		Layer:         int8(data[3]),
		Width:         binary.LittleEndian.Uint16(data[4:6]),
		Height:        binary.LittleEndian.Uint16(data[6:8]),
		Pitch:         binary.LittleEndian.Uint16(data[8:10]),
		VPitch:        binary.LittleEndian.Uint16(data[10:12]),
		SrcX:          binary.LittleEndian.Uint32(data[12:16]),
		SrcY:          binary.LittleEndian.Uint32(data[16:20]),
		SrcW:          binary.LittleEndian.Uint32(data[20:24]),
		SrcH:          binary.LittleEndian.Uint32(data[24:28]),
		DstX:          int16(binary.LittleEndian.Uint16(data[28:30])),
		DstY:          int16(binary.LittleEndian.Uint16(data[30:32])),
		DstW:          binary.LittleEndian.Uint16(data[32:34]),
		DstH:          binary.LittleEndian.Uint16(data[34:36]),
		Alpha:         data[36],
		NumPlanes:     data[37],
		IsVU:          data[38],
		ColorEncoding: data[39],
		Transform:     binary.LittleEndian.Uint32(data[56:60]),
	}
	for i := range p.Planes {
		p.Planes[i] = binary.LittleEndian.Uint32(data[40+i*4 : 44+i*4])
	}
	return p
}

// Timings is the payload of SET_TIMING and the response of GET_DISPLAY_TIMING.
type Timings struct {
	Display     uint8
	VideoIDCode uint16

	Clock uint32 // kHz

	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16

	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16

	VRefresh uint16

	Flags uint32
}

func (t *Timings) Encode(data []byte) {
	data[0] = t.Display
	data[1] = 0
	binary.LittleEndian.PutUint16(data[2:4], t.VideoIDCode)
	binary.LittleEndian.PutUint32(data[4:8], t.Clock)
	binary.LittleEndian.PutUint16(data[8:10], t.HDisplay)
	binary.LittleEndian.PutUint16(data[10:12], t.HSyncStart)
	binary.LittleEndian.PutUint16(data[12:14], t.HSyncEnd)
	binary.LittleEndian.PutUint16(data[14:16], t.HTotal)
	binary.LittleEndian.PutUint16(data[16:18], t.HSkew)
	binary.LittleEndian.PutUint16(data[18:20], t.VDisplay)
	binary.LittleEndian.PutUint16(data[20:22], t.VSyncStart)
	binary.LittleEndian.PutUint16(data[22:24], t.VSyncEnd)
	binary.LittleEndian.PutUint16(data[24:26], t.VTotal)
	binary.LittleEndian.PutUint16(data[26:28], t.VScan)
	binary.LittleEndian.PutUint16(data[28:30], t.VRefresh)
	binary.LittleEndian.PutUint16(data[30:32], 0)
	binary.LittleEndian.PutUint32(data[32:36], t.Flags)
}

func (t *Timings) Bytes() []byte {
	data := make([]byte, TimingsSize)
	t.Encode(data)
	return data
}

func ParseTimings(data []byte) Timings {
	return Timings{
		Display:     data[0],
		VideoIDCode: binary.LittleEndian.Uint16(data[2:4]),
		Clock:       binary.LittleEndian.Uint32(data[4:8]),
		HDisplay:    binary.LittleEndian.Uint16(data[8:10]),
		HSyncStart:  binary.LittleEndian.Uint16(data[10:12]),
		HSyncEnd:    binary.LittleEndian.Uint16(data[12:14]),
		HTotal:      binary.LittleEndian.Uint16(data[14:16]),
		HSkew:       binary.LittleEndian.Uint16(data[16:18]),
		VDisplay:    binary.LittleEndian.Uint16(data[18:20]),
		VSyncStart:  binary.LittleEndian.Uint16(data[20:22]),
		VSyncEnd:    binary.LittleEndian.Uint16(data[22:24]),
		VTotal:      binary.LittleEndian.Uint16(data[24:26]),
		VScan:       binary.LittleEndian.Uint16(data[26:28]),
		VRefresh:    binary.LittleEndian.Uint16(data[28:30]),
		Flags:       binary.LittleEndian.Uint32(data[32:36]),
	}
}

// DisplayConfig is the GET_DISPLAY_CFG response.
type DisplayConfig struct {
	MaxPixelClock [2]uint32 // Hz, per HDMI port
}

func (c *DisplayConfig) Encode(data []byte) {
	binary.LittleEndian.PutUint32(data[0:4], c.MaxPixelClock[0])
	binary.LittleEndian.PutUint32(data[4:8], c.MaxPixelClock[1])
}

func ParseDisplayConfig(data []byte) DisplayConfig {
	return DisplayConfig{MaxPixelClock: [2]uint32{
		binary.LittleEndian.Uint32(data[0:4]),
		binary.LittleEndian.Uint32(data[4:8]),
	}}
}

func putU32s(vals ...uint32) []byte {
	data := make([]byte, len(vals)*u32Size)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(data[i*u32Size:], v)
	}
	return data
}
