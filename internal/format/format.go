// Package format maps device independent pixel formats and framebuffer
// modifiers onto the firmware's image type enumeration.
package format

import "fmt"

// FourCC pixel format codes (DRM_FORMAT_*).
const (
	DRM_FORMAT_XRGB8888 = 0x34325258 // XR24
	DRM_FORMAT_ARGB8888 = 0x34325241 // AR24
	DRM_FORMAT_XBGR8888 = 0x34324258 // XB24
	DRM_FORMAT_ABGR8888 = 0x34324241 // AB24
	DRM_FORMAT_RGB565   = 0x36314752 // RG16
	DRM_FORMAT_RGB888   = 0x34324752 // RG24
	DRM_FORMAT_BGR888   = 0x34324742 // BG24
	DRM_FORMAT_YUV422   = 0x36315559 // YU16
	DRM_FORMAT_YUV420   = 0x32315559 // YU12
	DRM_FORMAT_YVU420   = 0x32315659 // YV12
	DRM_FORMAT_NV12     = 0x3231564e // NV12
	DRM_FORMAT_NV21     = 0x3132564e // NV21
	DRM_FORMAT_P030     = 0x30333050 // P030
)

// Framebuffer modifiers.
const (
	DRM_FORMAT_MOD_VENDOR_BROADCOM = 0x07

	DRM_FORMAT_MOD_LINEAR  = uint64(0)
	DRM_FORMAT_MOD_INVALID = uint64(0x00ffffffffffffff)

	DRM_FORMAT_MOD_BROADCOM_VC4_T_TILED = uint64(DRM_FORMAT_MOD_VENDOR_BROADCOM)<<56 | 1
	DRM_FORMAT_MOD_BROADCOM_SAND32      = uint64(DRM_FORMAT_MOD_VENDOR_BROADCOM)<<56 | 2
	DRM_FORMAT_MOD_BROADCOM_SAND64      = uint64(DRM_FORMAT_MOD_VENDOR_BROADCOM)<<56 | 3
	DRM_FORMAT_MOD_BROADCOM_SAND128     = uint64(DRM_FORMAT_MOD_VENDOR_BROADCOM)<<56 | 4
	DRM_FORMAT_MOD_BROADCOM_SAND256     = uint64(DRM_FORMAT_MOD_VENDOR_BROADCOM)<<56 | 5

	broadcomParamMask = uint64(1)<<48 - 1
)

// BroadcomModifier builds a Broadcom modifier carrying an embedded parameter
// (the column height for the SAND layouts).
func BroadcomModifier(mod uint64, param uint64) uint64 {
	return mod | (param&broadcomParamMask)<<8
}

// BroadcomMod strips the embedded parameter from a Broadcom modifier.
func BroadcomMod(m uint64) uint64 {
	return m &^ (broadcomParamMask << 8)
}

// BroadcomParam extracts the embedded parameter of a Broadcom modifier.
func BroadcomParam(m uint64) uint64 {
	return (m >> 8) & broadcomParamMask
}

// Firmware image types (VC_IMAGE_*).
const (
	VC_IMAGE_RGB565        = 1
	VC_IMAGE_YUV420        = 3
	VC_IMAGE_RGB888        = 5
	VC_IMAGE_RGBA32        = 15
	VC_IMAGE_YUV422        = 16
	VC_IMAGE_YUV_UV        = 19
	VC_IMAGE_TF_RGBA32     = 20
	VC_IMAGE_TF_RGBX32     = 21
	VC_IMAGE_TF_RGB565     = 25
	VC_IMAGE_BGR888        = 31
	VC_IMAGE_YUV422PLANAR  = 42
	VC_IMAGE_ARGB8888      = 43
	VC_IMAGE_XRGB8888      = 44
	VC_IMAGE_YUV420SP      = 52
	VC_IMAGE_YUV420_S      = 58
	VC_IMAGE_YUV10COL      = 59
	VC_IMAGE_RGBA1010102   = 60
	VC_IMAGE_MAX_SUPPORTED = VC_IMAGE_RGBA1010102
)

// Chroma conversion matrices understood by the firmware (VC_IMAGE_YUVINFO_CSC_*).
const (
	VC_IMAGE_YUVINFO_UNSPECIFIED    = 0
	VC_IMAGE_YUVINFO_CSC_ITUR_BT601 = 1
	VC_IMAGE_YUVINFO_CSC_ITUR_BT709 = 2
	VC_IMAGE_YUVINFO_CSC_JPEG_JFIF  = 3
	VC_IMAGE_YUVINFO_CSC_REC_2020   = 9
)

// imageFormat is one row of the base translation table.
type imageFormat struct {
	fourcc    uint32
	imageType uint8
	isVU      bool
	numPlanes int
	name      string
}

var imageFormats = []imageFormat{
	{fourcc: DRM_FORMAT_XRGB8888, imageType: VC_IMAGE_XRGB8888, numPlanes: 1, name: "XRGB8888"},
	{fourcc: DRM_FORMAT_ARGB8888, imageType: VC_IMAGE_ARGB8888, numPlanes: 1, name: "ARGB8888"},
	{fourcc: DRM_FORMAT_RGB565, imageType: VC_IMAGE_RGB565, numPlanes: 1, name: "RGB565"},
	{fourcc: DRM_FORMAT_RGB888, imageType: VC_IMAGE_BGR888, numPlanes: 1, name: "RGB888"},
	{fourcc: DRM_FORMAT_BGR888, imageType: VC_IMAGE_RGB888, numPlanes: 1, name: "BGR888"},
	{fourcc: DRM_FORMAT_YUV422, imageType: VC_IMAGE_YUV422PLANAR, numPlanes: 3, name: "YUV422"},
	{fourcc: DRM_FORMAT_YUV420, imageType: VC_IMAGE_YUV420, numPlanes: 3, name: "YUV420"},
	{fourcc: DRM_FORMAT_YVU420, imageType: VC_IMAGE_YUV420, isVU: true, numPlanes: 3, name: "YVU420"},
	{fourcc: DRM_FORMAT_NV12, imageType: VC_IMAGE_YUV420SP, numPlanes: 2, name: "NV12"},
	{fourcc: DRM_FORMAT_NV21, imageType: VC_IMAGE_YUV420SP, isVU: true, numPlanes: 2, name: "NV21"},
	{fourcc: DRM_FORMAT_P030, imageType: VC_IMAGE_YUV10COL, numPlanes: 2, name: "P030"},
}

func lookup(fourcc uint32) (imageFormat, bool) {
	for _, f := range imageFormats {
		if f.fourcc == fourcc {
			return f, true
		}
	}
	return imageFormat{}, false
}

// Formats lists every fourcc a plane can scan out.
func Formats() []uint32 {
	out := make([]uint32, 0, len(imageFormats))
	for _, f := range imageFormats {
		out = append(out, f.fourcc)
	}
	return out
}

// Modifiers lists the modifiers a plane advertises, linear first since it
// costs the least bus bandwidth.
func Modifiers() []uint64 {
	return []uint64{
		DRM_FORMAT_MOD_LINEAR,
		DRM_FORMAT_MOD_BROADCOM_VC4_T_TILED,
		DRM_FORMAT_MOD_BROADCOM_SAND128,
	}
}

// NumPlanes returns the number of memory planes of fourcc, or 0 if unknown.
func NumPlanes(fourcc uint32) int {
	f, ok := lookup(fourcc)
	if !ok {
		return 0
	}
	return f.numPlanes
}

// Name returns a printable name for fourcc.
func Name(fourcc uint32) string {
	if f, ok := lookup(fourcc); ok {
		return f.name
	}
	return fmt.Sprintf("%c%c%c%c", byte(fourcc), byte(fourcc>>8), byte(fourcc>>16), byte(fourcc>>24))
}

// ModSupported reports whether fourcc can be scanned out with modifier.
func ModSupported(fourcc uint32, modifier uint64) bool {
	switch fourcc {
	case DRM_FORMAT_XRGB8888, DRM_FORMAT_ARGB8888, DRM_FORMAT_RGB565:
		return modifier == DRM_FORMAT_MOD_LINEAR || modifier == DRM_FORMAT_MOD_BROADCOM_VC4_T_TILED
	case DRM_FORMAT_NV12:
		mod := BroadcomMod(modifier)
		return mod == DRM_FORMAT_MOD_LINEAR || mod == DRM_FORMAT_MOD_BROADCOM_SAND128
	case DRM_FORMAT_P030:
		return BroadcomMod(modifier) == DRM_FORMAT_MOD_BROADCOM_SAND128
	default:
		if _, ok := lookup(fourcc); !ok {
			return false
		}
		return modifier == DRM_FORMAT_MOD_LINEAR
	}
}
