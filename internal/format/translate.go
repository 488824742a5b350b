package format

import (
	"errors"
	"fmt"
)

var ErrUnsupported = errors.New("format: unsupported format/modifier")

// ColorEncoding selects the YCbCr to RGB matrix of a plane.
type ColorEncoding uint8

const (
	EncodingBT601 ColorEncoding = iota
	EncodingBT709
	EncodingBT2020
)

func (e ColorEncoding) String() string {
	switch e {
	case EncodingBT601:
		return "ITU-R BT.601 YCbCr"
	case EncodingBT709:
		return "ITU-R BT.709 YCbCr"
	case EncodingBT2020:
		return "ITU-R BT.2020 YCbCr"
	default:
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
}

// ColorRange selects limited or full quantisation of a YCbCr plane.
type ColorRange uint8

const (
	RangeLimited ColorRange = iota
	RangeFull
)

func (r ColorRange) String() string {
	if r == RangeLimited {
		return "YCbCr limited range"
	}
	return "YCbCr full range"
}

// Layout describes how a framebuffer is laid out in memory.
type Layout struct {
	Format   uint32
	Modifier uint64
	Pitches  [4]uint32
	Offsets  [4]uint32
}

// Image is the firmware's view of a framebuffer layout.
type Image struct {
	Type      uint8
	IsVU      bool
	Pitch     uint32
	NumPlanes int
	// ColorSpace is one of VC_IMAGE_YUVINFO_*; zero for single plane formats.
	ColorSpace uint8
}

// Translate maps a framebuffer layout to the firmware image description.
// Multi-plane formats additionally carry the chroma conversion code derived
// from enc and rng.
func Translate(l Layout, enc ColorEncoding, rng ColorRange) (Image, error) {
	f, ok := lookup(l.Format)
	if !ok || !ModSupported(l.Format, l.Modifier) {
		return Image{}, fmt.Errorf("%w: %s modifier %#x", ErrUnsupported, Name(l.Format), l.Modifier)
	}

	img := Image{
		Type:      f.imageType,
		IsVU:      f.isVU,
		Pitch:     l.Pitches[0],
		NumPlanes: f.numPlanes,
	}

	// Second and third planes packed back to back share one chroma stride.
	if f.numPlanes == 3 && l.Offsets[2]-l.Offsets[1] == l.Pitches[1] {
		img.Type = VC_IMAGE_YUV420_S
	}

	switch BroadcomMod(l.Modifier) {
	case DRM_FORMAT_MOD_BROADCOM_VC4_T_TILED:
		switch img.Type {
		case VC_IMAGE_XRGB8888:
			img.Type = VC_IMAGE_TF_RGBX32
		case VC_IMAGE_ARGB8888:
			img.Type = VC_IMAGE_TF_RGBA32
		case VC_IMAGE_RGB565:
			img.Type = VC_IMAGE_TF_RGB565
		}
	case DRM_FORMAT_MOD_BROADCOM_SAND128:
		switch img.Type {
		case VC_IMAGE_YUV420SP:
			img.Type = VC_IMAGE_YUV_UV
		}
		// The pitch field carries the column height in rows.
		img.Pitch = uint32(BroadcomParam(l.Modifier))
	}

	if f.numPlanes > 1 {
		img.ColorSpace = colorSpace(enc, rng)
	}
	return img, nil
}

func colorSpace(enc ColorEncoding, rng ColorRange) uint8 {
	switch enc {
	case EncodingBT709:
		return VC_IMAGE_YUVINFO_CSC_ITUR_BT709
	case EncodingBT2020:
		return VC_IMAGE_YUVINFO_CSC_REC_2020
	default:
		if rng == RangeLimited {
			return VC_IMAGE_YUVINFO_CSC_ITUR_BT601
		}
		return VC_IMAGE_YUVINFO_CSC_JPEG_JFIF
	}
}
