// Package mailbox implements the firmware property-list protocol used to
// drive the display co-processor: tag constants, the fixed-layout request
// records and a typed client over an abstract Transport.
package mailbox

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Tag identifies a property request understood by the firmware.
type Tag uint32

// Firmware property tags used by the display stack.
const (
	FIRMWARE_FRAMEBUFFER_BLANK            = Tag(0x00040002)
	FIRMWARE_FRAMEBUFFER_GET_NUM_DISPLAYS = Tag(0x00040013)
	FIRMWARE_FRAMEBUFFER_GET_DISPLAY_ID   = Tag(0x00040016)
	FIRMWARE_FRAMEBUFFER_SET_DISPLAY_NUM  = Tag(0x00048013)
	FIRMWARE_SET_PLANE                    = Tag(0x00048015)
	FIRMWARE_GET_DISPLAY_TIMING           = Tag(0x00040017)
	FIRMWARE_SET_TIMING                   = Tag(0x00048017)
	FIRMWARE_GET_DISPLAY_CFG              = Tag(0x00040018)
	FIRMWARE_SET_DISPLAY_POWER            = Tag(0x00048019)
	FIRMWARE_GET_EDID_BLOCK_DISPLAY       = Tag(0x00030023)
	FIRMWARE_PROPERTY_END                 = Tag(0)
)

// Bit 31 of a tag's req_resp_size marks it as answered by the firmware.
const firmwareTagResponseBit uint32 = 1 << 31

var tagNames = map[Tag]string{
	FIRMWARE_FRAMEBUFFER_BLANK:            "FRAMEBUFFER_BLANK",
	FIRMWARE_FRAMEBUFFER_GET_NUM_DISPLAYS: "FRAMEBUFFER_GET_NUM_DISPLAYS",
	FIRMWARE_FRAMEBUFFER_GET_DISPLAY_ID:   "FRAMEBUFFER_GET_DISPLAY_ID",
	FIRMWARE_FRAMEBUFFER_SET_DISPLAY_NUM:  "FRAMEBUFFER_SET_DISPLAY_NUM",
	FIRMWARE_SET_PLANE:                    "SET_PLANE",
	FIRMWARE_GET_DISPLAY_TIMING:           "GET_DISPLAY_TIMING",
	FIRMWARE_SET_TIMING:                   "SET_TIMING",
	FIRMWARE_GET_DISPLAY_CFG:              "GET_DISPLAY_CFG",
	FIRMWARE_SET_DISPLAY_POWER:            "SET_DISPLAY_POWER",
	FIRMWARE_GET_EDID_BLOCK_DISPLAY:       "GET_EDID_BLOCK_DISPLAY",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(0x%08x)", uint32(t))
}

// Property buffer status codes.
const (
	FIRMWARE_STATUS_REQUEST = 0x00000000
	FIRMWARE_STATUS_SUCCESS = 0x80000000
	FIRMWARE_STATUS_ERROR   = 0x80000001
)

const (
	bufferHeaderSize = 8  // size + code
	tagHeaderSize    = 12 // tag + buf_size + req_resp_size
	endTagSize       = 4

	// MaxBufferSize bounds a single property transaction.
	MaxBufferSize = 4096
)

var (
	// ErrResponse is returned when the firmware rejects a property buffer or
	// leaves a tag unprocessed (typically old firmware lacking the tag).
	ErrResponse = errors.New("mailbox: firmware error response")
	// ErrMalformed is returned for buffers that cannot be decoded.
	ErrMalformed = errors.New("mailbox: malformed property buffer")
)

// Message is one tagged value buffer within a property list. Data carries
// the request on the way out and is overwritten in place with the response.
type Message struct {
	Tag  Tag
	Data []byte

	// RespLen is the length the firmware reported for its response.
	RespLen uint32
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// EncodeList builds a complete property buffer for msgs, including the
// buffer header and the terminating end tag. The size is rounded up to 16
// bytes as the mailbox requires.
func EncodeList(msgs ...*Message) ([]byte, error) {
	size := bufferHeaderSize + endTagSize
	for _, m := range msgs {
		if m == nil {
			return nil, fmt.Errorf("mailbox: nil message")
		}
		size += tagHeaderSize + align4(len(m.Data))
	}
	if size%16 != 0 {
		size += 16 - size%16
	}
	if size > MaxBufferSize {
		return nil, fmt.Errorf("mailbox: property buffer too large: %d bytes", size)
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:8], FIRMWARE_STATUS_REQUEST)
	off := bufferHeaderSize
	for _, m := range msgs {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(m.Tag))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(len(m.Data)))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], FIRMWARE_STATUS_REQUEST)
		copy(buf[off+tagHeaderSize:], m.Data)
		off += tagHeaderSize + align4(len(m.Data))
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(FIRMWARE_PROPERTY_END))
	return buf, nil
}

// DecodeList copies the responses held in buf back into msgs. The tags in
// buf must appear in the same order as msgs.
func DecodeList(buf []byte, msgs ...*Message) error {
	if len(buf) < bufferHeaderSize+endTagSize {
		return fmt.Errorf("%w: %d bytes", ErrMalformed, len(buf))
	}
	code := binary.LittleEndian.Uint32(buf[4:8])
	if code != FIRMWARE_STATUS_SUCCESS {
		return fmt.Errorf("%w: status 0x%08x", ErrResponse, code)
	}

	off := bufferHeaderSize
	for _, m := range msgs {
		if off+tagHeaderSize > len(buf) {
			return fmt.Errorf("%w: truncated at tag %s", ErrMalformed, m.Tag)
		}
		tag := Tag(binary.LittleEndian.Uint32(buf[off : off+4]))
		bufSize := int(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		reqResp := binary.LittleEndian.Uint32(buf[off+8 : off+12])
		if tag != m.Tag {
			return fmt.Errorf("%w: expected tag %s, found %s", ErrMalformed, m.Tag, tag)
		}
		if off+tagHeaderSize+bufSize > len(buf) {
			return fmt.Errorf("%w: tag %s overruns buffer", ErrMalformed, tag)
		}
		if reqResp&firmwareTagResponseBit == 0 {
			return fmt.Errorf("%w: tag %s not processed", ErrResponse, tag)
		}
		m.RespLen = reqResp &^ firmwareTagResponseBit
		copy(m.Data, buf[off+tagHeaderSize:off+tagHeaderSize+bufSize])
		off += tagHeaderSize + align4(bufSize)
	}
	return nil
}

// RequestTag describes one tag found while walking a request buffer.
type RequestTag struct {
	Tag    Tag
	Offset int // offset of the value buffer within the property buffer
	Size   int
}

// WalkRequest iterates over the tags of an encoded request buffer. It is the
// firmware side of EncodeList and is used by emulators.
func WalkRequest(buf []byte, fn func(RequestTag) error) error {
	if len(buf) < bufferHeaderSize+endTagSize {
		return fmt.Errorf("%w: %d bytes", ErrMalformed, len(buf))
	}
	size := int(binary.LittleEndian.Uint32(buf[0:4]))
	if size != len(buf) {
		return fmt.Errorf("%w: header size %d != %d", ErrMalformed, size, len(buf))
	}
	off := bufferHeaderSize
	for {
		if off+4 > len(buf) {
			return fmt.Errorf("%w: missing end tag", ErrMalformed)
		}
		tag := Tag(binary.LittleEndian.Uint32(buf[off : off+4]))
		if tag == FIRMWARE_PROPERTY_END {
			return nil
		}
		if off+tagHeaderSize > len(buf) {
			return fmt.Errorf("%w: truncated tag header", ErrMalformed)
		}
		bufSize := int(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		if off+tagHeaderSize+bufSize > len(buf) {
			return fmt.Errorf("%w: tag %s overruns buffer", ErrMalformed, tag)
		}
		if err := fn(RequestTag{Tag: tag, Offset: off + tagHeaderSize, Size: bufSize}); err != nil {
			return err
		}
		off += tagHeaderSize + align4(bufSize)
	}
}

// MarkTagResponse sets the response header of the tag whose value buffer
// starts at valueOff.
func MarkTagResponse(buf []byte, valueOff int, respLen uint32) {
	hdr := valueOff - tagHeaderSize
	binary.LittleEndian.PutUint32(buf[hdr+8:hdr+12], firmwareTagResponseBit|respLen)
}

// SetBufferStatus writes the buffer-level response code.
func SetBufferStatus(buf []byte, code uint32) {
	binary.LittleEndian.PutUint32(buf[4:8], code)
}
