package mailbox

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/tinyrange/fkms/internal/trace"
)

const traceSource = "mailbox"

// Client issues typed property requests over a Transport. Calls are
// serialised; the firmware processes one property buffer at a time.
type Client struct {
	mu sync.Mutex
	t  Transport
}

// NewClient returns a Client using t.
func NewClient(t Transport) *Client {
	return &Client{t: t}
}

// PropertyList sends msgs as a single property transaction and writes the
// responses back into each message.
func (c *Client) PropertyList(ctx context.Context, msgs ...*Message) error {
	if c == nil || c.t == nil {
		return fmt.Errorf("%w: no transport", ErrTransport)
	}
	buf, err := EncodeList(msgs...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	trace.Record(trace.KindRequest, traceSource, buf)
	resp, err := c.t.Call(ctx, buf)
	if err != nil {
		trace.Recordf(trace.KindError, traceSource, "%s: %v", msgs[0].Tag, err)
		return fmt.Errorf("%w: %s: %w", ErrTransport, msgs[0].Tag, err)
	}
	trace.Record(trace.KindResponse, traceSource, resp)
	if err := DecodeList(resp, msgs...); err != nil {
		return err
	}
	return nil
}

// Property sends a single tag whose value buffer is data. The response is
// copied back into data.
func (c *Client) Property(ctx context.Context, tag Tag, data []byte) error {
	return c.PropertyList(ctx, &Message{Tag: tag, Data: data})
}

// SetPlane updates (or, with a zero geometry, blanks) a firmware plane.
func (c *Client) SetPlane(ctx context.Context, p SetPlane) error {
	return c.Property(ctx, FIRMWARE_SET_PLANE, p.Bytes())
}

// SetTiming programs the display timing of t.Display.
func (c *Client) SetTiming(ctx context.Context, t Timings) error {
	return c.Property(ctx, FIRMWARE_SET_TIMING, t.Bytes())
}

// SetDisplayPower switches the display output on or off.
func (c *Client) SetDisplayPower(ctx context.Context, display uint32, on bool) error {
	state := uint32(0)
	if on {
		state = 1
	}
	return c.Property(ctx, FIRMWARE_SET_DISPLAY_POWER, putU32s(display, state))
}

// BlankDisplay selects display and blanks (or unblanks) the firmware
// framebuffer on it. Both tags travel in one transaction so the display
// selection cannot interleave with another caller.
func (c *Client) BlankDisplay(ctx context.Context, display uint32, blank bool) error {
	b := uint32(0)
	if blank {
		b = 1
	}
	return c.PropertyList(ctx,
		&Message{Tag: FIRMWARE_FRAMEBUFFER_SET_DISPLAY_NUM, Data: putU32s(display)},
		&Message{Tag: FIRMWARE_FRAMEBUFFER_BLANK, Data: putU32s(b)},
	)
}

// EDIDBlock reads one 128-byte EDID block from display.
func (c *Client) EDIDBlock(ctx context.Context, block, display uint32) ([EDIDBlockSize]byte, error) {
	var out [EDIDBlockSize]byte
	data := make([]byte, GetEDIDSize)
	binary.LittleEndian.PutUint32(data[0:4], block)
	binary.LittleEndian.PutUint32(data[4:8], display)
	if err := c.Property(ctx, FIRMWARE_GET_EDID_BLOCK_DISPLAY, data); err != nil {
		return out, err
	}
	copy(out[:], data[8:])
	return out, nil
}

// DisplayTiming returns the fixed timing the firmware holds for display.
// A zero Clock means the firmware has no mode to offer.
func (c *Client) DisplayTiming(ctx context.Context, display uint32) (Timings, error) {
	req := Timings{Display: uint8(display)}
	data := req.Bytes()
	if err := c.Property(ctx, FIRMWARE_GET_DISPLAY_TIMING, data); err != nil {
		return Timings{}, err
	}
	return ParseTimings(data), nil
}

// NumDisplays returns how many displays the firmware drives.
func (c *Client) NumDisplays(ctx context.Context) (uint32, error) {
	data := putU32s(0)
	if err := c.Property(ctx, FIRMWARE_FRAMEBUFFER_GET_NUM_DISPLAYS, data); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// DisplayID maps a display index to the firmware display number.
func (c *Client) DisplayID(ctx context.Context, index uint32) (uint32, error) {
	data := putU32s(index)
	if err := c.Property(ctx, FIRMWARE_FRAMEBUFFER_GET_DISPLAY_ID, data); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// DisplayConfig returns the firmware's display capability block.
func (c *Client) DisplayConfig(ctx context.Context) (DisplayConfig, error) {
	data := make([]byte, DisplayConfigSize)
	if err := c.Property(ctx, FIRMWARE_GET_DISPLAY_CFG, data); err != nil {
		return DisplayConfig{}, err
	}
	return ParseDisplayConfig(data), nil
}
