package kms

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"sort"

	"github.com/tinyrange/fkms/internal/format"
	"github.com/tinyrange/fkms/internal/mailbox"
)

// PlaneType doubles as the slot of the plane within its display.
type PlaneType int

const (
	PlanePrimary PlaneType = iota
	PlaneOverlay
	PlaneCursor
)

func (t PlaneType) String() string {
	switch t {
	case PlanePrimary:
		return "primary"
	case PlaneOverlay:
		return "overlay"
	case PlaneCursor:
		return "cursor"
	default:
		return fmt.Sprintf("plane-type(%d)", int(t))
	}
}

// Rotation is a DRM_MODE_ROTATE_* / DRM_MODE_REFLECT_* bitmask.
type Rotation uint32

const (
	Rotate0   Rotation = 1 << 0
	Rotate90  Rotation = 1 << 1
	Rotate180 Rotation = 1 << 2
	Rotate270 Rotation = 1 << 3
	ReflectX  Rotation = 1 << 4
	ReflectY  Rotation = 1 << 5

	rotateMask = Rotate0 | Rotate90 | Rotate180 | Rotate270

	SupportedRotations = Rotate0 | Rotate180 | ReflectX | ReflectY
)

func (r Rotation) valid() bool {
	return r&^SupportedRotations == 0 && bits.OnesCount32(uint32(r&rotateMask)) == 1
}

// simplify rewrites r using only the rotations in supported. A half turn
// becomes a reflection on both axes.
func (r Rotation) simplify(supported Rotation) Rotation {
	if r&^supported == 0 {
		return r
	}
	r ^= ReflectX | ReflectY
	turn := bits.TrailingZeros32(uint32(r & rotateMask))
	return r&^rotateMask | Rotation(1)<<((turn+2)%4)
}

// Framebuffer is scanout memory described by its layout. Addr is the bus
// address of the buffer object; plane offsets are relative to it.
type Framebuffer struct {
	Width, Height uint32
	Format        uint32
	Modifier      uint64
	Pitches       [4]uint32
	Offsets       [4]uint32
	Addr          uint32
}

// PlaneState is the negotiated state of one plane.
type PlaneState struct {
	plane   *Plane
	version uint64

	Crtc *Crtc
	FB   *Framebuffer

	// Source rectangle in 16.16 fixed point.
	SrcX, SrcY, SrcW, SrcH uint32
	// Destination rectangle on the CRTC.
	CrtcX, CrtcY int32
	CrtcW, CrtcH uint32

	Alpha         uint16
	Rotation      Rotation
	ZPos          uint8
	ColorEncoding format.ColorEncoding
	ColorRange    format.ColorRange

	normalizedZPos int
	visible        bool
	record         mailbox.SetPlane
}

func (s *PlaneState) Plane() *Plane { return s.plane }

// Enabled reports whether the plane has both a framebuffer and a CRTC.
func (s *PlaneState) Enabled() bool { return s.FB != nil && s.Crtc != nil }

func (s *PlaneState) Visible() bool { return s.visible }

// Record returns the SET_PLANE request built when the state was checked.
func (s *PlaneState) Record() mailbox.SetPlane { return s.record }

func (s *PlaneState) duplicate() *PlaneState {
	dup := *s
	return &dup
}

// Plane is one of the three firmware layers of a display.
type Plane struct {
	dev   *Device
	id    uint32
	typ   PlaneType
	fwID  uint8
	crtc  *Crtc
	state *PlaneState
}

func newPlane(dev *Device, d *Display, typ PlaneType) *Plane {
	p := &Plane{
		dev:  dev,
		id:   dev.allocID(),
		typ:  typ,
		fwID: uint8(int(typ) + d.Index*PlanesPerCrtc),
		crtc: d.Crtc,
	}
	zpos := uint8(typ)
	p.state = &PlaneState{
		plane:         p,
		Alpha:         0xffff,
		Rotation:      Rotate0,
		ZPos:          zpos,
		ColorEncoding: format.EncodingBT709,
		ColorRange:    format.RangeLimited,
	}
	p.state.record = p.blankRecord()
	p.state.record.Layer = layerFor(int(zpos))
	return p
}

// layerFor maps a normalised zpos to a firmware layer; the bottom plane
// sits on the background layer.
func layerFor(zpos int) int8 {
	if zpos == 0 {
		return -127
	}
	return int8(zpos)
}

func (p *Plane) ID() uint32       { return p.id }
func (p *Plane) Kind() ObjectKind { return KindPlane }
func (p *Plane) Type() PlaneType  { return p.typ }
func (p *Plane) Crtc() *Crtc      { return p.crtc }

// FirmwareID is the plane id used in SET_PLANE.
func (p *Plane) FirmwareID() uint8 { return p.fwID }

func (p *Plane) Name() string {
	return fmt.Sprintf("[PLANE:%d:%s-%d]", p.id, p.typ, p.crtc.index)
}

func (p *Plane) addTo(s *AtomicState) { s.PlaneState(p) }

// State returns the current state. It must not be modified.
func (p *Plane) State() *PlaneState {
	p.dev.stateMu.RLock()
	defer p.dev.stateMu.RUnlock()
	return p.state
}

// Formats lists the fourccs the plane can scan out.
func (p *Plane) Formats() []uint32 { return format.Formats() }

// Modifiers lists the layout modifiers the plane accepts.
func (p *Plane) Modifiers() []uint64 { return format.Modifiers() }

func (p *Plane) FormatModSupported(fourcc uint32, modifier uint64) bool {
	return format.ModSupported(fourcc, modifier)
}

func (p *Plane) blankRecord() mailbox.SetPlane {
	return mailbox.SetPlane{
		Display: uint8(p.crtc.number),
		PlaneID: p.fwID,
	}
}

// check validates ps and builds its SET_PLANE request.
func (p *Plane) check(s *AtomicState, ps *PlaneState) error {
	ps.visible = false
	ps.record = p.blankRecord()
	ps.record.Layer = layerFor(ps.normalizedZPos)

	if (ps.FB == nil) != (ps.Crtc == nil) {
		return fmt.Errorf("%w: framebuffer and CRTC must be set together", ErrInvalidGeometry)
	}
	if !ps.Enabled() {
		return nil
	}
	if ps.Crtc != p.crtc {
		return fmt.Errorf("%w: cannot scan out on %s", ErrInvalidGeometry, ps.Crtc.Name())
	}

	fb := ps.FB
	fbW, fbH := uint64(fb.Width)<<16, uint64(fb.Height)<<16
	if uint64(ps.SrcW) > fbW || uint64(ps.SrcX) > fbW-uint64(ps.SrcW) ||
		uint64(ps.SrcH) > fbH || uint64(ps.SrcY) > fbH-uint64(ps.SrcH) {
		return fmt.Errorf("%w: source %d.%04x x %d.%04x +%d+%d outside %dx%d framebuffer", ErrInvalidGeometry,
			ps.SrcW>>16, ps.SrcW&0xffff, ps.SrcH>>16, ps.SrcH&0xffff,
			ps.SrcX>>16, ps.SrcY>>16, fb.Width, fb.Height)
	}
	if ps.CrtcX < math.MinInt16 || ps.CrtcX > math.MaxInt16 ||
		ps.CrtcY < math.MinInt16 || ps.CrtcY > math.MaxInt16 ||
		ps.CrtcW > math.MaxUint16 || ps.CrtcH > math.MaxUint16 ||
		fb.Width > math.MaxUint16 || fb.Height > math.MaxUint16 {
		return fmt.Errorf("%w: rectangle out of range", ErrInvalidGeometry)
	}
	if fb.Pitches[0] > math.MaxUint16 {
		return fmt.Errorf("%w: pitch %d out of range", ErrInvalidGeometry, fb.Pitches[0])
	}

	cs := s.CrtcState(ps.Crtc)
	rec, err := p.toRecord(ps, cs, s.marginsFor(cs))
	if err != nil {
		return err
	}
	ps.record = rec
	ps.visible = ps.CrtcW > 0 && ps.CrtcH > 0 && ps.SrcW > 0 && ps.SrcH > 0
	return nil
}

func (p *Plane) toRecord(ps *PlaneState, cs *CrtcState, margins Margins) (mailbox.SetPlane, error) {
	fb := ps.FB
	img, err := format.Translate(format.Layout{
		Format:   fb.Format,
		Modifier: fb.Modifier,
		Pitches:  fb.Pitches,
		Offsets:  fb.Offsets,
	}, ps.ColorEncoding, ps.ColorRange)
	if err != nil {
		return mailbox.SetPlane{}, err
	}
	// A column height from the modifier replaces the byte pitch.
	if img.Pitch > math.MaxUint16 {
		return mailbox.SetPlane{}, fmt.Errorf("%w: pitch %d out of range", ErrInvalidGeometry, img.Pitch)
	}

	rec := p.blankRecord()
	rec.ImageType = img.Type
	rec.Width = uint16(fb.Width)
	rec.Height = uint16(fb.Height)
	rec.Pitch = uint16(img.Pitch)
	rec.SrcX, rec.SrcY, rec.SrcW, rec.SrcH = ps.SrcX, ps.SrcY, ps.SrcW, ps.SrcH
	rec.Alpha = uint8(ps.Alpha >> 8)
	rec.Layer = layerFor(ps.normalizedZPos)
	rec.NumPlanes = uint8(img.NumPlanes)
	if img.IsVU {
		rec.IsVU = 1
	}
	rec.Planes[0] = fb.Addr + fb.Offsets[0]
	if img.NumPlanes > 1 {
		rec.Planes[1] = fb.Addr + fb.Offsets[1]
		if img.NumPlanes > 2 {
			rec.Planes[2] = fb.Addr + fb.Offsets[2]
		}
		rec.ColorEncoding = img.ColorSpace
	}

	rot := ps.Rotation.simplify(Rotate0 | ReflectX | ReflectY)
	rec.Transform = mailbox.TRANSFORM_NO_ROTATE
	if rot&ReflectX != 0 {
		rec.Transform |= mailbox.TRANSFORM_FLIP_HRIZ
	}
	if rot&ReflectY != 0 {
		rec.Transform |= mailbox.TRANSFORM_FLIP_VERT
	}

	dst, err := AdjustMargins(Rect{X: ps.CrtcX, Y: ps.CrtcY, W: ps.CrtcW, H: ps.CrtcH},
		uint32(cs.Mode.HDisplay), uint32(cs.Mode.VDisplay), margins)
	if err != nil {
		return mailbox.SetPlane{}, err
	}
	rec.DstX, rec.DstY = int16(dst.X), int16(dst.Y)
	rec.DstW, rec.DstH = uint16(dst.W), uint16(dst.H)

	slog.Debug("fkms: plane update", "plane", p.Name(),
		"size", fmt.Sprintf("%dx%d", rec.Width, rec.Height), "image_type", rec.ImageType,
		"dst", fmt.Sprintf("%d,%d %dx%d", rec.DstX, rec.DstY, rec.DstW, rec.DstH),
		"src", fmt.Sprintf("%#x,%#x %#x,%#x", rec.SrcX, rec.SrcY, rec.SrcW, rec.SrcH),
		"alpha", ps.Alpha, "zpos", ps.normalizedZPos)
	return rec, nil
}

// setBlank sends either an empty SET_PLANE or the checked request.
// Failures leave stale content on screen and are only logged.
func (p *Plane) setBlank(ctx context.Context, blank bool) {
	rec := p.state.record
	if blank {
		rec = p.blankRecord()
	}
	slog.Debug("fkms: plane blank", "plane", p.Name(), "blank", blank)
	if err := p.dev.fw.SetPlane(ctx, rec); err != nil {
		slog.Warn("fkms: firmware call failed, please update your firmware", "plane", p.Name(), "error", err)
	}
}

// update unblanks the plane if its CRTC is on. Otherwise the plane stays
// blank until the CRTC is enabled.
func (p *Plane) update(ctx context.Context, cs *CrtcState) {
	if cs.Active {
		p.setBlank(ctx, false)
	}
}

func (p *Plane) disable(ctx context.Context) {
	p.setBlank(ctx, true)
}

// normalizeZPos assigns dense zpos values to the planes on each CRTC in s,
// ordered by requested zpos then plane id.
func normalizeZPos(s *AtomicState) {
	for _, c := range s.sortedCrtcs() {
		var on []*PlaneState
		for _, p := range c.display.Planes {
			ps := s.PlaneState(p)
			if ps.Crtc == c {
				on = append(on, ps)
			}
		}
		sort.SliceStable(on, func(i, j int) bool {
			if on[i].ZPos != on[j].ZPos {
				return on[i].ZPos < on[j].ZPos
			}
			return on[i].plane.id < on[j].plane.id
		})
		for i, ps := range on {
			ps.normalizedZPos = i
		}
	}
}
