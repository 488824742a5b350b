package kms

import (
	"fmt"

	"github.com/tinyrange/fkms/internal/format"
)

func unknownProperty(obj Commitable, name string) error {
	return fmt.Errorf("%w: %s has no property %q", ErrInvalidProperty, obj.Name(), name)
}

func outOfRange(name string, value uint64) error {
	return fmt.Errorf("%w: %s value %d out of range", ErrInvalidProperty, name, value)
}

var crtcProperties = []string{"ACTIVE"}

func (c *Crtc) Properties() []string { return crtcProperties }

func (c *Crtc) SetProperty(s *AtomicState, name string, value uint64) error {
	cs := s.CrtcState(c)
	switch name {
	case "ACTIVE":
		if value > 1 {
			return outOfRange(name, value)
		}
		cs.Active = value == 1
	default:
		return unknownProperty(c, name)
	}
	return nil
}

func (c *Crtc) Property(s *AtomicState, name string) (uint64, error) {
	cs := c.State()
	if s != nil {
		cs = s.CrtcState(c)
	}
	switch name {
	case "ACTIVE":
		if cs.Active {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, unknownProperty(c, name)
	}
}

var planeProperties = []string{
	"SRC_X", "SRC_Y", "SRC_W", "SRC_H",
	"CRTC_X", "CRTC_Y", "CRTC_W", "CRTC_H",
	"alpha", "rotation", "zpos", "COLOR_ENCODING", "COLOR_RANGE",
}

func (p *Plane) Properties() []string { return planeProperties }

func (p *Plane) SetProperty(s *AtomicState, name string, value uint64) error {
	ps := s.PlaneState(p)
	switch name {
	case "SRC_X":
		ps.SrcX = uint32(value)
	case "SRC_Y":
		ps.SrcY = uint32(value)
	case "SRC_W":
		ps.SrcW = uint32(value)
	case "SRC_H":
		ps.SrcH = uint32(value)
	case "CRTC_X":
		ps.CrtcX = int32(int64(value))
	case "CRTC_Y":
		ps.CrtcY = int32(int64(value))
	case "CRTC_W":
		ps.CrtcW = uint32(value)
	case "CRTC_H":
		ps.CrtcH = uint32(value)
	case "alpha":
		if value > 0xffff {
			return outOfRange(name, value)
		}
		ps.Alpha = uint16(value)
	case "rotation":
		r := Rotation(value)
		if value > uint64(SupportedRotations) || !r.valid() {
			return fmt.Errorf("%w: rotation %#x", ErrInvalidProperty, value)
		}
		ps.Rotation = r
	case "zpos":
		if value > 127 {
			return outOfRange(name, value)
		}
		ps.ZPos = uint8(value)
	case "COLOR_ENCODING":
		if value > uint64(format.EncodingBT2020) {
			return outOfRange(name, value)
		}
		ps.ColorEncoding = format.ColorEncoding(value)
	case "COLOR_RANGE":
		if value > uint64(format.RangeFull) {
			return outOfRange(name, value)
		}
		ps.ColorRange = format.ColorRange(value)
	default:
		return unknownProperty(p, name)
	}
	return nil
}

func (p *Plane) Property(s *AtomicState, name string) (uint64, error) {
	ps := p.State()
	if s != nil {
		ps = s.PlaneState(p)
	}
	switch name {
	case "SRC_X":
		return uint64(ps.SrcX), nil
	case "SRC_Y":
		return uint64(ps.SrcY), nil
	case "SRC_W":
		return uint64(ps.SrcW), nil
	case "SRC_H":
		return uint64(ps.SrcH), nil
	case "CRTC_X":
		return uint64(int64(ps.CrtcX)), nil
	case "CRTC_Y":
		return uint64(int64(ps.CrtcY)), nil
	case "CRTC_W":
		return uint64(ps.CrtcW), nil
	case "CRTC_H":
		return uint64(ps.CrtcH), nil
	case "alpha":
		return uint64(ps.Alpha), nil
	case "rotation":
		return uint64(ps.Rotation), nil
	case "zpos":
		return uint64(ps.ZPos), nil
	case "COLOR_ENCODING":
		return uint64(ps.ColorEncoding), nil
	case "COLOR_RANGE":
		return uint64(ps.ColorRange), nil
	default:
		return 0, unknownProperty(p, name)
	}
}

var connectorProperties = []string{
	"Broadcast RGB", "left margin", "right margin", "top margin", "bottom margin",
}

func (c *Connector) Properties() []string { return connectorProperties }

func (c *Connector) SetProperty(s *AtomicState, name string, value uint64) error {
	cs := s.ConnectorState(c)
	if name == "Broadcast RGB" {
		if value > uint64(BroadcastRGBLimited) {
			return outOfRange(name, value)
		}
		cs.BroadcastRGB = BroadcastRGB(value)
		return nil
	}

	margin := c.margin(&cs.Margins, name)
	if margin == nil {
		return unknownProperty(c, name)
	}
	if value > MaxMargin {
		return outOfRange(name, value)
	}
	*margin = uint32(value)
	return nil
}

func (c *Connector) Property(s *AtomicState, name string) (uint64, error) {
	cs := c.State()
	if s != nil {
		cs = s.ConnectorState(c)
	}
	if name == "Broadcast RGB" {
		return uint64(cs.BroadcastRGB), nil
	}
	m := cs.Margins
	margin := c.margin(&m, name)
	if margin == nil {
		return 0, unknownProperty(c, name)
	}
	return uint64(*margin), nil
}

func (c *Connector) margin(m *Margins, name string) *uint32 {
	switch name {
	case "left margin":
		return &m.Left
	case "right margin":
		return &m.Right
	case "top margin":
		return &m.Top
	case "bottom margin":
		return &m.Bottom
	default:
		return nil
	}
}
