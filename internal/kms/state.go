package kms

import (
	"sort"
)

// ObjectKind discriminates the objects taking part in a commit.
type ObjectKind int

const (
	KindCrtc ObjectKind = iota + 1
	KindPlane
	KindConnector
)

func (k ObjectKind) String() string {
	switch k {
	case KindCrtc:
		return "CRTC"
	case KindPlane:
		return "PLANE"
	case KindConnector:
		return "CONNECTOR"
	default:
		return "UNKNOWN"
	}
}

// Commitable is implemented by the objects whose state is negotiated in an
// atomic commit: *Crtc, *Plane and *Connector.
type Commitable interface {
	ID() uint32
	Kind() ObjectKind
	Name() string

	// Properties lists the property names accepted by SetProperty.
	Properties() []string
	// SetProperty changes a property on the object's state in s.
	SetProperty(s *AtomicState, name string, value uint64) error
	// Property reads a property from the object's state in s, or from the
	// current state when s is nil.
	Property(s *AtomicState, name string) (uint64, error)

	addTo(s *AtomicState)
}

var (
	_ Commitable = (*Crtc)(nil)
	_ Commitable = (*Plane)(nil)
	_ Commitable = (*Connector)(nil)
)

// AtomicState holds copy-on-write duplicates of object states. Nothing in
// it is visible to the hardware until Device.Commit swaps it in.
type AtomicState struct {
	dev *Device

	crtcs      map[*Crtc]*CrtcState
	planes     map[*Plane]*PlaneState
	connectors map[*Connector]*ConnectorState

	oldCrtcs      map[*Crtc]*CrtcState
	oldPlanes     map[*Plane]*PlaneState
	oldConnectors map[*Connector]*ConnectorState
}

// NewAtomicState returns an empty state for d.
func (d *Device) NewAtomicState() *AtomicState {
	return &AtomicState{
		dev:           d,
		crtcs:         make(map[*Crtc]*CrtcState),
		planes:        make(map[*Plane]*PlaneState),
		connectors:    make(map[*Connector]*ConnectorState),
		oldCrtcs:      make(map[*Crtc]*CrtcState),
		oldPlanes:     make(map[*Plane]*PlaneState),
		oldConnectors: make(map[*Connector]*ConnectorState),
	}
}

// Add duplicates the current state of obj into s.
func (s *AtomicState) Add(obj Commitable) { obj.addTo(s) }

// CrtcState returns the new state of c, duplicating it on first use.
func (s *AtomicState) CrtcState(c *Crtc) *CrtcState {
	if st, ok := s.crtcs[c]; ok {
		return st
	}
	s.dev.stateMu.RLock()
	cur := c.state
	s.dev.stateMu.RUnlock()

	st := cur.duplicate()
	s.crtcs[c] = st
	s.oldCrtcs[c] = cur
	return st
}

// PlaneState returns the new state of p, duplicating it on first use. The
// state of the CRTC the plane is attached to is pulled in as well.
func (s *AtomicState) PlaneState(p *Plane) *PlaneState {
	if st, ok := s.planes[p]; ok {
		return st
	}
	s.dev.stateMu.RLock()
	cur := p.state
	s.dev.stateMu.RUnlock()

	st := cur.duplicate()
	s.planes[p] = st
	s.oldPlanes[p] = cur
	if cur.Crtc != nil {
		s.CrtcState(cur.Crtc)
	}
	return st
}

// ConnectorState returns the new state of c, duplicating it on first use.
func (s *AtomicState) ConnectorState(c *Connector) *ConnectorState {
	if st, ok := s.connectors[c]; ok {
		return st
	}
	s.dev.stateMu.RLock()
	cur := c.state
	s.dev.stateMu.RUnlock()

	st := cur.duplicate()
	s.connectors[c] = st
	s.oldConnectors[c] = cur
	if cur.Crtc != nil {
		s.CrtcState(cur.Crtc)
	}
	return st
}

// Objects returns every object in s ordered by kind and id.
func (s *AtomicState) Objects() []Commitable {
	var objs []Commitable
	for _, c := range s.sortedCrtcs() {
		objs = append(objs, c)
	}
	for _, p := range s.sortedPlanes() {
		objs = append(objs, p)
	}
	for _, c := range s.sortedConnectors() {
		objs = append(objs, c)
	}
	return objs
}

func (s *AtomicState) sortedCrtcs() []*Crtc {
	out := make([]*Crtc, 0, len(s.crtcs))
	for c := range s.crtcs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *AtomicState) sortedPlanes() []*Plane {
	out := make([]*Plane, 0, len(s.planes))
	for p := range s.planes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *AtomicState) sortedConnectors() []*Connector {
	out := make([]*Connector, 0, len(s.connectors))
	for c := range s.connectors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// connectorFor returns the new connector state routed to c, if any.
func (s *AtomicState) connectorFor(c *Crtc) *ConnectorState {
	for _, conn := range s.sortedConnectors() {
		if st := s.connectors[conn]; st.Crtc == c {
			return st
		}
	}
	return nil
}

// marginsFor returns the margins that apply to cs. Connector states in s
// take precedence since plane checks run before the CRTC copies them.
func (s *AtomicState) marginsFor(cs *CrtcState) Margins {
	if conn := s.connectorFor(cs.crtc); conn != nil {
		return conn.Margins
	}
	return cs.Margins
}
