package kms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyrange/fkms/internal/modes"
)

// CommitFlags modify Device.Commit.
type CommitFlags uint32

const (
	// CommitTestOnly validates the state without applying it.
	CommitTestOnly CommitFlags = 1 << iota
	// CommitAllowModeset permits timing and routing changes.
	CommitAllowModeset
	// CommitNonblock fails with ErrBusy instead of waiting for a previous
	// flip to complete.
	CommitNonblock
	// CommitPageFlipAsync requests a tearing flip. It is always rejected.
	CommitPageFlipAsync
)

// Commit validates s and, unless CommitTestOnly is set, makes it current
// and programs the firmware. Validation failures are returned as
// *ValidationError before any request is sent; firmware failures while
// applying are logged and do not fail the commit.
func (d *Device) Commit(ctx context.Context, s *AtomicState, flags CommitFlags) error {
	if s.dev != d {
		return errors.New("kms: state belongs to another device")
	}
	if flags&CommitPageFlipAsync != 0 {
		slog.Error("fkms: async flips aren't allowed")
		return ErrAsyncFlip
	}

	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	if d.unbound {
		return ErrUnbound
	}
	if err := d.check(s, flags); err != nil {
		return err
	}
	if flags&CommitTestOnly != 0 {
		return nil
	}
	if err := d.stall(ctx, s, flags); err != nil {
		return err
	}
	d.swap(s)
	d.tail(ctx, s)
	return nil
}

func (d *Device) checkStale(s *AtomicState) error {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	for c, old := range s.oldCrtcs {
		if c.state.version != old.version {
			return fmt.Errorf("%w: %s", ErrStaleState, c.Name())
		}
	}
	for p, old := range s.oldPlanes {
		if p.state.version != old.version {
			return fmt.Errorf("%w: %s", ErrStaleState, p.Name())
		}
	}
	for c, old := range s.oldConnectors {
		if c.state.version != old.version {
			return fmt.Errorf("%w: %s", ErrStaleState, c.Name())
		}
	}
	return nil
}

func (d *Device) check(s *AtomicState, flags CommitFlags) error {
	if err := d.checkStale(s); err != nil {
		return err
	}

	// Pull in the CRTCs that planes and connectors are routed to, then
	// everything attached to those CRTCs.
	for _, p := range s.sortedPlanes() {
		if ps := s.planes[p]; ps.Crtc != nil {
			s.CrtcState(ps.Crtc)
		}
	}
	for _, c := range s.sortedConnectors() {
		cs := s.connectors[c]
		if cs.Crtc == nil {
			continue
		}
		if cs.Crtc != c.crtc {
			return invalid(c, fmt.Errorf("%w: cannot route to %s", ErrInvalidProperty, cs.Crtc.Name()))
		}
		s.CrtcState(cs.Crtc)
	}
	for _, c := range s.sortedCrtcs() {
		s.ConnectorState(c.display.Connector)
		for _, p := range c.display.Planes {
			s.PlaneState(p)
		}
	}

	for _, c := range s.sortedCrtcs() {
		cs, old := s.crtcs[c], s.oldCrtcs[c]
		conn := c.display.Connector

		cs.modeChanged = !modes.SameTiming(cs.Mode, old.Mode)
		cs.activeChanged = cs.Active != old.Active
		cs.connectorsChanged = s.connectors[conn].Crtc != s.oldConnectors[conn].Crtc

		if cs.NeedsModeset() && flags&CommitAllowModeset == 0 {
			return invalid(c, ErrModesetRequired)
		}
		if cs.Event != nil && cs.Event.Deliveries() > 0 {
			return invalid(c, fmt.Errorf("%w: event already delivered", ErrInvalidProperty))
		}
		if !cs.Active {
			continue
		}
		if s.connectors[conn].Crtc != c {
			return invalid(c, fmt.Errorf("%w: no connector routed", ErrModeRejected))
		}
		if cs.modeChanged || cs.activeChanged {
			if st := conn.validate(cs.Mode); st != modes.StatusOK {
				return invalid(c, fmt.Errorf("%w: %q %s", ErrModeRejected, cs.Mode.Name, st))
			}
		}
	}

	normalizeZPos(s)
	for _, p := range s.sortedPlanes() {
		if err := p.check(s, s.planes[p]); err != nil {
			return invalid(p, err)
		}
	}
	for _, c := range s.sortedCrtcs() {
		if err := c.check(s, s.crtcs[c]); err != nil {
			return invalid(c, err)
		}
	}
	return nil
}

// stall waits for the previous flip of every CRTC that queues a new one.
func (d *Device) stall(ctx context.Context, s *AtomicState, flags CommitFlags) error {
	for _, c := range s.sortedCrtcs() {
		cs, old := s.crtcs[c], s.oldCrtcs[c]
		if cs.Event == nil || !cs.Active || !old.Active || cs.NeedsModeset() {
			continue
		}
		for {
			pending := c.pendingFlip()
			if pending == nil {
				break
			}
			if flags&CommitNonblock != 0 {
				return fmt.Errorf("%w on %s", ErrBusy, c.Name())
			}
			select {
			case <-pending.Done():
			case <-ctx.Done():
				return fmt.Errorf("kms: waiting for flip on %s: %w", c.Name(), ctx.Err())
			}
		}
	}
	return nil
}

func (d *Device) swap(s *AtomicState) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	d.version++
	for c, cs := range s.crtcs {
		cs.version = d.version
		c.state = cs
	}
	for p, ps := range s.planes {
		ps.version = d.version
		p.state = ps
	}
	for c, cs := range s.connectors {
		cs.version = d.version
		c.state = cs
	}
}

func (d *Device) tail(ctx context.Context, s *AtomicState) {
	crtcs := s.sortedCrtcs()

	var disabling, enabling []*Crtc
	for _, c := range crtcs {
		cs, old := s.crtcs[c], s.oldCrtcs[c]
		if old.Active && (!cs.Active || cs.NeedsModeset()) {
			disabling = append(disabling, c)
		}
		if cs.Active && cs.NeedsModeset() {
			enabling = append(enabling, c)
		}
	}

	for _, c := range disabling {
		c.display.Encoder.disable(ctx)
	}
	for _, c := range disabling {
		c.disable(ctx)
	}

	for _, c := range enabling {
		c.modeSet(ctx)
	}

	for _, p := range s.sortedPlanes() {
		ps, old := s.planes[p], s.oldPlanes[p]
		switch {
		case old.Crtc != nil && ps.Crtc == nil:
			p.disable(ctx)
		case ps.Crtc != nil:
			cs := s.crtcs[ps.Crtc]
			// A CRTC being enabled unblanks its planes itself.
			if !cs.NeedsModeset() {
				p.update(ctx, cs)
			}
		}
	}

	for _, c := range crtcs {
		c.flush(s.oldCrtcs[c])
	}

	for _, c := range enabling {
		c.enable(ctx)
	}
	for _, c := range enabling {
		c.display.Encoder.enable(ctx)
	}

	// Nothing will signal a CRTC that stayed off.
	for _, c := range crtcs {
		d.eventMu.Lock()
		ev := c.state.Event
		c.state.Event = nil
		seq := c.vblank.count
		d.eventMu.Unlock()
		if ev != nil {
			c.sendEvent(ev, seq, time.Time{})
		}
	}
}

// PageFlip scans out fb on the primary plane of c at the next vblank and
// completes ev when it does.
func (d *Device) PageFlip(ctx context.Context, c *Crtc, fb *Framebuffer, ev *Event, flags CommitFlags) error {
	if flags&CommitPageFlipAsync != 0 {
		slog.Error("fkms: async flips aren't allowed")
		return ErrAsyncFlip
	}
	s := d.NewAtomicState()
	primary := c.display.Primary()
	ps := s.PlaneState(primary)
	if ps.Crtc != c {
		return invalid(primary, fmt.Errorf("%w: primary plane is not attached to %s", ErrInvalidGeometry, c.Name()))
	}
	ps.FB = fb
	s.CrtcState(c).Event = ev
	return d.Commit(ctx, s, flags&^CommitAllowModeset)
}
