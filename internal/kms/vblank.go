package kms

import (
	"context"
	"fmt"
	"time"
)

// vblank is guarded by Device.eventMu.
type vblank struct {
	enabled  bool
	refcount int
	count    uint64
	time     time.Time
	wait     chan struct{}
}

func (c *Crtc) vblankOn() {
	c.dev.eventMu.Lock()
	defer c.dev.eventMu.Unlock()
	c.vblank.enabled = true
}

func (c *Crtc) vblankOff() {
	c.dev.eventMu.Lock()
	defer c.dev.eventMu.Unlock()
	c.vblank.enabled = false
	c.wakeLocked()
}

func (c *Crtc) wakeLocked() {
	close(c.vblank.wait)
	c.vblank.wait = make(chan struct{})
}

func (c *Crtc) vblankGetLocked() error {
	if !c.vblank.enabled {
		return ErrVblankOff
	}
	c.vblank.refcount++
	return nil
}

func (c *Crtc) vblankPutLocked() {
	if c.vblank.refcount == 0 {
		return
	}
	c.vblank.refcount--
}

// handleVblank counts a vblank if signalling is on and wakes waiters.
func (c *Crtc) handleVblank(now time.Time) bool {
	c.dev.eventMu.Lock()
	defer c.dev.eventMu.Unlock()
	if !c.vblank.enabled {
		return false
	}
	c.vblank.count++
	c.vblank.time = now
	c.wakeLocked()
	return true
}

// VblankEnabled reports whether vblank signalling is on.
func (c *Crtc) VblankEnabled() bool {
	c.dev.eventMu.Lock()
	defer c.dev.eventMu.Unlock()
	return c.vblank.enabled
}

// VblankCount returns the number of vblanks seen and the time of the last.
func (c *Crtc) VblankCount() (uint64, time.Time) {
	c.dev.eventMu.Lock()
	defer c.dev.eventMu.Unlock()
	return c.vblank.count, c.vblank.time
}

// VblankRefs returns the number of outstanding vblank references.
func (c *Crtc) VblankRefs() int {
	c.dev.eventMu.Lock()
	defer c.dev.eventMu.Unlock()
	return c.vblank.refcount
}

// WaitVblank blocks until the next vblank and returns its sequence number.
func (c *Crtc) WaitVblank(ctx context.Context) (uint64, error) {
	c.dev.eventMu.Lock()
	if err := c.vblankGetLocked(); err != nil {
		c.dev.eventMu.Unlock()
		return 0, fmt.Errorf("kms: wait vblank on %s: %w", c.Name(), err)
	}
	ch := c.vblank.wait
	c.dev.eventMu.Unlock()

	var ctxErr error
	select {
	case <-ch:
	case <-ctx.Done():
		ctxErr = ctx.Err()
	}

	c.dev.eventMu.Lock()
	c.vblankPutLocked()
	seq, on := c.vblank.count, c.vblank.enabled
	c.dev.eventMu.Unlock()

	if ctxErr != nil {
		return 0, fmt.Errorf("kms: wait vblank on %s: %w", c.Name(), ctxErr)
	}
	if !on {
		return 0, fmt.Errorf("kms: wait vblank on %s: %w", c.Name(), ErrVblankOff)
	}
	return seq, nil
}
