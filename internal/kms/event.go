package kms

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Event is a completion notification requested with a commit. It is
// delivered once: on the vblank that latches the commit, or immediately
// when the CRTC is switched off.
type Event struct {
	UserData uint64

	done       chan struct{}
	deliveries atomic.Int32

	crtc      int
	sequence  uint64
	timestamp time.Time
}

func NewEvent(userData uint64) *Event {
	return &Event{UserData: userData, done: make(chan struct{})}
}

// Done is closed when the event has been delivered.
func (e *Event) Done() <-chan struct{} { return e.done }

// Deliveries reports how many times delivery was attempted.
func (e *Event) Deliveries() int { return int(e.deliveries.Load()) }

// Crtc, Sequence and Timestamp are valid once Done is closed.
func (e *Event) Crtc() int            { return e.crtc }
func (e *Event) Sequence() uint64     { return e.sequence }
func (e *Event) Timestamp() time.Time { return e.timestamp }

// sendEvent completes ev. Callers must not hold the event lock.
func (c *Crtc) sendEvent(ev *Event, seq uint64, ts time.Time) {
	if ev.deliveries.Add(1) > 1 {
		slog.Error("fkms: event delivered twice", "crtc", c.index, "user_data", ev.UserData)
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	ev.crtc, ev.sequence, ev.timestamp = c.index, seq, ts
	close(ev.done)

	slog.Debug("fkms: event delivered", "crtc", c.index, "user_data", ev.UserData, "sequence", seq)
	if fn := c.dev.cfg.OnEvent; fn != nil {
		fn(ev)
	}
}
