package kms

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tinyrange/fkms/internal/smi"
)

// Router demultiplexes the shared SMI interrupt to the CRTCs.
type Router struct {
	mu   sync.Mutex
	regs smi.Registers
	// by firmware display index; nil where the display failed to bind
	crtcs []*Crtc
}

func newRouter(regs smi.Registers, crtcs []*Crtc) *Router {
	return &Router{regs: regs, crtcs: crtcs}
}

// HandleInterrupt services one assertion of the line. It reports false
// when the SMI block did not raise it.
func (r *Router) HandleInterrupt() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.regs == nil {
		return false
	}
	stat := r.regs.Read32(smi.SMICS)
	if stat&smi.SMICS_INTERRUPTS == 0 {
		return false
	}
	r.regs.Write32(smi.SMICS, 0)

	now := time.Now()
	chan0 := r.regs.Read32(smi.SMIDSW0)
	if !smi.IsNewProtocol(chan0) {
		// Older firmware signals every display at once.
		for _, c := range r.crtcs {
			r.signal(c, now)
		}
		return true
	}

	if chan0&1 != 0 {
		r.regs.Write32(smi.SMIDSW0, smi.SMI_NEW)
		r.signalIndex(0, now)
	}
	if len(r.crtcs) > 1 {
		chan1 := r.regs.Read32(smi.SMIDSW1)
		if chan1&1 != 0 {
			r.regs.Write32(smi.SMIDSW1, smi.SMI_NEW)
			r.signalIndex(1, now)
		}
	}
	return true
}

func (r *Router) signalIndex(i int, now time.Time) {
	if i >= len(r.crtcs) || r.crtcs[i] == nil {
		slog.Debug("fkms-irq: doorbell for unbound display", "index", i)
		return
	}
	r.signal(r.crtcs[i], now)
}

func (r *Router) signal(c *Crtc, now time.Time) {
	if c == nil {
		return
	}
	c.handleVblank(now)
	c.handlePageFlip()
}
