package chipset

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler services an interrupt on a shared line. It reports whether its
// device raised the interrupt.
type Handler func() bool

type namedHandler struct {
	name string
	fn   Handler
}

// LineSet manages shared interrupt lines. Every handler registered on a
// line runs when the line is asserted; an assertion nobody claims is
// counted as spurious.
type LineSet struct {
	mu sync.Mutex

	lines map[uint8]*lineState
}

// NewLineSet returns an empty LineSet.
func NewLineSet() *LineSet {
	return &LineSet{
		lines: make(map[uint8]*lineState),
	}
}

type lineState struct {
	level    bool
	handlers []namedHandler
	handled  uint64
	spurious uint64
}

func (l *LineSet) state(irq uint8) *lineState {
	state := l.lines[irq]
	if state == nil {
		state = &lineState{}
		l.lines[irq] = state
	}
	return state
}

// AllocateLine returns a LineInterrupt handle for the given IRQ line.
func (l *LineSet) AllocateLine(irq uint8) LineInterrupt {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state(irq)
	return &lineHandle{owner: l, irq: irq}
}

// RequestIRQ attaches a named handler to irq.
func (l *LineSet) RequestIRQ(irq uint8, name string, fn Handler) error {
	if fn == nil {
		return fmt.Errorf("chipset: irq %d handler %q is nil", irq, name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.state(irq)
	for _, h := range state.handlers {
		if h.name == name {
			return fmt.Errorf("chipset: irq %d handler %q already registered", irq, name)
		}
	}
	state.handlers = append(state.handlers, namedHandler{name: name, fn: fn})
	return nil
}

// FreeIRQ detaches the named handler from irq.
func (l *LineSet) FreeIRQ(irq uint8, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.lines[irq]
	if state == nil {
		return
	}
	for i, h := range state.handlers {
		if h.name == name {
			state.handlers = append(state.handlers[:i:i], state.handlers[i+1:]...)
			return
		}
	}
}

// Stats returns how many assertions of irq were claimed and how many were
// spurious.
func (l *LineSet) Stats(irq uint8) (handled, spurious uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.lines[irq]
	if state == nil {
		return 0, 0
	}
	return state.handled, state.spurious
}

type lineHandle struct {
	owner *LineSet
	irq   uint8
}

func (h *lineHandle) SetLevel(high bool) {
	h.owner.setLevel(h.irq, high)
}

func (h *lineHandle) PulseInterrupt() {
	h.owner.dispatch(h.irq)
}

func (l *LineSet) setLevel(irq uint8, high bool) {
	l.mu.Lock()
	state := l.state(irq)
	rising := !state.level && high
	state.level = high
	l.mu.Unlock()

	if rising {
		l.dispatch(irq)
	}
}

// dispatch runs the handlers without holding the lock so they may access
// device registers that raise or lower the line again.
func (l *LineSet) dispatch(irq uint8) {
	l.mu.Lock()
	handlers := append([]namedHandler{}, l.state(irq).handlers...)
	l.mu.Unlock()

	claimed := false
	for _, h := range handlers {
		if h.fn() {
			claimed = true
		}
	}

	l.mu.Lock()
	state := l.state(irq)
	if claimed {
		state.handled++
	} else {
		state.spurious++
	}
	l.mu.Unlock()

	if !claimed {
		slog.Debug("chipset: spurious interrupt", "irq", irq, "handlers", len(handlers))
	}
}

// SharedLine binds a LineSet to one IRQ number.
type SharedLine struct {
	set *LineSet
	irq uint8
}

// Line returns a handle for registering handlers on irq.
func (l *LineSet) Line(irq uint8) *SharedLine {
	return &SharedLine{set: l, irq: irq}
}

func (s *SharedLine) RequestIRQ(name string, fn func() bool) error {
	return s.set.RequestIRQ(s.irq, name, fn)
}

func (s *SharedLine) FreeIRQ(name string) {
	s.set.FreeIRQ(s.irq, name)
}
