package fwemu

import "github.com/tinyrange/fkms/internal/mailbox"

// Planes returns the visible planes of a display keyed by plane id.
func (e *Emulator) Planes(id uint32) map[uint8]mailbox.SetPlane {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[uint8]mailbox.SetPlane)
	if st := e.displays[id]; st != nil {
		for k, v := range st.planes {
			out[k] = v
		}
	}
	return out
}

// Power reports whether a display's output is on.
func (e *Emulator) Power(id uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.displays[id]
	return st != nil && st.power
}

// Timing returns the last timing programmed on a display.
func (e *Emulator) Timing(id uint32) mailbox.Timings {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.displays[id]; st != nil {
		return st.timing
	}
	return mailbox.Timings{}
}

// ConsoleBlanked reports whether the firmware console on a display index
// was blanked.
func (e *Emulator) ConsoleBlanked(index uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.console[index]
}

// Frames returns how many vblanks a display has seen.
func (e *Emulator) Frames(id uint32) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.displays[id]; st != nil {
		return st.vblanks
	}
	return 0
}

// Calls returns how many times tag was received.
func (e *Emulator) Calls(tag mailbox.Tag) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[tag]
}
