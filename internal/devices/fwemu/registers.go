package fwemu

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/fkms/internal/chipset"
	"github.com/tinyrange/fkms/internal/smi"
)

// Base returns the MMIO base address of the SMI block.
func (e *Emulator) Base() uint64 {
	return e.cfg.Base
}

// Start implements chipset.ChangeDeviceState.
func (e *Emulator) Start() error {
	return nil
}

// Stop implements chipset.ChangeDeviceState.
func (e *Emulator) Stop() error {
	e.irq.SetLevel(false)
	return nil
}

// Reset implements chipset.ChangeDeviceState.
func (e *Emulator) Reset() error {
	e.mu.Lock()
	e.smics = 0
	e.dsw = [2]uint32{}
	e.mu.Unlock()
	e.irq.SetLevel(false)
	return nil
}

// SupportsMmio implements chipset.Device.
func (e *Emulator) SupportsMmio() *chipset.MmioIntercept {
	return &chipset.MmioIntercept{
		Regions: []chipset.Region{{Address: e.cfg.Base, Size: smi.Size}},
		Handler: e,
	}
}

// SupportsPollDevice implements chipset.Device. Each poll is one frame.
func (e *Emulator) SupportsPollDevice() *chipset.PollDevice {
	return &chipset.PollDevice{Handler: e}
}

// ReadMMIO implements chipset.MmioHandler.
func (e *Emulator) ReadMMIO(addr uint64, data []byte) error {
	offset, err := e.offset(addr, data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	var v uint32
	switch offset {
	case smi.SMICS:
		v = e.smics
	case smi.SMIDSW0:
		v = e.dsw[0]
	case smi.SMIDSW1:
		v = e.dsw[1]
	}
	e.mu.Unlock()

	binary.LittleEndian.PutUint32(data, v)
	return nil
}

// WriteMMIO implements chipset.MmioHandler.
func (e *Emulator) WriteMMIO(addr uint64, data []byte) error {
	offset, err := e.offset(addr, data)
	if err != nil {
		return err
	}
	v := binary.LittleEndian.Uint32(data)

	e.mu.Lock()
	switch offset {
	case smi.SMICS:
		e.smics = v
	case smi.SMIDSW0:
		e.dsw[0] = v
	case smi.SMIDSW1:
		e.dsw[1] = v
	}
	pending := e.smics&smi.SMICS_INTERRUPTS != 0
	e.mu.Unlock()

	if !pending {
		e.irq.SetLevel(false)
	}
	return nil
}

func (e *Emulator) offset(addr uint64, data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("fwemu: %d byte access at 0x%x, only 32 bit supported", len(data), addr)
	}
	if addr < e.cfg.Base || addr+4 > e.cfg.Base+smi.Size {
		return 0, fmt.Errorf("fwemu: address 0x%x out of bounds", addr)
	}
	return uint32(addr - e.cfg.Base), nil
}

// Vblank signals the end of a frame on the displays at the given indices
// (all displays when none are given) and raises the interrupt.
func (e *Emulator) Vblank(indices ...int) {
	e.mu.Lock()
	if len(indices) == 0 {
		for i := range e.cfg.Displays {
			indices = append(indices, i)
		}
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(e.cfg.Displays) {
			continue
		}
		if st := e.displays[e.cfg.Displays[idx].ID]; st != nil {
			st.vblanks++
		}
		switch {
		case e.cfg.Protocol == ProtocolLegacy:
			e.dsw[0] |= 1
		case idx < len(e.dsw):
			e.dsw[idx] = smi.SMI_NEW | 1
		}
	}
	e.smics |= 1 << 9
	e.mu.Unlock()

	e.irq.SetLevel(true)
}

// Poll implements chipset.PollHandler.
func (e *Emulator) Poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Vblank()
	return nil
}

// SetDoorbell overwrites a doorbell register.
func (e *Emulator) SetDoorbell(index int, v uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dsw[index] = v
}

// Doorbell returns the current value of a doorbell register.
func (e *Emulator) Doorbell(index int) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dsw[index]
}

// Raise sets the SMICS interrupt bits without touching the doorbells and
// asserts the line.
func (e *Emulator) Raise() {
	e.mu.Lock()
	e.smics |= 1 << 9
	e.mu.Unlock()
	e.irq.SetLevel(true)
}

var (
	_ chipset.Device      = (*Emulator)(nil)
	_ chipset.MmioHandler = (*Emulator)(nil)
	_ chipset.PollHandler = (*Emulator)(nil)
)
