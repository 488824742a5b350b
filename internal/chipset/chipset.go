package chipset

import (
	"context"
	"fmt"
	"sort"
)

// Start brings every device up in name order.
func (c *Chipset) Start() error {
	return c.each("start", ChangeDeviceState.Start)
}

// Stop quiesces every device and drops their interrupt lines.
func (c *Chipset) Stop() error {
	return c.each("stop", ChangeDeviceState.Stop)
}

// Reset returns every device to its power-on register state. A rebind
// calls it so doorbells left over from an earlier session do not fire.
func (c *Chipset) Reset() error {
	return c.each("reset", ChangeDeviceState.Reset)
}

func (c *Chipset) each(op string, fn func(ChangeDeviceState) error) error {
	names := make([]string, 0, len(c.devices))
	for name := range c.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := fn(c.devices[name]); err != nil {
			return fmt.Errorf("chipset: %s device %q: %w", op, name, err)
		}
	}
	return nil
}

// Lines returns the chipset's interrupt lines.
func (c *Chipset) Lines() *LineSet {
	return c.lines
}

// HandleMMIO routes a register access to the device whose region contains
// all of it.
func (c *Chipset) HandleMMIO(addr uint64, data []byte, isWrite bool) error {
	h, err := c.handlerFor(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	if isWrite {
		return h.WriteMMIO(addr, data)
	}
	return h.ReadMMIO(addr, data)
}

func (c *Chipset) handlerFor(addr, n uint64) (MmioHandler, error) {
	if addr+n < addr {
		return nil, fmt.Errorf("chipset: %d byte access at 0x%x wraps", n, addr)
	}
	for _, b := range c.mmio {
		if addr >= b.region.Address && addr+n <= b.region.Address+b.region.Size {
			return b.handler, nil
		}
	}
	return nil, fmt.Errorf("chipset: no register block at 0x%x", addr)
}

// Poll advances every poll device by one step. For the firmware emulator a
// step is one frame.
func (c *Chipset) Poll(ctx context.Context) error {
	for _, h := range c.polls {
		if err := h.Poll(ctx); err != nil {
			return fmt.Errorf("chipset: poll: %w", err)
		}
	}
	return nil
}
