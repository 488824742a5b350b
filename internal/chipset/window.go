package chipset

import (
	"encoding/binary"
	"log/slog"

	"github.com/tinyrange/fkms/internal/smi"
)

// Window exposes a register block behind the chipset's MMIO dispatch as
// 32 bit registers relative to base.
type Window struct {
	cs   *Chipset
	base uint64
}

var _ smi.Registers = (*Window)(nil)

// Window returns a register view of the region starting at base.
func (c *Chipset) Window(base uint64) *Window {
	return &Window{cs: c, base: base}
}

func (w *Window) Read32(offset uint32) uint32 {
	var buf [4]byte
	if err := w.cs.HandleMMIO(w.base+uint64(offset), buf[:], false); err != nil {
		slog.Error("chipset: register read failed", "offset", offset, "err", err)
		return 0
	}
	return binary.LittleEndian.Uint32(buf[:])
}

func (w *Window) Write32(offset uint32, value uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	if err := w.cs.HandleMMIO(w.base+uint64(offset), buf[:], true); err != nil {
		slog.Error("chipset: register write failed", "offset", offset, "err", err)
	}
}
