// Package smi describes the SMI register block the firmware uses to signal
// vblank and flip completion to the ARM side.
package smi

// Register offsets within the block.
const (
	SMICS   = 0x00 // control & status
	SMIDSW0 = 0x14 // doorbell for display 0
	SMIDSW1 = 0x1c // doorbell for display 1

	// Size of the block as described by the platform.
	Size = 0x100
)

// SMICS_INTERRUPTS are the interrupt cause bits of SMICS.
const SMICS_INTERRUPTS = (1 << 9) | (1 << 10) | (1 << 11)

// SMI_NEW marks a doorbell written by firmware that signals each display
// separately. Older firmware leaves the upper half clear and raises a single
// interrupt for all displays.
const (
	SMI_NEW      = 0xabcd0000
	SMI_NEW_MASK = 0xffff0000
)

// Registers is 32 bit access to the block. Accesses cannot fail; an
// unmapped read returns zero.
type Registers interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// IsNewProtocol reports whether a doorbell value carries the SMI_NEW tag.
func IsNewProtocol(doorbell uint32) bool {
	return doorbell&SMI_NEW_MASK == SMI_NEW
}
