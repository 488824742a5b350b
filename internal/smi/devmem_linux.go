//go:build linux

package smi

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapping is a view of physical registers through /dev/mem.
type Mapping struct {
	file *os.File
	mem  []byte
	// offset of the block within the first mapped page
	base uint32
	size uint32
}

var _ Registers = (*Mapping)(nil)

// Map maps size bytes of physical memory at base.
func Map(base, size uint64) (*Mapping, error) {
	if size == 0 {
		size = Size
	}
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("smi: open /dev/mem: %w", err)
	}

	pageSize := uint64(unix.Getpagesize())
	pageBase := base &^ (pageSize - 1)
	delta := base - pageBase
	length := int((delta + size + pageSize - 1) &^ (pageSize - 1))

	mem, err := unix.Mmap(int(f.Fd()), int64(pageBase), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("smi: mmap 0x%x+0x%x: %w", base, size, err)
	}

	return &Mapping{
		file: f,
		mem:  mem,
		base: uint32(delta),
		size: uint32(size),
	}, nil
}

func (m *Mapping) word(offset uint32) *uint32 {
	if offset&3 != 0 || offset+4 > m.size {
		return nil
	}
	return (*uint32)(unsafe.Pointer(&m.mem[m.base+offset]))
}

func (m *Mapping) Read32(offset uint32) uint32 {
	p := m.word(offset)
	if p == nil {
		return 0
	}
	return atomic.LoadUint32(p)
}

func (m *Mapping) Write32(offset uint32, value uint32) {
	p := m.word(offset)
	if p == nil {
		return
	}
	atomic.StoreUint32(p, value)
}

func (m *Mapping) Close() error {
	if m.mem != nil {
		unix.Munmap(m.mem)
		m.mem = nil
	}
	return m.file.Close()
}
