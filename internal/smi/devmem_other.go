//go:build !linux

package smi

import "errors"

// Mapping is unavailable on this platform.
type Mapping struct{}

// Map reports that /dev/mem is not supported.
func Map(base, size uint64) (*Mapping, error) {
	return nil, errors.New("smi: /dev/mem mapping is only supported on linux")
}

func (m *Mapping) Read32(offset uint32) uint32          { return 0 }
func (m *Mapping) Write32(offset uint32, value uint32) {}
func (m *Mapping) Close() error                        { return nil }
