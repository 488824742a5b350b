package edid

import (
	"fmt"
	"log/slog"
)

// BlockReader fetches one 128 byte block of a sink's EDID.
type BlockReader func(block int) ([BlockSize]byte, error)

const readRetries = 4

func readBlock(read BlockReader, index int) ([BlockSize]byte, error) {
	var (
		block [BlockSize]byte
		err   error
	)
	for try := 0; try < readRetries; try++ {
		block, err = read(index)
		if err != nil {
			return block, err
		}
		if err = ValidBlock(block[:], index); err == nil {
			return block, nil
		}
	}
	return block, err
}

// Read fetches the base block and every extension it announces. Extensions
// that fail validation are dropped.
func Read(read BlockReader) ([]byte, error) {
	base, err := readBlock(read, 0)
	if err != nil {
		return nil, fmt.Errorf("edid: read base block: %w", err)
	}

	count := int(base[126])
	if count > maxExtensions {
		count = maxExtensions
	}

	out := append([]byte{}, base[:]...)
	valid := 0
	for i := 1; i <= count; i++ {
		block, err := readBlock(read, i)
		if err != nil {
			slog.Warn("edid: dropping extension block", "block", i, "err", err)
			continue
		}
		out = append(out, block[:]...)
		valid++
	}

	if valid != int(base[126]) {
		// Keep the base block consistent with what was kept.
		out[126] = byte(valid)
		out[127] -= byte(valid) - base[126]
	}
	return out, nil
}
