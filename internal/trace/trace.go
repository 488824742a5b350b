// Package trace records firmware transactions to a compact binary stream.
//
// Each entry is a 16 byte header followed by the source and the payload:
//   - 2 bytes kind
//   - 2 bytes source length
//   - 4 bytes payload length
//   - 8 bytes timestamp (nanoseconds since epoch)
//
// Writers reserve their slot by atomically advancing the stream offset, so
// concurrent recorders never interleave within an entry.
package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Kind uint16

const (
	KindInvalid Kind = iota
	KindRequest
	KindResponse
	KindError
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	case KindEvent:
		return "event"
	default:
		return "invalid"
	}
}

const headerSize = 16

type Writer interface {
	io.WriterAt
	io.Closer
}

type writer struct {
	w Writer
}

var (
	fh     atomic.Pointer[writer]
	offset atomic.Uint64
)

func OpenFile(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	return Open(f)
}

// Open starts recording to w. The error is a warning: a previously open
// writer was replaced and may have lost entries.
func Open(w Writer) error {
	offset.Store(0)
	if fh.Swap(&writer{w: w}) != nil {
		return fmt.Errorf("trace: already open, discarded old writer")
	}
	return nil
}

func Close() error {
	fh := fh.Swap(nil)
	if fh != nil {
		if err := fh.w.Close(); err != nil {
			return err
		}
	}
	offset.Store(0)
	return nil
}

// Enabled reports whether a writer is open.
func Enabled() bool {
	return fh.Load() != nil
}

func encodeHeader(kind Kind, source string, data []byte, ts time.Time) []byte {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(header[0:2], uint16(kind))
	binary.LittleEndian.PutUint16(header[2:4], uint16(len(source)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(data)))
	binary.LittleEndian.PutUint64(header[8:16], uint64(ts.UnixNano()))
	return header
}

// Record appends one entry. It is a no-op when no writer is open.
func Record(kind Kind, source string, data []byte) {
	fh := fh.Load()
	if fh == nil {
		return
	}

	entry := append(encodeHeader(kind, source, data, time.Now()), source...)
	entry = append(entry, data...)
	size := uint64(len(entry))
	off := offset.Add(size) - size
	// A failed trace write must never disturb the display path.
	_, _ = fh.w.WriteAt(entry, int64(off))
}

func Recordf(kind Kind, source string, format string, args ...any) {
	if fh.Load() == nil {
		return
	}
	Record(kind, source, fmt.Appendf(nil, format, args...))
}

// Buffer is an in-memory Writer.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := int(off) + len(p)
	if end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	copy(b.data[off:], p)
	return len(p), nil
}

func (b *Buffer) Close() error {
	return nil
}

// Bytes returns a copy of everything recorded so far.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte{}, b.data...)
}
