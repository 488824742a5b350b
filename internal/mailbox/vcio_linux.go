//go:build linux

package mailbox

import (
	"context"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultVCIOPath is the character device exposing the firmware mailbox.
const DefaultVCIOPath = "/dev/vcio"

// _IOWR(100, 0, char *)
const ioctlMboxProperty = 3<<30 | unsafe.Sizeof(uintptr(0))<<16 | 100<<8

// VCIO is a Transport over the VideoCore mailbox character device.
type VCIO struct {
	mu sync.Mutex
	f  *os.File
}

var _ Transport = (*VCIO)(nil)

// OpenVCIO opens the mailbox device at path.
func OpenVCIO(path string) (*VCIO, error) {
	if path == "" {
		path = DefaultVCIOPath
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mailbox: open %s: %w", path, err)
	}
	return &VCIO{f: f}, nil
}

// Call implements Transport. The firmware answers in place.
func (v *VCIO) Call(ctx context.Context, buf []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(buf) < 12 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("mailbox: malformed property buffer of %d bytes", len(buf))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// The driver writes the response over the request.
	out := make([]byte, len(buf))
	copy(out, buf)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, v.f.Fd(), ioctlMboxProperty, uintptr(unsafe.Pointer(&out[0])))
	if errno != 0 {
		return nil, fmt.Errorf("mailbox: property ioctl: %w", errno)
	}
	return out, nil
}

func (v *VCIO) Close() error {
	return v.f.Close()
}
