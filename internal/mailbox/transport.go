package mailbox

import (
	"context"
	"errors"
)

// ErrTransport wraps failures reported by a Transport.
var ErrTransport = errors.New("mailbox: transport failure")

// Transport delivers one encoded property buffer to the firmware and returns
// the buffer the firmware answered with. Implementations may answer in place.
type Transport interface {
	Call(ctx context.Context, buf []byte) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, buf []byte) ([]byte, error)

func (f TransportFunc) Call(ctx context.Context, buf []byte) ([]byte, error) {
	return f(ctx, buf)
}
