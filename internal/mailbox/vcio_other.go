//go:build !linux

package mailbox

import (
	"context"
	"errors"
)

const DefaultVCIOPath = "/dev/vcio"

var errNoVCIO = errors.New("mailbox: the firmware mailbox device requires linux")

type VCIO struct{}

var _ Transport = (*VCIO)(nil)

func OpenVCIO(path string) (*VCIO, error) { return nil, errNoVCIO }

func (v *VCIO) Call(ctx context.Context, buf []byte) ([]byte, error) { return nil, errNoVCIO }

func (v *VCIO) Close() error { return nil }
