package kms

import (
	"errors"
	"fmt"
)

var (
	ErrAsyncFlip       = errors.New("kms: asynchronous page flips are not supported")
	ErrBusy            = errors.New("kms: previous page flip still pending")
	ErrInvalidMargins  = errors.New("kms: margins leave no visible area")
	ErrModeRejected    = errors.New("kms: mode rejected")
	ErrInvalidProperty = errors.New("kms: invalid property")
	ErrInvalidGeometry = errors.New("kms: invalid plane geometry")
	ErrStaleState      = errors.New("kms: state duplicated from an older commit")
	ErrModesetRequired = errors.New("kms: commit needs a full modeset")
	ErrVblankOff       = errors.New("kms: vblank is off")
)

// ValidationError is returned by Commit when an object rejects the new
// state. No firmware request has been issued when it is returned.
type ValidationError struct {
	Object Commitable
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("kms: %s: %v", e.Object.Name(), e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(obj Commitable, err error) error {
	return &ValidationError{Object: obj, Err: err}
}

// ErrUnbound is returned by Commit after Unbind.
var ErrUnbound = errors.New("kms: device is unbound")
