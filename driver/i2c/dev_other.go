//go:build !linux

package i2c

import (
	"errors"
)

// Dev is only available on Linux.
type Dev struct{}

var _ Bus = (*Dev)(nil)

var errUnsupported = errors.New("i2c-dev is only supported on linux")

// Open always fails outside Linux.
func Open(path string) (*Dev, error) { return nil, errUnsupported }

func (*Dev) WriteReg(uint16, byte, []byte) error { return errUnsupported }
func (*Dev) ReadReg(uint16, byte, []byte) error  { return errUnsupported }
func (*Dev) Close() error                        { return nil }
