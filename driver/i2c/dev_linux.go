//go:build linux

package i2c

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl of linux/i2c-dev.h.
const i2cSlave = 0x0703

// Dev is a Linux i2c-dev bus such as /dev/i2c-1.
type Dev struct {
	mu   sync.Mutex
	fd   int
	path string
	addr uint16
}

var _ Bus = (*Dev)(nil)

// Open opens an i2c-dev character device.
func Open(path string) (*Dev, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return &Dev{fd: fd, path: path, addr: 0xFFFF}, nil
}

// selectAddr must be called with mu held.
func (d *Dev) selectAddr(addr uint16) error {
	if d.addr == addr {
		return nil
	}
	if err := unix.IoctlSetInt(d.fd, i2cSlave, int(addr)); err != nil {
		return fmt.Errorf("%s: select device 0x%02x: %w", d.path, addr, err)
	}
	d.addr = addr

	return nil
}

// WriteReg implements Bus.
func (d *Dev) WriteReg(addr uint16, reg byte, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.selectAddr(addr); err != nil {
		return err
	}

	msg := make([]byte, 0, 1+len(data))
	msg = append(msg, reg)
	msg = append(msg, data...)
	if _, err := unix.Write(d.fd, msg); err != nil {
		return fmt.Errorf("%s: write 0x%02x/0x%02x: %w", d.path, addr, reg, err)
	}

	return nil
}

// ReadReg implements Bus.
func (d *Dev) ReadReg(addr uint16, reg byte, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.selectAddr(addr); err != nil {
		return err
	}
	if _, err := unix.Write(d.fd, []byte{reg}); err != nil {
		return fmt.Errorf("%s: select register 0x%02x/0x%02x: %w", d.path, addr, reg, err)
	}
	if _, err := unix.Read(d.fd, buf); err != nil {
		return fmt.Errorf("%s: read 0x%02x/0x%02x: %w", d.path, addr, reg, err)
	}

	return nil
}

// Close implements Bus.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1

	return err
}
