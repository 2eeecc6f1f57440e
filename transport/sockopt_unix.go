//go:build unix && !linux

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SO_BINDTODEVICE is Linux only, device is ignored here.
func setSocketOptions(fd uintptr, _ string) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		return fmt.Errorf("failed to set SO_BROADCAST: %w", err)
	}
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}

	return nil
}
