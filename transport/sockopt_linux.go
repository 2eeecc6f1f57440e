//go:build linux

package transport

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func setSocketOptions(fd uintptr, device string) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		return fmt.Errorf("failed to set SO_BROADCAST: %w", err)
	}
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}

	if device != "" {
		err := unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, device)
		if err != nil && !errors.Is(err, unix.EPERM) {
			return fmt.Errorf("failed to set SO_BINDTODEVICE %s: %w", device, err)
		}
	}

	return nil
}
