//go:build windows

package udp

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// SO_EXCLUSIVEADDRUSE is ~SO_REUSEADDR per winsock2.h.
const soExclusiveAddrUse = ^windows.SO_REUSEADDR

// controlSocket returns a ListenConfig control hook applying the options
// that must be in place before bind. On Windows an exclusive bind maps to
// SO_EXCLUSIVEADDRUSE rather than simply omitting address reuse.
func controlSocket(exclusive, broadcast bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			h := windows.Handle(fd)
			if exclusive {
				opErr = windows.SetsockoptInt(h, windows.SOL_SOCKET, soExclusiveAddrUse, 1)
			} else {
				opErr = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
			}
			if opErr != nil {
				return
			}
			if broadcast {
				opErr = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
