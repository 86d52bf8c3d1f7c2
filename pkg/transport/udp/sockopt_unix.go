//go:build unix

package udp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSocket returns a ListenConfig control hook applying the options
// that must be in place before bind: address reuse unless the bind is
// exclusive, and the broadcast flag for broadcast/multicast send routing.
func controlSocket(exclusive, broadcast bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if !exclusive {
				if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
					return
				}
			}
			if broadcast {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
