//go:build unix

package udp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/oscline/oscline/pkg/transport"
)

func getsockoptInt(t *testing.T, conn *net.UDPConn, level, opt int) int {
	t.Helper()

	raw, err := conn.SyscallConn()
	require.NoError(t, err)

	var value int
	var opErr error
	require.NoError(t, raw.Control(func(fd uintptr) {
		value, opErr = unix.GetsockoptInt(int(fd), level, opt)
	}))
	require.NoError(t, opErr)
	return value
}

func TestRoutingFlags(t *testing.T) {
	t.Run("UnicastLeavesBroadcastOff", func(t *testing.T) {
		tr := openTransport(t, nil, loopbackOptions())
		defer tr.Close()

		assert.Zero(t, getsockoptInt(t, tr.conn, unix.SOL_SOCKET, unix.SO_BROADCAST))
	})

	t.Run("BroadcastSetsFlagOnly", func(t *testing.T) {
		tr := openTransport(t, nil, loopbackOptions(), &transport.Options{
			Routing: transport.Route(transport.RoutingBroadcast),
		})
		defer tr.Close()

		assert.NotZero(t, getsockoptInt(t, tr.conn, unix.SOL_SOCKET, unix.SO_BROADCAST))

		// Broadcast routing must not touch the multicast flags.
		ttl, err := ipv4.NewPacketConn(tr.conn).MulticastTTL()
		require.NoError(t, err)
		assert.NotEqual(t, 9, ttl, "multicast ttl stays at the OS default")
	})

	t.Run("MulticastSendSetsBroadcastAndTTL", func(t *testing.T) {
		tr := openTransport(t, nil, loopbackOptions(), &transport.Options{
			Send:      &transport.SendOptions{Routing: transport.Route(transport.RoutingMulticast)},
			Multicast: &transport.MulticastOptions{TTL: transport.Int(9), Loopback: transport.Bool(true)},
		})
		defer tr.Close()

		assert.NotZero(t, getsockoptInt(t, tr.conn, unix.SOL_SOCKET, unix.SO_BROADCAST))

		p := ipv4.NewPacketConn(tr.conn)
		ttl, err := p.MulticastTTL()
		require.NoError(t, err)
		assert.Equal(t, 9, ttl)

		loop, err := p.MulticastLoopback()
		require.NoError(t, err)
		assert.True(t, loop)
	})

	t.Run("ExclusiveSkipsReuseAddr", func(t *testing.T) {
		tr := openTransport(t, nil, loopbackOptions(), &transport.Options{
			Open: &transport.OpenOptions{Exclusive: transport.Bool(true)},
		})
		defer tr.Close()

		assert.Zero(t, getsockoptInt(t, tr.conn, unix.SOL_SOCKET, unix.SO_REUSEADDR))
	})
}
