package websocket

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscline/oscline/pkg/transport"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type eventRecorder struct {
	mu     sync.Mutex
	events []transport.Event
}

func (r *eventRecorder) notify(ev transport.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) count(kind transport.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) payloads() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]byte
	for _, ev := range r.events {
		if ev.Kind == transport.EventMessage {
			out = append(out, ev.Payload)
		}
	}
	return out
}

// startServer opens a server on an ephemeral loopback port and returns it
// with its bound port.
func startServer(t *testing.T, rec *eventRecorder) (*Server, int) {
	t.Helper()

	s := NewServer(nil, &transport.Options{
		Open: &transport.OpenOptions{
			Host: transport.String("127.0.0.1"),
			Port: transport.Int(0),
		},
	})
	if rec != nil {
		s.RegisterNotify(rec.notify)
	}
	require.NoError(t, s.Open(nil))
	require.Eventually(t, func() bool {
		return s.Status() == transport.StatusOpen
	}, waitFor, tick)

	return s, s.LocalAddr().(*net.TCPAddr).Port
}

func connectClient(t *testing.T, rec *eventRecorder, port int) *Client {
	t.Helper()

	c := NewClient(nil, &transport.Options{
		Open: &transport.OpenOptions{
			Host: transport.String("127.0.0.1"),
			Port: transport.Int(port),
		},
	})
	if rec != nil {
		c.RegisterNotify(rec.notify)
	}
	require.NoError(t, c.Open(nil))
	require.Eventually(t, func() bool {
		return c.Status() == transport.StatusOpen
	}, waitFor, tick)
	return c
}

// waitForPeers blocks until the server has registered n peers; the client's
// dial can return before the server's handler has run.
func waitForPeers(t *testing.T, s *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.peers) == n
	}, waitFor, tick)
}

func TestClientServerExchange(t *testing.T) {
	serverRec := &eventRecorder{}
	clientRec := &eventRecorder{}

	s, port := startServer(t, serverRec)
	defer s.Close()
	c := connectClient(t, clientRec, port)
	defer c.Close()
	waitForPeers(t, s, 1)

	t.Run("ClientToServer", func(t *testing.T) {
		payload := []byte{0x01, 0x02, 0x03}
		require.NoError(t, c.Send(payload, nil))

		require.Eventually(t, func() bool {
			return serverRec.count(transport.EventMessage) == 1
		}, waitFor, tick)
		assert.Equal(t, payload, serverRec.payloads()[0])
	})

	t.Run("ServerBroadcastsToClient", func(t *testing.T) {
		payload := []byte{0x0a, 0x0b}
		require.NoError(t, s.Send(payload, nil))

		require.Eventually(t, func() bool {
			return clientRec.count(transport.EventMessage) == 1
		}, waitFor, tick)
		assert.Equal(t, payload, clientRec.payloads()[0])
	})
}

func TestClientLifecycle(t *testing.T) {
	rec := &eventRecorder{}
	s, port := startServer(t, nil)
	defer s.Close()

	c := NewClient(nil)
	c.RegisterNotify(rec.notify)
	assert.Equal(t, transport.StatusNotInitialized, c.Status())

	// Per-call overrides pick the real endpoint over the stored defaults.
	require.NoError(t, c.Open(&transport.Options{
		Open: &transport.OpenOptions{
			Host: transport.String("127.0.0.1"),
			Port: transport.Int(port),
		},
	}))
	require.Eventually(t, func() bool {
		return c.Status() == transport.StatusOpen
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return rec.count(transport.EventOpen) == 1
	}, waitFor, tick)

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool {
		return c.Status() == transport.StatusClosed
	}, waitFor, tick)

	assert.Equal(t, 1, rec.count(transport.EventOpen))
	assert.Equal(t, 1, rec.count(transport.EventClose))

	assert.ErrorIs(t, c.Send([]byte{0x01}, nil), ErrNotConnected)
}

func TestClientDialFailure(t *testing.T) {
	rec := &eventRecorder{}

	// Grab a port and close it again so the dial target refuses.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	c := NewClient(nil, &transport.Options{
		Open: &transport.OpenOptions{
			Host: transport.String("127.0.0.1"),
			Port: transport.Int(port),
		},
	})
	c.RegisterNotify(rec.notify)

	require.NoError(t, c.Open(nil))
	require.Eventually(t, func() bool {
		return rec.count(transport.EventError) == 1
	}, waitFor, tick)
	assert.Equal(t, 0, rec.count(transport.EventOpen))
	assert.Equal(t, transport.StatusConnecting, c.Status())
}

func TestServerBroadcastReachesAllPeers(t *testing.T) {
	s, port := startServer(t, nil)
	defer s.Close()

	recA, recB := &eventRecorder{}, &eventRecorder{}
	a := connectClient(t, recA, port)
	defer a.Close()
	b := connectClient(t, recB, port)
	defer b.Close()
	waitForPeers(t, s, 2)

	payload := []byte{0x7f}
	require.NoError(t, s.Send(payload, nil))

	require.Eventually(t, func() bool {
		return recA.count(transport.EventMessage) == 1 && recB.count(transport.EventMessage) == 1
	}, waitFor, tick)
	assert.Equal(t, payload, recA.payloads()[0])
	assert.Equal(t, payload, recB.payloads()[0])
}
