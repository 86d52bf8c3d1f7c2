// Package udp implements the datagram transport: a single UDP socket with
// unicast, broadcast and multicast delivery, driven through the lifecycle
// described by transport.Status.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/oscline/oscline/pkg/transport"
)

// Large enough for any payload a single datagram can carry.
const readBufferSize = 65535

var (
	// ErrNoUDPCapability is returned by New when the environment cannot
	// create UDP sockets at all.
	ErrNoUDPCapability = errors.New("udp sockets unavailable")

	// ErrMulticastGroupRequired is returned by Open when multicast routing
	// is requested without an explicit send.group address.
	ErrMulticastGroupRequired = errors.New("multicast routing requires send.group")

	// ErrNotOpen is returned by Send when no socket exists yet or the
	// socket has been torn down.
	ErrNotOpen = errors.New("udp socket is not open")
)

// DefaultConfig returns the documented defaults for the datagram transport.
func DefaultConfig() transport.Config {
	return transport.Config{
		Type:    "udp4",
		Routing: transport.RoutingUnicast,
		Open: transport.OpenConfig{
			Host:      "localhost",
			Port:      41234,
			Exclusive: false,
		},
		Send: transport.SendConfig{
			Host:    "localhost",
			Port:    41235,
			Routing: transport.RoutingUnicast,
		},
		Multicast: transport.MulticastConfig{
			TTL:      1,
			Loopback: false,
		},
	}
}

// Transport owns one UDP socket for its whole lifetime. A closed transport
// cannot be reopened; construct a new one instead. Open, Close and Send are
// not internally serialized against each other beyond what safety requires;
// hosts driving the transport from several goroutines must order calls
// themselves.
type Transport struct {
	logger *zap.Logger
	config transport.Config

	status atomic.Int32
	notify transport.Notifier

	mu   sync.Mutex
	conn *net.UDPConn
	wg   sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New resolves the effective configuration from the documented defaults and
// the given layers, then probes that the environment can create datagram
// sockets. The probe failing is fatal: it returns ErrNoUDPCapability wrapping
// the underlying cause.
func New(logger *zap.Logger, opts ...*transport.Options) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := transport.Resolve(DefaultConfig(), opts...)
	if !sendRoutingSet(opts) {
		// send.routing mirrors the top-level routing unless set explicitly.
		cfg.Send.Routing = cfg.Routing
	}

	if err := probeCapability(cfg.Type); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoUDPCapability, err)
	}

	t := &Transport{
		logger: logger,
		config: cfg,
	}
	t.status.Store(int32(transport.StatusNotInitialized))
	return t, nil
}

func sendRoutingSet(opts []*transport.Options) bool {
	for _, o := range opts {
		if o != nil && o.Send != nil && o.Send.Routing != nil {
			return true
		}
	}
	return false
}

// probeCapability binds and immediately releases an ephemeral socket.
func probeCapability(network string) error {
	c, err := net.ListenUDP(network, nil)
	if err != nil {
		return err
	}
	return c.Close()
}

// Status returns the current lifecycle state.
func (t *Transport) Status() transport.Status {
	return transport.Status(t.status.Load())
}

// RegisterNotify replaces the notify callback. At most one callback is
// registered at a time.
func (t *Transport) RegisterNotify(fn transport.NotifyFunc) {
	t.notify.Register(fn)
}

// LocalAddr reports the bound address, or nil before the bind completes.
func (t *Transport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// Open merges per-call options over the stored configuration and starts the
// asynchronous bind. The status moves to Connecting immediately; Open itself
// only fails for immediate, local reasons (a missing multicast group). Bind
// failures are reported through the notify callback as error events.
//
// No guard rejects a second Open; ordering Open/Close correctly is the
// caller's contract.
func (t *Transport) Open(o *transport.Options) error {
	cfg := transport.Resolve(t.config, o)
	if cfg.Routing == transport.RoutingMulticast && cfg.Send.Group == "" {
		return ErrMulticastGroupRequired
	}

	t.status.Store(int32(transport.StatusConnecting))
	go t.bind(cfg)
	return nil
}

func (t *Transport) bind(cfg transport.Config) {
	laddr := net.JoinHostPort(cfg.Open.Host, strconv.Itoa(cfg.Open.Port))
	lc := net.ListenConfig{
		Control: controlSocket(cfg.Open.Exclusive, wantsBroadcast(cfg)),
	}

	pc, err := lc.ListenPacket(context.Background(), cfg.Type, laddr)
	if err != nil {
		t.logger.Error("bind failed", zap.String("laddr", laddr), zap.Error(err))
		t.notify.Notify(transport.Event{Kind: transport.EventError, Err: err})
		return
	}
	conn := pc.(*net.UDPConn)

	if err := t.configureRouting(conn, cfg); err != nil {
		_ = conn.Close()
		t.logger.Error("routing setup failed", zap.Error(err))
		t.notify.Notify(transport.Event{Kind: transport.EventError, Err: err})
		return
	}

	t.mu.Lock()
	if t.closing() {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.status.Store(int32(transport.StatusOpen))
	t.logger.Debug("socket open", zap.Stringer("laddr", conn.LocalAddr()))
	t.notify.Notify(transport.Event{Kind: transport.EventOpen})

	t.wg.Add(1)
	go t.readLoop(conn)
}

// wantsBroadcast reports whether the broadcast flag must be enabled on the
// socket: it is for both broadcast and multicast send routing.
func wantsBroadcast(cfg transport.Config) bool {
	return cfg.Send.Routing == transport.RoutingBroadcast ||
		cfg.Send.Routing == transport.RoutingMulticast
}

// readLoop delivers inbound datagrams as message events until the socket is
// closed. Transient read errors become error events without stopping the
// loop or changing the lifecycle state.
func (t *Transport) readLoop(conn *net.UDPConn) {
	defer t.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.closing() {
				return
			}
			t.notify.Notify(transport.Event{Kind: transport.EventError, Err: err})
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		t.notify.Notify(transport.Event{
			Kind:    transport.EventMessage,
			Payload: payload,
			From:    from,
		})
	}
}

func (t *Transport) closing() bool {
	s := t.Status()
	return s == transport.StatusClosing || s == transport.StatusClosed
}

// Close moves to Closing synchronously, then tears the socket down in the
// background. Once the receive loop has drained, the status becomes Closed
// and the close event fires; no message events are delivered after that.
func (t *Transport) Close() error {
	t.status.Store(int32(transport.StatusClosing))

	go func() {
		t.mu.Lock()
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		t.wg.Wait()

		t.status.Store(int32(transport.StatusClosed))
		t.logger.Debug("socket closed")
		t.notify.Notify(transport.Event{Kind: transport.EventClose})
	}()
	return nil
}

// Send transmits b verbatim to the resolved destination. Per-call options
// override the stored send configuration for this call only; the stored
// configuration is never mutated. Send performs no status check: sending
// before the bind completes or after Close returns ErrNotOpen, and whatever
// the OS does with an in-flight socket is passed through unchanged.
func (t *Transport) Send(b []byte, o *transport.Options) error {
	cfg := transport.Resolve(t.config, o)

	raddr, err := net.ResolveUDPAddr(cfg.Type, net.JoinHostPort(cfg.Send.Host, strconv.Itoa(cfg.Send.Port)))
	if err != nil {
		return fmt.Errorf("resolve send address: %w", err)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	if _, err := conn.WriteToUDP(b, raddr); err != nil {
		return fmt.Errorf("send to %s: %w", raddr, err)
	}
	return nil
}
