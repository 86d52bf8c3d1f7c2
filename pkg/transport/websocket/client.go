// Package websocket implements the WebSocket transports: a client that
// dials a remote endpoint and a server that broadcasts to every connected
// peer. Both follow the same lifecycle and notify contract as the datagram
// transport.
package websocket

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/oscline/oscline/pkg/transport"
)

// ErrNotConnected is returned by Send when there is no live connection.
var ErrNotConnected = errors.New("websocket is not connected")

// DefaultClientConfig returns the documented defaults for the client
// transport. Only the open group is consulted; it names the remote endpoint
// to dial.
func DefaultClientConfig() transport.Config {
	return transport.Config{
		Type:    "ws",
		Routing: transport.RoutingUnicast,
		Open: transport.OpenConfig{
			Host: "localhost",
			Port: 8080,
		},
		Send: transport.SendConfig{
			Host: "localhost",
			Port: 8080,
		},
		Multicast: transport.MulticastConfig{TTL: 1},
	}
}

// Client is a WebSocket transport that dials a single remote server and
// exchanges binary frames with it.
type Client struct {
	logger *zap.Logger
	config transport.Config

	status atomic.Int32
	notify transport.Notifier

	mu   sync.Mutex
	conn *websocket.Conn
	wg   sync.WaitGroup
}

var _ transport.Transport = (*Client)(nil)

// NewClient resolves the effective configuration and returns a client in
// the NotInitialized state.
func NewClient(logger *zap.Logger, opts ...*transport.Options) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		logger: logger,
		config: transport.Resolve(DefaultClientConfig(), opts...),
	}
	c.status.Store(int32(transport.StatusNotInitialized))
	return c
}

// Status returns the current lifecycle state.
func (c *Client) Status() transport.Status {
	return transport.Status(c.status.Load())
}

// RegisterNotify replaces the notify callback.
func (c *Client) RegisterNotify(fn transport.NotifyFunc) {
	c.notify.Register(fn)
}

// Open merges per-call options over the stored configuration and dials the
// remote endpoint asynchronously. Dial failures surface as error events.
func (c *Client) Open(o *transport.Options) error {
	cfg := transport.Resolve(c.config, o)
	c.status.Store(int32(transport.StatusConnecting))
	go c.dial(cfg)
	return nil
}

func (c *Client) dial(cfg transport.Config) {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(cfg.Open.Host, strconv.Itoa(cfg.Open.Port)),
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		c.logger.Error("dial failed", zap.String("url", u.String()), zap.Error(err))
		c.notify.Notify(transport.Event{Kind: transport.EventError, Err: err})
		return
	}

	c.mu.Lock()
	if c.closing() {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.status.Store(int32(transport.StatusOpen))
	c.logger.Debug("connected", zap.String("url", u.String()))
	c.notify.Notify(transport.Event{Kind: transport.EventOpen})

	c.wg.Add(1)
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closing() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.notify.Notify(transport.Event{Kind: transport.EventError, Err: err})
			return
		}
		c.notify.Notify(transport.Event{
			Kind:    transport.EventMessage,
			Payload: data,
			From:    conn.RemoteAddr(),
		})
	}
}

func (c *Client) closing() bool {
	s := c.Status()
	return s == transport.StatusClosing || s == transport.StatusClosed
}

// Close moves to Closing synchronously and tears the connection down in the
// background, firing the close event once the read loop has drained.
func (c *Client) Close() error {
	c.status.Store(int32(transport.StatusClosing))

	go func() {
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		}
		c.wg.Wait()

		c.status.Store(int32(transport.StatusClosed))
		c.logger.Debug("connection closed")
		c.notify.Notify(transport.Event{Kind: transport.EventClose})
	}()
	return nil
}

// Send writes b as one binary frame. The per-call options are accepted for
// interface symmetry but a connected client has no per-send destination to
// override.
func (c *Client) Send(b []byte, _ *transport.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}
