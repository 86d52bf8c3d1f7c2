package websocket

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/oscline/oscline/pkg/transport"
)

// DefaultServerConfig returns the documented defaults for the server
// transport. The open group names the local listen endpoint.
func DefaultServerConfig() transport.Config {
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

// Server accepts WebSocket peers and fans outbound payloads to all of them.
// Binary frames received from any peer become message events.
type Server struct {
	logger *zap.Logger
	config transport.Config

	status atomic.Int32
	notify transport.Notifier

	upgrader websocket.Upgrader

	mu    sync.Mutex
	ln    net.Listener
	srv   *http.Server
	peers map[*websocket.Conn]struct{}
	wg    sync.WaitGroup
}

var _ transport.Transport = (*Server)(nil)

// NewServer resolves the effective configuration and returns a server in
// the NotInitialized state.
func NewServer(logger *zap.Logger, opts ...*transport.Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger: logger,
		config: transport.Resolve(DefaultServerConfig(), opts...),
		upgrader: websocket.Upgrader{
			// The transport carries opaque payloads; origin policy is the
			// embedding application's concern.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		peers: make(map[*websocket.Conn]struct{}),
	}
	s.status.Store(int32(transport.StatusNotInitialized))
	return s
}

// Status returns the current lifecycle state.
func (s *Server) Status() transport.Status {
	return transport.Status(s.status.Load())
}

// RegisterNotify replaces the notify callback.
func (s *Server) RegisterNotify(fn transport.NotifyFunc) {
	s.notify.Register(fn)
}

// LocalAddr reports the listen address, or nil before the bind completes.
func (s *Server) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Open merges per-call options over the stored configuration and binds the
// listener asynchronously. Bind failures surface as error events.
func (s *Server) Open(o *transport.Options) error {
	cfg := transport.Resolve(s.config, o)
	s.status.Store(int32(transport.StatusConnecting))
	go s.listen(cfg)
	return nil
}

func (s *Server) listen(cfg transport.Config) {
	laddr := net.JoinHostPort(cfg.Open.Host, strconv.Itoa(cfg.Open.Port))

	ln, err := net.Listen("tcp", laddr)
	if err != nil {
		s.logger.Error("listen failed", zap.String("laddr", laddr), zap.Error(err))
		s.notify.Notify(transport.Event{Kind: transport.EventError, Err: err})
		return
	}

	srv := &http.Server{Handler: s}

	s.mu.Lock()
	if s.closing() {
		s.mu.Unlock()
		_ = ln.Close()
		return
	}
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	s.status.Store(int32(transport.StatusOpen))
	s.logger.Debug("listening", zap.Stringer("laddr", ln.Addr()))
	s.notify.Notify(transport.Event{Kind: transport.EventOpen})

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		if !s.closing() {
			s.notify.Notify(transport.Event{Kind: transport.EventError, Err: err})
		}
	}
}

// ServeHTTP upgrades each incoming request and pumps the peer's binary
// frames into the notify callback until the peer goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.peers[conn] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("peer connected", zap.Stringer("peer", conn.RemoteAddr()))

	s.wg.Add(1)
	defer func() {
		s.mu.Lock()
		delete(s.peers, conn)
		s.mu.Unlock()
		_ = conn.Close()
		s.wg.Done()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.closing() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("peer read ended", zap.Error(err))
			}
			return
		}
		s.notify.Notify(transport.Event{
			Kind:    transport.EventMessage,
			Payload: data,
			From:    conn.RemoteAddr(),
		})
	}
}

func (s *Server) closing() bool {
	st := s.Status()
	return st == transport.StatusClosing || st == transport.StatusClosed
}

// Close moves to Closing synchronously, then shuts the listener and every
// peer down in the background, firing the close event once all peer loops
// have drained.
func (s *Server) Close() error {
	s.status.Store(int32(transport.StatusClosing))

	go func() {
		s.mu.Lock()
		srv := s.srv
		s.srv = nil
		s.ln = nil
		peers := make([]*websocket.Conn, 0, len(s.peers))
		for c := range s.peers {
			peers = append(peers, c)
		}
		s.mu.Unlock()

		for _, c := range peers {
			_ = c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			_ = c.Close()
		}
		if srv != nil {
			_ = srv.Close()
		}
		s.wg.Wait()

		s.status.Store(int32(transport.StatusClosed))
		s.logger.Debug("server closed")
		s.notify.Notify(transport.Event{Kind: transport.EventClose})
	}()
	return nil
}

// Send broadcasts b as one binary frame to every connected peer. A server
// with no peers sends to nobody and reports success; per-call options are
// accepted for interface symmetry only.
func (s *Server) Send(b []byte, _ *transport.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.peers {
		if err := c.WriteMessage(websocket.BinaryMessage, b); err != nil {
			s.logger.Warn("broadcast to peer failed",
				zap.Stringer("peer", c.RemoteAddr()), zap.Error(err))
		}
	}
	return nil
}
