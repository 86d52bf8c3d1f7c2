// Package bridge relays payloads between a datagram transport and a
// WebSocket server: datagrams arriving on the UDP side are broadcast to
// every WebSocket peer, and binary frames from peers go out through the
// UDP send configuration.
package bridge

import (
	"go.uber.org/zap"

	"github.com/oscline/oscline/pkg/transport"
	"github.com/oscline/oscline/pkg/transport/udp"
	"github.com/oscline/oscline/pkg/transport/websocket"
)

// Options configures the two legs independently. Either may be nil to run
// on that leg's defaults.
type Options struct {
	UDP       *transport.Options `yaml:"udp" mapstructure:"udp"`
	WebSocket *transport.Options `yaml:"websocket" mapstructure:"websocket"`
}

// Bridge couples the two legs behind the common transport surface. Its
// notify callback sees both legs' events; Status reports the leg that is
// furthest behind so Open/Close completion can be awaited on the bridge
// itself.
type Bridge struct {
	logger *zap.Logger
	notify transport.Notifier

	udp *udp.Transport
	ws  *websocket.Server
}

var _ transport.Transport = (*Bridge)(nil)

// New builds both legs and wires the relay. The UDP capability probe runs
// here, so New fails where the datagram transport cannot exist.
func New(logger *zap.Logger, o Options) (*Bridge, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	u, err := udp.New(logger.Named("udp"), o.UDP)
	if err != nil {
		return nil, err
	}
	w := websocket.NewServer(logger.Named("websocket"), o.WebSocket)

	b := &Bridge{
		logger: logger,
		udp:    u,
		ws:     w,
	}

	u.RegisterNotify(func(ev transport.Event) {
		if ev.Kind == transport.EventMessage {
			_ = w.Send(ev.Payload, nil)
		}
		b.notify.Notify(ev)
	})
	w.RegisterNotify(func(ev transport.Event) {
		if ev.Kind == transport.EventMessage {
			if err := u.Send(ev.Payload, nil); err != nil {
				b.notify.Notify(transport.Event{Kind: transport.EventError, Err: err})
			}
		}
		b.notify.Notify(ev)
	})

	return b, nil
}

// UDP returns the datagram leg.
func (b *Bridge) UDP() *udp.Transport { return b.udp }

// WebSocket returns the server leg.
func (b *Bridge) WebSocket() *websocket.Server { return b.ws }

// Open opens both legs. Per-call options apply to the UDP leg.
func (b *Bridge) Open(o *transport.Options) error {
	if err := b.udp.Open(o); err != nil {
		return err
	}
	return b.ws.Open(nil)
}

// Close closes both legs.
func (b *Bridge) Close() error {
	if err := b.udp.Close(); err != nil {
		return err
	}
	return b.ws.Close()
}

// Send forwards b out both legs: to the UDP send destination and to every
// WebSocket peer.
func (b *Bridge) Send(payload []byte, o *transport.Options) error {
	if err := b.ws.Send(payload, nil); err != nil {
		return err
	}
	return b.udp.Send(payload, o)
}

// Status reports the lower of the two legs' statuses.
func (b *Bridge) Status() transport.Status {
	u, w := b.udp.Status(), b.ws.Status()
	if u < w {
		return u
	}
	return w
}

// RegisterNotify replaces the bridge-level notify callback. Message events
// are relayed to the opposite leg before the callback sees them.
func (b *Bridge) RegisterNotify(fn transport.NotifyFunc) {
	b.notify.Register(fn)
}
