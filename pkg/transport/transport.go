// Package transport defines the surface shared by all oscline transports:
// the lifecycle status machine, the event variant delivered to the host
// library, and the layered option merging that resolves a transport's
// effective configuration.
package transport

import (
	"net"
	"sync"
)

// Status tracks where a transport is in its lifecycle.
type Status int32

const (
	StatusNotInitialized Status = iota
	StatusConnecting
	StatusOpen
	StatusClosing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusNotInitialized:
		return "not_initialized"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind discriminates the events a transport reports.
type EventKind int

const (
	EventOpen EventKind = iota
	EventClose
	EventError
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is delivered to the registered notify callback. Err is set for
// EventError; Payload and From are set for EventMessage. Open and Close
// carry no detail.
type Event struct {
	Kind    EventKind
	Err     error
	Payload []byte
	From    net.Addr
}

// NotifyFunc receives transport events. It is invoked from the transport's
// own goroutines; handlers that block delay further delivery.
type NotifyFunc func(Event)

// Transport is implemented by every oscline transport. Passing nil options
// to Open or Send uses the configuration resolved at construction; a non-nil
// value overrides it for that call only.
type Transport interface {
	Open(o *Options) error
	Close() error
	Send(b []byte, o *Options) error
	Status() Status
	RegisterNotify(fn NotifyFunc)
}

// Notifier is the single-subscriber callback slot behind RegisterNotify.
// Registering overwrites the previous callback; there is never more than
// one subscriber. The zero value is ready to use and drops events.
type Notifier struct {
	mu sync.Mutex
	fn NotifyFunc
}

// Register replaces the stored callback. A nil fn restores the no-op default.
func (n *Notifier) Register(fn NotifyFunc) {
	n.mu.Lock()
	n.fn = fn
	n.mu.Unlock()
}

// Notify forwards ev to the registered callback, if any.
func (n *Notifier) Notify(ev Event) {
	n.mu.Lock()
	fn := n.fn
	n.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}
