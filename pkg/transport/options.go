package transport

// Routing selects how datagrams leave the socket.
type Routing string

const (
	RoutingUnicast   Routing = "unicast"
	RoutingBroadcast Routing = "broadcast"
	RoutingMulticast Routing = "multicast"
)

// Options is one configuration layer. Every field is optional; nil means
// "inherit from the layer below". Layers are folded over a transport's
// defaults with Resolve, later layers winning field-by-field inside each
// nested group, so setting send.port never discards the default send.host.
type Options struct {
	Type      *string           `yaml:"type" mapstructure:"type"`
	Routing   *Routing          `yaml:"routing" mapstructure:"routing"`
	Open      *OpenOptions      `yaml:"open" mapstructure:"open"`
	Send      *SendOptions      `yaml:"send" mapstructure:"send"`
	Multicast *MulticastOptions `yaml:"multicast" mapstructure:"multicast"`
}

// OpenOptions configures the local endpoint a transport binds to.
type OpenOptions struct {
	Host      *string `yaml:"host" mapstructure:"host"`
	Port      *int    `yaml:"port" mapstructure:"port"`
	Exclusive *bool   `yaml:"exclusive" mapstructure:"exclusive"`
}

// SendOptions configures the default destination of outbound payloads.
// Group is the multicast group address; it has no default and must be set
// explicitly when multicast routing is requested.
type SendOptions struct {
	Host    *string  `yaml:"host" mapstructure:"host"`
	Port    *int     `yaml:"port" mapstructure:"port"`
	Routing *Routing `yaml:"routing" mapstructure:"routing"`
	Group   *string  `yaml:"group" mapstructure:"group"`
}

// MulticastOptions configures multicast socket flags.
type MulticastOptions struct {
	TTL      *int  `yaml:"ttl" mapstructure:"ttl"`
	Loopback *bool `yaml:"loopback" mapstructure:"loopback"`
}

// Config is a fully resolved configuration snapshot. Every field has a
// value after Resolve; no validation is performed on the way in, so
// out-of-range ports or malformed hosts surface later as socket errors.
type Config struct {
	Type      string
	Routing   Routing
	Open      OpenConfig
	Send      SendConfig
	Multicast MulticastConfig
}

type OpenConfig struct {
	Host      string
	Port      int
	Exclusive bool
}

type SendConfig struct {
	Host    string
	Port    int
	Routing Routing
	Group   string
}

type MulticastConfig struct {
	TTL      int
	Loopback bool
}

// Apply returns a copy of c with every non-nil field of o written over it.
// Nested groups merge field-by-field, never wholesale.
func (c Config) Apply(o *Options) Config {
	if o == nil {
		return c
	}
	if o.Type != nil {
		c.Type = *o.Type
	}
	if o.Routing != nil {
		c.Routing = *o.Routing
	}
	if o.Open != nil {
		if o.Open.Host != nil {
			c.Open.Host = *o.Open.Host
		}
		if o.Open.Port != nil {
			c.Open.Port = *o.Open.Port
		}
		if o.Open.Exclusive != nil {
			c.Open.Exclusive = *o.Open.Exclusive
		}
	}
	if o.Send != nil {
		if o.Send.Host != nil {
			c.Send.Host = *o.Send.Host
		}
		if o.Send.Port != nil {
			c.Send.Port = *o.Send.Port
		}
		if o.Send.Routing != nil {
			c.Send.Routing = *o.Send.Routing
		}
		if o.Send.Group != nil {
			c.Send.Group = *o.Send.Group
		}
	}
	if o.Multicast != nil {
		if o.Multicast.TTL != nil {
			c.Multicast.TTL = *o.Multicast.TTL
		}
		if o.Multicast.Loopback != nil {
			c.Multicast.Loopback = *o.Multicast.Loopback
		}
	}
	return c
}

// Resolve folds the given layers over base, last writer wins.
func Resolve(base Config, layers ...*Options) Config {
	for _, l := range layers {
		base = base.Apply(l)
	}
	return base
}

// Pointer helpers for building Options literals.

func String(s string) *string { return &s }

func Int(i int) *int { return &i }

func Bool(b bool) *bool { return &b }

func Route(r Routing) *Routing { return &r }
