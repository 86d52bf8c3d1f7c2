package udp

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/oscline/oscline/pkg/transport"
)

// configureRouting applies the multicast socket flags and, when the
// transport itself routes multicast, joins the configured group. Broadcast
// needs no post-bind work; its flag is set before bind by controlSocket.
func (t *Transport) configureRouting(conn *net.UDPConn, cfg transport.Config) error {
	multicastSend := cfg.Send.Routing == transport.RoutingMulticast
	multicastRecv := cfg.Routing == transport.RoutingMulticast
	if !multicastSend && !multicastRecv {
		return nil
	}

	var group net.IP
	if multicastRecv {
		group = net.ParseIP(cfg.Send.Group)
		if group == nil {
			return fmt.Errorf("invalid multicast group %q", cfg.Send.Group)
		}
	}

	if cfg.Type == "udp6" {
		p := ipv6.NewPacketConn(conn)
		if multicastRecv {
			if err := p.JoinGroup(nil, &net.UDPAddr{IP: group}); err != nil {
				return fmt.Errorf("join group %s: %w", group, err)
			}
		}
		if multicastSend {
			if err := p.SetMulticastHopLimit(cfg.Multicast.TTL); err != nil {
				return fmt.Errorf("set multicast hop limit: %w", err)
			}
			if err := p.SetMulticastLoopback(cfg.Multicast.Loopback); err != nil {
				return fmt.Errorf("set multicast loopback: %w", err)
			}
		}
		return nil
	}

	p := ipv4.NewPacketConn(conn)
	if multicastRecv {
		if err := p.JoinGroup(nil, &net.UDPAddr{IP: group}); err != nil {
			return fmt.Errorf("join group %s: %w", group, err)
		}
	}
	if multicastSend {
		if err := p.SetMulticastTTL(cfg.Multicast.TTL); err != nil {
			return fmt.Errorf("set multicast ttl: %w", err)
		}
		if err := p.SetMulticastLoopback(cfg.Multicast.Loopback); err != nil {
			return fmt.Errorf("set multicast loopback: %w", err)
		}
	}
	return nil
}
